package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/psantana5/euclid/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the computation store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL with a single connection: concurrent API handlers serialize on the
	// pool instead of failing with SQLITE_BUSY.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS computations (
		id TEXT PRIMARY KEY,
		n INTEGER NOT NULL,
		m INTEGER NOT NULL,
		result INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT 'single',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_computations_created_at ON computations(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

const sqliteInsert = `
	INSERT OR REPLACE INTO computations (id, n, m, result, source, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
`

// SaveComputation inserts or replaces a computation
func (s *SQLiteStore) SaveComputation(c *models.Computation) error {
	_, err := s.db.Exec(sqliteInsert, insertArgs(c)...)
	if err != nil {
		return fmt.Errorf("failed to save computation %s: %w", c.ID, err)
	}
	return nil
}

// SaveComputations inserts every computation in one transaction
func (s *SQLiteStore) SaveComputations(cs []*models.Computation) error {
	return saveInTx(s.db, sqliteInsert, cs)
}

// GetComputation retrieves a computation by ID
func (s *SQLiteStore) GetComputation(id string) (*models.Computation, error) {
	row := s.db.QueryRow(`
		SELECT id, n, m, result, source, created_at
		FROM computations WHERE id = ?
	`, id)

	c, err := scanComputation(row)
	if err == sql.ErrNoRows {
		return nil, ErrComputationNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComputations returns up to limit computations, newest first
func (s *SQLiteStore) ListComputations(limit int) ([]*models.Computation, error) {
	rows, err := s.db.Query(`
		SELECT id, n, m, result, source, created_at
		FROM computations
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list computations: %w", err)
	}
	defer rows.Close()

	computations := make([]*models.Computation, 0)
	for rows.Next() {
		c, err := scanComputation(rows)
		if err != nil {
			return nil, err
		}
		computations = append(computations, c)
	}
	return computations, rows.Err()
}

// GetStats returns totals over all stored computations
func (s *SQLiteStore) GetStats() (*models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN result = 1 THEN 1 ELSE 0 END), 0)
		FROM computations
	`).Scan(&stats.Total, &stats.Coprime)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &stats, nil
}

// DeleteBefore removes computations created before cutoff
func (s *SQLiteStore) DeleteBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM computations WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete computations: %w", err)
	}
	return res.RowsAffected()
}

// Vacuum reclaims space freed by deletes
func (s *SQLiteStore) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// HealthCheck pings the database
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func insertArgs(c *models.Computation) []interface{} {
	return []interface{}{c.ID, toColumn(c.N), toColumn(c.M), toColumn(c.Result), string(c.Source), c.CreatedAt.UTC()}
}

// saveInTx runs stmt once per computation inside a single transaction
func saveInTx(db *sql.DB, stmt string, cs []*models.Computation) error {
	if len(cs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prepared, err := tx.Prepare(stmt)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer prepared.Close()

	for _, c := range cs {
		if _, err := prepared.Exec(insertArgs(c)...); err != nil {
			return fmt.Errorf("failed to save computation %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit computations: %w", err)
	}
	return nil
}

func scanComputation(row rowScanner) (*models.Computation, error) {
	var c models.Computation
	var n, m, result int64
	var source string

	if err := row.Scan(&c.ID, &n, &m, &result, &source, &c.CreatedAt); err != nil {
		return nil, err
	}

	c.N, c.M, c.Result = fromColumn(n), fromColumn(m), fromColumn(result)
	c.Source = models.Source(source)
	return &c, nil
}
