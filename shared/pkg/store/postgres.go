package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/psantana5/euclid/pkg/models"
)

// PostgreSQLStore implements Store using PostgreSQL
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore creates a new PostgreSQL store
func NewPostgreSQLStore(config Config) (*PostgreSQLStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}

	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}

	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	} else {
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgreSQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS computations (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		n BIGINT NOT NULL,
		m BIGINT NOT NULL,
		result BIGINT NOT NULL,
		source TEXT NOT NULL DEFAULT 'single',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_computations_created_at ON computations(created_at DESC, seq DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

const postgresUpsert = `
	INSERT INTO computations (id, n, m, result, source, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		n = EXCLUDED.n,
		m = EXCLUDED.m,
		result = EXCLUDED.result,
		source = EXCLUDED.source,
		created_at = EXCLUDED.created_at
`

// SaveComputation inserts a computation or overwrites the one with the same ID
func (s *PostgreSQLStore) SaveComputation(c *models.Computation) error {
	_, err := s.db.Exec(postgresUpsert, insertArgs(c)...)
	if err != nil {
		return fmt.Errorf("failed to save computation %s: %w", c.ID, err)
	}
	return nil
}

// SaveComputations upserts every computation in one transaction
func (s *PostgreSQLStore) SaveComputations(cs []*models.Computation) error {
	return saveInTx(s.db, postgresUpsert, cs)
}

// GetComputation retrieves a computation by ID
func (s *PostgreSQLStore) GetComputation(id string) (*models.Computation, error) {
	row := s.db.QueryRow(`
		SELECT id, n, m, result, source, created_at
		FROM computations WHERE id = $1
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
func (s *PostgreSQLStore) ListComputations(limit int) ([]*models.Computation, error) {
	rows, err := s.db.Query(`
		SELECT id, n, m, result, source, created_at
		FROM computations
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
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
func (s *PostgreSQLStore) GetStats() (*models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COUNT(*) FILTER (WHERE result = 1)
		FROM computations
	`).Scan(&stats.Total, &stats.Coprime)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &stats, nil
}

// DeleteBefore removes computations created before cutoff
func (s *PostgreSQLStore) DeleteBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM computations WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete computations: %w", err)
	}
	return res.RowsAffected()
}

// Vacuum reclaims space freed by deletes
func (s *PostgreSQLStore) Vacuum() error {
	_, err := s.db.Exec("VACUUM ANALYZE computations")
	return err
}

// HealthCheck pings the database
func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}
