package store

import (
	"errors"
	"time"

	"github.com/psantana5/euclid/pkg/models"
)

var (
	ErrComputationNotFound = errors.New("computation not found")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// DefaultListLimit caps ListComputations when no positive limit is given
const DefaultListLimit = 100

// Store defines the interface for computation history persistence.
// Memory, SQLite and PostgreSQL implement it.
type Store interface {
	SaveComputation(c *models.Computation) error
	// SaveComputations stores all of cs or none of them
	SaveComputations(cs []*models.Computation) error
	GetComputation(id string) (*models.Computation, error)
	// ListComputations returns the most recent computations, newest first
	ListComputations(limit int) ([]*models.Computation, error)
	GetStats() (*models.Stats, error)
	// DeleteBefore removes computations created before cutoff and reports
	// how many were removed
	DeleteBefore(cutoff time.Time) (int64, error)

	// Lifecycle
	HealthCheck() error
	Close() error
}

// Config holds database configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // PostgreSQL connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SQLite specific
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "euclid.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit*10 {
		return DefaultListLimit
	}
	return limit
}

// SQL drivers reject uint64 values with the high bit set, so operands are
// stored bit-for-bit in signed 64-bit columns.
func toColumn(v uint64) int64   { return int64(v) }
func fromColumn(v int64) uint64 { return uint64(v) }
