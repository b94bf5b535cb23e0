// Package database provides the storage abstraction used by the coordinator
// core: a small, transaction-capable interface over either PostgreSQL
// (production) or SQLite (local development and tests).
package database

import (
	"context"
	"fmt"

	"github.com/scanhub-io/coordinator/internal/config"
)

// Queryer is the read/write surface shared by DB and Tx, so store code can
// be written once against either a pooled connection or an open transaction.
type Queryer interface {
	// Select executes a query and scans rows into dest (slice pointer).
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Get executes a query expected to return a single row and scans into dest.
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Exec executes a statement that returns no rows and reports rows affected.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)
}

// Tx is an open transaction. It is only valid for the lifetime of the
// WithTx callback that received it.
type Tx interface {
	Queryer
}

// DB is the storage gateway used throughout the core. Beyond Queryer it
// can run atomic multi-statement operations via WithTx, apply the embedded
// migrations, and report its own health.
type DB interface {
	Queryer

	// Insert inserts a struct-tagged record into table and returns the new row ID.
	Insert(ctx context.Context, table string, record interface{}) (int64, error)

	// Upsert inserts or updates based on conflictCols (ON CONFLICT clause).
	Upsert(ctx context.Context, table string, record interface{}, conflictCols []string) error

	// WithTx runs fn inside a single database transaction, committing on a
	// nil return and rolling back otherwise (including on panic).
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Migrate applies pending schema migrations in order.
	Migrate(ctx context.Context) error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// Driver returns the backend name: "postgres" or "sqlite".
	Driver() string
}

// New returns a DB implementation matching cfg.Driver.
// SQLite is the default when driver is empty; it is meant for local
// development and the package's own test suite. Any other unrecognised
// driver name is an error. Production deployments set DB_DRIVER=postgres
// and DB_URL to a postgres:// DSN.
func New(cfg config.DatabaseConfig) (DB, error) {
	switch cfg.Driver {
	case "postgres", "postgresql", "pgx":
		return NewPostgres(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: postgres, sqlite)", cfg.Driver)
	}
}
