// Package storage owns the on-device SQLite store for the impact
// monitoring core. It provides the storage manager (single database
// handle, guarded one-time initialization, versioned schema migrations),
// the execute/query primitives used by every repository, and the
// key-value state store for process lifecycle flags.
//
// It uses modernc.org/sqlite (pure Go, no CGO) so the core cross-compiles
// for mobile targets. The database runs in WAL mode with a busy timeout.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	// Register the pure-Go SQLite driver. This does NOT require CGO.
	_ "modernc.org/sqlite"
)

// Manager owns the single database handle shared by all repositories.
// Construct it with NewManager, call Initialize exactly once before any
// repository call, and Close on shutdown. The zero value is not usable.
//
// Initialize is guarded: concurrent early callers share one in-flight
// initialization instead of racing independent migration runs. A failed
// initialization is latched; every later call observes the same error.
type Manager struct {
	path   string
	logger *slog.Logger

	migrations []Migration

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewManager creates a storage manager for the database file at path.
// No I/O happens until Initialize. The default migration registry is
// attached; logger may be nil.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		path:       path,
		logger:     logger.With("component", "storage"),
		migrations: Registry(),
	}
}

// Initialize opens (or creates) the store and applies all pending schema
// migrations in ascending order. It is idempotent: the first caller runs
// the work, concurrent and later callers receive the latched result.
//
// On migration failure the whole initialization aborts with a
// *MigrationError, the schema version stays at the last applied value and
// the manager rejects all statements until the process restarts.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize(ctx)
	})
	return m.initErr
}

func (m *Manager) initialize(ctx context.Context) error {
	if m.path == "" {
		return fmt.Errorf("database path must not be empty")
	}

	// WAL mode for concurrent reads, 5s busy timeout for lock contention.
	dsn := m.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	if err := m.migrate(ctx, db); err != nil {
		db.Close()
		return err
	}

	m.db = db
	return nil
}

// Close closes the database handle. Safe to call when Initialize failed.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Execute runs a statement that returns no rows. All statements must be
// parameterized; callers above this layer never issue schema mutations.
func (m *Manager) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if m.db == nil {
		return nil, ErrNotInitialized
	}
	return m.db.ExecContext(ctx, query, args...)
}

// Query runs a statement that returns rows.
func (m *Manager) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if m.db == nil {
		return nil, ErrNotInitialized
	}
	return m.db.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement that returns at most one row. It must not be
// called before Initialize has succeeded; database/sql offers no way to
// construct an errored *sql.Row, so this panics instead of limping on.
func (m *Manager) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	if m.db == nil {
		panic("storage: QueryRow called before Initialize")
	}
	return m.db.QueryRowContext(ctx, query, args...)
}

// Begin starts a transaction. Used by the migration path and tests;
// repositories issue single-statement operations through Execute/Query.
func (m *Manager) Begin(ctx context.Context) (*sql.Tx, error) {
	if m.db == nil {
		return nil, ErrNotInitialized
	}
	return m.db.BeginTx(ctx, nil)
}
