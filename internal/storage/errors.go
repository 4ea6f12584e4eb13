package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage package.
var (
	// ErrNotInitialized is returned when a statement is issued before
	// Initialize has completed successfully.
	ErrNotInitialized = errors.New("storage manager is not initialized")

	// ErrDownNotSupported is returned by migrations that cannot be
	// reversed. SQLite cannot drop columns on older versions, so down
	// migrations are explicit about being unsupported rather than
	// pretending to succeed.
	ErrDownNotSupported = errors.New("down migration is not supported")
)

// MigrationError indicates that a schema migration failed. The store is
// left at the last successfully applied version; no later migration is
// attempted. Initialization is fatal after a MigrationError and the
// manager stays unusable until the process restarts with a fixed registry.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration v%d failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// PersistenceError indicates that an insert or query failed after the
// input had already passed validation. It is propagated to the caller,
// never swallowed: silent data loss for sensor history is unacceptable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
