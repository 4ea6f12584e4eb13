package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Migration is a versioned, one-way schema mutation. Up runs inside a
// transaction that also advances the recorded schema version, so a
// migration is either fully applied and recorded or not applied at all.
//
// Up procedures must additionally be idempotent against partial
// re-application: a migration interrupted after effecting its change but
// before the version commit must be safe to re-run. Table creation uses
// CREATE TABLE IF NOT EXISTS and column additions go through addColumn,
// which treats "duplicate column name" as success.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
	Down    func(ctx context.Context, tx *sql.Tx) error
}

// Downgrade runs the migration's Down procedure. None of the shipped
// migrations implement one (SQLite cannot drop columns portably), so this
// reports ErrDownNotSupported instead of silently succeeding.
func (m Migration) Downgrade(ctx context.Context, tx *sql.Tx) error {
	if m.Down == nil {
		return ErrDownNotSupported
	}
	return m.Down(ctx, tx)
}

// Registry returns the ordered migration table. New migrations MUST be
// appended with the next version number; existing entries are never
// modified once shipped.
func Registry() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "athletes",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS athletes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    team TEXT NOT NULL DEFAULT '',
    position TEXT NOT NULL DEFAULT '',
    device_id TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_athletes_device ON athletes(device_id);
`)
				return err
			},
		},
		{
			Version: 2,
			Name:    "sessions",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    team TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    ended_at INTEGER
);

CREATE TABLE IF NOT EXISTS session_participants (
    session_id TEXT NOT NULL,
    athlete_id TEXT NOT NULL,
    joined_at INTEGER NOT NULL,
    left_at INTEGER,
    PRIMARY KEY (session_id, athlete_id),
    FOREIGN KEY (session_id) REFERENCES sessions(id),
    FOREIGN KEY (athlete_id) REFERENCES athletes(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(ended_at, started_at);
`)
				return err
			},
		},
		{
			Version: 3,
			Name:    "sensor samples",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS motion_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL,
    session_id TEXT,
    device_ts INTEGER NOT NULL,
    received_ts INTEGER NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    z REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS force_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL,
    session_id TEXT,
    device_ts INTEGER NOT NULL,
    received_ts INTEGER NOT NULL,
    left_force REAL NOT NULL,
    right_force REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS heart_rate_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL,
    session_id TEXT,
    device_ts INTEGER NOT NULL,
    received_ts INTEGER NOT NULL,
    bpm INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS temperature_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL,
    session_id TEXT,
    device_ts INTEGER NOT NULL,
    received_ts INTEGER NOT NULL,
    celsius REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_motion_device_ts ON motion_samples(device_id, device_ts);
CREATE INDEX IF NOT EXISTS idx_force_device_ts ON force_samples(device_id, device_ts);
CREATE INDEX IF NOT EXISTS idx_hr_device_ts ON heart_rate_samples(device_id, device_ts);
CREATE INDEX IF NOT EXISTS idx_temp_device_ts ON temperature_samples(device_id, device_ts);
`)
				return err
			},
		},
		{
			Version: 4,
			Name:    "impact events",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS impact_events (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    athlete_id TEXT,
    session_id TEXT,
    occurred_at INTEGER NOT NULL,
    magnitude REAL NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    z REAL NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    severity TEXT NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_impacts_device_ts ON impact_events(device_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_impacts_unprocessed ON impact_events(processed, occurred_at);
`)
				return err
			},
		},
		{
			Version: 5,
			Name:    "device calibration",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS device_calibration (
    device_id TEXT NOT NULL,
    sensor_type TEXT NOT NULL,
    offset_x REAL NOT NULL DEFAULT 0,
    offset_y REAL NOT NULL DEFAULT 0,
    offset_z REAL NOT NULL DEFAULT 0,
    scale_x REAL NOT NULL DEFAULT 1,
    scale_y REAL NOT NULL DEFAULT 1,
    scale_z REAL NOT NULL DEFAULT 1,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (device_id, sensor_type)
);
`)
				return err
			},
		},
		{
			Version: 6,
			Name:    "free-text notes",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				if err := addColumn(ctx, tx, "athletes", "notes TEXT NOT NULL DEFAULT ''"); err != nil {
					return err
				}
				return addColumn(ctx, tx, "impact_events", "notes TEXT NOT NULL DEFAULT ''")
			},
		},
	}
}

// addColumn adds a column to an existing table. SQLite reports a re-run
// of an already applied ALTER as "duplicate column name"; that is the one
// error that means success, so it is special-cased here and nowhere else.
func addColumn(ctx context.Context, tx *sql.Tx, table, columnDef string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDef))
	if err != nil && strings.Contains(err.Error(), "duplicate column name") {
		return nil
	}
	return err
}

// migrate bootstraps the key-value area and applies every registered
// migration with a version above the recorded one, in ascending order.
// Each migration and its version bump commit atomically.
func (m *Manager) migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create app_state table: %w", err)
	}

	current, err := readSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return &MigrationError{Version: mig.Version, Err: err}
		}

		if err := mig.Up(ctx, tx); err != nil {
			tx.Rollback()
			return &MigrationError{Version: mig.Version, Err: err}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO app_state (key, value) VALUES (?, ?)`,
			KeySchemaVersion, strconv.Itoa(mig.Version),
		); err != nil {
			tx.Rollback()
			return &MigrationError{Version: mig.Version, Err: err}
		}

		if err := tx.Commit(); err != nil {
			return &MigrationError{Version: mig.Version, Err: err}
		}

		m.logger.Info("schema migration applied",
			"version", mig.Version,
			"name", mig.Name,
		)
	}

	return nil
}

// readSchemaVersion returns the recorded schema version, or 0 on first run.
func readSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE key = ?`, KeySchemaVersion,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}
