package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Keys used in the app_state key-value area.
const (
	KeySchemaVersion       = "schemaVersion"
	KeyFirstLaunch         = "firstLaunch"
	KeyOnboardingCompleted = "onboardingCompleted"
)

// StateStore is the small key-value layer for process lifecycle flags:
// first launch, onboarding state and the schema version written by the
// migration path. Values are plain strings; no transactions. The core is
// single-process, so read-modify-write races do not arise.
type StateStore struct {
	m *Manager
}

// NewStateStore creates a state store over an initialized manager.
func NewStateStore(m *Manager) *StateStore {
	return &StateStore{m: m}
}

// Get returns the value for key, and whether it was present.
func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.m.QueryRow(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &PersistenceError{Op: "get state " + key, Err: err}
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *StateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.m.Execute(ctx,
		`INSERT OR REPLACE INTO app_state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return &PersistenceError{Op: "set state " + key, Err: err}
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *StateStore) Remove(ctx context.Context, key string) error {
	_, err := s.m.Execute(ctx, `DELETE FROM app_state WHERE key = ?`, key)
	if err != nil {
		return &PersistenceError{Op: "remove state " + key, Err: err}
	}
	return nil
}

// SchemaVersion returns the current applied schema version, 0 if none.
func (s *StateStore) SchemaVersion(ctx context.Context) (int, error) {
	value, ok, err := s.Get(ctx, KeySchemaVersion)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("malformed schema version %q: %w", value, err)
	}
	return v, nil
}

// IsFirstLaunch reports whether the app has never marked a launch.
func (s *StateStore) IsFirstLaunch(ctx context.Context) (bool, error) {
	value, ok, err := s.Get(ctx, KeyFirstLaunch)
	if err != nil {
		return false, err
	}
	return !ok || value != "false", nil
}

// MarkLaunched records that the first launch has happened.
func (s *StateStore) MarkLaunched(ctx context.Context) error {
	return s.Set(ctx, KeyFirstLaunch, "false")
}

// OnboardingCompleted reports whether onboarding has finished.
func (s *StateStore) OnboardingCompleted(ctx context.Context) (bool, error) {
	value, ok, err := s.Get(ctx, KeyOnboardingCompleted)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

// SetOnboardingCompleted records the onboarding flag.
func (s *StateStore) SetOnboardingCompleted(ctx context.Context, done bool) error {
	return s.Set(ctx, KeyOnboardingCompleted, strconv.FormatBool(done))
}
