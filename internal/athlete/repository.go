// Package athlete stores athlete profiles and the informal athlete to
// device mapping used to attribute sensor data and impact alerts.
package athlete

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sportsense/impactcore/internal/storage"
)

// ErrNotFound is returned when no athlete matches the lookup.
var ErrNotFound = errors.New("athlete not found")

// Athlete is a monitored player. Athletes are never hard-deleted; edits
// update the row in place and bump UpdatedAt.
type Athlete struct {
	ID        string
	Name      string
	Team      string
	Position  string
	DeviceID  string // empty when no device is assigned
	Notes     string
	CreatedAt int64 // unix milliseconds
	UpdatedAt int64
}

// Repository provides athlete persistence over the storage manager.
type Repository struct {
	store  *storage.Manager
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository creates an athlete repository. logger may be nil.
func NewRepository(store *storage.Manager, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		store:  store,
		logger: logger.With("component", "athlete-repo"),
		now:    time.Now,
	}
}

// Create inserts a new athlete and returns its generated id.
func (r *Repository) Create(ctx context.Context, a Athlete) (string, error) {
	id := uuid.New().String()
	now := r.now().UnixMilli()

	_, err := r.store.Execute(ctx,
		`INSERT INTO athletes (id, name, team, position, device_id, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.Name, a.Team, a.Position, nullable(a.DeviceID), a.Notes, now, now,
	)
	if err != nil {
		return "", &storage.PersistenceError{Op: "create athlete", Err: err}
	}
	return id, nil
}

// Update edits an existing athlete's profile fields.
func (r *Repository) Update(ctx context.Context, a Athlete) error {
	res, err := r.store.Execute(ctx,
		`UPDATE athletes SET name = ?, team = ?, position = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		a.Name, a.Team, a.Position, a.Notes, r.now().UnixMilli(), a.ID,
	)
	if err != nil {
		return &storage.PersistenceError{Op: "update athlete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignDevice links deviceID to the athlete. An empty deviceID clears
// the link. The mapping is informal: it is resolved at read time, not
// enforced with a foreign key.
func (r *Repository) AssignDevice(ctx context.Context, athleteID, deviceID string) error {
	res, err := r.store.Execute(ctx,
		`UPDATE athletes SET device_id = ?, updated_at = ? WHERE id = ?`,
		nullable(deviceID), r.now().UnixMilli(), athleteID,
	)
	if err != nil {
		return &storage.PersistenceError{Op: "assign device", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the athlete with the given id.
func (r *Repository) Get(ctx context.Context, id string) (*Athlete, error) {
	return r.one(ctx, `SELECT id, name, team, position, device_id, notes, created_at, updated_at
		FROM athletes WHERE id = ?`, id)
}

// FindByDevice returns the athlete currently linked to deviceID.
func (r *Repository) FindByDevice(ctx context.Context, deviceID string) (*Athlete, error) {
	return r.one(ctx, `SELECT id, name, team, position, device_id, notes, created_at, updated_at
		FROM athletes WHERE device_id = ?`, deviceID)
}

// List returns all athletes ordered by name.
func (r *Repository) List(ctx context.Context) ([]Athlete, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, name, team, position, device_id, notes, created_at, updated_at
		 FROM athletes ORDER BY name ASC`)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "list athletes", Err: err}
	}
	defer rows.Close()

	var athletes []Athlete
	for rows.Next() {
		a, err := scanAthlete(rows)
		if err != nil {
			return nil, &storage.PersistenceError{Op: "scan athlete", Err: err}
		}
		athletes = append(athletes, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate athletes", Err: err}
	}
	return athletes, nil
}

func (r *Repository) one(ctx context.Context, query string, arg any) (*Athlete, error) {
	row := r.store.QueryRow(ctx, query, arg)
	a, err := scanAthlete(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get athlete", Err: err}
	}
	return &a, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAthlete(s scanner) (Athlete, error) {
	var a Athlete
	var device sql.NullString
	err := s.Scan(&a.ID, &a.Name, &a.Team, &a.Position, &device, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Athlete{}, err
	}
	a.DeviceID = device.String
	return a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
