// Package session tracks monitoring sessions: bounded time windows that
// associate one or more athletes with recorded sensor data.
//
// The ingestion path resolves "current session for device" through the
// tracker: the most recent open session with an open participant whose
// athlete is linked to the device. When no such session exists, packets
// are recorded session-less.
package session

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sportsense/impactcore/internal/storage"
)

// ErrNotFound is returned when no session matches the lookup.
var ErrNotFound = errors.New("session not found")

// Session is a bounded monitoring window. EndedAt is nil while active.
type Session struct {
	ID        string
	Name      string
	Team      string
	Notes     string
	StartedAt int64 // unix milliseconds
	EndedAt   *int64
}

// Participant links an athlete to a session. LeftAt is nil while the
// athlete is still part of the session; removal sets LeftAt instead of
// deleting the row, preserving history.
type Participant struct {
	SessionID string
	AthleteID string
	JoinedAt  int64
	LeftAt    *int64
}

// Tracker creates and closes sessions and participant links.
// It is safe for concurrent use; all state lives in the store.
type Tracker struct {
	store  *storage.Manager
	logger *slog.Logger

	// now is time.Now in production; tests inject a controllable clock.
	now func() time.Time
}

// NewTracker creates a session tracker. logger may be nil.
func NewTracker(store *storage.Manager, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		logger: logger.With("component", "session-tracker"),
		now:    time.Now,
	}
}

// StartSession creates a session with start=now and no end.
func (t *Tracker) StartSession(ctx context.Context, name, team string) (string, error) {
	id := uuid.New().String()
	_, err := t.store.Execute(ctx,
		`INSERT INTO sessions (id, name, team, notes, started_at, ended_at)
		 VALUES (?, ?, ?, '', ?, NULL)`,
		id, name, team, t.now().UnixMilli(),
	)
	if err != nil {
		return "", &storage.PersistenceError{Op: "start session", Err: err}
	}

	t.logger.Info("session started", "session_id", id, "name", name, "team", team)
	return id, nil
}

// EndSession sets the session's end timestamp. Ending an already-ended
// session is a no-op: the recorded end timestamp is left untouched.
func (t *Tracker) EndSession(ctx context.Context, id string) error {
	res, err := t.store.Execute(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		t.now().UnixMilli(), id,
	)
	if err != nil {
		return &storage.PersistenceError{Op: "end session", Err: err}
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		// Either already ended (no-op) or unknown id.
		if _, err := t.Get(ctx, id); err != nil {
			return err
		}
		return nil
	}

	t.logger.Info("session ended", "session_id", id)
	return nil
}

// AddParticipant links an athlete to the session with join=now.
func (t *Tracker) AddParticipant(ctx context.Context, sessionID, athleteID string) error {
	_, err := t.store.Execute(ctx,
		`INSERT INTO session_participants (session_id, athlete_id, joined_at, left_at)
		 VALUES (?, ?, ?, NULL)`,
		sessionID, athleteID, t.now().UnixMilli(),
	)
	if err != nil {
		return &storage.PersistenceError{Op: "add participant", Err: err}
	}
	return nil
}

// RemoveParticipant sets the participant's leave timestamp rather than
// deleting the link. Removing an already-removed participant is a no-op.
func (t *Tracker) RemoveParticipant(ctx context.Context, sessionID, athleteID string) error {
	_, err := t.store.Execute(ctx,
		`UPDATE session_participants SET left_at = ?
		 WHERE session_id = ? AND athlete_id = ? AND left_at IS NULL`,
		t.now().UnixMilli(), sessionID, athleteID,
	)
	if err != nil {
		return &storage.PersistenceError{Op: "remove participant", Err: err}
	}
	return nil
}

// Get returns the session with the given id.
func (t *Tracker) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	var ended sql.NullInt64
	err := t.store.QueryRow(ctx,
		`SELECT id, name, team, notes, started_at, ended_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.Team, &s.Notes, &s.StartedAt, &ended)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get session", Err: err}
	}
	if ended.Valid {
		s.EndedAt = &ended.Int64
	}
	return &s, nil
}

// Participants returns the session's participant links, join order first.
func (t *Tracker) Participants(ctx context.Context, sessionID string) ([]Participant, error) {
	rows, err := t.store.Query(ctx,
		`SELECT session_id, athlete_id, joined_at, left_at
		 FROM session_participants WHERE session_id = ? ORDER BY joined_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "list participants", Err: err}
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var p Participant
		var left sql.NullInt64
		if err := rows.Scan(&p.SessionID, &p.AthleteID, &p.JoinedAt, &left); err != nil {
			return nil, &storage.PersistenceError{Op: "scan participant", Err: err}
		}
		if left.Valid {
			p.LeftAt = &left.Int64
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate participants", Err: err}
	}
	return participants, nil
}

// ActiveSessionForDevice resolves the session to tag incoming packets
// with: the most recently started open session that has an open
// participant whose athlete is linked to deviceID. The second return is
// false when no session is active for the device.
func (t *Tracker) ActiveSessionForDevice(ctx context.Context, deviceID string) (string, bool, error) {
	var id string
	err := t.store.QueryRow(ctx,
		`SELECT s.id
		 FROM sessions s
		 JOIN session_participants sp ON sp.session_id = s.id AND sp.left_at IS NULL
		 JOIN athletes a ON a.id = sp.athlete_id
		 WHERE s.ended_at IS NULL AND a.device_id = ?
		 ORDER BY s.started_at DESC
		 LIMIT 1`,
		deviceID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &storage.PersistenceError{Op: "resolve active session", Err: err}
	}
	return id, true, nil
}
