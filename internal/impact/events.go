package impact

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sportsense/impactcore/internal/storage"
)

// ErrEventNotFound is returned when no impact event matches the lookup.
var ErrEventNotFound = errors.New("impact event not found")

// Event is a derived impact record. Events are created exclusively by
// the detector from motion samples, never by user input. Only the
// processed flag and notes may change after insert, through
// AcknowledgeAlert and Annotate.
type Event struct {
	ID         string
	DeviceID   string
	AthleteID  string
	SessionID  string
	OccurredAt int64
	Magnitude  float64
	X, Y, Z    float64
	// DurationMS is reserved for multi-sample detection. Detection is
	// currently single-sample, so every stored event carries 0.
	DurationMS int64
	Severity   Severity
	Processed  bool
	Notes      string
}

// AcknowledgeAlert marks the event as processed. The presentation layer
// calls this once an alert has been displayed and acted on.
func (d *Detector) AcknowledgeAlert(ctx context.Context, eventID string) error {
	res, err := d.store.Execute(ctx,
		`UPDATE impact_events SET processed = 1 WHERE id = ?`, eventID)
	if err != nil {
		return &storage.PersistenceError{Op: "acknowledge alert", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Annotate attaches free-text notes to an event.
func (d *Detector) Annotate(ctx context.Context, eventID, notes string) error {
	res, err := d.store.Execute(ctx,
		`UPDATE impact_events SET notes = ? WHERE id = ?`, notes, eventID)
	if err != nil {
		return &storage.PersistenceError{Op: "annotate impact event", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// GetEvent returns the impact event with the given id.
func (d *Detector) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := d.store.QueryRow(ctx,
		`SELECT id, device_id, athlete_id, session_id, occurred_at, magnitude, x, y, z, duration_ms, severity, processed, notes
		 FROM impact_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get impact event", Err: err}
	}
	return &e, nil
}

// EventsBetween returns the device's impact events in [start, end],
// ordered by occurrence time.
func (d *Detector) EventsBetween(ctx context.Context, deviceID string, start, end int64) ([]Event, error) {
	return d.events(ctx,
		`SELECT id, device_id, athlete_id, session_id, occurred_at, magnitude, x, y, z, duration_ms, severity, processed, notes
		 FROM impact_events
		 WHERE device_id = ? AND occurred_at BETWEEN ? AND ?
		 ORDER BY occurred_at ASC, id ASC`,
		deviceID, start, end,
	)
}

// EventsForSession returns a session's impact events across devices.
func (d *Detector) EventsForSession(ctx context.Context, sessionID string) ([]Event, error) {
	return d.events(ctx,
		`SELECT id, device_id, athlete_id, session_id, occurred_at, magnitude, x, y, z, duration_ms, severity, processed, notes
		 FROM impact_events
		 WHERE session_id = ?
		 ORDER BY occurred_at ASC, id ASC`,
		sessionID,
	)
}

// UnprocessedEvents returns events not yet acknowledged, oldest first.
func (d *Detector) UnprocessedEvents(ctx context.Context) ([]Event, error) {
	return d.events(ctx,
		`SELECT id, device_id, athlete_id, session_id, occurred_at, magnitude, x, y, z, duration_ms, severity, processed, notes
		 FROM impact_events
		 WHERE processed = 0
		 ORDER BY occurred_at ASC, id ASC`,
	)
}

// CountPerDay returns the device's per-day impact counts over
// [start, end], computed by the store's own grouping.
func (d *Detector) CountPerDay(ctx context.Context, deviceID string, start, end int64) (map[string]int64, error) {
	rows, err := d.store.Query(ctx,
		`SELECT strftime('%Y-%m-%d', occurred_at / 1000, 'unixepoch') AS day, COUNT(*)
		 FROM impact_events
		 WHERE device_id = ? AND occurred_at BETWEEN ? AND ?
		 GROUP BY day`,
		deviceID, start, end,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "impact count per day", Err: err}
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, &storage.PersistenceError{Op: "scan impact count", Err: err}
		}
		counts[day] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate impact counts", Err: err}
	}
	return counts, nil
}

func (d *Detector) events(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := d.store.Query(ctx, query, args...)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "query impact events", Err: err}
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, &storage.PersistenceError{Op: "scan impact event", Err: err}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate impact events", Err: err}
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var e Event
	var athlete, session sql.NullString
	var severity string
	var processed int
	err := s.Scan(&e.ID, &e.DeviceID, &athlete, &session, &e.OccurredAt,
		&e.Magnitude, &e.X, &e.Y, &e.Z, &e.DurationMS, &severity, &processed, &e.Notes)
	if err != nil {
		return Event{}, err
	}
	e.AthleteID = athlete.String
	e.SessionID = session.String
	e.Severity = Severity(severity)
	e.Processed = processed != 0
	return e, nil
}
