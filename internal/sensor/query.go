package sensor

import (
	"context"
	"database/sql"

	"github.com/sportsense/impactcore/internal/storage"
)

// MotionBetween returns the device's motion samples with device
// timestamps in [start, end], ordered by device timestamp.
func (r *Repository) MotionBetween(ctx context.Context, deviceID string, start, end int64) ([]MotionSample, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, device_id, session_id, device_ts, received_ts, x, y, z
		 FROM motion_samples
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 ORDER BY device_ts ASC, id ASC`,
		deviceID, start, end,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "query motion samples", Err: err}
	}
	defer rows.Close()

	var samples []MotionSample
	for rows.Next() {
		var s MotionSample
		var session sql.NullString
		if err := rows.Scan(&s.ID, &s.DeviceID, &session, &s.DeviceTS, &s.ReceivedTS, &s.X, &s.Y, &s.Z); err != nil {
			return nil, &storage.PersistenceError{Op: "scan motion sample", Err: err}
		}
		s.SessionID = session.String
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate motion samples", Err: err}
	}
	return samples, nil
}

// MotionForSession returns a session's motion samples across devices,
// ordered by device timestamp.
func (r *Repository) MotionForSession(ctx context.Context, sessionID string) ([]MotionSample, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, device_id, session_id, device_ts, received_ts, x, y, z
		 FROM motion_samples
		 WHERE session_id = ?
		 ORDER BY device_ts ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "query session motion samples", Err: err}
	}
	defer rows.Close()

	var samples []MotionSample
	for rows.Next() {
		var s MotionSample
		var session sql.NullString
		if err := rows.Scan(&s.ID, &s.DeviceID, &session, &s.DeviceTS, &s.ReceivedTS, &s.X, &s.Y, &s.Z); err != nil {
			return nil, &storage.PersistenceError{Op: "scan motion sample", Err: err}
		}
		s.SessionID = session.String
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate motion samples", Err: err}
	}
	return samples, nil
}

// ForceBetween returns the device's force samples in [start, end].
func (r *Repository) ForceBetween(ctx context.Context, deviceID string, start, end int64) ([]ForceSample, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, device_id, session_id, device_ts, received_ts, left_force, right_force
		 FROM force_samples
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 ORDER BY device_ts ASC, id ASC`,
		deviceID, start, end,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "query force samples", Err: err}
	}
	defer rows.Close()

	var samples []ForceSample
	for rows.Next() {
		var s ForceSample
		var session sql.NullString
		if err := rows.Scan(&s.ID, &s.DeviceID, &session, &s.DeviceTS, &s.ReceivedTS, &s.Left, &s.Right); err != nil {
			return nil, &storage.PersistenceError{Op: "scan force sample", Err: err}
		}
		s.SessionID = session.String
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate force samples", Err: err}
	}
	return samples, nil
}

// HeartRateBetween returns the device's heart-rate samples in [start, end].
func (r *Repository) HeartRateBetween(ctx context.Context, deviceID string, start, end int64) ([]HeartRateSample, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, device_id, session_id, device_ts, received_ts, bpm
		 FROM heart_rate_samples
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 ORDER BY device_ts ASC, id ASC`,
		deviceID, start, end,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "query heart rate samples", Err: err}
	}
	defer rows.Close()

	var samples []HeartRateSample
	for rows.Next() {
		var s HeartRateSample
		var session sql.NullString
		if err := rows.Scan(&s.ID, &s.DeviceID, &session, &s.DeviceTS, &s.ReceivedTS, &s.BPM); err != nil {
			return nil, &storage.PersistenceError{Op: "scan heart rate sample", Err: err}
		}
		s.SessionID = session.String
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate heart rate samples", Err: err}
	}
	return samples, nil
}

// TemperatureBetween returns the device's temperature samples in [start, end].
func (r *Repository) TemperatureBetween(ctx context.Context, deviceID string, start, end int64) ([]TemperatureSample, error) {
	rows, err := r.store.Query(ctx,
		`SELECT id, device_id, session_id, device_ts, received_ts, celsius
		 FROM temperature_samples
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 ORDER BY device_ts ASC, id ASC`,
		deviceID, start, end,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "query temperature samples", Err: err}
	}
	defer rows.Close()

	var samples []TemperatureSample
	for rows.Next() {
		var s TemperatureSample
		var session sql.NullString
		if err := rows.Scan(&s.ID, &s.DeviceID, &session, &s.DeviceTS, &s.ReceivedTS, &s.Celsius); err != nil {
			return nil, &storage.PersistenceError{Op: "scan temperature sample", Err: err}
		}
		s.SessionID = session.String
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate temperature samples", Err: err}
	}
	return samples, nil
}
