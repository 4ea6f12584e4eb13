package sensor

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/sportsense/impactcore/internal/observability"
	"github.com/sportsense/impactcore/internal/storage"
)

// SessionResolver resolves the currently active session for a device.
// Implemented by the session tracker.
type SessionResolver interface {
	ActiveSessionForDevice(ctx context.Context, deviceID string) (string, bool, error)
}

// MotionSink receives every successfully persisted motion sample,
// synchronously, before the record call returns. Implemented by the
// impact detector.
type MotionSink interface {
	HandleMotion(ctx context.Context, sample MotionSample) error
}

// Repository provides the typed record methods, one per packet kind, and
// the time-ranged query surface consumed by the presentation layer.
type Repository struct {
	store    *storage.Manager
	sessions SessionResolver
	impacts  MotionSink
	logger   *slog.Logger
	metrics  *observability.Metrics

	// now captures the app-received timestamp; tests inject a clock.
	now func() time.Time
}

// NewRepository creates the sensor data repository. sessions is required;
// impacts, logger and metrics may be nil.
func NewRepository(
	store *storage.Manager,
	sessions SessionResolver,
	impacts MotionSink,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		store:    store,
		sessions: sessions,
		impacts:  impacts,
		logger:   logger.With("component", "sensor-repo"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// RecordMotion validates and persists one motion packet, then forwards
// the persisted sample to the impact detector before returning. The
// insert always happens before detection, so an alert is only ever seen
// for a durably recorded sample.
func (r *Repository) RecordMotion(ctx context.Context, deviceID string, p MotionPacket) error {
	start := r.now()
	if err := p.validate(); err != nil {
		r.reject(ctx, KindMotion)
		return err
	}

	sessionID, receivedTS, err := r.resolve(ctx, deviceID)
	if err != nil {
		return err
	}

	res, err := r.store.Execute(ctx,
		`INSERT INTO motion_samples (device_id, session_id, device_ts, received_ts, x, y, z)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID, nullable(sessionID), p.DeviceTS, receivedTS, p.X, p.Y, p.Z,
	)
	if err != nil {
		return r.persistErr(ctx, "record motion sample", err)
	}
	id, _ := res.LastInsertId()
	r.recorded(ctx, KindMotion, start)

	if r.impacts == nil {
		return nil
	}
	return r.impacts.HandleMotion(ctx, MotionSample{
		ID:         id,
		DeviceID:   deviceID,
		SessionID:  sessionID,
		DeviceTS:   p.DeviceTS,
		ReceivedTS: receivedTS,
		X:          p.X,
		Y:          p.Y,
		Z:          p.Z,
	})
}

// RecordForce validates and persists one bite-force packet.
func (r *Repository) RecordForce(ctx context.Context, deviceID string, p ForcePacket) error {
	start := r.now()
	if err := p.validate(); err != nil {
		r.reject(ctx, KindForce)
		return err
	}

	sessionID, receivedTS, err := r.resolve(ctx, deviceID)
	if err != nil {
		return err
	}

	if _, err := r.store.Execute(ctx,
		`INSERT INTO force_samples (device_id, session_id, device_ts, received_ts, left_force, right_force)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		deviceID, nullable(sessionID), p.DeviceTS, receivedTS, p.Left, p.Right,
	); err != nil {
		return r.persistErr(ctx, "record force sample", err)
	}
	r.recorded(ctx, KindForce, start)
	return nil
}

// RecordHeartRate validates and persists one heart-rate packet.
func (r *Repository) RecordHeartRate(ctx context.Context, deviceID string, p HeartRatePacket) error {
	start := r.now()
	if err := p.validate(); err != nil {
		r.reject(ctx, KindHeartRate)
		return err
	}

	sessionID, receivedTS, err := r.resolve(ctx, deviceID)
	if err != nil {
		return err
	}

	if _, err := r.store.Execute(ctx,
		`INSERT INTO heart_rate_samples (device_id, session_id, device_ts, received_ts, bpm)
		 VALUES (?, ?, ?, ?, ?)`,
		deviceID, nullable(sessionID), p.DeviceTS, receivedTS, p.BPM,
	); err != nil {
		return r.persistErr(ctx, "record heart rate sample", err)
	}
	r.recorded(ctx, KindHeartRate, start)
	return nil
}

// RecordTemperature validates and persists one temperature packet.
func (r *Repository) RecordTemperature(ctx context.Context, deviceID string, p TemperaturePacket) error {
	start := r.now()
	if err := p.validate(); err != nil {
		r.reject(ctx, KindTemperature)
		return err
	}

	sessionID, receivedTS, err := r.resolve(ctx, deviceID)
	if err != nil {
		return err
	}

	if _, err := r.store.Execute(ctx,
		`INSERT INTO temperature_samples (device_id, session_id, device_ts, received_ts, celsius)
		 VALUES (?, ?, ?, ?, ?)`,
		deviceID, nullable(sessionID), p.DeviceTS, receivedTS, p.Celsius,
	); err != nil {
		return r.persistErr(ctx, "record temperature sample", err)
	}
	r.recorded(ctx, KindTemperature, start)
	return nil
}

// resolve returns the active session id for the device (empty if none)
// and the app-received timestamp for the row being written.
func (r *Repository) resolve(ctx context.Context, deviceID string) (string, int64, error) {
	sessionID, _, err := r.sessions.ActiveSessionForDevice(ctx, deviceID)
	if err != nil {
		return "", 0, err
	}
	return sessionID, r.now().UnixMilli(), nil
}

func (r *Repository) reject(ctx context.Context, kind Kind) {
	if r.metrics != nil {
		r.metrics.SamplesRejected.Add(ctx, 1,
			otelmetric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (r *Repository) recorded(ctx context.Context, kind Kind, start time.Time) {
	if r.metrics == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("kind", string(kind)))
	r.metrics.SamplesRecorded.Add(ctx, 1, attrs)
	r.metrics.RecordLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
}

func (r *Repository) persistErr(ctx context.Context, op string, err error) error {
	if r.metrics != nil {
		r.metrics.StorageErrors.Add(ctx, 1)
	}
	r.logger.Error("persistence failure", "op", op, "error", err)
	return &storage.PersistenceError{Op: op, Err: err}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
