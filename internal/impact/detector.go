package impact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/sportsense/impactcore/internal/alert"
	"github.com/sportsense/impactcore/internal/observability"
	"github.com/sportsense/impactcore/internal/sensor"
	"github.com/sportsense/impactcore/internal/storage"
)

// Defaults for the dedup guard's sliding window.
const (
	DefaultDedupWindow   = 10 * time.Minute
	DefaultDedupCapacity = 100_000
	DefaultDedupFPRate   = 0.0001
)

// AthleteResolver maps a device to its linked athlete, if any.
// Implemented by the athlete repository through a thin adapter in the
// core wiring.
type AthleteResolver interface {
	AthleteForDevice(ctx context.Context, deviceID string) (string, bool, error)
}

// Alert is the payload published on alert.TopicAlertTriggered. By the
// time a subscriber sees it, the corresponding ImpactEvent row is
// already durably written and queryable.
type Alert struct {
	EventID    string
	DeviceID   string
	AthleteID  string // empty when no athlete maps to the device
	SessionID  string
	Magnitude  float64
	Severity   Severity
	OccurredAt int64
}

// Detector evaluates motion samples as they are recorded. It is the sole
// producer of impact_events rows.
type Detector struct {
	store        *storage.Manager
	calibrations *CalibrationRepository
	athletes     AthleteResolver
	bus          *alert.Bus
	thresholds   Thresholds
	guard        *dedupGuard
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewDetector creates an impact detector. Invalid thresholds fall back
// to DefaultThresholds; athletes, logger and metrics may be nil.
func NewDetector(
	store *storage.Manager,
	calibrations *CalibrationRepository,
	athletes AthleteResolver,
	bus *alert.Bus,
	thresholds Thresholds,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Detector {
	if !thresholds.Valid() {
		thresholds = DefaultThresholds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:        store,
		calibrations: calibrations,
		athletes:     athletes,
		bus:          bus,
		thresholds:   thresholds,
		guard:        newDedupGuard(DefaultDedupWindow, DefaultDedupCapacity, DefaultDedupFPRate, nil),
		logger:       logger.With("component", "impact-detector"),
		metrics:      metrics,
	}
}

// Thresholds returns the active classification thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// HandleMotion evaluates one persisted motion sample. On a threshold
// crossing it writes the ImpactEvent row first and publishes the alert
// second, so an alert is only ever observed for a durably recorded
// event. Re-delivered samples are suppressed by the dedup guard.
func (d *Detector) HandleMotion(ctx context.Context, s sensor.MotionSample) error {
	cal := Identity
	if d.calibrations != nil {
		var found bool
		var err error
		cal, found, err = d.calibrations.Get(ctx, s.DeviceID, SensorAccelerometer)
		if err != nil {
			return err
		}
		if found && d.metrics != nil {
			d.metrics.CalibrationApplied.Add(ctx, 1)
		}
	}

	x, y, z := cal.Apply(s.X, s.Y, s.Z)
	magnitude := Magnitude(x, y, z)

	severity := d.thresholds.Classify(magnitude)
	if severity == SeverityNone {
		return nil
	}

	key := dedupKey(s)
	if d.guard.contains(key) {
		if d.metrics != nil {
			d.metrics.DuplicatesDropped.Add(ctx, 1)
		}
		d.logger.Debug("duplicate motion sample suppressed",
			"device_id", s.DeviceID,
			"device_ts", s.DeviceTS,
		)
		return nil
	}

	athleteID := ""
	if d.athletes != nil {
		id, ok, err := d.athletes.AthleteForDevice(ctx, s.DeviceID)
		if err != nil {
			// Attribution is best-effort: an unresolvable athlete must
			// not lose the impact record itself.
			d.logger.Warn("athlete resolution failed", "device_id", s.DeviceID, "error", err)
		} else if ok {
			athleteID = id
		}
	}

	event := Event{
		ID:         uuid.New().String(),
		DeviceID:   s.DeviceID,
		AthleteID:  athleteID,
		SessionID:  s.SessionID,
		OccurredAt: s.DeviceTS,
		Magnitude:  magnitude,
		X:          x,
		Y:          y,
		Z:          z,
		Severity:   severity,
	}

	if err := d.insert(ctx, event); err != nil {
		// The key stays unrecorded so a retry of the same sample is not
		// suppressed.
		return err
	}
	d.guard.record(key)

	if d.metrics != nil {
		d.metrics.ImpactsDetected.Add(ctx, 1,
			otelmetric.WithAttributes(attribute.String("severity", string(severity))))
		d.metrics.ImpactMagnitude.Record(ctx, magnitude)
	}

	d.logger.Info("impact detected",
		"event_id", event.ID,
		"device_id", s.DeviceID,
		"magnitude", magnitude,
		"severity", severity,
	)

	if d.bus != nil {
		d.bus.Publish(alert.TopicAlertTriggered, Alert{
			EventID:    event.ID,
			DeviceID:   event.DeviceID,
			AthleteID:  event.AthleteID,
			SessionID:  event.SessionID,
			Magnitude:  event.Magnitude,
			Severity:   event.Severity,
			OccurredAt: event.OccurredAt,
		})
	}

	return nil
}

func (d *Detector) insert(ctx context.Context, e Event) error {
	_, err := d.store.Execute(ctx,
		`INSERT INTO impact_events
		     (id, device_id, athlete_id, session_id, occurred_at, magnitude, x, y, z, duration_ms, severity, processed, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '')`,
		e.ID, e.DeviceID, nullable(e.AthleteID), nullable(e.SessionID),
		e.OccurredAt, e.Magnitude, e.X, e.Y, e.Z, e.DurationMS, string(e.Severity),
	)
	if err != nil {
		if d.metrics != nil {
			d.metrics.StorageErrors.Add(ctx, 1)
		}
		return &storage.PersistenceError{Op: "insert impact event", Err: err}
	}
	return nil
}

func dedupKey(s sensor.MotionSample) string {
	return fmt.Sprintf("%s:%d", s.DeviceID, s.DeviceTS)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
