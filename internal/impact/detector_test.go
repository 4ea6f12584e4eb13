package impact

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/sportsense/impactcore/internal/alert"
	"github.com/sportsense/impactcore/internal/sensor"
	"github.com/sportsense/impactcore/internal/storage"
)

type stubAthletes struct {
	athleteID string
	err       error
}

func (s stubAthletes) AthleteForDevice(ctx context.Context, deviceID string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	return s.athleteID, s.athleteID != "", nil
}

func newTestDetector(t *testing.T, athletes AthleteResolver) (*Detector, *alert.Bus, *storage.Manager) {
	t.Helper()
	m := storage.NewManager(filepath.Join(t.TempDir(), "test.db"), nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	bus := alert.NewBus(nil, nil)
	cals := NewCalibrationRepository(m, nil)
	d := NewDetector(m, cals, athletes, bus, DefaultThresholds, nil, nil)
	return d, bus, m
}

func motionSample(id int64, deviceTS int64, x, y, z float64) sensor.MotionSample {
	return sensor.MotionSample{
		ID:         id,
		DeviceID:   "dev-1",
		DeviceTS:   deviceTS,
		ReceivedTS: deviceTS + 5,
		X:          x,
		Y:          y,
		Z:          z,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		magnitude float64
		want      Severity
	}{
		{0, SeverityNone},
		{39.999, SeverityNone},
		{40, SeverityModerate},
		{59.999, SeverityModerate},
		{60, SeveritySevere},
		{89.999, SeveritySevere},
		{90, SeverityCritical},
		{500, SeverityCritical},
	}
	for _, c := range cases {
		if got := DefaultThresholds.Classify(c.magnitude); got != c.want {
			t.Fatalf("Classify(%v) = %v, want %v", c.magnitude, got, c.want)
		}
	}
}

func TestMagnitude(t *testing.T) {
	if got := Magnitude(3, 4, 0); got != 5 {
		t.Fatalf("Magnitude(3,4,0) = %v, want 5", got)
	}
	got := Magnitude(10.5, -50.2, 95.1)
	if math.Abs(got-108.05) > 0.01 {
		t.Fatalf("Magnitude(10.5,-50.2,95.1) = %v", got)
	}
	if DefaultThresholds.Classify(got) != SeverityCritical {
		t.Fatalf("magnitude %v should classify critical", got)
	}
}

func TestNewDetector_InvalidThresholdsFallBack(t *testing.T) {
	m := storage.NewManager(filepath.Join(t.TempDir(), "test.db"), nil)
	d := NewDetector(m, nil, nil, nil, Thresholds{Mild: 90, Moderate: 60, Severe: 40}, nil, nil)
	if d.Thresholds() != DefaultThresholds {
		t.Fatalf("thresholds = %+v, want defaults", d.Thresholds())
	}
}

func TestHandleMotion_BelowThresholdEmitsNothing(t *testing.T) {
	d, bus, m := newTestDetector(t, nil)
	ctx := context.Background()

	var published int
	bus.Subscribe(alert.TopicAlertTriggered, func(topic string, payload any) { published++ })

	if err := d.HandleMotion(ctx, motionSample(1, 1000, 1, 2, 2)); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	if published != 0 {
		t.Fatal("sub-threshold sample must not publish")
	}
	var count int
	if err := m.QueryRow(ctx, `SELECT COUNT(*) FROM impact_events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("found %d events, want 0", count)
	}
}

func TestHandleMotion_PersistsBeforePublishing(t *testing.T) {
	d, bus, _ := newTestDetector(t, stubAthletes{athleteID: "ath-1"})
	ctx := context.Background()

	// The subscriber reads the event back during delivery; the row must
	// already be committed at that point.
	var seen *Event
	bus.Subscribe(alert.TopicAlertTriggered, func(topic string, payload any) {
		a, ok := payload.(Alert)
		if !ok {
			t.Errorf("payload type %T", payload)
			return
		}
		e, err := d.GetEvent(ctx, a.EventID)
		if err != nil {
			t.Errorf("GetEvent during delivery: %v", err)
			return
		}
		seen = e
	})

	s := motionSample(1, 1000, 10.5, -50.2, 95.1)
	s.SessionID = "sess-1"
	if err := d.HandleMotion(ctx, s); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}

	if seen == nil {
		t.Fatal("alert was not delivered")
	}
	if seen.Severity != SeverityCritical {
		t.Fatalf("severity = %v, want critical", seen.Severity)
	}
	if seen.AthleteID != "ath-1" || seen.SessionID != "sess-1" || seen.DeviceID != "dev-1" {
		t.Fatalf("event attribution = %+v", seen)
	}
	if seen.OccurredAt != 1000 {
		t.Fatalf("occurred_at = %d, want device timestamp", seen.OccurredAt)
	}
	if seen.Processed {
		t.Fatal("new event must start unprocessed")
	}
}

func TestHandleMotion_DuplicateSuppressed(t *testing.T) {
	d, bus, m := newTestDetector(t, nil)
	ctx := context.Background()

	var published int
	bus.Subscribe(alert.TopicAlertTriggered, func(topic string, payload any) { published++ })

	s := motionSample(1, 2000, 0, 0, 120)
	if err := d.HandleMotion(ctx, s); err != nil {
		t.Fatalf("first HandleMotion: %v", err)
	}
	// Redelivery of the same device reading, new row id.
	s.ID = 2
	if err := d.HandleMotion(ctx, s); err != nil {
		t.Fatalf("second HandleMotion: %v", err)
	}

	if published != 1 {
		t.Fatalf("published %d alerts, want 1", published)
	}
	var count int
	if err := m.QueryRow(ctx, `SELECT COUNT(*) FROM impact_events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("found %d events, want 1", count)
	}
}

func TestHandleMotion_FailedInsertAllowsRetry(t *testing.T) {
	d, bus, m := newTestDetector(t, nil)
	ctx := context.Background()

	var published int
	bus.Subscribe(alert.TopicAlertTriggered, func(topic string, payload any) { published++ })

	// Break the insert path, deliver an event-worthy sample, then repair
	// the table and redeliver the identical sample. The retry must not be
	// treated as a duplicate of the failed attempt.
	if _, err := m.Execute(ctx, `ALTER TABLE impact_events RENAME TO impact_events_broken`); err != nil {
		t.Fatalf("break table: %v", err)
	}
	s := motionSample(1, 3000, 0, 0, 120)
	err := d.HandleMotion(ctx, s)
	var pErr *storage.PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("got %v, want PersistenceError from the broken insert", err)
	}
	if published != 0 {
		t.Fatal("a failed insert must not publish an alert")
	}

	if _, err := m.Execute(ctx, `ALTER TABLE impact_events_broken RENAME TO impact_events`); err != nil {
		t.Fatalf("repair table: %v", err)
	}
	if err := d.HandleMotion(ctx, s); err != nil {
		t.Fatalf("retried HandleMotion: %v", err)
	}

	events, err := d.EventsBetween(ctx, "dev-1", 0, 10_000)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want the retried sample persisted", len(events))
	}
	if published != 1 {
		t.Fatalf("published %d alerts, want 1", published)
	}

	// A genuine redelivery after the successful write is still suppressed.
	if err := d.HandleMotion(ctx, s); err != nil {
		t.Fatalf("redelivered HandleMotion: %v", err)
	}
	if published != 1 {
		t.Fatalf("published %d alerts after redelivery, want 1", published)
	}
}

func TestHandleMotion_CalibrationApplied(t *testing.T) {
	d, _, _ := newTestDetector(t, nil)
	ctx := context.Background()

	// Raw reading of 50g on z would classify moderate; the stored scale
	// halves it below the mild threshold.
	if err := d.calibrations.Put(ctx, Calibration{
		DeviceID: "dev-1",
		Sensor:   SensorAccelerometer,
		ScaleX:   0.5, ScaleY: 0.5, ScaleZ: 0.5,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := d.HandleMotion(ctx, motionSample(1, 1000, 0, 0, 50)); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	events, err := d.EventsBetween(ctx, "dev-1", 0, 10_000)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("calibrated magnitude is sub-threshold, got %d events", len(events))
	}

	// The same raw reading with identity calibration does emit.
	if err := d.calibrations.Put(ctx, Calibration{
		DeviceID: "dev-1",
		Sensor:   SensorAccelerometer,
		ScaleX:   1, ScaleY: 1, ScaleZ: 1,
	}); err != nil {
		t.Fatalf("Put identity: %v", err)
	}
	if err := d.HandleMotion(ctx, motionSample(2, 2000, 0, 0, 50)); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	events, err = d.EventsBetween(ctx, "dev-1", 0, 10_000)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(events) != 1 || events[0].Severity != SeverityModerate {
		t.Fatalf("events = %+v, want one moderate event", events)
	}
	if events[0].Z != 50 {
		t.Fatalf("stored z = %v, want calibrated value 50", events[0].Z)
	}
}

func TestHandleMotion_AthleteResolutionFailureKeepsEvent(t *testing.T) {
	d, _, _ := newTestDetector(t, stubAthletes{err: errors.New("lookup down")})
	ctx := context.Background()

	if err := d.HandleMotion(ctx, motionSample(1, 1000, 0, 0, 70)); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	events, err := d.EventsBetween(ctx, "dev-1", 0, 10_000)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].AthleteID != "" {
		t.Fatalf("athlete id = %q, want empty on failed resolution", events[0].AthleteID)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	d, _, _ := newTestDetector(t, nil)
	ctx := context.Background()

	if err := d.HandleMotion(ctx, motionSample(1, 1000, 0, 0, 95)); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	pending, err := d.UnprocessedEvents(ctx)
	if err != nil {
		t.Fatalf("UnprocessedEvents: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if err := d.AcknowledgeAlert(ctx, pending[0].ID); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	pending, err = d.UnprocessedEvents(ctx)
	if err != nil {
		t.Fatalf("UnprocessedEvents: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after ack = %d, want 0", len(pending))
	}

	if err := d.AcknowledgeAlert(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("ack unknown id: %v, want ErrEventNotFound", err)
	}
}

func TestAnnotate(t *testing.T) {
	d, _, _ := newTestDetector(t, nil)
	ctx := context.Background()

	if err := d.HandleMotion(ctx, motionSample(1, 1000, 0, 0, 95)); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	events, err := d.EventsBetween(ctx, "dev-1", 0, 10_000)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}

	if err := d.Annotate(ctx, events[0].ID, "helmet-to-helmet, reviewed"); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	e, err := d.GetEvent(ctx, events[0].ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if e.Notes != "helmet-to-helmet, reviewed" {
		t.Fatalf("notes = %q", e.Notes)
	}

	if err := d.Annotate(ctx, "missing", "x"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("annotate unknown id: %v, want ErrEventNotFound", err)
	}
}

func TestEventsBetween_OrderedByOccurrence(t *testing.T) {
	d, _, _ := newTestDetector(t, nil)
	ctx := context.Background()

	for _, ts := range []int64{3000, 1000, 2000} {
		if err := d.HandleMotion(ctx, motionSample(ts, ts, 0, 0, 95)); err != nil {
			t.Fatalf("HandleMotion ts=%d: %v", ts, err)
		}
	}
	events, err := d.EventsBetween(ctx, "dev-1", 0, 10_000)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []int64{1000, 2000, 3000} {
		if events[i].OccurredAt != want {
			t.Fatalf("events[%d].OccurredAt = %d, want %d", i, events[i].OccurredAt, want)
		}
	}
}

func TestCalibrationRepository_GetMissingReturnsIdentity(t *testing.T) {
	d, _, _ := newTestDetector(t, nil)
	ctx := context.Background()

	c, found, err := d.calibrations.Get(ctx, "unknown", SensorAccelerometer)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("found = true for missing calibration")
	}
	if !c.IsIdentity() {
		t.Fatalf("missing calibration = %+v, want identity", c)
	}
}

func TestCalibrationRepository_PutUpserts(t *testing.T) {
	d, _, _ := newTestDetector(t, nil)
	ctx := context.Background()

	first := Calibration{DeviceID: "dev-1", Sensor: SensorForce, OffsetX: 1, ScaleX: 2, ScaleY: 1, ScaleZ: 1}
	if err := d.calibrations.Put(ctx, first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	second := first
	second.OffsetX = 3
	if err := d.calibrations.Put(ctx, second); err != nil {
		t.Fatalf("Put again: %v", err)
	}

	got, found, err := d.calibrations.Get(ctx, "dev-1", SensorForce)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.OffsetX != 3 {
		t.Fatalf("offset_x = %v, want 3 after upsert", got.OffsetX)
	}
}
