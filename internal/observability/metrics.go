package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments used across the core. Instruments
// are created once at startup and shared with the repositories, the
// impact detector and the alert bus.
type Metrics struct {
	// Ingestion metrics
	SamplesRecorded otelmetric.Int64Counter
	SamplesRejected otelmetric.Int64Counter
	RecordLatency   otelmetric.Float64Histogram

	// Impact metrics
	ImpactsDetected    otelmetric.Int64Counter
	ImpactMagnitude    otelmetric.Float64Histogram
	DuplicatesDropped  otelmetric.Int64Counter
	CalibrationApplied otelmetric.Int64Counter

	// Alert bus metrics
	AlertsPublished  otelmetric.Int64Counter
	SubscriberPanics otelmetric.Int64Counter

	// Storage metrics
	MigrationDuration otelmetric.Float64Histogram
	StorageErrors     otelmetric.Int64Counter
}

// NewMetrics creates all metric instruments from the given Meter. Each
// instrument has a descriptive name, unit, and description following
// OpenTelemetry semantic conventions.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.SamplesRecorded, err = meter.Int64Counter(
		"sensor.samples.recorded",
		otelmetric.WithDescription("Sensor samples durably recorded, by kind"),
	)
	if err != nil {
		return nil, err
	}

	m.SamplesRejected, err = meter.Int64Counter(
		"sensor.samples.rejected",
		otelmetric.WithDescription("Sensor packets rejected by validation"),
	)
	if err != nil {
		return nil, err
	}

	m.RecordLatency, err = meter.Float64Histogram(
		"sensor.record.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("End-to-end record call latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.ImpactsDetected, err = meter.Int64Counter(
		"impact.events.detected",
		otelmetric.WithDescription("Impact events persisted, by severity"),
	)
	if err != nil {
		return nil, err
	}

	m.ImpactMagnitude, err = meter.Float64Histogram(
		"impact.magnitude",
		otelmetric.WithUnit("g"),
		otelmetric.WithDescription("Calibrated impact magnitudes"),
	)
	if err != nil {
		return nil, err
	}

	m.DuplicatesDropped, err = meter.Int64Counter(
		"impact.duplicates.dropped",
		otelmetric.WithDescription("Re-delivered motion samples suppressed by the dedup guard"),
	)
	if err != nil {
		return nil, err
	}

	m.CalibrationApplied, err = meter.Int64Counter(
		"impact.calibration.applied",
		otelmetric.WithDescription("Motion samples adjusted with device calibration"),
	)
	if err != nil {
		return nil, err
	}

	m.AlertsPublished, err = meter.Int64Counter(
		"alert.published",
		otelmetric.WithDescription("Alerts published on the alert bus"),
	)
	if err != nil {
		return nil, err
	}

	m.SubscriberPanics, err = meter.Int64Counter(
		"alert.subscriber.panics",
		otelmetric.WithDescription("Subscriber panics isolated by the alert bus"),
	)
	if err != nil {
		return nil, err
	}

	m.MigrationDuration, err = meter.Float64Histogram(
		"storage.migration.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Storage initialization (migration) duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.StorageErrors, err = meter.Int64Counter(
		"storage.errors",
		otelmetric.WithDescription("Persistence failures surfaced to callers"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
