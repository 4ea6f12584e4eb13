// Package impact derives impact events from raw motion samples: it
// computes the calibrated magnitude of each accelerometer reading,
// classifies its severity, persists event-worthy impacts and publishes
// alerts through the alert bus.
package impact

import "math"

// Severity is the ordinal classification of an impact magnitude.
type Severity string

const (
	// SeverityNone means the magnitude stayed below the mild threshold;
	// no event is emitted.
	SeverityNone     Severity = "none"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// Thresholds are the classification boundaries in g. The four bands
// partition the non-negative reals with no gaps or overlaps:
//
//	[0, Mild)            -> none
//	[Mild, Moderate)     -> moderate
//	[Moderate, Severe)   -> severe
//	[Severe, +inf)       -> critical
type Thresholds struct {
	Mild     float64
	Moderate float64
	Severe   float64
}

// DefaultThresholds reflect the head-impact literature: sub-40g hits are
// routine play, 90g and above correlate with concussion risk.
var DefaultThresholds = Thresholds{
	Mild:     40,
	Moderate: 60,
	Severe:   90,
}

// Valid reports whether the thresholds are strictly increasing and
// positive.
func (t Thresholds) Valid() bool {
	return t.Mild > 0 && t.Mild < t.Moderate && t.Moderate < t.Severe
}

// Classify maps a magnitude to exactly one severity. It is a pure
// function: the same magnitude always yields the same severity.
func (t Thresholds) Classify(magnitude float64) Severity {
	switch {
	case magnitude < t.Mild:
		return SeverityNone
	case magnitude < t.Moderate:
		return SeverityModerate
	case magnitude < t.Severe:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

// Magnitude returns the Euclidean norm of the three axes.
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
