// Package sensor ingests structured packets from the device link and
// persists them as immutable, append-only sample rows with session
// association. One record method exists per packet kind; motion packets
// additionally feed the impact detector before the call returns.
package sensor

import (
	"math"
)

// Kind tags a packet/sample family.
type Kind string

const (
	KindMotion      Kind = "motion"
	KindForce       Kind = "force"
	KindHeartRate   Kind = "heart_rate"
	KindTemperature Kind = "temperature"
)

// Plausibility bounds for kind-specific payloads. Readings outside these
// ranges indicate a faulty sensor or a corrupt packet, not a real
// measurement, and are rejected before persistence.
const (
	MaxBPM         = 400
	MinCelsius     = 20.0
	MaxCelsius     = 50.0
	MaxForceNewton = 2000.0
)

// MotionPacket carries one triaxial accelerometer reading in g.
type MotionPacket struct {
	X, Y, Z  float64
	DeviceTS int64 // device-reported unix milliseconds
}

// ForcePacket carries a bite-force pair in newtons.
type ForcePacket struct {
	Left, Right float64
	DeviceTS    int64
}

// HeartRatePacket carries one heart-rate reading.
type HeartRatePacket struct {
	BPM      int
	DeviceTS int64
}

// TemperaturePacket carries one intraoral temperature reading.
type TemperaturePacket struct {
	Celsius  float64
	DeviceTS int64
}

// MotionSample is a persisted motion row. SessionID is empty when no
// session was active at write time. ReceivedTS is captured at call time
// to support clock-skew-tolerant ordering against DeviceTS.
type MotionSample struct {
	ID         int64
	DeviceID   string
	SessionID  string
	DeviceTS   int64
	ReceivedTS int64
	X, Y, Z    float64
}

// ForceSample is a persisted bite-force row.
type ForceSample struct {
	ID          int64
	DeviceID    string
	SessionID   string
	DeviceTS    int64
	ReceivedTS  int64
	Left, Right float64
}

// HeartRateSample is a persisted heart-rate row.
type HeartRateSample struct {
	ID         int64
	DeviceID   string
	SessionID  string
	DeviceTS   int64
	ReceivedTS int64
	BPM        int
}

// TemperatureSample is a persisted temperature row.
type TemperatureSample struct {
	ID         int64
	DeviceID   string
	SessionID  string
	DeviceTS   int64
	ReceivedTS int64
	Celsius    float64
}

// finite reports whether v is a representable measurement. NaN and Inf
// are sensor faults and must never be coerced to zero: a masked fault
// would read as a real zero measurement downstream.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p MotionPacket) validate() error {
	for _, axis := range []struct {
		name  string
		value float64
	}{{"x", p.X}, {"y", p.Y}, {"z", p.Z}} {
		if !finite(axis.value) {
			return &ValidationError{Field: axis.name, Reason: "must be finite"}
		}
	}
	if p.DeviceTS <= 0 {
		return &ValidationError{Field: "device_ts", Reason: "must be positive"}
	}
	return nil
}

func (p ForcePacket) validate() error {
	for _, side := range []struct {
		name  string
		value float64
	}{{"left", p.Left}, {"right", p.Right}} {
		if !finite(side.value) {
			return &ValidationError{Field: side.name, Reason: "must be finite"}
		}
		if side.value < 0 || side.value > MaxForceNewton {
			return &ValidationError{Field: side.name, Reason: "out of range"}
		}
	}
	if p.DeviceTS <= 0 {
		return &ValidationError{Field: "device_ts", Reason: "must be positive"}
	}
	return nil
}

func (p HeartRatePacket) validate() error {
	if p.BPM <= 0 || p.BPM > MaxBPM {
		return &ValidationError{Field: "bpm", Reason: "out of range"}
	}
	if p.DeviceTS <= 0 {
		return &ValidationError{Field: "device_ts", Reason: "must be positive"}
	}
	return nil
}

func (p TemperaturePacket) validate() error {
	if !finite(p.Celsius) {
		return &ValidationError{Field: "celsius", Reason: "must be finite"}
	}
	if p.Celsius < MinCelsius || p.Celsius > MaxCelsius {
		return &ValidationError{Field: "celsius", Reason: "out of range"}
	}
	if p.DeviceTS <= 0 {
		return &ValidationError{Field: "device_ts", Reason: "must be positive"}
	}
	return nil
}
