// Package export writes a session's recorded data to local Parquet
// files for offline analysis. Export is strictly local: the files land
// in a directory the caller owns, nothing leaves the device.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/sportsense/impactcore/internal/impact"
	"github.com/sportsense/impactcore/internal/sensor"
	"github.com/sportsense/impactcore/internal/session"
)

// MotionRow is the flattened motion sample schema. Dictionary encoding
// on the id columns keeps per-session files small.
type MotionRow struct {
	DeviceID   string  `parquet:"device_id,snappy,dict"`
	SessionID  string  `parquet:"session_id,snappy,dict"`
	DeviceTS   int64   `parquet:"device_ts"`
	ReceivedTS int64   `parquet:"received_ts"`
	X          float64 `parquet:"x"`
	Y          float64 `parquet:"y"`
	Z          float64 `parquet:"z"`
}

// ImpactRow is the flattened impact event schema.
type ImpactRow struct {
	ID         string  `parquet:"id,snappy"`
	DeviceID   string  `parquet:"device_id,snappy,dict"`
	AthleteID  string  `parquet:"athlete_id,snappy,dict,optional"`
	SessionID  string  `parquet:"session_id,snappy,dict"`
	OccurredAt int64   `parquet:"occurred_at"`
	Magnitude  float64 `parquet:"magnitude"`
	X          float64 `parquet:"x"`
	Y          float64 `parquet:"y"`
	Z          float64 `parquet:"z"`
	Severity   string  `parquet:"severity,snappy,dict"`
	Processed  bool    `parquet:"processed"`
}

// Exporter reads a session's rows and writes Parquet files.
type Exporter struct {
	sensors  *sensor.Repository
	detector *impact.Detector
	sessions *session.Tracker
	logger   *slog.Logger
}

// NewExporter creates a session exporter. logger may be nil.
func NewExporter(sensors *sensor.Repository, detector *impact.Detector, sessions *session.Tracker, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		sensors:  sensors,
		detector: detector,
		sessions: sessions,
		logger:   logger.With("component", "export"),
	}
}

// Summary reports what an export produced.
type Summary struct {
	MotionRows int
	ImpactRows int
	Files      []string
}

// SessionParquet writes the session's motion samples and impact events
// as snappy-compressed Parquet files under dir. Files are named
// motion_<session>.parquet and impacts_<session>.parquet.
func (e *Exporter) SessionParquet(ctx context.Context, dir, sessionID string) (*Summary, error) {
	if _, err := e.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	samples, err := e.sensors.MotionForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := e.detector.EventsForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{MotionRows: len(samples), ImpactRows: len(events)}

	if len(samples) > 0 {
		rows := make([]MotionRow, len(samples))
		for i, s := range samples {
			rows[i] = MotionRow{
				DeviceID:   s.DeviceID,
				SessionID:  s.SessionID,
				DeviceTS:   s.DeviceTS,
				ReceivedTS: s.ReceivedTS,
				X:          s.X,
				Y:          s.Y,
				Z:          s.Z,
			}
		}
		path := filepath.Join(dir, "motion_"+sessionID+".parquet")
		if err := writeParquet(path, rows); err != nil {
			return nil, err
		}
		summary.Files = append(summary.Files, path)
	}

	if len(events) > 0 {
		rows := make([]ImpactRow, len(events))
		for i, ev := range events {
			rows[i] = ImpactRow{
				ID:         ev.ID,
				DeviceID:   ev.DeviceID,
				AthleteID:  ev.AthleteID,
				SessionID:  ev.SessionID,
				OccurredAt: ev.OccurredAt,
				Magnitude:  ev.Magnitude,
				X:          ev.X,
				Y:          ev.Y,
				Z:          ev.Z,
				Severity:   string(ev.Severity),
				Processed:  ev.Processed,
			}
		}
		path := filepath.Join(dir, "impacts_"+sessionID+".parquet")
		if err := writeParquet(path, rows); err != nil {
			return nil, err
		}
		summary.Files = append(summary.Files, path)
	}

	e.logger.Info("session exported",
		"session_id", sessionID,
		"motion_rows", summary.MotionRows,
		"impact_rows", summary.ImpactRows,
	)
	return summary, nil
}

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	writer := parquet.NewGenericWriter[T](f,
		parquet.Compression(&parquet.Snappy),
		parquet.CreatedBy("impactcore", "1.0.0", ""),
	)
	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}
