// Package core wires the storage and ingestion subsystem together: one
// storage manager, the repositories built on it, the impact detector and
// the alert bus. The presentation layer holds an *Engine and talks to
// its fields; nothing in here renders or networks.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/sportsense/impactcore/internal/alert"
	"github.com/sportsense/impactcore/internal/athlete"
	"github.com/sportsense/impactcore/internal/config"
	"github.com/sportsense/impactcore/internal/impact"
	"github.com/sportsense/impactcore/internal/observability"
	"github.com/sportsense/impactcore/internal/sensor"
	"github.com/sportsense/impactcore/internal/session"
	"github.com/sportsense/impactcore/internal/storage"
)

// Engine is the assembled core. Construct with Open, release with Close.
type Engine struct {
	Storage      *storage.Manager
	State        *storage.StateStore
	Athletes     *athlete.Repository
	Sessions     *session.Tracker
	Calibrations *impact.CalibrationRepository
	Detector     *impact.Detector
	Sensors      *sensor.Repository
	Alerts       *alert.Bus
}

// athleteResolver adapts the athlete repository to the detector's
// device-to-athlete lookup.
type athleteResolver struct {
	repo *athlete.Repository
}

func (r athleteResolver) AthleteForDevice(ctx context.Context, deviceID string) (string, bool, error) {
	a, err := r.repo.FindByDevice(ctx, deviceID)
	if err == athlete.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return a.ID, true, nil
}

// Open initializes the store (running all pending migrations) and builds
// the repositories, detector and alert bus on top of it. metrics may be
// nil; logger may be nil.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	manager := storage.NewManager(cfg.DataPath, logger)

	start := time.Now()
	if err := manager.Initialize(ctx); err != nil {
		return nil, err
	}
	if metrics != nil {
		metrics.MigrationDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
	}

	athletes := athlete.NewRepository(manager, logger)
	sessions := session.NewTracker(manager, logger)
	calibrations := impact.NewCalibrationRepository(manager, logger)
	bus := alert.NewBus(logger, metrics)

	detector := impact.NewDetector(
		manager,
		calibrations,
		athleteResolver{repo: athletes},
		bus,
		impact.Thresholds{Mild: cfg.MildG, Moderate: cfg.ModerateG, Severe: cfg.SevereG},
		logger,
		metrics,
	)

	sensors := sensor.NewRepository(manager, sessions, detector, logger, metrics)

	state := storage.NewStateStore(manager)
	if first, err := state.IsFirstLaunch(ctx); err == nil && first {
		logger.Info("first launch", "data_path", cfg.DataPath)
		if err := state.MarkLaunched(ctx); err != nil {
			return nil, err
		}
	}

	return &Engine{
		Storage:      manager,
		State:        state,
		Athletes:     athletes,
		Sessions:     sessions,
		Calibrations: calibrations,
		Detector:     detector,
		Sensors:      sensors,
		Alerts:       bus,
	}, nil
}

// Close releases the underlying database handle.
func (e *Engine) Close() error {
	return e.Storage.Close()
}
