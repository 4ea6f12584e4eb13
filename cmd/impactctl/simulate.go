package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sportsense/impactcore/internal/alert"
	"github.com/sportsense/impactcore/internal/athlete"
	"github.com/sportsense/impactcore/internal/core"
	"github.com/sportsense/impactcore/internal/impact"
	"github.com/sportsense/impactcore/internal/observability"
	"github.com/sportsense/impactcore/internal/sensor"
)

var (
	simDevice   string
	simRate     float64
	simDuration time.Duration
	simSpikePct float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Feed synthetic device-link packets into the store",
	Long: `simulate plays the role of the device link: it creates an athlete and
a session for the device, then streams paced motion, heart-rate, force
and temperature packets. Impact alerts are printed as they fire.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simDevice, "device", "SIM-1", "device id to simulate")
	simulateCmd.Flags().Float64Var(&simRate, "rate", 50, "packets per second")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 10*time.Second, "how long to stream")
	simulateCmd.Flags().Float64Var(&simSpikePct, "spike-pct", 2, "percentage of motion packets that are impact spikes")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		module, err := observability.New("impactctl")
		if err != nil {
			return err
		}
		defer module.Shutdown(context.Background())

		metrics, err = observability.NewMetrics(module.Meter())
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", module.MetricsHandler())
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	engine, err := core.Open(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer engine.Close()

	athleteID, err := engine.Athletes.Create(ctx, athlete.Athlete{
		Name: "Sim Athlete", Team: "Sim", Position: "any",
	})
	if err != nil {
		return err
	}
	if err := engine.Athletes.AssignDevice(ctx, athleteID, simDevice); err != nil {
		return err
	}

	sessionID, err := engine.Sessions.StartSession(ctx, "simulated session", "Sim")
	if err != nil {
		return err
	}
	if err := engine.Sessions.AddParticipant(ctx, sessionID, athleteID); err != nil {
		return err
	}
	defer engine.Sessions.EndSession(context.Background(), sessionID)

	critical := color.New(color.FgRed, color.Bold)
	warn := color.New(color.FgYellow)
	token := engine.Alerts.Subscribe(alert.TopicAlertTriggered, func(topic string, payload any) {
		a, ok := payload.(impact.Alert)
		if !ok {
			return
		}
		printer := warn
		if a.Severity == impact.SeverityCritical {
			printer = critical
		}
		printer.Printf("ALERT %s device=%s magnitude=%.1fg\n", a.Severity, a.DeviceID, a.Magnitude)
	})
	defer engine.Alerts.Unsubscribe(token)

	limiter := rate.NewLimiter(rate.Limit(simRate), 1)
	deadline := time.Now().Add(simDuration)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var sent int
	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := sendPacket(ctx, engine, rng); err != nil {
			return err
		}
		sent++
	}

	fmt.Printf("sent %d packets; session %s\n", sent, sessionID)
	return nil
}

// sendPacket emits one synthetic packet, mostly motion with a sprinkle
// of vitals. Spikes push magnitude into the severe/critical bands.
func sendPacket(ctx context.Context, engine *core.Engine, rng *rand.Rand) error {
	now := time.Now().UnixMilli()

	switch rng.Intn(10) {
	case 0:
		return engine.Sensors.RecordHeartRate(ctx, simDevice, sensor.HeartRatePacket{
			BPM:      90 + rng.Intn(60),
			DeviceTS: now,
		})
	case 1:
		return engine.Sensors.RecordTemperature(ctx, simDevice, sensor.TemperaturePacket{
			Celsius:  36.0 + rng.Float64()*1.5,
			DeviceTS: now,
		})
	case 2:
		return engine.Sensors.RecordForce(ctx, simDevice, sensor.ForcePacket{
			Left:     rng.Float64() * 300,
			Right:    rng.Float64() * 300,
			DeviceTS: now,
		})
	default:
		// Baseline jitter around 1-3g; spikes well past the thresholds.
		scale := 1.0 + rng.Float64()*2
		if rng.Float64()*100 < simSpikePct {
			scale = 40 + rng.Float64()*80
		}
		theta := rng.Float64() * 2 * math.Pi
		return engine.Sensors.RecordMotion(ctx, simDevice, sensor.MotionPacket{
			X:        scale * math.Cos(theta),
			Y:        scale * math.Sin(theta),
			Z:        rng.Float64() * scale / 2,
			DeviceTS: now,
		})
	}
}
