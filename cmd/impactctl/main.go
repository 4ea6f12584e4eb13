// Command impactctl is the developer harness for the impact monitoring
// core: it runs migrations, simulates a device link against a local
// store, exports sessions and prints aggregate stats.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sportsense/impactcore/internal/config"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "impactctl",
	Short: "Impact monitoring core harness",
	Long: `impactctl exercises the embedded storage and ingestion core against
a local SQLite file. Configuration comes from the environment
(IMPACT_DB_PATH, IMPACT_MILD_G, METRICS_ADDR, ...).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = setupLogger(cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(logger)
		return nil
	},
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
