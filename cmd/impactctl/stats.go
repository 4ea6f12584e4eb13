package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sportsense/impactcore/internal/core"
	"github.com/sportsense/impactcore/internal/sensor"
)

var (
	statsDevice string
	statsDays   int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-device aggregates computed by the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := core.Open(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		end := time.Now().UnixMilli()
		start := time.Now().AddDate(0, 0, -statsDays).UnixMilli()

		header := color.New(color.FgCyan, color.Bold)

		header.Printf("Samples per day (device %s, last %d days)\n", statsDevice, statsDays)
		for _, kind := range []sensor.Kind{sensor.KindMotion, sensor.KindForce, sensor.KindHeartRate, sensor.KindTemperature} {
			counts, err := engine.Sensors.CountPerDay(ctx, kind, statsDevice, start, end)
			if err != nil {
				return err
			}
			for _, c := range counts {
				fmt.Printf("  %-12s %s  %d\n", kind, c.Day, c.Count)
			}
		}

		header.Println("Average bpm per hour of day")
		hourly, err := engine.Sensors.HeartRateAvgPerHourOfDay(ctx, statsDevice, start, end)
		if err != nil {
			return err
		}
		for _, h := range hourly {
			fmt.Printf("  %s:00  %.1f\n", h.Bucket, h.Average)
		}

		header.Println("Impacts per day")
		impacts, err := engine.Detector.CountPerDay(ctx, statsDevice, start, end)
		if err != nil {
			return err
		}
		for day, n := range impacts {
			fmt.Printf("  %s  %d\n", day, n)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsDevice, "device", "SIM-1", "device id")
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "lookback window in days")
	rootCmd.AddCommand(statsCmd)
}
