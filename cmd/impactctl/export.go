package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sportsense/impactcore/internal/core"
	"github.com/sportsense/impactcore/internal/export"
)

var (
	exportSession string
	exportDir     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a session's samples and impacts to local Parquet files",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := core.Open(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		exporter := export.NewExporter(engine.Sensors, engine.Detector, engine.Sessions, logger)
		summary, err := exporter.SessionParquet(cmd.Context(), exportDir, exportSession)
		if err != nil {
			return err
		}

		fmt.Printf("exported %d motion rows, %d impact rows\n", summary.MotionRows, summary.ImpactRows)
		for _, f := range summary.Files {
			fmt.Println("  " + f)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSession, "session", "", "session id to export")
	exportCmd.Flags().StringVar(&exportDir, "out", "export", "output directory")
	exportCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(exportCmd)
}
