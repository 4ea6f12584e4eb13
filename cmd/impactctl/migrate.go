package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sportsense/impactcore/internal/core"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Open the store and apply all pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := core.Open(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		version, err := engine.State.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s at schema version %d\n", cfg.DataPath, version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
