package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/ragdocs/internal/store"
)

func migrateCMD() *cobra.Command {
	var direction string
	var steps int
	var cfgPath string

	migrate := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Run database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				direction = args[0]
			}
			if direction != "up" && direction != "down" {
				return fmt.Errorf("invalid direction %q (want up or down)", direction)
			}
			cfg, _, err := loadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := store.OpenDB(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(db, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s: %s\n", direction, cfg.Storage.DatabasePath)
			return nil
		},
	}
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config file path")

	return migrate
}
