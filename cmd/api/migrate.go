package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mailmind/mailmind/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				slog.Error("loading config", "error", err)
				return err
			}
			if err := database.RunMigrations(cfg.DB.DSN(), cfg.Migrations.Path); err != nil {
				slog.Error("migrating database", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema clean at VERSION after a failed migration was repaired by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				slog.Error("loading config", "error", err)
				return err
			}
			if err := database.ForceVersion(cfg.DB.DSN(), cfg.Migrations.Path, version); err != nil {
				slog.Error("forcing schema version", "error", err)
				return err
			}
			return nil
		},
	})

	return cmd
}
