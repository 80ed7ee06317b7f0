package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/runboard/runboard/internal/config"
	"github.com/runboard/runboard/internal/db"
	"github.com/runboard/runboard/internal/logger"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the mirror database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, false)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, true)
		},
	})
	return cmd
}

func migrate(cmd *cobra.Command, down bool) error {
	cfg := config.Load()
	logger.Init(os.Stderr, cfg.IsDevelopment(), cfg.SentryDSN)

	if !cfg.MirrorEnabled() {
		return errors.New("mirror database disabled, set DB_CONNECTION")
	}

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return err
	}
	defer database.Close()

	if down {
		err = db.MigrateDown(cmd.Context(), database.DB, cfg.DBDriver)
	} else {
		err = db.RunMigrations(cmd.Context(), database.DB, cfg.DBDriver)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Migrations done")
	return nil
}
