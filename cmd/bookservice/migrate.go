package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bookservice/internal/config"
	"bookservice/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DatabaseDriver == config.DriverMemory {
				return fmt.Errorf("%w: nothing to migrate for the memory driver", config.ErrInvalidConfig)
			}

			logger, err := a.logger()
			if err != nil {
				return err
			}

			db, err := store.Open(cmd.Context(), a.cfg.DatabaseDriver, a.cfg.DatabaseURL, store.Options{})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logger.Info("database schema is up to date", "driver", a.cfg.DatabaseDriver)
			return nil
		},
	}
}
