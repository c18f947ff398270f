package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"bookservice/internal/config"
	"bookservice/internal/telemetry"
)

type app struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "bookservice",
		Short:         "Book service of the library system",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}

	flags := root.PersistentFlags()
	flags.String("db-driver", "", "database driver: postgres, pgx, sqlite3, mysql or memory")
	flags.String("db-url", "", "database connection string")
	flags.String("log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newServeCmd(a), newMigrateCmd(a))
	return root
}

// load reads the environment, then lets explicitly set flags override it.
func (a *app) load(flags *pflag.FlagSet) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	overrideString(flags, "port", &cfg.Port)
	overrideString(flags, "db-driver", &cfg.DatabaseDriver)
	overrideString(flags, "db-url", &cfg.DatabaseURL)
	overrideString(flags, "log-level", &cfg.LogLevel)
	overrideString(flags, "author-service-url", &cfg.AuthorServiceURL)
	overrideString(flags, "borrower-service-url", &cfg.BorrowerServiceURL)
	if flags.Changed("check-timeout") {
		cfg.CheckTimeout, _ = flags.GetDuration("check-timeout")
	}
	if flags.Changed("auto-migrate") {
		cfg.AutoMigrate, _ = flags.GetBool("auto-migrate")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) logger() (*slog.Logger, error) {
	return telemetry.NewLogger(a.cfg.LogLevel, a.cfg.LogFormat, os.Stdout)
}

func overrideString(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return
	}
	*dst, _ = flags.GetString(name)
}
