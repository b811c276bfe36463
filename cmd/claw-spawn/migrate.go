package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cedros/claw-spawn/internal/store"
)

type MigrateOptions struct {
	DatabaseURL string
	DevLogging  bool
}

func (o *MigrateOptions) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.DatabaseURL, "database-url", o.DatabaseURL, "Postgres connection string (defaults to CLAW_DATABASE_URL)")
	flags.BoolVar(&o.DevLogging, "dev-logging", o.DevLogging, "Log in a human-readable console format instead of JSON")
}

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending database migrations and exits",
	}

	opts := MigrateOptions{
		DatabaseURL: os.Getenv("CLAW_DATABASE_URL"),
	}
	opts.BindFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMigrate(cmd.Context(), &opts)
	}

	return cmd
}

func runMigrate(ctx context.Context, opts *MigrateOptions) error {
	if opts.DatabaseURL == "" {
		return errors.New("database-url is required, set the flag or CLAW_DATABASE_URL")
	}

	log, err := buildLogger(opts.DevLogging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := store.Open(ctx, opts.DatabaseURL, log)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer st.Close()

	if err := st.MigrateUp(ctx); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	log.Info("migrations applied")
	return nil
}
