package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/cedros/claw-spawn/internal/api"
	"github.com/cedros/claw-spawn/internal/config"
	"github.com/cedros/claw-spawn/internal/crypto"
	"github.com/cedros/claw-spawn/internal/digitalocean"
	"github.com/cedros/claw-spawn/internal/lifecycle"
	"github.com/cedros/claw-spawn/internal/metrics"
	"github.com/cedros/claw-spawn/internal/provision"
	"github.com/cedros/claw-spawn/internal/store"
	"github.com/cedros/claw-spawn/internal/sweeper"
	"github.com/cedros/claw-spawn/internal/version"
)

const shutdownGracePeriod = 15 * time.Second

type StartOptions struct {
	DevLogging bool
}

func (o *StartOptions) BindFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&o.DevLogging, "dev-logging", o.DevLogging, "Log in a human-readable console format instead of JSON")
}

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Runs the claw-spawn control plane",
	}

	opts := StartOptions{
		DevLogging: false,
	}
	opts.BindFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context(), &opts)
	}

	return cmd
}

func run(ctx context.Context, opts *StartOptions) error {
	log, err := buildLogger(opts.DevLogging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	log.Info("starting claw-spawn",
		zap.String("version", version.Version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)),
		zap.Int("metricsPort", cfg.MetricsPort),
		zap.Duration("staleTimeout", cfg.StaleTimeout),
		zap.Duration("staleCheckInterval", cfg.StaleCheckInterval),
	)
	if cfg.AdminToken == "" {
		log.Warn("no admin token configured, operator endpoints will refuse all requests")
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer st.Close()

	if err := st.MigrateUp(ctx); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	enc, err := crypto.NewSecretsEncryption(cfg.EncryptionKey, log)
	if err != nil {
		return errors.Wrap(err, "failed to initialize secrets encryption")
	}

	m := metrics.New()

	cloud, err := digitalocean.New(cfg.DigitalOceanToken, log, m)
	if err != nil {
		return errors.Wrap(err, "failed to build digitalocean client")
	}

	provisioning := provision.New(cloud, st, st, st, st, enc, m, log, provision.Options{
		Image:           cfg.OpenclawImage,
		ControlPlaneURL: cfg.ControlPlaneURL,
		Customizer:      cfg.Customizer,
		Toolchain:       cfg.Toolchain,
	})
	bots := lifecycle.New(st, st, enc, m, log)

	srv := api.New(provisioning, bots, st, st, m, log, api.Options{
		Host:       cfg.ServerHost,
		Port:       cfg.ServerPort,
		AdminToken: cfg.AdminToken,
	})

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      metricsRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	sw := sweeper.New(bots, log, sweeper.Options{
		Interval:     cfg.StaleCheckInterval,
		StaleTimeout: cfg.StaleTimeout,
	})
	if err := sw.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start stale sweeper")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		log.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to serve metrics")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()

		sw.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to drain http server", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to drain metrics server", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// buildLogger returns a JSON production logger, or a console logger
// when dev is set.
func buildLogger(dev bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	log, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}
	return log, nil
}
