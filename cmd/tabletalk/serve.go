package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tabletalk/internal/cache"
	"tabletalk/internal/config"
	"tabletalk/internal/controller"
	"tabletalk/internal/dataset"
	"tabletalk/internal/domain"
	"tabletalk/internal/httpapi"
	"tabletalk/internal/pipeline"
	"tabletalk/internal/provider"
	"tabletalk/internal/telemetry"
	"tabletalk/internal/validate"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the query service",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg := config.LoadOrDefault(configPath)

	metrics, shutdownTelemetry, err := telemetry.Init(cfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer shutdownTelemetry()

	ds, err := dataset.Open(cfg.Dataset.DBPath, cfg.Dataset.CSVPath)
	if err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	defer ds.Close()

	respCache := cache.New(cfg.Cache.TTL, cfg.Cache.SweepInterval)
	defer respCache.Close()

	pl := pipeline.New(metrics)
	pl.SetAttemptTimeout(cfg.Pipeline.AttemptTimeout)
	if err := registerProviders(cfg, pl); err != nil {
		return err
	}
	defer cleanupProviders(pl)

	activateProviders(cfg, pl)

	validator := validate.New(cfg.Validation.MinQueryLength, cfg.Validation.MaxQueryLength)
	ctrl := controller.New(cfg, validator, respCache, pl, ds, metrics)

	dispatcher := controller.NewDispatcher(ctrl,
		cfg.Server.Workers, cfg.Server.MaxQueuedRequests, cfg.Server.QueueTimeout)
	dispatcher.Start()
	defer dispatcher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := httpapi.New(cfg, ctrl, dispatcher)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

// registerProviders constructs every enabled provider and registers it
// with the pipeline. A configuration error aborts startup; any other
// initialization failure only skips that provider.
func registerProviders(cfg *config.Config, pl *pipeline.Pipeline) error {
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}

		kind, ok := domain.ParseKind(pc.Kind)
		if !ok {
			return fmt.Errorf("provider %q: %w: unknown kind %q", name, domain.ErrConfiguration, pc.Kind)
		}

		p, err := provider.New(kind, name, pc.Options)
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				return fmt.Errorf("provider %q misconfigured: %w", name, err)
			}
			slog.Warn("Provider unavailable at startup, skipping", "provider", name, "error", err)
			continue
		}

		pl.Register(name, p)
	}
	return nil
}

// activateProviders applies the configured active provider and fallback
// chain. When no configured choice can be activated the first available
// registration is promoted so the service still answers queries.
func activateProviders(cfg *config.Config, pl *pipeline.Pipeline) {
	pl.SetFallbackChain(cfg.Pipeline.FallbackChain)

	if cfg.Pipeline.Active != "" && pl.SetActive(cfg.Pipeline.Active) {
		return
	}

	for name := range pl.Providers() {
		if pl.SetActive(name) {
			return
		}
	}
	slog.Warn("No active provider could be set, queries will use the fallback chain only")
}

func cleanupProviders(pl *pipeline.Pipeline) {
	for name, p := range pl.Providers() {
		p.Cleanup()
		slog.Debug("Provider cleaned up", "provider", name)
	}
}
