package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrisdamba/urbansim/internal/api"
	"github.com/chrisdamba/urbansim/internal/broadcast"
	"github.com/chrisdamba/urbansim/internal/factories"
	"github.com/chrisdamba/urbansim/internal/logging"
	"github.com/chrisdamba/urbansim/internal/observability"
	"github.com/chrisdamba/urbansim/internal/output"
	"github.com/chrisdamba/urbansim/internal/repositories"
	"github.com/chrisdamba/urbansim/internal/repositories/memory"
	"github.com/chrisdamba/urbansim/internal/simulator"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	defaultBroadcastInterval = 10 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	shutdownTimeout          = 15 * time.Second
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := simulator.NewSimulatorFromConfig(cfg)

	factory := &factories.ScenarioFactory{}
	scenarios := memory.NewScenarioRepository(factory)
	if err := seedDemoScenarios(ctx, scenarios, factory, cfg.DemoScenarios); err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	metrics.ObserveCache(sim)

	dest, err := output.NewDestination(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating output destination: %w", err)
	}
	if dest != nil {
		defer func() {
			if err := dest.Close(); err != nil {
				log.WithError(err).Error("closing output destination")
			}
		}()
	}

	hub := broadcast.NewHub(cfg.WriteTimeout, metrics)
	broadcaster := broadcast.NewBroadcaster(sim, hub, metrics, cfg.BroadcastInterval, broadcast.WithArchive(dest))

	router := api.NewRouter(api.NewHandler(sim, scenarios, hub), metrics, hub.ServeWS(sim))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.WithMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := broadcaster.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":        cfg.ListenAddr,
			"seed":        cfg.Seed,
			"destination": cfg.OutputDestination,
		}).Info("urbansim listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			broadcaster.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	broadcaster.Stop(shutdownCtx)
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func seedDemoScenarios(ctx context.Context, repo repositories.ScenarioRepository, factory *factories.ScenarioFactory, n int) error {
	for i := 0; i < n; i++ {
		input, err := factory.CreateDemoScenarioInput()
		if err != nil {
			return err
		}
		if _, err := repo.Create(ctx, input); err != nil {
			return fmt.Errorf("seeding demo scenario: %w", err)
		}
	}
	if n > 0 {
		count, _ := repo.Count(ctx)
		log.WithField("scenarios", count).Info("demo scenarios seeded")
	}
	return nil
}
