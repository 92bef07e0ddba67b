// dogi is the HTTP server that builds repositories into images, runs them
// and serves their output.
package main

import (
	"context"
	"dogi/internal/api"
	"dogi/internal/callback"
	"dogi/internal/config"
	"dogi/internal/container/docker"
	"dogi/internal/health"
	"dogi/internal/job"
	"dogi/internal/observability"
	"dogi/internal/output"
	"dogi/internal/source"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg, err := config.LoadServiceConfig()
	if err != nil {
		return err
	}
	if err := svcCfg.Validate(); err != nil {
		return err
	}
	runtimeCfg := docker.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Connect to the docker daemon
	runtime, err := docker.NewRuntime(runtimeCfg)
	if err != nil {
		return err
	}
	defer runtime.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	err = runtime.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return err
	}
	slog.Info("Connected to Docker daemon")

	// Containers of a previous process have no job to report to
	if _, err := runtime.Prune(ctx); err != nil {
		slog.Warn("Failed to prune orphaned containers", "error", err)
	}

	git, err := source.NewGit()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(svcCfg.InternalSharedDir, 0o755); err != nil {
		return err
	}
	outputs := output.NewManager(output.Config{
		InternalDir:   svcCfg.InternalSharedDir,
		ExternalDir:   svcCfg.ExternalSharedDir,
		AdvertisedURL: svcCfg.AdvertisedURL,
	})

	notifier := callback.NewDispatcher(callback.Config{
		Timeout:    svcCfg.CallbackTimeout,
		Headers:    svcCfg.CallbackHeaders,
		SigningKey: svcCfg.CallbackKey,
	}, metrics)

	coordinator, err := job.NewCoordinator(job.Config{
		Runtime:           runtime,
		Fetcher:           git,
		Outputs:           outputs,
		Notifier:          notifier,
		Metrics:           metrics,
		DefaultDockerfile: svcCfg.DefaultDockerfile,
	})
	if err != nil {
		return err
	}

	// Create health checker
	healthChecker := health.NewChecker(
		health.Required("runtime", runtime),
		health.Required("outputs", outputs),
		health.Optional("git", git),
	)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Jobs:             coordinator,
		Outputs:          outputs,
		Metrics:          metrics,
		HealthChecker:    healthChecker,
		SignaturesSecret: svcCfg.SignaturesSecret,
		BypassSignatures: svcCfg.BypassSignatures,
	})

	if svcCfg.BypassSignatures {
		slog.Warn("URL signature checks disabled - BYPASS_SIGNATURES is set")
	}

	// Create API server. Status and artifact responses last as long as the
	// job, so there is no write timeout.
	apiServer := &http.Server{
		Addr:        ":" + svcCfg.Port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Abort active jobs. Waiting requests see their jobs settle
	// before the servers stop.
	slog.Info("Aborting active jobs")
	closeCtx, closeCancel := context.WithTimeout(context.Background(), svcCfg.ShutdownTimeout)
	defer closeCancel()
	if err := coordinator.Close(closeCtx); err != nil {
		slog.Warn("Coordinator shutdown error", "error", err)
	}

	// Phase 3: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	slog.Info("Shutdown complete")
	return nil
}
