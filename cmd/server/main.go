package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/schemaprobe/internal/config"
	"github.com/JonMunkholm/schemaprobe/internal/core"
	"github.com/JonMunkholm/schemaprobe/internal/logging"
	"github.com/JonMunkholm/schemaprobe/internal/metrics"
	"github.com/JonMunkholm/schemaprobe/internal/metrics/datadog"
	"github.com/JonMunkholm/schemaprobe/internal/source/warehouse"
	"github.com/JonMunkholm/schemaprobe/internal/web"
)

func main() {
	// Overload lets .env win over the inherited environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"upload_dir", cfg.Upload.Dir,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"default_dialect", cfg.Warehouse.Dialect,
		"dialects", warehouse.Dialects(),
		"rate_limit_enabled", cfg.Rate.Enabled,
		"metrics_backend", cfg.Metrics.Backend,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()
	backend, closeMetrics, err := newMetricsBackend(ctx, cfg.Metrics)
	if err != nil {
		slog.Error("failed to start metrics backend", "error", err)
		os.Exit(1)
	}
	defer closeMetrics.Close()

	service, err := core.NewService(core.Options{
		UploadDir:       cfg.Upload.Dir,
		MaxFileSize:     cfg.Upload.MaxFileSize,
		MaxConcurrent:   cfg.Upload.MaxConcurrent,
		MaxWait:         cfg.Upload.MaxWaitTime,
		DialTimeout:     cfg.Warehouse.DialTimeout,
		ReadTimeout:     cfg.Warehouse.ReadTimeout,
		BatchSize:       cfg.Warehouse.BatchSize,
		Separator:       cfg.Warehouse.Separator,
		DefaultPageSize: cfg.Preview.DefaultSize,
		MaxPageSize:     cfg.Preview.MaxSize,
		Metrics:         backend,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	slog.Info("upload store ready", "dir", service.Store().Dir())

	server := web.NewServer(cfg, service)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for uploads and imports to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown did not complete cleanly", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		return
	}
	<-shutdownDone
	slog.Info("server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newMetricsBackend picks the backend named by cfg.Backend. The returned
// closer flushes buffered metrics.
func newMetricsBackend(ctx context.Context, cfg config.MetricsConfig) (metrics.Backend, io.Closer, error) {
	switch strings.ToLower(cfg.Backend) {
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			Service:    cfg.Service,
			Tags:       cfg.Tags,
			FlushEvery: cfg.FlushEvery,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	default:
		return metrics.Nop{}, nopCloser{}, nil
	}
}
