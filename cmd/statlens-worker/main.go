package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/statlens/statlens-worker/internal/cache"
	"github.com/statlens/statlens-worker/internal/config"
	"github.com/statlens/statlens-worker/internal/engine"
	"github.com/statlens/statlens-worker/internal/metrics"
	"github.com/statlens/statlens-worker/internal/models"
	"github.com/statlens/statlens-worker/internal/repo"
	"github.com/statlens/statlens-worker/internal/utils"
	"github.com/statlens/statlens-worker/internal/worker"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting statlens-worker", slog.String("metrics_address", cfg.Metrics.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	memo := cache.New(cfg.Cache.Capacity, cfg.Cache.MaxAge)
	transformer := engine.NewTransformer(
		logger,
		engine.BatchConfig{
			ChunkSize:      cfg.Transform.ChunkSize,
			YieldThreshold: cfg.Transform.YieldThreshold,
			YieldDuration:  cfg.Transform.YieldDuration,
		},
		engine.AggregationConfig{
			ExcludedEndpoints: cfg.Aggregation.ExcludedEndpoints,
			Window:            cfg.Aggregation.Window,
			TopPercent:        cfg.Aggregation.TopPercent,
		},
	)
	w := worker.New(logger, cfg.Worker, transformer, memo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Metrics.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	workerDone := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(workerDone)
	}()

	go drainEvents(ctx, logger, w)

	if cfg.Ingest.BaseURL != "" {
		client := repo.NewMetricsClient(cfg.Ingest.BaseURL, cfg.Ingest.SnapshotPath, cfg.Ingest.Timeout)
		go ingestLoop(ctx, logger, client, w, cfg.Ingest.Interval)
	} else {
		logger.Info("no ingest source configured; waiting for embedded submissions")
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	select {
	case <-workerDone:
	case <-time.After(cfg.Worker.GracefulTimeout):
		logger.Warn("worker did not stop within graceful timeout")
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("statlens-worker stopped")
}

// drainEvents logs the worker's outbound stream. A real host forwards these
// messages to the interactive surface instead.
func drainEvents(ctx context.Context, logger *slog.Logger, w *worker.Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			switch ev.Type {
			case models.TypeProgressUpdate:
				logger.Debug("transform progress", slog.Int("progress", ev.Progress))
			case models.TypeProcessedData:
				logger.Info("snapshot processed",
					slog.Int("performance_points", len(ev.Data.PerformancePoints)),
					slog.Int("endpoint_stats", len(ev.Data.EndpointStats)),
					slog.Int("ip_stats", len(ev.Data.IPStats)))
			case models.TypeProcessError:
				logger.Error("snapshot processing failed", slog.String("error", ev.Error))
			}
		}
	}
}

func ingestLoop(ctx context.Context, logger *slog.Logger, client *repo.MetricsClient, w *worker.Worker, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := client.FetchSnapshot(ctx)
			if err != nil {
				logger.Warn("snapshot fetch failed", slog.Any("error", err))
				continue
			}
			w.Submit(models.Request{
				Type:    models.TypeProcessMetrics,
				Metrics: snap.Metrics,
				Summary: snap.Summary,
			})
		}
	}
}
