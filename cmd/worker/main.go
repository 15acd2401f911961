package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docrouter/internal/bootstrap"
	"github.com/kirillkom/docrouter/internal/config"
	"github.com/kirillkom/docrouter/internal/observability/logging"
)

func main() {
	cfgMgr, err := config.NewManager(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg := cfgMgr.Current()
	logger := logging.NewJSONLogger(cfg.Service+"-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfgMgr, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: app.Metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// Each delivery is handed to the bounded group so at most
	// WorkerConcurrency runs execute at once; the subscription callback
	// blocks when the pool is full, which pushes backpressure into the
	// queue group.
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Pipeline.WorkerConcurrency)

	logger.Info("worker_subscribed", "subject", cfg.NATS.Subject, "concurrency", cfg.Pipeline.WorkerConcurrency)
	err = app.Queue.SubscribeRunQueued(ctx, func(handlerCtx context.Context, runID string) error {
		group.Go(func() error {
			processCtx, cancel := context.WithTimeout(groupCtx, 5*time.Minute)
			defer cancel()

			app.Metrics.StartRun()
			defer app.Metrics.FinishRun()

			if run, err := app.Repo.GetRun(processCtx, runID); err == nil {
				app.Metrics.ObserveQueueLag(time.Since(run.StartedAt))
			}

			if _, err := app.ProcessUC.RunByID(processCtx, runID); err != nil {
				logging.WithRun(logger, runID).Error("run_failed", "error", err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	if err := group.Wait(); err != nil {
		logger.Error("worker_pool_error", "error", err)
	}
}
