package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/docrouter/internal/adapters/http"
	"github.com/kirillkom/docrouter/internal/bootstrap"
	"github.com/kirillkom/docrouter/internal/config"
	"github.com/kirillkom/docrouter/internal/observability/logging"
	"github.com/kirillkom/docrouter/internal/observability/metrics"
)

func main() {
	cfgMgr, err := config.NewManager(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg := cfgMgr.Current()
	logger := logging.NewJSONLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfgMgr, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go reloadOnSIGHUP(ctx, cfgMgr, logger)

	metricsHandler := metrics.CombinedHandler(app.Metrics.Gatherer(), app.HTTPMetrics.Gatherer())
	router := httpadapter.NewRouter(app.IngestUC, app.Reader, cfg.API, metricsHandler, app.HTTPMetrics, app.Health).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}

func reloadOnSIGHUP(ctx context.Context, cfgMgr *config.Manager, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := cfgMgr.Reload(); err != nil {
				logger.Warn("config_reload_failed", "error", err)
			}
		}
	}
}
