package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docrouter/internal/config"
	"github.com/kirillkom/docrouter/internal/core/domain"
	"github.com/kirillkom/docrouter/internal/core/ports"
	"github.com/kirillkom/docrouter/internal/core/usecase"
	"github.com/kirillkom/docrouter/internal/infrastructure/classifier"
	"github.com/kirillkom/docrouter/internal/infrastructure/detector"
	"github.com/kirillkom/docrouter/internal/infrastructure/dispatch"
	"github.com/kirillkom/docrouter/internal/infrastructure/parser/email"
	"github.com/kirillkom/docrouter/internal/infrastructure/parser/jsondoc"
	pdfparser "github.com/kirillkom/docrouter/internal/infrastructure/parser/pdf"
	"github.com/kirillkom/docrouter/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docrouter/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docrouter/internal/infrastructure/resilience"
	"github.com/kirillkom/docrouter/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docrouter/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue       ports.MessageQueue
	Repo        ports.RunRepository
	Metrics     *metrics.PipelineMetrics
	HTTPMetrics *metrics.HTTPServerMetrics

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.PipelineRunner
	Reader    ports.RunReader

	closeFn func()
}

func New(ctx context.Context, cfgMgr *config.Manager, log *slog.Logger) (*App, error) {
	cfg := cfgMgr.Current()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.Retry.MaxAttempts,
		RetryInitialBackoff: cfg.Retry.InitialBackoff.Std(),
		RetryMaxBackoff:     cfg.Retry.MaxBackoff.Std(),
		RetryMultiplier:     cfg.Retry.Multiplier,
		RetryJitter:         cfg.Retry.Jitter,

		BreakerEnabled:          cfg.Breaker.Enabled,
		BreakerMinRequests:      cfg.Breaker.MinRequests,
		BreakerFailureRatio:     cfg.Breaker.FailureRatio,
		BreakerOpenTimeout:      cfg.Breaker.OpenTimeout.Std(),
		BreakerHalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	})

	queue, err := nats.NewWithOptions(cfg.NATS.URL, cfg.NATS.Subject, nats.Options{
		ResilienceExecutor: exec,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	det := detector.New()
	parsers := map[domain.FormatTag]ports.DocumentParser{
		domain.FormatEmail: email.New(),
		domain.FormatJSON:  jsondoc.New(),
		domain.FormatPDF:   pdfparser.New(),
	}
	cls := classifier.New(classifier.Config{
		Floor:                  cfg.Pipeline.ClassifierFloor,
		TieEpsilon:             cfg.Pipeline.TieEpsilon,
		InvoiceAmountThreshold: cfg.Pipeline.InvoiceAmountThreshold,
	})

	dispatcher, err := newDispatcher(cfg.Dispatch, log)
	if err != nil {
		return nil, err
	}
	actionRouter := dispatch.NewRouter(
		func() float64 { return cfgMgr.Current().Pipeline.ConfidenceThreshold },
		routingOverrides(cfg.Dispatch.RoutingOverrides),
		dispatcher,
		exec,
		log,
	)

	pipelineMetrics := metrics.NewPipelineMetrics(cfg.Service)
	httpMetrics := metrics.NewHTTPServerMetrics(cfg.Service)

	processUC := usecase.NewProcessDocumentUseCase(
		repo, storage, det, parsers, cls, actionRouter, pipelineMetrics, log,
	)
	ingestUC := usecase.NewIngestDocumentUseCase(
		repo, storage, queue, processUC,
		cfg.API.AllowedExtensions, cfg.API.MaxUploadBytes,
	)

	return &App{
		Config:      cfg,
		Queue:       queue,
		Repo:        repo,
		Metrics:     pipelineMetrics,
		HTTPMetrics: httpMetrics,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		Reader:    repo,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// Health reports per-component status for the health endpoint.
func (a *App) Health(ctx context.Context) map[string]string {
	out := map[string]string{"postgres": "ok", "nats": "ok"}
	if pinger, ok := a.Repo.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			out["postgres"] = err.Error()
		}
	}
	if conn, ok := a.Queue.(interface{ Connected() bool }); ok && !conn.Connected() {
		out["nats"] = "disconnected"
	}
	return out
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newDispatcher(cfg config.DispatchConfig, log *slog.Logger) (ports.ActionDispatcher, error) {
	switch cfg.Mode {
	case "", "loopback":
		return dispatch.NewLoopbackDispatcher(log), nil
	case "http":
		targets := make(map[domain.ActionKind]string, len(cfg.Targets))
		for kind, url := range cfg.Targets {
			targets[domain.ActionKind(kind)] = url
		}
		return dispatch.NewHTTPDispatcher(targets, cfg.Timeout.Std()), nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", cfg.Mode)
	}
}

func routingOverrides(raw map[string]string) map[domain.Intent]domain.ActionKind {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[domain.Intent]domain.ActionKind, len(raw))
	for intent, kind := range raw {
		out[domain.Intent(intent)] = domain.ActionKind(kind)
	}
	return out
}
