package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
	"github.com/kirillkom/docrouter/internal/core/ports"
)

// ProcessDocumentUseCase drives one run through the pipeline state machine:
//
//	Received -> Detected -> Parsed -> Classified -> Routed -> Completed
//
// with Aborted and Failed terminal branches. It owns the run's SharedContext
// and is its only writer between stage invocations. Cancellation is honored
// only at the checkpoints between stages, never mid-parse or mid-attempt.
type ProcessDocumentUseCase struct {
	repo       ports.RunRepository
	storage    ports.ObjectStorage
	detector   ports.FormatDetector
	parsers    map[domain.FormatTag]ports.DocumentParser
	classifier ports.IntentClassifier
	router     ports.ActionRouter
	metrics    ports.MetricsEmitter
	log        *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.RunRepository,
	storage ports.ObjectStorage,
	detector ports.FormatDetector,
	parsers map[domain.FormatTag]ports.DocumentParser,
	classifier ports.IntentClassifier,
	router ports.ActionRouter,
	metrics ports.MetricsEmitter,
	log *slog.Logger,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		storage:    storage,
		detector:   detector,
		parsers:    parsers,
		classifier: classifier,
		router:     router,
		metrics:    metrics,
		log:        log,
	}
}

// RunByID executes the pipeline for a previously ingested run. The returned
// PipelineRun is always terminal; an error is returned only for
// infrastructure faults (missing run, unreadable storage, sink write).
func (uc *ProcessDocumentUseCase) RunByID(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	run, err := uc.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch run by id: %w", err)
	}

	raw, err := uc.loadRaw(ctx, run)
	if err != nil {
		return nil, err
	}

	sc := domain.NewSharedContext(run.ID, raw)
	uc.advance(ctx, run, sc)
	uc.finalize(run, sc)

	if err := uc.repo.RecordRun(ctx, run); err != nil {
		return run, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

func (uc *ProcessDocumentUseCase) loadRaw(ctx context.Context, run *domain.PipelineRun) (*domain.RawInput, error) {
	reader, err := uc.storage.Open(ctx, run.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	return &domain.RawInput{Data: data, Filename: run.Filename, MimeType: run.MimeType}, nil
}

// advance walks the state machine until a terminal state is reached. It
// never returns an error; every outcome becomes run state plus audit events.
func (uc *ProcessDocumentUseCase) advance(ctx context.Context, run *domain.PipelineRun, sc *domain.SharedContext) {
	run.State = domain.StateReceived
	sc.AppendEvent(domain.StageIngest, "ok", fmt.Sprintf("accepted %s (%d bytes)", run.Filename, len(sc.Raw.Data)))

	if uc.cancelled(ctx, run, sc) {
		return
	}
	if !uc.detect(run, sc) {
		return
	}
	if uc.cancelled(ctx, run, sc) {
		return
	}
	if !uc.parse(ctx, run, sc) {
		return
	}
	if uc.cancelled(ctx, run, sc) {
		return
	}
	uc.classify(run, sc)
	if uc.cancelled(ctx, run, sc) {
		return
	}
	uc.route(ctx, run, sc)

	run.State = domain.StateCompleted
	sc.AppendEvent(domain.StageFinalize, "ok", "run completed")
}

func (uc *ProcessDocumentUseCase) cancelled(ctx context.Context, run *domain.PipelineRun, sc *domain.SharedContext) bool {
	if ctx.Err() == nil {
		return false
	}
	run.State = domain.StateAborted
	run.AbortReason = domain.AbortCancelled
	sc.AppendEvent(domain.StageFinalize, "aborted", domain.AbortCancelled)
	return true
}

func (uc *ProcessDocumentUseCase) detect(run *domain.PipelineRun, sc *domain.SharedContext) bool {
	start := time.Now()
	tag := uc.detector.Detect(sc.Raw)
	uc.metrics.ObserveStage(domain.StageDetection, time.Since(start))

	sc.Format = tag
	run.Format = tag
	if tag == domain.FormatUnknown {
		// Not a parse error: a routing decision. Parsing and
		// classification are skipped entirely.
		run.State = domain.StateAborted
		run.AbortReason = domain.AbortUnsupportedFormat
		sc.AppendEvent(domain.StageDetection, "aborted", domain.AbortUnsupportedFormat)
		return false
	}

	run.State = domain.StateDetected
	sc.AppendEvent(domain.StageDetection, "ok", string(tag))
	return true
}

func (uc *ProcessDocumentUseCase) parse(ctx context.Context, run *domain.PipelineRun, sc *domain.SharedContext) bool {
	parser, ok := uc.parsers[sc.Format]
	if !ok {
		return uc.failParsing(run, sc, fmt.Errorf("no parser registered for format %q", sc.Format))
	}

	start := time.Now()
	doc, err := parser.Parse(ctx, sc.Raw)
	uc.metrics.ObserveStage(domain.StageParsing, time.Since(start))

	switch {
	case err == nil:
		sc.Document = doc
		run.State = domain.StateParsed
		sc.AppendEvent(domain.StageParsing, "ok", "")
		return true
	case errors.Is(err, domain.ErrParseEmpty), errors.Is(err, domain.ErrNoExtractableText):
		// Structurally valid but contentless. Expected; the document
		// continues to the Unclassified/manual-review path.
		sc.Document = domain.EmptyDocument(sc.Format, sc.Raw)
		run.State = domain.StateParsed
		sc.AppendEvent(domain.StageParsing, "empty", err.Error())
		return true
	default:
		return uc.failParsing(run, sc, err)
	}
}

func (uc *ProcessDocumentUseCase) failParsing(run *domain.PipelineRun, sc *domain.SharedContext, err error) bool {
	run.State = domain.StateFailed
	run.FailedStage = domain.StageParsing
	run.Error = err.Error()
	sc.AppendEvent(domain.StageParsing, "error", err.Error())
	uc.log.Error("parse_failed", "run_id", run.ID, "format", sc.Format, "error", err)
	return false
}

func (uc *ProcessDocumentUseCase) classify(run *domain.PipelineRun, sc *domain.SharedContext) {
	start := time.Now()
	result := uc.classifier.Classify(sc.Document)
	uc.metrics.ObserveStage(domain.StageClassification, time.Since(start))

	sc.Classification = &result
	run.State = domain.StateClassified
	sc.AppendEvent(domain.StageClassification, "ok",
		fmt.Sprintf("intent=%s confidence=%.2f", result.Intent, result.Confidence))
}

func (uc *ProcessDocumentUseCase) route(ctx context.Context, run *domain.PipelineRun, sc *domain.SharedContext) {
	spec := uc.router.Route(sc.Classification.Intent, sc.Classification.Confidence)

	start := time.Now()
	outcome := uc.router.Execute(ctx, spec, sc)
	uc.metrics.ObserveStage(domain.StageRouting, time.Since(start))
	uc.metrics.ActionFinished(outcome.Kind, outcome.Status)

	// A terminal action failure is a recorded result, not a run failure:
	// the document was processed through classification regardless.
	sc.Outcome = &outcome
	run.State = domain.StateRouted
	sc.AppendEvent(domain.StageRouting, string(outcome.Status),
		fmt.Sprintf("action=%s attempts=%d", outcome.Kind, outcome.Attempts))
}

func (uc *ProcessDocumentUseCase) finalize(run *domain.PipelineRun, sc *domain.SharedContext) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Classification = sc.Classification
	run.Outcome = sc.Outcome
	run.Events = sc.Events()

	intent := domain.IntentUnclassified
	if sc.Classification != nil {
		intent = sc.Classification.Intent
	}
	uc.metrics.RunFinished(run.State, intent, now.Sub(run.StartedAt))

	uc.log.Info("run_finished",
		"run_id", run.ID,
		"state", run.State,
		"format", run.Format,
		"intent", intent,
		"events", len(run.Events),
	)
}
