package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

// RunRepository is the persistence sink: upsert-by-run-id for run records,
// append-only for stage events. It must tolerate concurrent writers.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.PipelineRun) error
	RecordRun(ctx context.Context, run *domain.PipelineRun) error
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)
	Stats(ctx context.Context) (*domain.RunStats, error)
}

// ObjectStorage stores raw document bytes for the lifetime of a run.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue hands queued run ids to pipeline workers.
type MessageQueue interface {
	PublishRunQueued(ctx context.Context, runID string) error
	SubscribeRunQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// FormatDetector reports the canonical format of a raw input. Deterministic,
// side-effect-free, never fails; unreadable input yields FormatUnknown.
type FormatDetector interface {
	Detect(raw *domain.RawInput) domain.FormatTag
}

// DocumentParser extracts a canonical document from raw input of one format.
// Failures carry domain.ErrParseMalformed, domain.ErrParseEmpty or
// domain.ErrNoExtractableText.
type DocumentParser interface {
	Parse(ctx context.Context, raw *domain.RawInput) (*domain.CanonicalDocument, error)
}

// IntentClassifier maps a canonical document to an intent with calibrated
// confidence. Deterministic for identical input and never fails; the worst
// case is IntentUnclassified.
type IntentClassifier interface {
	Classify(doc *domain.CanonicalDocument) domain.ClassificationResult
}

// ActionRouter maps a classification to an action and executes it with the
// configured retry policy. Execute appends one stage event per attempt to the
// shared context and never returns an error; failures are the outcome.
type ActionRouter interface {
	Route(intent domain.Intent, confidence float64) domain.ActionSpec
	Execute(ctx context.Context, spec domain.ActionSpec, sc *domain.SharedContext) domain.ActionOutcome
}

// ActionDispatcher performs the side effect of one action attempt.
// Retryable failures carry domain.ErrActionRetryable, permanent ones
// domain.ErrActionTerminal.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, runID string, spec domain.ActionSpec, cls domain.ClassificationResult) error
}

// MetricsEmitter receives discrete pipeline measurement events.
type MetricsEmitter interface {
	ObserveStage(stage domain.Stage, d time.Duration)
	RunFinished(state domain.RunState, intent domain.Intent, d time.Duration)
	ActionFinished(kind domain.ActionKind, status domain.ActionStatus)
}
