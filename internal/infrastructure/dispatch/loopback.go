package dispatch

import (
	"context"
	"log/slog"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

// LoopbackDispatcher logs actions instead of delivering them. It is the
// development-mode dispatcher and always succeeds.
type LoopbackDispatcher struct {
	log *slog.Logger
}

func NewLoopbackDispatcher(log *slog.Logger) *LoopbackDispatcher {
	return &LoopbackDispatcher{log: log}
}

func (d *LoopbackDispatcher) Dispatch(
	_ context.Context,
	runID string,
	spec domain.ActionSpec,
	cls domain.ClassificationResult,
) error {
	d.log.Info("action_dispatched",
		"run_id", runID,
		"action", spec.Kind,
		"intent", spec.Intent,
		"confidence", cls.Confidence,
		"downgraded", spec.Downgraded,
	)
	return nil
}
