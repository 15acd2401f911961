// Package dispatch maps classified intents to follow-up actions and
// executes them with the configured retry policy. Every attempt is appended
// to the run's stage-event log; that log is the primary observability output
// of this component.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
	"github.com/kirillkom/docrouter/internal/core/ports"
	"github.com/kirillkom/docrouter/internal/infrastructure/resilience"
)

// routingTable is the fixed intent to action-kind mapping.
var routingTable = map[domain.Intent]domain.ActionKind{
	domain.IntentComplaint:    domain.ActionEscalateSupport,
	domain.IntentInvoice:      domain.ActionForwardBilling,
	domain.IntentRegulation:   domain.ActionFileCompliance,
	domain.IntentFraudRisk:    domain.ActionFlagAndFreeze,
	domain.IntentRFQ:          domain.ActionForwardSales,
	domain.IntentUnclassified: domain.ActionManualReview,
}

type Router struct {
	threshold  func() float64
	overrides  map[domain.Intent]domain.ActionKind
	dispatcher ports.ActionDispatcher
	exec       *resilience.Executor
	log        *slog.Logger
}

// NewRouter builds an action router. threshold returns the confidence below
// which every action is downgraded to manual review; it is read per routing
// decision so a config reload is visible to runs started afterwards.
// overrides replace routing table entries per intent.
func NewRouter(
	threshold func() float64,
	overrides map[domain.Intent]domain.ActionKind,
	dispatcher ports.ActionDispatcher,
	exec *resilience.Executor,
	log *slog.Logger,
) *Router {
	return &Router{
		threshold:  threshold,
		overrides:  overrides,
		dispatcher: dispatcher,
		exec:       exec,
		log:        log,
	}
}

// Route resolves the action for an intent. The low-confidence downgrade is
// unconditional and takes precedence over the routing table, including for
// fraud risk.
func (r *Router) Route(intent domain.Intent, confidence float64) domain.ActionSpec {
	if confidence < r.threshold() && intent != domain.IntentUnclassified {
		return domain.ActionSpec{
			Kind:       domain.ActionManualReview,
			Intent:     intent,
			Downgraded: true,
		}
	}

	kind, ok := r.overrides[intent]
	if !ok {
		kind, ok = routingTable[intent]
	}
	if !ok {
		kind = domain.ActionManualReview
	}
	return domain.ActionSpec{Kind: kind, Intent: intent}
}

// Execute runs the action through the retry executor. It never returns an
// error: the outcome, including terminal failure, is the result.
func (r *Router) Execute(ctx context.Context, spec domain.ActionSpec, sc *domain.SharedContext) domain.ActionOutcome {
	outcome := domain.ActionOutcome{Kind: spec.Kind}

	cls := domain.ClassificationResult{Intent: domain.IntentUnclassified}
	if sc.Classification != nil {
		cls = *sc.Classification
	}

	observer := func(attempt int, err error, nextDelay time.Duration) {
		outcome.Attempts = attempt
		if err == nil {
			// Earlier failed attempts are history, not the result.
			outcome.LastError = ""
			sc.AppendEvent(domain.StageRouting, "attempt_ok",
				fmt.Sprintf("action=%s attempt=%d", spec.Kind, attempt))
			return
		}
		outcome.LastError = err.Error()
		status := "attempt_failed"
		if nextDelay > 0 {
			status = "attempt_retrying"
		}
		sc.AppendEvent(domain.StageRouting, status,
			fmt.Sprintf("action=%s attempt=%d error=%s", spec.Kind, attempt, err.Error()))
	}

	err := r.exec.Execute(ctx, "dispatch."+string(spec.Kind), func(callCtx context.Context) error {
		return r.dispatcher.Dispatch(callCtx, sc.RunID, spec, cls)
	}, classifyDispatchError, observer)

	switch {
	case err == nil:
		outcome.Status = domain.ActionSucceeded
	case resilience.IsCircuitOpen(err):
		// The breaker rejected the call before any attempt ran, so the
		// observer never fired; record the rejection in the audit log
		// explicitly. The target may recover, hence retryable.
		outcome.Status = domain.ActionFailedRetryable
		sc.AppendEvent(domain.StageRouting, "circuit_open",
			fmt.Sprintf("action=%s error=%s", spec.Kind, err.Error()))
	case ctx.Err() != nil && domain.IsKind(err, domain.ErrActionRetryable):
		// Retry budget was not exhausted; the run was cancelled while a
		// retry was still owed.
		outcome.Status = domain.ActionFailedRetryable
	default:
		outcome.Status = domain.ActionFailedTerminal
	}

	if err != nil {
		outcome.LastError = err.Error()
		r.log.Warn("action_dispatch_failed",
			"run_id", sc.RunID,
			"action", spec.Kind,
			"status", outcome.Status,
			"attempts", outcome.Attempts,
			"error", err,
		)
	}
	return outcome
}

func classifyDispatchError(err error) resilience.ErrorClassification {
	return resilience.ErrorClassification{
		Retryable:     domain.IsKind(err, domain.ErrActionRetryable),
		RecordFailure: true,
	}
}
