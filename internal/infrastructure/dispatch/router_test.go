package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
	"github.com/kirillkom/docrouter/internal/infrastructure/resilience"
)

type dispatcherFake struct {
	errs   []error
	calls  int
	onCall func(attempt int)
}

func (f *dispatcherFake) Dispatch(context.Context, string, domain.ActionSpec, domain.ClassificationResult) error {
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
	})
}

func newTestRouter(threshold float64, dispatcher *dispatcherFake) *Router {
	return NewRouter(func() float64 { return threshold }, nil, dispatcher, fastExecutor(), testLogger())
}

func retryableErr(msg string) error {
	return domain.WrapError(domain.ErrActionRetryable, "deliver action", errors.New(msg))
}

func terminalErr(msg string) error {
	return domain.WrapError(domain.ErrActionTerminal, "deliver action", errors.New(msg))
}

func TestRouteTable(t *testing.T) {
	r := newTestRouter(0.7, &dispatcherFake{})
	cases := []struct {
		intent domain.Intent
		want   domain.ActionKind
	}{
		{domain.IntentComplaint, domain.ActionEscalateSupport},
		{domain.IntentInvoice, domain.ActionForwardBilling},
		{domain.IntentRegulation, domain.ActionFileCompliance},
		{domain.IntentFraudRisk, domain.ActionFlagAndFreeze},
		{domain.IntentRFQ, domain.ActionForwardSales},
		{domain.IntentUnclassified, domain.ActionManualReview},
	}
	for _, tc := range cases {
		spec := r.Route(tc.intent, 0.95)
		if spec.Kind != tc.want {
			t.Errorf("Route(%s) = %s, want %s", tc.intent, spec.Kind, tc.want)
		}
		if spec.Downgraded {
			t.Errorf("Route(%s) unexpectedly downgraded at high confidence", tc.intent)
		}
	}
}

func TestRouteLowConfidenceDowngrade(t *testing.T) {
	r := newTestRouter(0.7, &dispatcherFake{})

	for _, intent := range []domain.Intent{
		domain.IntentFraudRisk,
		domain.IntentComplaint,
		domain.IntentInvoice,
	} {
		spec := r.Route(intent, 0.5)
		if spec.Kind != domain.ActionManualReview {
			t.Errorf("Route(%s, 0.5) = %s, want manual review", intent, spec.Kind)
		}
		if !spec.Downgraded {
			t.Errorf("Route(%s, 0.5) not marked downgraded", intent)
		}
		if spec.Intent != intent {
			t.Errorf("Route(%s, 0.5) lost original intent, got %s", intent, spec.Intent)
		}
	}
}

func TestRouteUnclassifiedIsNotADowngrade(t *testing.T) {
	r := newTestRouter(0.7, &dispatcherFake{})
	spec := r.Route(domain.IntentUnclassified, 0.1)
	if spec.Kind != domain.ActionManualReview {
		t.Fatalf("expected manual review, got %s", spec.Kind)
	}
	if spec.Downgraded {
		t.Fatalf("unclassified routing is its own rule, not a downgrade")
	}
}

func TestRouteThresholdIsReadPerDecision(t *testing.T) {
	threshold := 0.7
	r := NewRouter(func() float64 { return threshold }, nil, &dispatcherFake{}, fastExecutor(), testLogger())

	if spec := r.Route(domain.IntentInvoice, 0.75); spec.Downgraded {
		t.Fatalf("expected no downgrade above threshold")
	}
	threshold = 0.8
	if spec := r.Route(domain.IntentInvoice, 0.75); !spec.Downgraded {
		t.Fatalf("expected raised threshold to apply to later decisions")
	}
}

func TestRouteOverrides(t *testing.T) {
	overrides := map[domain.Intent]domain.ActionKind{
		domain.IntentComplaint: domain.ActionForwardSales,
	}
	r := NewRouter(func() float64 { return 0.7 }, overrides, &dispatcherFake{}, fastExecutor(), testLogger())

	if spec := r.Route(domain.IntentComplaint, 0.9); spec.Kind != domain.ActionForwardSales {
		t.Fatalf("expected override, got %s", spec.Kind)
	}
	if spec := r.Route(domain.IntentInvoice, 0.9); spec.Kind != domain.ActionForwardBilling {
		t.Fatalf("expected table fallthrough for non-overridden intent, got %s", spec.Kind)
	}
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	dispatcher := &dispatcherFake{}
	r := newTestRouter(0.7, dispatcher)
	sc := domain.NewSharedContext("run-1", nil)

	outcome := r.Execute(context.Background(), domain.ActionSpec{Kind: domain.ActionForwardSales}, sc)

	if outcome.Status != domain.ActionSucceeded {
		t.Fatalf("expected succeeded, got %s", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", outcome.Attempts)
	}
	events := sc.Events()
	if len(events) != 1 || events[0].Status != "attempt_ok" {
		t.Fatalf("expected single attempt_ok event, got %+v", events)
	}
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	dispatcher := &dispatcherFake{errs: []error{retryableErr("timeout"), retryableErr("timeout")}}
	r := newTestRouter(0.7, dispatcher)
	sc := domain.NewSharedContext("run-2", nil)

	outcome := r.Execute(context.Background(), domain.ActionSpec{Kind: domain.ActionEscalateSupport}, sc)

	if outcome.Status != domain.ActionSucceeded {
		t.Fatalf("expected succeeded after retries, got %s", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", outcome.Attempts)
	}
	if outcome.LastError != "" {
		t.Fatalf("successful outcome must not carry a stale error, got %q", outcome.LastError)
	}
	events := sc.Events()
	if len(events) != 3 {
		t.Fatalf("expected one event per attempt, got %d", len(events))
	}
	if events[0].Status != "attempt_retrying" || events[1].Status != "attempt_retrying" || events[2].Status != "attempt_ok" {
		t.Fatalf("unexpected event sequence %+v", events)
	}
}

func TestExecuteTerminalFailureNoRetry(t *testing.T) {
	dispatcher := &dispatcherFake{errs: []error{terminalErr("rejected")}}
	r := newTestRouter(0.7, dispatcher)
	sc := domain.NewSharedContext("run-3", nil)

	outcome := r.Execute(context.Background(), domain.ActionSpec{Kind: domain.ActionForwardBilling}, sc)

	if outcome.Status != domain.ActionFailedTerminal {
		t.Fatalf("expected terminal failure, got %s", outcome.Status)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected no retry on terminal failure, got %d calls", dispatcher.calls)
	}
	if outcome.LastError == "" {
		t.Fatalf("expected last error recorded")
	}
	events := sc.Events()
	if len(events) != 1 || events[0].Status != "attempt_failed" {
		t.Fatalf("expected single attempt_failed event, got %+v", events)
	}
}

func TestExecuteRetryBudgetExhausted(t *testing.T) {
	dispatcher := &dispatcherFake{errs: []error{retryableErr("e1"), retryableErr("e2"), retryableErr("e3")}}
	r := newTestRouter(0.7, dispatcher)
	sc := domain.NewSharedContext("run-4", nil)

	outcome := r.Execute(context.Background(), domain.ActionSpec{Kind: domain.ActionFlagAndFreeze}, sc)

	if outcome.Status != domain.ActionFailedTerminal {
		t.Fatalf("expected terminal after exhausted budget, got %s", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", outcome.Attempts)
	}
	events := sc.Events()
	if len(events) != 3 {
		t.Fatalf("expected one event per attempt, got %d", len(events))
	}
	if events[2].Status != "attempt_failed" {
		t.Fatalf("expected final attempt_failed, got %+v", events[2])
	}
}

func TestExecuteOpenBreakerLeavesAuditTrail(t *testing.T) {
	dispatcher := &dispatcherFake{errs: []error{
		terminalErr("down"), terminalErr("down"), terminalErr("down"),
	}}
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})
	r := NewRouter(func() float64 { return 0.7 }, nil, dispatcher, exec, testLogger())
	spec := domain.ActionSpec{Kind: domain.ActionForwardBilling}

	r.Execute(context.Background(), spec, domain.NewSharedContext("run-6", nil))
	r.Execute(context.Background(), spec, domain.NewSharedContext("run-7", nil))

	sc := domain.NewSharedContext("run-8", nil)
	outcome := r.Execute(context.Background(), spec, sc)

	if dispatcher.calls != 2 {
		t.Fatalf("open breaker must reject before dispatch, got %d calls", dispatcher.calls)
	}
	if outcome.Status != domain.ActionFailedRetryable {
		t.Fatalf("expected retryable failure for rejected call, got %s", outcome.Status)
	}
	if outcome.Attempts != 0 {
		t.Fatalf("expected 0 attempts while open, got %d", outcome.Attempts)
	}
	events := sc.Events()
	if len(events) != 1 || events[0].Status != "circuit_open" {
		t.Fatalf("expected circuit_open audit event, got %+v", events)
	}
	if outcome.LastError == "" {
		t.Fatalf("expected rejection recorded as last error")
	}
}

func TestExecuteCancelledDuringOwedRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &dispatcherFake{
		errs:   []error{retryableErr("timeout"), retryableErr("timeout"), retryableErr("timeout")},
		onCall: func(int) { cancel() },
	}
	r := NewRouter(func() float64 { return 0.7 }, nil, dispatcher, resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     50 * time.Millisecond,
		RetryMultiplier:     1.0,
	}), testLogger())
	sc := domain.NewSharedContext("run-5", nil)

	outcome := r.Execute(ctx, domain.ActionSpec{Kind: domain.ActionEscalateSupport}, sc)

	if outcome.Status != domain.ActionFailedRetryable {
		t.Fatalf("expected retryable failure when cancelled mid-backoff, got %s", outcome.Status)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected cancellation to stop retries, got %d calls", dispatcher.calls)
	}
}
