package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

func TestHTTPDispatcherDeliversPayload(t *testing.T) {
	var received actionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewHTTPDispatcher(map[domain.ActionKind]string{domain.ActionFlagAndFreeze: server.URL}, time.Second)
	err := d.Dispatch(context.Background(), "run-9",
		domain.ActionSpec{Kind: domain.ActionFlagAndFreeze, Intent: domain.IntentFraudRisk},
		domain.ClassificationResult{Intent: domain.IntentFraudRisk, Confidence: 0.92, Signals: []string{"keyword:fraud"}},
	)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if received.RunID != "run-9" || received.Action != domain.ActionFlagAndFreeze {
		t.Fatalf("unexpected payload %+v", received)
	}
	if received.Confidence != 0.92 {
		t.Fatalf("expected confidence forwarded, got %f", received.Confidence)
	}
}

func TestHTTPDispatcherStatusClassification(t *testing.T) {
	cases := []struct {
		status   int
		wantKind error
	}{
		{http.StatusInternalServerError, domain.ErrActionRetryable},
		{http.StatusBadGateway, domain.ErrActionRetryable},
		{http.StatusTooManyRequests, domain.ErrActionRetryable},
		{http.StatusBadRequest, domain.ErrActionTerminal},
		{http.StatusNotFound, domain.ErrActionTerminal},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))

		d := NewHTTPDispatcher(map[domain.ActionKind]string{domain.ActionForwardBilling: server.URL}, time.Second)
		err := d.Dispatch(context.Background(), "run-10",
			domain.ActionSpec{Kind: domain.ActionForwardBilling}, domain.ClassificationResult{})
		server.Close()

		if !domain.IsKind(err, tc.wantKind) {
			t.Errorf("status %d: expected error kind %v, got %v", tc.status, tc.wantKind, err)
		}
	}
}

func TestHTTPDispatcherTransportErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	d := NewHTTPDispatcher(map[domain.ActionKind]string{domain.ActionForwardSales: url}, time.Second)
	err := d.Dispatch(context.Background(), "run-11",
		domain.ActionSpec{Kind: domain.ActionForwardSales}, domain.ClassificationResult{})
	if !domain.IsKind(err, domain.ErrActionRetryable) {
		t.Fatalf("expected retryable transport error, got %v", err)
	}
}

func TestHTTPDispatcherMissingTargetIsTerminal(t *testing.T) {
	d := NewHTTPDispatcher(nil, time.Second)
	err := d.Dispatch(context.Background(), "run-12",
		domain.ActionSpec{Kind: domain.ActionEscalateSupport}, domain.ClassificationResult{})
	if !domain.IsKind(err, domain.ErrActionTerminal) {
		t.Fatalf("expected terminal error for missing target, got %v", err)
	}
}

func TestHTTPDispatcherMalformedTargetIsTerminal(t *testing.T) {
	d := NewHTTPDispatcher(map[domain.ActionKind]string{domain.ActionEscalateSupport: "not a url"}, time.Second)
	err := d.Dispatch(context.Background(), "run-13",
		domain.ActionSpec{Kind: domain.ActionEscalateSupport}, domain.ClassificationResult{})
	if !domain.IsKind(err, domain.ErrActionTerminal) {
		t.Fatalf("expected terminal error for malformed target, got %v", err)
	}
}
