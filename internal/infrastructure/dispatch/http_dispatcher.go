package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

// HTTPDispatcher delivers actions by POSTing a JSON payload to the target
// URL configured for each action kind. A missing or unparsable target is a
// terminal failure (the "malformed target address" case); transport errors
// and 5xx/429 responses are retryable; other non-2xx responses are terminal.
type HTTPDispatcher struct {
	targets map[domain.ActionKind]string
	client  *http.Client
}

func NewHTTPDispatcher(targets map[domain.ActionKind]string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		targets: targets,
		client:  &http.Client{Timeout: timeout},
	}
}

type actionPayload struct {
	RunID      string            `json:"run_id"`
	Action     domain.ActionKind `json:"action"`
	Intent     domain.Intent     `json:"intent"`
	Confidence float64           `json:"confidence"`
	Downgraded bool              `json:"downgraded,omitempty"`
	Signals    []string          `json:"signals,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

func (d *HTTPDispatcher) Dispatch(
	ctx context.Context,
	runID string,
	spec domain.ActionSpec,
	cls domain.ClassificationResult,
) error {
	target, ok := d.targets[spec.Kind]
	if !ok || target == "" {
		return domain.WrapError(domain.ErrActionTerminal, "resolve target",
			fmt.Errorf("no target configured for action %q", spec.Kind))
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return domain.WrapError(domain.ErrActionTerminal, "resolve target", err)
	}

	body, err := json.Marshal(actionPayload{
		RunID:      runID,
		Action:     spec.Kind,
		Intent:     spec.Intent,
		Confidence: cls.Confidence,
		Downgraded: spec.Downgraded,
		Signals:    cls.Signals,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.WrapError(domain.ErrActionTerminal, "encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return domain.WrapError(domain.ErrActionTerminal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrActionRetryable, "deliver action", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return domain.WrapError(domain.ErrActionRetryable, "deliver action",
			fmt.Errorf("target responded %d", resp.StatusCode))
	default:
		return domain.WrapError(domain.ErrActionTerminal, "deliver action",
			fmt.Errorf("target responded %d", resp.StatusCode))
	}
}
