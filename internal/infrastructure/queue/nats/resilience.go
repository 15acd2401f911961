package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docrouter/internal/core/domain"
	"github.com/kirillkom/docrouter/internal/infrastructure/resilience"
)

// classifyPublishError decides how the executor treats a failed publish of a
// queued run id. Connection-level faults retry and count against the
// breaker. A run id is a few dozen bytes, so ErrMaxPayload can only be a
// programming error and is never retried.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrInvalidConnection):
		return resilience.ErrorClassification{RecordFailure: true}
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// markTemporary tags retryable publish failures with ErrTemporary so the
// ingest boundary answers 503 instead of 500: the document is stored, only
// the queue handoff failed, and the client may simply resubmit.
func markTemporary(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if class := classifyPublishError(err); class.Retryable {
		return domain.WrapError(domain.ErrTemporary, "publish run queued", err)
	}
	return err
}
