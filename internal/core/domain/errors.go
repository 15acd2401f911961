package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat marks an Unknown format tag. It aborts the run,
	// it is not a failure.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParseMalformed marks content that violates its own format grammar.
	// The run fails at the parsing stage.
	ErrParseMalformed = errors.New("malformed content")

	// ErrParseEmpty marks structurally valid but contentless input. The run
	// continues to the Unclassified/manual-review path.
	ErrParseEmpty = errors.New("empty content")

	// ErrNoExtractableText marks a PDF with no text layer, e.g. a scan.
	// Expected, handled like ErrParseEmpty.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrActionRetryable marks a transient dispatch failure, retried per
	// policy.
	ErrActionRetryable = errors.New("retryable dispatch failure")

	// ErrActionTerminal marks a permanent dispatch failure, never retried.
	ErrActionTerminal = errors.New("terminal dispatch failure")

	// ErrConfigInvalid is fatal to the whole process at startup, never
	// per-run.
	ErrConfigInvalid = errors.New("invalid configuration")

	ErrRunNotFound  = errors.New("pipeline run not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
