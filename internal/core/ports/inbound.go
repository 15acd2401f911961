package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

// DocumentIngestor is the inbound contract for accepting raw documents.
// Async ingestion returns the run in its initial state; sync ingestion runs
// the pipeline inline and returns the terminal run.
type DocumentIngestor interface {
	Ingest(ctx context.Context, filename, mimeType string, body io.Reader, sync bool) (*domain.PipelineRun, error)
}

// PipelineRunner drives one queued run through the state machine. It always
// returns a terminal PipelineRun record; per-document faults never escape as
// errors, only infrastructure faults do.
type PipelineRunner interface {
	RunByID(ctx context.Context, runID string) (*domain.PipelineRun, error)
}

// RunReader is the inbound read model for run state and audit history.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)
	Stats(ctx context.Context) (*domain.RunStats, error)
}
