package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docrouter/internal/core/domain"
	"github.com/kirillkom/docrouter/internal/core/ports"
)

// IngestDocumentUseCase accepts raw documents at the boundary: it validates
// the upload, persists the bytes, creates the run record and either queues
// the run for a worker or, for synchronous ingestion, executes the pipeline
// inline so the caller gets the terminal run back.
type IngestDocumentUseCase struct {
	repo       ports.RunRepository
	storage    ports.ObjectStorage
	queue      ports.MessageQueue
	runner     ports.PipelineRunner
	allowedExt map[string]struct{}
	maxBytes   int64
}

func NewIngestDocumentUseCase(
	repo ports.RunRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	runner ports.PipelineRunner,
	allowedExtensions []string,
	maxBytes int64,
) *IngestDocumentUseCase {
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &IngestDocumentUseCase{
		repo:       repo,
		storage:    storage,
		queue:      queue,
		runner:     runner,
		allowedExt: allowed,
		maxBytes:   maxBytes,
	}
}

func (uc *IngestDocumentUseCase) Ingest(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
	sync bool,
) (*domain.PipelineRun, error) {
	if err := uc.validateUpload(filename); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))

	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(uc.limitReader(body), hasher)}
	if err := uc.storage.Save(ctx, storageKey, counter); err != nil {
		if errors.Is(err, errUploadTooLarge) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "save upload", err)
		}
		return nil, fmt.Errorf("save upload: %w", err)
	}

	run := &domain.PipelineRun{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:   counter.n,
		State:       domain.StateReceived,
		StartedAt:   time.Now().UTC(),
	}

	if err := uc.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	if sync {
		return uc.runner.RunByID(ctx, run.ID)
	}

	if err := uc.queue.PublishRunQueued(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("publish run queued: %w", err)
	}
	return run, nil
}

func (uc *IngestDocumentUseCase) validateUpload(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("filename is required"))
	}
	if len(uc.allowedExt) == 0 {
		return nil
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := uc.allowedExt[ext]; !ok {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload",
			fmt.Errorf("extension %q is not allowed", ext))
	}
	return nil
}

var errUploadTooLarge = errors.New("upload exceeds size limit")

func (uc *IngestDocumentUseCase) limitReader(r io.Reader) io.Reader {
	if uc.maxBytes <= 0 {
		return r
	}
	return &cappedReader{r: r, remaining: uc.maxBytes}
}

type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, errUploadTooLarge
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errUploadTooLarge
	}
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
