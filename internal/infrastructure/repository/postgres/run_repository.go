package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

// RunRepository is the persistence sink for pipeline runs: upsert-by-id for
// run records, append-only inserts for stage events. Both are safe under
// concurrent writers, which is the only cross-run shared resource.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026053101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT,
	storage_path TEXT NOT NULL,
	content_hash TEXT,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	format TEXT,
	state TEXT NOT NULL,
	abort_reason TEXT,
	failed_stage TEXT,
	error_message TEXT,
	intent TEXT,
	confidence DOUBLE PRECISION,
	signals JSONB,
	action_kind TEXT,
	action_status TEXT,
	action_attempts INT,
	action_error TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_state ON pipeline_runs(state);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS run_events (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	seq INT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, seq);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (
	id, filename, mime_type, storage_path, content_hash, size_bytes, state, started_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		run.ID, run.Filename, run.MimeType, run.StoragePath, run.ContentHash,
		run.SizeBytes, string(run.State), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordRun upserts the terminal run record and appends its stage events.
// Redelivered runs may append duplicate events; the audit log contract is
// at-least-once.
func (r *RunRepository) RecordRun(ctx context.Context, run *domain.PipelineRun) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var intent *string
	var confidence *float64
	var signalsJSON []byte
	if run.Classification != nil {
		i := string(run.Classification.Intent)
		intent = &i
		confidence = &run.Classification.Confidence
		signalsJSON, err = json.Marshal(run.Classification.Signals)
		if err != nil {
			return fmt.Errorf("marshal signals: %w", err)
		}
	}

	var actionKind, actionStatus, actionError *string
	var actionAttempts *int
	if run.Outcome != nil {
		k := string(run.Outcome.Kind)
		s := string(run.Outcome.Status)
		actionKind = &k
		actionStatus = &s
		actionAttempts = &run.Outcome.Attempts
		if run.Outcome.LastError != "" {
			actionError = &run.Outcome.LastError
		}
	}

	result, err := tx.ExecContext(ctx, `
UPDATE pipeline_runs SET
	format = $2, state = $3, abort_reason = $4, failed_stage = $5, error_message = $6,
	intent = $7, confidence = $8, signals = $9,
	action_kind = $10, action_status = $11, action_attempts = $12, action_error = $13,
	finished_at = $14
WHERE id = $1
`,
		run.ID, string(run.Format), string(run.State), run.AbortReason, string(run.FailedStage),
		run.Error, intent, confidence, signalsJSON,
		actionKind, actionStatus, actionAttempts, actionError, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "update run", fmt.Errorf("id=%s", run.ID))
	}

	for _, event := range run.Events {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO run_events (run_id, seq, stage, status, detail, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6)
`,
			run.ID, event.Seq, string(event.Stage), event.Status, event.Detail, event.OccurredAt,
		); err != nil {
			return fmt.Errorf("insert run event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record tx: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, content_hash, size_bytes, format, state,
	abort_reason, failed_stage, error_message, intent, confidence, signals,
	action_kind, action_status, action_attempts, action_error, started_at, finished_at
FROM pipeline_runs
WHERE id = $1
`, id)

	var run domain.PipelineRun
	var mimeType, format, abortReason, failedStage, errMessage sql.NullString
	var contentHash sql.NullString
	var intent, actionKind, actionStatus, actionError sql.NullString
	var confidence sql.NullFloat64
	var actionAttempts sql.NullInt64
	var signalsRaw []byte
	var state string
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.Filename, &mimeType, &run.StoragePath, &contentHash, &run.SizeBytes,
		&format, &state, &abortReason, &failedStage, &errMessage,
		&intent, &confidence, &signalsRaw,
		&actionKind, &actionStatus, &actionAttempts, &actionError,
		&run.StartedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "fetch run", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.MimeType = mimeType.String
	run.ContentHash = contentHash.String
	run.Format = domain.FormatTag(format.String)
	run.State = domain.RunState(state)
	run.AbortReason = abortReason.String
	run.FailedStage = domain.Stage(failedStage.String)
	run.Error = errMessage.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	if intent.Valid {
		cls := domain.ClassificationResult{
			Intent:     domain.Intent(intent.String),
			Confidence: confidence.Float64,
		}
		if len(signalsRaw) > 0 {
			if err := json.Unmarshal(signalsRaw, &cls.Signals); err != nil {
				return nil, fmt.Errorf("unmarshal signals: %w", err)
			}
		}
		run.Classification = &cls
	}

	if actionKind.Valid {
		run.Outcome = &domain.ActionOutcome{
			Kind:      domain.ActionKind(actionKind.String),
			Status:    domain.ActionStatus(actionStatus.String),
			Attempts:  int(actionAttempts.Int64),
			LastError: actionError.String,
		}
	}

	events, err := r.loadEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Events = events

	return &run, nil
}

func (r *RunRepository) loadEvents(ctx context.Context, runID string) ([]domain.StageEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT seq, stage, status, detail, occurred_at
FROM run_events
WHERE run_id = $1
ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []domain.StageEvent
	for rows.Next() {
		var event domain.StageEvent
		var stage string
		var detail sql.NullString
		if err := rows.Scan(&event.Seq, &stage, &event.Status, &detail, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		event.Stage = domain.Stage(stage)
		event.Detail = detail.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return events, nil
}

func (r *RunRepository) Stats(ctx context.Context) (*domain.RunStats, error) {
	stats := &domain.RunStats{
		ByState:  map[string]int64{},
		ByIntent: map[string]int64{},
		ByFormat: map[string]int64{},
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT state, COALESCE(intent, ''), COALESCE(format, ''), COUNT(*), COALESCE(AVG(confidence), 0)
FROM pipeline_runs
GROUP BY state, intent, format
`)
	if err != nil {
		return nil, fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()

	var confidenceSum float64
	var classified int64
	for rows.Next() {
		var state, intent, format string
		var count int64
		var avgConfidence float64
		if err := rows.Scan(&state, &intent, &format, &count, &avgConfidence); err != nil {
			return nil, fmt.Errorf("scan run stats: %w", err)
		}
		stats.Total += count
		stats.ByState[state] += count
		if intent != "" {
			stats.ByIntent[intent] += count
			confidenceSum += avgConfidence * float64(count)
			classified += count
		}
		if format != "" {
			stats.ByFormat[format] += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run stats: %w", err)
	}

	if classified > 0 {
		stats.AvgConfidence = confidenceSum / float64(classified)
	}
	return stats, nil
}
