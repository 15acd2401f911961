package domain

import "time"

// RunState is a pipeline state-machine state. Completed, Aborted and Failed
// are terminal; no state is re-entrant.
type RunState string

const (
	StateReceived   RunState = "received"
	StateDetected   RunState = "detected"
	StateParsed     RunState = "parsed"
	StateClassified RunState = "classified"
	StateRouted     RunState = "routed"
	StateCompleted  RunState = "completed"
	StateAborted    RunState = "aborted"
	StateFailed     RunState = "failed"
)

func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Abort reasons recorded on StateAborted runs.
const (
	AbortUnsupportedFormat = "unsupported-format"
	AbortCancelled         = "cancelled"
)

// Stage names the pipeline stage an event or failure belongs to.
type Stage string

const (
	StageIngest         Stage = "ingest"
	StageDetection      Stage = "detection"
	StageParsing        Stage = "parsing"
	StageClassification Stage = "classification"
	StageRouting        Stage = "routing"
	StageFinalize       Stage = "finalize"
)

// StageEvent is one entry of the append-only per-run audit log.
type StageEvent struct {
	Seq        int       `json:"seq"`
	Stage      Stage     `json:"stage"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PipelineRun identifies one document-processing execution and carries its
// terminal result for persistence and audit.
type PipelineRun struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	MimeType    string     `json:"mime_type,omitempty"`
	StoragePath string     `json:"storage_path"`
	ContentHash string     `json:"content_hash,omitempty"`
	SizeBytes   int64      `json:"size_bytes"`
	Format      FormatTag  `json:"format,omitempty"`
	State       RunState   `json:"state"`
	AbortReason string     `json:"abort_reason,omitempty"`
	FailedStage Stage      `json:"failed_stage,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	Classification *ClassificationResult `json:"classification,omitempty"`
	Outcome        *ActionOutcome        `json:"outcome,omitempty"`
	Events         []StageEvent          `json:"events,omitempty"`
}

// RunStats are the aggregate counters served by the persistence sink.
type RunStats struct {
	Total         int64            `json:"total"`
	ByState       map[string]int64 `json:"by_state"`
	ByIntent      map[string]int64 `json:"by_intent"`
	ByFormat      map[string]int64 `json:"by_format"`
	AvgConfidence float64          `json:"avg_confidence"`
}

// SharedContext is the per-run mutable record threaded through every stage.
// Exactly one exists per run; only the orchestrator and the stage it is
// currently invoking mutate it, and it is never shared across runs, so it
// carries no locking.
type SharedContext struct {
	RunID  string
	Raw    *RawInput
	Format FormatTag

	Document       *CanonicalDocument
	Classification *ClassificationResult
	Outcome        *ActionOutcome

	events []StageEvent
}

func NewSharedContext(runID string, raw *RawInput) *SharedContext {
	return &SharedContext{RunID: runID, Raw: raw, Format: FormatUnknown}
}

// AppendEvent adds one entry to the audit log. The log is append-only;
// callers never rewrite history.
func (c *SharedContext) AppendEvent(stage Stage, status, detail string) {
	c.events = append(c.events, StageEvent{
		Seq:        len(c.events) + 1,
		Stage:      stage,
		Status:     status,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	})
}

// Events returns a copy of the audit log in append order.
func (c *SharedContext) Events() []StageEvent {
	out := make([]StageEvent, len(c.events))
	copy(out, c.events)
	return out
}
