package domain

// ActionKind names the follow-up action routed for an intent.
type ActionKind string

const (
	ActionEscalateSupport ActionKind = "escalate-support-queue"
	ActionForwardBilling  ActionKind = "forward-billing"
	ActionFileCompliance  ActionKind = "file-compliance-archive"
	ActionFlagAndFreeze   ActionKind = "flag-and-freeze"
	ActionForwardSales    ActionKind = "forward-sales"
	ActionManualReview    ActionKind = "queue-manual-review"
)

// ActionSpec is the routing decision for one classification. Downgraded is
// set when a below-threshold confidence forced the manual-review override.
type ActionSpec struct {
	Kind       ActionKind `json:"kind"`
	Intent     Intent     `json:"intent"`
	Downgraded bool       `json:"downgraded,omitempty"`
}

type ActionStatus string

const (
	ActionSucceeded       ActionStatus = "succeeded"
	ActionFailedRetryable ActionStatus = "failed_retryable"
	ActionFailedTerminal  ActionStatus = "failed_terminal"
)

// ActionOutcome records the result of executing a routed action, including
// its retry history.
type ActionOutcome struct {
	Kind      ActionKind   `json:"kind"`
	Status    ActionStatus `json:"status"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
}
