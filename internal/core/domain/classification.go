package domain

// Intent is the business category assigned to a document.
type Intent string

const (
	IntentFraudRisk    Intent = "fraud_risk"
	IntentComplaint    Intent = "complaint"
	IntentRegulation   Intent = "regulation"
	IntentInvoice      Intent = "invoice"
	IntentRFQ          Intent = "rfq"
	IntentUnclassified Intent = "unclassified"
)

// SeverityRank orders intents for tie-breaking: fraud and complaints warrant
// earlier human attention. Lower rank is more severe. Unclassified never
// competes in a tie-break.
func SeverityRank(intent Intent) int {
	switch intent {
	case IntentFraudRisk:
		return 0
	case IntentComplaint:
		return 1
	case IntentRegulation:
		return 2
	case IntentInvoice:
		return 3
	case IntentRFQ:
		return 4
	default:
		return 5
	}
}

// ClassificationResult is the classifier's verdict. Confidence is always in
// [0,1]; Signals records the matched keywords and field predicates for
// explainability.
type ClassificationResult struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals,omitempty"`
}
