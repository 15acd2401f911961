// Package classifier assigns a business intent to canonical documents using
// a weighted keyword and field-predicate scheme. Classification is
// deterministic and explainable: identical input always yields the identical
// result, and every matched signal is reported.
package classifier

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

type Config struct {
	// Floor is the minimum normalized score required to select an intent
	// at all; below it the result is Unclassified.
	Floor float64
	// TieEpsilon is the score-share window inside which two intents are
	// considered tied and the severity order decides.
	TieEpsilon float64
	// InvoiceAmountThreshold is the monetary amount at or above which a
	// structured amount field counts as an invoice signal.
	InvoiceAmountThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Floor:                  0.3,
		TieEpsilon:             0.02,
		InvoiceAmountThreshold: 1000,
	}
}

type Classifier struct {
	cfg     Config
	scorers []intentScorer
}

func New(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	if cfg.TieEpsilon <= 0 {
		cfg.TieEpsilon = def.TieEpsilon
	}
	if cfg.InvoiceAmountThreshold <= 0 {
		cfg.InvoiceAmountThreshold = def.InvoiceAmountThreshold
	}
	return &Classifier{cfg: cfg, scorers: buildScorers(cfg)}
}

// saturation shapes how fast raw evidence converges to full confidence:
// a single weak signal lands mid-range, strong multi-signal documents
// approach 1.
const saturation = 1.5

type scored struct {
	intent  domain.Intent
	score   float64
	signals []string
}

func (c *Classifier) Classify(doc *domain.CanonicalDocument) domain.ClassificationResult {
	if doc.Contentless() {
		return domain.ClassificationResult{
			Intent:  domain.IntentUnclassified,
			Signals: []string{"no-signals"},
		}
	}

	text := strings.ToLower(doc.Text)

	results := make([]scored, 0, len(c.scorers))
	var total float64
	for _, s := range c.scorers {
		score, signals := s.score(text, doc.Fields)
		total += score
		results = append(results, scored{intent: s.intent, score: score, signals: signals})
	}

	if total == 0 {
		return domain.ClassificationResult{
			Intent:  domain.IntentUnclassified,
			Signals: []string{"no-signals"},
		}
	}

	// Stable order: score descending, severity as the tie anchor. Scorers
	// are already in severity order, so the sort is deterministic.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	top := c.resolveTie(results, total)
	confidence := c.confidence(top, results, total)

	if confidence < c.cfg.Floor {
		return domain.ClassificationResult{
			Intent:     domain.IntentUnclassified,
			Confidence: confidence,
			Signals:    append(top.signals, "below-floor"),
		}
	}

	return domain.ClassificationResult{
		Intent:     top.intent,
		Confidence: confidence,
		Signals:    top.signals,
	}
}

// resolveTie picks the most severe intent among those whose score share is
// within TieEpsilon of the leader. The severity order FraudRisk > Complaint
// > Regulation > Invoice > RFQ is fixed; fraud and complaints warrant
// earlier human attention.
func (c *Classifier) resolveTie(results []scored, total float64) scored {
	top := results[0]
	for _, candidate := range results[1:] {
		if (top.score-candidate.score)/total > c.cfg.TieEpsilon {
			break
		}
		if domain.SeverityRank(candidate.intent) < domain.SeverityRank(top.intent) {
			top = candidate
		}
	}
	return top
}

// confidence combines absolute evidence strength with an ambiguity penalty:
// the runner-up's score share is deducted at half weight, so documents with
// competing interpretations come out less certain.
func (c *Classifier) confidence(top scored, results []scored, total float64) float64 {
	strength := top.score / (top.score + saturation)

	var runnerUp float64
	for _, r := range results {
		if r.intent == top.intent {
			continue
		}
		if r.score > runnerUp {
			runnerUp = r.score
		}
	}
	penalty := (runnerUp / total) / 2

	return clamp01(strength - penalty)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

type intentScorer struct {
	intent     domain.Intent
	keywords   map[string]float64
	predicates []fieldPredicate
}

type fieldPredicate struct {
	name   string
	weight float64
	match  func(domain.DocumentFields) bool
}

func (s intentScorer) score(text string, fields domain.DocumentFields) (float64, []string) {
	var score float64
	var signals []string

	keys := make([]string, 0, len(s.keywords))
	for k := range s.keywords {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.Contains(text, k) {
			score += s.keywords[k]
			signals = append(signals, "keyword:"+k)
		}
	}
	for _, p := range s.predicates {
		if p.match(fields) {
			score += p.weight
			signals = append(signals, "field:"+p.name)
		}
	}
	return score, signals
}

// buildScorers returns the intent strategy table in severity order.
func buildScorers(cfg Config) []intentScorer {
	return []intentScorer{
		{
			intent: domain.IntentFraudRisk,
			keywords: map[string]float64{
				"fraud":            3,
				"phishing":         3,
				"money laundering": 3,
				"identity theft":   3,
				"suspicious":       2,
				"unauthorized":     2,
				"chargeback":       2,
				"urgent":           1,
			},
		},
		{
			intent: domain.IntentComplaint,
			keywords: map[string]float64{
				"complain":      3,
				"not satisfied": 2,
				"dissatisf":     2,
				"unacceptable":  2,
				"disappointed":  2,
				"billing error": 2,
				"refund":        1,
				"urgent":        1,
			},
		},
		{
			intent: domain.IntentRegulation,
			keywords: map[string]float64{
				"regulat":                            3,
				"gdpr":                               3,
				"compliance":                         2,
				"directive":                          2,
				"statutory":                          2,
				"legislation":                        2,
				"securities and exchange commission": 3,
				"financial conduct authority":        3,
				"federal reserve":                    2,
			},
		},
		{
			intent: domain.IntentInvoice,
			keywords: map[string]float64{
				"invoice":     3,
				"amount due":  2,
				"payment due": 2,
				"remittance":  2,
				"net 30":      2,
				"billing":     1,
			},
			predicates: []fieldPredicate{
				{
					name:   fmt.Sprintf("amount>=%.0f", cfg.InvoiceAmountThreshold),
					weight: 2,
					match: func(f domain.DocumentFields) bool {
						return f.Amount != nil && *f.Amount >= cfg.InvoiceAmountThreshold
					},
				},
				{
					name:   "currency",
					weight: 1,
					match: func(f domain.DocumentFields) bool {
						return f.Currency != nil && *f.Currency != ""
					},
				},
			},
		},
		{
			intent: domain.IntentRFQ,
			keywords: map[string]float64{
				"request for quotation": 3,
				"rfq":                   3,
				"quotation":             2,
				"pricing":               2,
				"tender":                2,
			},
		},
	}
}
