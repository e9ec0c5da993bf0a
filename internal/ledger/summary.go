package ledger

import "time"

// Summary aggregates entity counts and a simple mean of every
// confidence-bearing field in the ledger. Decisions carry no confidence of
// their own and are counted as 1.0 each.
type Summary struct {
	LedgerID string `json:"ledger_id"`
	RunID    string `json:"run_id"`
	PolicyID string `json:"policy_id"`

	EvidenceCount   int `json:"evidence_count"`
	AssumptionCount int `json:"assumption_count"`
	InferenceCount  int `json:"inference_count"`
	DecisionCount   int `json:"decision_count"`
	FlagCount       int `json:"flag_count"`
	OpenFlagCount   int `json:"open_flag_count"`

	// DecidedTopics lists the topics with a decision, in decision order.
	DecidedTopics []string `json:"decided_topics,omitempty"`

	// MeanConfidence is the mean over evidence source confidence,
	// assumption confidence, inference confidence and decisions at 1.0.
	// Zero when the ledger holds no confidence-bearing records.
	MeanConfidence float64 `json:"mean_confidence"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Summary computes the aggregate view of the ledger.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{
		LedgerID:        l.id,
		RunID:           l.runID,
		PolicyID:        l.policyID,
		EvidenceCount:   len(l.evidence),
		AssumptionCount: len(l.assumptions),
		InferenceCount:  len(l.inferences),
		DecisionCount:   len(l.decisions),
		FlagCount:       len(l.flags),
		CreatedAt:       l.metadata.CreatedAt,
		CompletedAt:     l.metadata.CompletedAt,
	}

	var sum float64
	var n int
	for _, ev := range l.evidence {
		sum += ev.Source.Confidence
		n++
	}
	for _, a := range l.assumptions {
		sum += a.Confidence
		n++
	}
	for _, inf := range l.inferences {
		sum += inf.Confidence
		n++
	}
	for _, d := range l.decisions {
		sum += 1.0
		n++
		s.DecidedTopics = append(s.DecidedTopics, d.Topic)
	}
	for _, f := range l.flags {
		if !f.Resolved {
			s.OpenFlagCount++
		}
	}
	if n > 0 {
		s.MeanConfidence = sum / float64(n)
	}
	return s
}
