package ledger

import "fmt"

// Violation is one integrity finding from a full-scan audit.
type Violation struct {
	Kind     EntityKind `json:"kind"`
	EntityID string     `json:"entity_id"`
	Message  string     `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Kind, v.EntityID, v.Message)
}

// ValidateIntegrity performs a full structural and referential audit and
// returns every violation found, not just the first. It re-derives the same
// invariants the append path enforces fail-fast, so it is the authoritative
// conformance check for ledgers reconstructed from snapshots or about to be
// exported. An empty result means the ledger is consistent.
func (l *Ledger) ValidateIntegrity() []Violation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var violations []Violation
	report := func(kind EntityKind, id, format string, args ...any) {
		violations = append(violations, Violation{
			Kind:     kind,
			EntityID: id,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	evidenceIDs := make(map[string]bool, len(l.evidence))
	for _, ev := range l.evidence {
		if err := ev.Validate(); err != nil {
			report(KindEvidence, ev.ID, "schema violation: %v", err)
		}
		if evidenceIDs[ev.ID] {
			report(KindEvidence, ev.ID, "duplicate id")
		}
		evidenceIDs[ev.ID] = true
	}

	assumptionIDs := make(map[string]bool, len(l.assumptions))
	for _, a := range l.assumptions {
		if err := a.Validate(); err != nil {
			report(KindAssumption, a.ID, "schema violation: %v", err)
		}
		if assumptionIDs[a.ID] {
			report(KindAssumption, a.ID, "duplicate id")
		}
		assumptionIDs[a.ID] = true
	}
	for _, a := range l.assumptions {
		if a.Supersedes == "" {
			continue
		}
		prior, ok := l.assumptionByID[a.Supersedes]
		if !ok {
			// A missing supersession target was a permitted no-op at
			// append time, not a corruption.
			continue
		}
		if prior.ExpiresAt == nil {
			report(KindAssumption, a.ID, "supersedes %s but it has no expiry", a.Supersedes)
		}
	}

	inferenceIDs := make(map[string]bool, len(l.inferences))
	for _, inf := range l.inferences {
		if err := inf.Validate(); err != nil {
			report(KindInference, inf.ID, "schema violation: %v", err)
		}
		if inferenceIDs[inf.ID] {
			report(KindInference, inf.ID, "duplicate id")
		}
		inferenceIDs[inf.ID] = true
		for _, id := range inf.UsedEvidence {
			if !evidenceIDs[id] {
				report(KindInference, inf.ID, "references missing evidence %s", id)
			}
		}
		for _, id := range inf.UsedAssumptions {
			if !assumptionIDs[id] {
				report(KindInference, inf.ID, "references missing assumption %s", id)
			}
		}
	}

	decisionIDs := make(map[string]bool, len(l.decisions))
	for _, d := range l.decisions {
		if err := d.Validate(); err != nil {
			report(KindDecision, d.ID, "schema violation: %v", err)
		}
		if decisionIDs[d.ID] {
			report(KindDecision, d.ID, "duplicate id")
		}
		decisionIDs[d.ID] = true
		if !inferenceIDs[d.SelectedInferenceID] {
			report(KindDecision, d.ID, "references missing inference %s", d.SelectedInferenceID)
		}
		for _, id := range d.CompetingInferences {
			if !inferenceIDs[id] {
				report(KindDecision, d.ID, "references missing inference %s", id)
			}
		}
	}

	flagIDs := make(map[string]bool, len(l.flags))
	for _, f := range l.flags {
		if err := f.Validate(); err != nil {
			report(KindFlag, f.ID, "schema violation: %v", err)
		}
		if flagIDs[f.ID] {
			report(KindFlag, f.ID, "duplicate id")
		}
		flagIDs[f.ID] = true
		for _, id := range f.EvidenceIDs {
			if !evidenceIDs[id] {
				report(KindFlag, f.ID, "references missing evidence %s", id)
			}
		}
		for _, id := range f.AssumptionIDs {
			if !assumptionIDs[id] {
				report(KindFlag, f.ID, "references missing assumption %s", id)
			}
		}
		for _, id := range f.InferenceIDs {
			if !inferenceIDs[id] {
				report(KindFlag, f.ID, "references missing inference %s", id)
			}
		}
		if f.DecisionID != "" && !decisionIDs[f.DecisionID] {
			report(KindFlag, f.ID, "references missing decision %s", f.DecisionID)
		}
	}

	return violations
}
