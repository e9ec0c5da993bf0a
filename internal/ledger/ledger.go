// Package ledger implements the append-only provenance store at the core of
// takeoffd: five linked entity kinds (evidence, assumptions, inferences,
// decisions, flags) with referential integrity enforced on every append.
//
// A ledger is created once per pipeline run, grows monotonically during the
// run, and is owned exclusively by that run. Appends are validated fail-fast:
// schema first, then every referenced id, and a failed append changes
// nothing. ValidateIntegrity re-derives the full invariant set at any time
// and reports every violation, which is the authoritative check before a
// snapshot is trusted for export.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunMetadata tracks the lifecycle of the run that owns a ledger.
type RunMetadata struct {
	// CreatedAt is when the ledger was created.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is set once by MarkCompleted.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// TotalStages counts stage outcomes recorded against this ledger.
	TotalStages int `json:"total_stages"`

	// SuccessStages counts the recorded outcomes that succeeded.
	SuccessStages int `json:"success_stages"`
}

// AppendEvent describes one successful append, for audit observers.
type AppendEvent struct {
	LedgerID  string     `json:"ledger_id"`
	RunID     string     `json:"run_id"`
	Kind      EntityKind `json:"kind"`
	EntityID  string     `json:"entity_id"`
	Timestamp time.Time  `json:"timestamp"`
}

// Observer receives append events after each successful mutation.
// Implementations must not block; the ledger calls them synchronously.
type Observer interface {
	LedgerAppended(event AppendEvent)
}

// Ledger is the append-only store for one pipeline run.
//
// Appends happen from the run's own goroutine, so ordering is deterministic.
// The mutex exists for concurrent readers (HTTP snapshot fetches, audits)
// observing a ledger while its run is still writing.
type Ledger struct {
	mu sync.RWMutex

	id       string
	runID    string
	policyID string

	evidence    []*Evidence
	assumptions []*Assumption
	inferences  []*Inference
	decisions   []*Decision
	flags       []*Flag

	evidenceByID   map[string]*Evidence
	assumptionByID map[string]*Assumption
	inferenceByID  map[string]*Inference
	decisionByID   map[string]*Decision
	flagByID       map[string]*Flag

	metadata  RunMetadata
	observers []Observer
}

// New creates an empty ledger for the given run and policy.
func New(runID, policyID string) *Ledger {
	return &Ledger{
		id:             uuid.New().String(),
		runID:          runID,
		policyID:       policyID,
		evidenceByID:   make(map[string]*Evidence),
		assumptionByID: make(map[string]*Assumption),
		inferenceByID:  make(map[string]*Inference),
		decisionByID:   make(map[string]*Decision),
		flagByID:       make(map[string]*Flag),
		metadata:       RunMetadata{CreatedAt: time.Now().UTC()},
	}
}

// Restore creates a ledger with a known identity and creation time, for
// snapshot loaders that replay stored appends.
func Restore(id, runID, policyID string, createdAt time.Time) *Ledger {
	l := New(runID, policyID)
	l.id = id
	l.metadata.CreatedAt = createdAt
	return l
}

// ID returns the ledger id.
func (l *Ledger) ID() string { return l.id }

// RunID returns the owning run id.
func (l *Ledger) RunID() string { return l.runID }

// PolicyID returns the id of the policy governing the run.
func (l *Ledger) PolicyID() string { return l.policyID }

// Subscribe registers an observer for append events. Not safe to call
// concurrently with appends; wire observers before the run starts.
func (l *Ledger) Subscribe(o Observer) {
	if o != nil {
		l.observers = append(l.observers, o)
	}
}

func (l *Ledger) notify(kind EntityKind, entityID string) {
	if len(l.observers) == 0 {
		return
	}
	event := AppendEvent{
		LedgerID:  l.id,
		RunID:     l.runID,
		Kind:      kind,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
	for _, o := range l.observers {
		o.LedgerAppended(event)
	}
}

// AddEvidence validates and appends one piece of evidence.
func (l *Ledger) AddEvidence(ev *Evidence) error {
	if ev == nil {
		return ErrNilEntity
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid evidence: %w", err)
	}

	l.mu.Lock()
	if _, exists := l.evidenceByID[ev.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: evidence %s", ErrDuplicateID, ev.ID)
	}
	l.evidence = append(l.evidence, ev)
	l.evidenceByID[ev.ID] = ev
	l.mu.Unlock()

	l.notify(KindEvidence, ev.ID)
	return nil
}

// AddAssumption validates and appends one assumption. When the assumption
// supersedes a prior record, the prior record's ExpiresAt is stamped, but
// only if the target exists and has not already expired; a missing target
// makes supersession a no-op without failing the append.
func (l *Ledger) AddAssumption(a *Assumption) error {
	if a == nil {
		return ErrNilEntity
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid assumption: %w", err)
	}

	l.mu.Lock()
	if _, exists := l.assumptionByID[a.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: assumption %s", ErrDuplicateID, a.ID)
	}
	if a.Supersedes != "" {
		if prior, ok := l.assumptionByID[a.Supersedes]; ok && prior.ExpiresAt == nil {
			now := time.Now().UTC()
			prior.ExpiresAt = &now
		}
	}
	l.assumptions = append(l.assumptions, a)
	l.assumptionByID[a.ID] = a
	l.mu.Unlock()

	l.notify(KindAssumption, a.ID)
	return nil
}

// AddInference validates and appends one inference. Every id in
// UsedEvidence and UsedAssumptions must already exist; a dangling id fails
// the whole append and the error lists every missing id.
func (l *Ledger) AddInference(inf *Inference) error {
	if inf == nil {
		return ErrNilEntity
	}
	if err := inf.Validate(); err != nil {
		return fmt.Errorf("invalid inference: %w", err)
	}

	l.mu.Lock()
	if _, exists := l.inferenceByID[inf.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: inference %s", ErrDuplicateID, inf.ID)
	}

	var missingEvidence, missingAssumptions []string
	for _, id := range inf.UsedEvidence {
		if _, ok := l.evidenceByID[id]; !ok {
			missingEvidence = append(missingEvidence, id)
		}
	}
	for _, id := range inf.UsedAssumptions {
		if _, ok := l.assumptionByID[id]; !ok {
			missingAssumptions = append(missingAssumptions, id)
		}
	}
	if len(missingEvidence) > 0 || len(missingAssumptions) > 0 {
		l.mu.Unlock()
		var errs []error
		if len(missingEvidence) > 0 {
			errs = append(errs, fmt.Errorf("%w: missing evidence: %v", ErrMissingReference, missingEvidence))
		}
		if len(missingAssumptions) > 0 {
			errs = append(errs, fmt.Errorf("%w: missing assumptions: %v", ErrMissingReference, missingAssumptions))
		}
		return errors.Join(errs...)
	}

	l.inferences = append(l.inferences, inf)
	l.inferenceByID[inf.ID] = inf
	l.mu.Unlock()

	l.notify(KindInference, inf.ID)
	return nil
}

// AddDecision validates and appends one decision. The selected inference and
// every competing inference must already exist.
func (l *Ledger) AddDecision(d *Decision) error {
	if d == nil {
		return ErrNilEntity
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid decision: %w", err)
	}

	l.mu.Lock()
	if _, exists := l.decisionByID[d.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: decision %s", ErrDuplicateID, d.ID)
	}

	var missing []string
	if _, ok := l.inferenceByID[d.SelectedInferenceID]; !ok {
		missing = append(missing, d.SelectedInferenceID)
	}
	for _, id := range d.CompetingInferences {
		if _, ok := l.inferenceByID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: missing inferences: %v", ErrMissingReference, missing)
	}

	l.decisions = append(l.decisions, d)
	l.decisionByID[d.ID] = d
	l.mu.Unlock()

	l.notify(KindDecision, d.ID)
	return nil
}

// AddFlag validates and appends one flag. Every referenced evidence,
// assumption, inference and decision id must already exist.
func (l *Ledger) AddFlag(f *Flag) error {
	if f == nil {
		return ErrNilEntity
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}

	l.mu.Lock()
	if _, exists := l.flagByID[f.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: flag %s", ErrDuplicateID, f.ID)
	}

	var errs []error
	if missing := missingIDs(f.EvidenceIDs, l.evidenceByID); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: missing evidence: %v", ErrMissingReference, missing))
	}
	if missing := missingIDs(f.AssumptionIDs, l.assumptionByID); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: missing assumptions: %v", ErrMissingReference, missing))
	}
	if missing := missingIDs(f.InferenceIDs, l.inferenceByID); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: missing inferences: %v", ErrMissingReference, missing))
	}
	if f.DecisionID != "" {
		if _, ok := l.decisionByID[f.DecisionID]; !ok {
			errs = append(errs, fmt.Errorf("%w: missing decisions: [%s]", ErrMissingReference, f.DecisionID))
		}
	}
	if len(errs) > 0 {
		l.mu.Unlock()
		return errors.Join(errs...)
	}

	l.flags = append(l.flags, f)
	l.flagByID[f.ID] = f
	l.mu.Unlock()

	l.notify(KindFlag, f.ID)
	return nil
}

func missingIDs[T any](ids []string, index map[string]T) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Evidence returns the evidence with the given id.
func (l *Ledger) Evidence(id string) (*Evidence, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.evidenceByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: evidence %s", ErrNotFound, id)
	}
	return ev, nil
}

// Assumption returns the assumption with the given id.
func (l *Ledger) Assumption(id string) (*Assumption, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assumptionByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: assumption %s", ErrNotFound, id)
	}
	return a, nil
}

// Inference returns the inference with the given id.
func (l *Ledger) Inference(id string) (*Inference, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	inf, ok := l.inferenceByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: inference %s", ErrNotFound, id)
	}
	return inf, nil
}

// Decision returns the decision with the given id.
func (l *Ledger) Decision(id string) (*Decision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.decisionByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: decision %s", ErrNotFound, id)
	}
	return d, nil
}

// Flag returns the flag with the given id.
func (l *Ledger) Flag(id string) (*Flag, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.flagByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: flag %s", ErrNotFound, id)
	}
	return f, nil
}

// AllEvidence returns all evidence in insertion order. The returned slice is
// a copy; the pointed-to records are shared and must be treated as read-only.
func (l *Ledger) AllEvidence() []*Evidence {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Evidence, len(l.evidence))
	copy(out, l.evidence)
	return out
}

// AllAssumptions returns all assumptions in insertion order.
func (l *Ledger) AllAssumptions() []*Assumption {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Assumption, len(l.assumptions))
	copy(out, l.assumptions)
	return out
}

// AllInferences returns all inferences in insertion order.
func (l *Ledger) AllInferences() []*Inference {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Inference, len(l.inferences))
	copy(out, l.inferences)
	return out
}

// AllDecisions returns all decisions in insertion order.
func (l *Ledger) AllDecisions() []*Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Decision, len(l.decisions))
	copy(out, l.decisions)
	return out
}

// AllFlags returns all flags in insertion order.
func (l *Ledger) AllFlags() []*Flag {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Flag, len(l.flags))
	copy(out, l.flags)
	return out
}

// EvidenceByType returns evidence of the given type in insertion order.
func (l *Ledger) EvidenceByType(t EvidenceType) []*Evidence {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Evidence
	for _, ev := range l.evidence {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// AssumptionsByKey returns all assumptions for a key, active or not,
// in insertion order.
func (l *Ledger) AssumptionsByKey(key string) []*Assumption {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Assumption
	for _, a := range l.assumptions {
		if a.Key == key {
			out = append(out, a)
		}
	}
	return out
}

// ActiveAssumptions returns the assumptions that have not expired,
// in insertion order.
func (l *Ledger) ActiveAssumptions() []*Assumption {
	now := time.Now().UTC()
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Assumption
	for _, a := range l.assumptions {
		if a.ActiveAt(now) {
			out = append(out, a)
		}
	}
	return out
}

// CurrentAssumption returns the active assumption for a key with the highest
// confidence. Equal confidences resolve to the record inserted first; this
// tie-break is deliberate and relied upon by callers.
func (l *Ledger) CurrentAssumption(key string) (*Assumption, error) {
	now := time.Now().UTC()
	l.mu.RLock()
	defer l.mu.RUnlock()
	var best *Assumption
	for _, a := range l.assumptions {
		if a.Key != key || !a.ActiveAt(now) {
			continue
		}
		if best == nil || a.Confidence > best.Confidence {
			best = a
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no active assumption for key %q", ErrNotFound, key)
	}
	return best, nil
}

// InferencesByTopic returns all inferences for a topic in insertion order.
func (l *Ledger) InferencesByTopic(topic string) []*Inference {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Inference
	for _, inf := range l.inferences {
		if inf.Topic == topic {
			out = append(out, inf)
		}
	}
	return out
}

// Topics returns the distinct inference topics in first-seen order.
func (l *Ledger) Topics() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool, len(l.inferences))
	var out []string
	for _, inf := range l.inferences {
		if !seen[inf.Topic] {
			seen[inf.Topic] = true
			out = append(out, inf.Topic)
		}
	}
	return out
}

// DecisionByTopic returns the most recent decision for a topic.
func (l *Ledger) DecisionByTopic(topic string) (*Decision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.decisions) - 1; i >= 0; i-- {
		if l.decisions[i].Topic == topic {
			return l.decisions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no decision for topic %q", ErrNotFound, topic)
}

// OpenFlags returns the unresolved flags in insertion order.
func (l *Ledger) OpenFlags() []*Flag {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Flag
	for _, f := range l.flags {
		if !f.Resolved {
			out = append(out, f)
		}
	}
	return out
}

// RecordStageOutcome counts one stage outcome in the run metadata.
func (l *Ledger) RecordStageOutcome(succeeded bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metadata.TotalStages++
	if succeeded {
		l.metadata.SuccessStages++
	}
}

// MarkCompleted stamps CompletedAt. Calling it again is a no-op.
func (l *Ledger) MarkCompleted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.metadata.CompletedAt == nil {
		now := time.Now().UTC()
		l.metadata.CompletedAt = &now
	}
}

// Metadata returns a copy of the run metadata.
func (l *Ledger) Metadata() RunMetadata {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.metadata
}

// SetMetadata overwrites the run metadata, for snapshot loaders.
func (l *Ledger) SetMetadata(m RunMetadata) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metadata = m
}
