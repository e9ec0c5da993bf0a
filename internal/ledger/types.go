package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies one of the five record kinds a ledger stores.
type EntityKind string

const (
	KindEvidence   EntityKind = "evidence"
	KindAssumption EntityKind = "assumption"
	KindInference  EntityKind = "inference"
	KindDecision   EntityKind = "decision"
	KindFlag       EntityKind = "flag"
)

// EvidenceType classifies how a piece of evidence was expressed in the
// source document.
type EvidenceType string

const (
	// EvidenceText is free text extracted from notes, callouts or general plan text.
	EvidenceText EvidenceType = "text"

	// EvidenceImage is a rendered region handed to vision-based analysis.
	EvidenceImage EvidenceType = "image"

	// EvidenceTable is a generic tabular extraction (headers plus rows).
	EvidenceTable EvidenceType = "table"

	// EvidenceSymbol is a recognized plan symbol with its properties.
	EvidenceSymbol EvidenceType = "symbol"

	// EvidenceDimension is a measured or annotated dimension value.
	EvidenceDimension EvidenceType = "dimension"

	// EvidenceSchedule is a structured construction schedule (joist schedule,
	// door schedule, ...) with named columns and keyed rows.
	EvidenceSchedule EvidenceType = "schedule"
)

// ValidEvidenceType reports whether t is one of the known evidence types.
func ValidEvidenceType(t EvidenceType) bool {
	switch t {
	case EvidenceText, EvidenceImage, EvidenceTable, EvidenceSymbol, EvidenceDimension, EvidenceSchedule:
		return true
	}
	return false
}

// BoundingBox locates a region on a document page, in page coordinate units.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Source records where a piece of evidence came from and how much the
// extractor trusted it.
type Source struct {
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`

	// PageNumber is the 1-based page the evidence was found on.
	PageNumber int `json:"page_number"`

	// BoundingBox optionally locates the evidence on the page.
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`

	// ExtractorName names the extractor that produced the evidence
	// (e.g., "text-ocr", "schedule-parser").
	ExtractorName string `json:"extractor_name"`

	// Confidence is the extractor's own score for this item, from 0.0 to 1.0.
	Confidence float64 `json:"confidence"`
}

// Validate checks the source fields.
func (s *Source) Validate() error {
	if s.DocumentID == "" {
		return errors.New("source document ID cannot be empty")
	}
	if s.PageNumber < 0 {
		return errors.New("source page number cannot be negative")
	}
	if s.ExtractorName == "" {
		return errors.New("source extractor name cannot be empty")
	}
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	return nil
}

// Evidence is a typed, sourced, confidence-scored fact extracted from a
// document. Evidence is produced by collection stages and never mutated
// after it is appended.
type Evidence struct {
	// ID is the unique evidence identifier (UUID).
	ID string `json:"id"`

	// Type classifies the evidence and selects which Content payload is set.
	Type EvidenceType `json:"type"`

	// Source records document, page, extractor and extractor confidence.
	Source Source `json:"source"`

	// Content is the typed payload. Exactly one of its fields is set,
	// matching Type.
	Content Content `json:"content"`

	// Metadata carries extractor-specific annotations that do not affect
	// resolution (sheet names, revision marks, ...).
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp is when the evidence was produced.
	Timestamp time.Time `json:"timestamp"`

	// Version is the schema version of the content payload.
	Version int `json:"version"`
}

// NewEvidence creates evidence with a generated UUID and the current time.
// The content payload must match the given type.
func NewEvidence(t EvidenceType, source Source, content Content) (*Evidence, error) {
	ev := &Evidence{
		ID:        uuid.New().String(),
		Type:      t,
		Source:    source,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Version:   1,
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Validate checks the evidence against its schema.
func (e *Evidence) Validate() error {
	if e.ID == "" {
		return errors.New("evidence ID cannot be empty")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return errors.New("invalid evidence ID format")
	}
	if !ValidEvidenceType(e.Type) {
		return fmt.Errorf("%w: evidence type %q", ErrInvalidType, e.Type)
	}
	if err := e.Source.Validate(); err != nil {
		return err
	}
	if err := e.Content.Validate(e.Type); err != nil {
		return err
	}
	if e.Version < 1 {
		return errors.New("evidence version must be at least 1")
	}
	return nil
}

// AssumptionBasis classifies where an assumption came from.
type AssumptionBasis string

const (
	// BasisCodeDefault marks fixed defaults taken from building-code tables.
	BasisCodeDefault AssumptionBasis = "code_default"

	// BasisUserOverride marks values explicitly supplied by a user.
	BasisUserOverride AssumptionBasis = "user_override"

	// BasisDocumentDerived marks values pattern-matched out of collected evidence.
	BasisDocumentDerived AssumptionBasis = "document_derived"

	// BasisRegionalDefault marks region-specific material defaults.
	BasisRegionalDefault AssumptionBasis = "regional_default"
)

// ValidAssumptionBasis reports whether b is one of the known bases.
func ValidAssumptionBasis(b AssumptionBasis) bool {
	switch b {
	case BasisCodeDefault, BasisUserOverride, BasisDocumentDerived, BasisRegionalDefault:
		return true
	}
	return false
}

// Assumption is a default or derived value used to fill gaps in the
// evidence, with a basis and a confidence. Assumptions are append-only;
// the only permitted mutation anywhere in the ledger is supersession,
// which stamps the superseded record's ExpiresAt.
type Assumption struct {
	// ID is the unique assumption identifier (UUID).
	ID string `json:"id"`

	// Key names the fact the assumption fills in (e.g., "live_load").
	Key string `json:"key"`

	// Value is the assumed value. Values are JSON-representable scalars
	// (string or float64) by convention.
	Value any `json:"value"`

	// Basis classifies where the assumption came from.
	Basis AssumptionBasis `json:"basis"`

	// Source optionally names the authority behind the value
	// (a code table, a region, an evidence id).
	Source string `json:"source,omitempty"`

	// Confidence is a score from 0.0 to 1.0.
	Confidence float64 `json:"confidence"`

	// Supersedes optionally names a prior assumption this one replaces.
	Supersedes string `json:"supersedes,omitempty"`

	// Timestamp is when the assumption was produced.
	Timestamp time.Time `json:"timestamp"`

	// ExpiresAt is set when the assumption is superseded.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewAssumption creates an assumption with a generated UUID and the current time.
func NewAssumption(key string, value any, basis AssumptionBasis, confidence float64) (*Assumption, error) {
	a := &Assumption{
		ID:         uuid.New().String(),
		Key:        key,
		Value:      value,
		Basis:      basis,
		Confidence: confidence,
		Timestamp:  time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the assumption against its schema.
func (a *Assumption) Validate() error {
	if a.ID == "" {
		return errors.New("assumption ID cannot be empty")
	}
	if _, err := uuid.Parse(a.ID); err != nil {
		return errors.New("invalid assumption ID format")
	}
	if a.Key == "" {
		return ErrEmptyKey
	}
	if a.Value == nil {
		return errors.New("assumption value cannot be nil")
	}
	if !ValidAssumptionBasis(a.Basis) {
		return fmt.Errorf("%w: assumption basis %q", ErrInvalidType, a.Basis)
	}
	if a.Confidence < 0.0 || a.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	return nil
}

// Active reports whether the assumption has not expired as of now.
func (a *Assumption) Active() bool {
	return a.ActiveAt(time.Now().UTC())
}

// ActiveAt reports whether the assumption was active at the given instant.
func (a *Assumption) ActiveAt(t time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

// Alternative is a candidate value an inference considered but did not select.
type Alternative struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Inference is a candidate answer to a topic, backed by evidence and
// assumptions that must already exist in the ledger when it is appended.
type Inference struct {
	// ID is the unique inference identifier (UUID).
	ID string `json:"id"`

	// Topic names the open question this inference answers (e.g., "stud_spacing").
	Topic string `json:"topic"`

	// Value is the proposed answer.
	Value any `json:"value"`

	// Confidence is a score from 0.0 to 1.0 combining evidence confidence
	// with source-reliability priors.
	Confidence float64 `json:"confidence"`

	// Method names the strategy that produced the inference, or
	// "fromEvidencePatterns" for pattern-derived supplements.
	Method string `json:"method"`

	// UsedEvidence lists ids of evidence backing this inference.
	UsedEvidence []string `json:"used_evidence,omitempty"`

	// UsedAssumptions lists ids of assumptions backing this inference.
	UsedAssumptions []string `json:"used_assumptions,omitempty"`

	// Explanation is a human-readable account of how the value was derived.
	Explanation string `json:"explanation,omitempty"`

	// Alternatives lists values considered and rejected.
	Alternatives []Alternative `json:"alternatives,omitempty"`

	// Timestamp is when the inference was produced.
	Timestamp time.Time `json:"timestamp"`

	// Stage names the pipeline stage that produced the inference.
	Stage string `json:"stage,omitempty"`
}

// MethodFromEvidencePatterns marks supplementary inferences derived directly
// from evidence/assumption co-occurrence rather than a registered strategy.
const MethodFromEvidencePatterns = "fromEvidencePatterns"

// NewInference creates an inference with a generated UUID and the current time.
func NewInference(topic string, value any, confidence float64, method string) (*Inference, error) {
	inf := &Inference{
		ID:         uuid.New().String(),
		Topic:      topic,
		Value:      value,
		Confidence: confidence,
		Method:     method,
		Timestamp:  time.Now().UTC(),
	}
	if err := inf.Validate(); err != nil {
		return nil, err
	}
	return inf, nil
}

// Validate checks the inference against its schema. Referential checks
// against the ledger happen at append time, not here.
func (i *Inference) Validate() error {
	if i.ID == "" {
		return errors.New("inference ID cannot be empty")
	}
	if _, err := uuid.Parse(i.ID); err != nil {
		return errors.New("invalid inference ID format")
	}
	if i.Topic == "" {
		return ErrEmptyTopic
	}
	if i.Value == nil {
		return errors.New("inference value cannot be nil")
	}
	if i.Confidence < 0.0 || i.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	if i.Method == "" {
		return errors.New("inference method cannot be empty")
	}
	for _, alt := range i.Alternatives {
		if alt.Confidence < 0.0 || alt.Confidence > 1.0 {
			return fmt.Errorf("alternative for topic %q: %w", i.Topic, ErrInvalidConfidence)
		}
	}
	return nil
}

// PolicyUsed is the verbatim record of the policy parameters that governed
// a decision, kept on the decision itself so it can be audited without
// resolving the policy again.
type PolicyUsed struct {
	// PolicyID identifies the policy the thresholds were copied from.
	PolicyID string `json:"policy_id,omitempty"`

	// Thresholds holds the resolution thresholds by name
	// (accept_inference, conflict_gap, max_ambiguity).
	Thresholds map[string]float64 `json:"thresholds"`

	// Tiebreakers is the ordered source-type list in effect.
	Tiebreakers []string `json:"tiebreakers,omitempty"`

	// AppliedRules names the rules that fired while deciding
	// (e.g., "accept_threshold", "tiebreaker:schedule").
	AppliedRules []string `json:"applied_rules,omitempty"`
}

// Decision is the policy-selected final answer to a topic, chosen among
// competing inferences.
type Decision struct {
	// ID is the unique decision identifier (UUID).
	ID string `json:"id"`

	// Topic names the resolved open question.
	Topic string `json:"topic"`

	// SelectedValue is the winning value.
	SelectedValue any `json:"selected_value"`

	// SelectedInferenceID is the winning inference. It must exist in the
	// ledger when the decision is appended.
	SelectedInferenceID string `json:"selected_inference_id"`

	// CompetingInferences lists the rival inference ids that were ranked
	// against the winner. All of them must exist at append time.
	CompetingInferences []string `json:"competing_inferences,omitempty"`

	// Justification is a human-readable account of why the value won.
	Justification string `json:"justification"`

	// PolicyUsed records the governing thresholds and tiebreakers verbatim.
	PolicyUsed PolicyUsed `json:"policy_used"`

	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`

	// Stage names the pipeline stage that made the decision.
	Stage string `json:"stage,omitempty"`
}

// NewDecision creates a decision with a generated UUID and the current time.
func NewDecision(topic string, selectedValue any, selectedInferenceID string, policyUsed PolicyUsed) (*Decision, error) {
	d := &Decision{
		ID:                  uuid.New().String(),
		Topic:               topic,
		SelectedValue:       selectedValue,
		SelectedInferenceID: selectedInferenceID,
		PolicyUsed:          policyUsed,
		Timestamp:           time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the decision against its schema.
func (d *Decision) Validate() error {
	if d.ID == "" {
		return errors.New("decision ID cannot be empty")
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		return errors.New("invalid decision ID format")
	}
	if d.Topic == "" {
		return ErrEmptyTopic
	}
	if d.SelectedValue == nil {
		return errors.New("decision selected value cannot be nil")
	}
	if d.SelectedInferenceID == "" {
		return errors.New("decision must name a selected inference")
	}
	return nil
}

// FlagType classifies a recorded issue.
type FlagType string

const (
	// FlagConflict marks competing inferences too close to auto-resolve.
	FlagConflict FlagType = "CONFLICT"

	// FlagMissingInfo marks a question with no usable evidence or assumptions.
	FlagMissingInfo FlagType = "MISSING_INFO"

	// FlagLowConfidence marks a top candidate below the acceptance threshold.
	FlagLowConfidence FlagType = "LOW_CONFIDENCE"

	// FlagPolicyViolation marks stage failures and policy breaches recorded
	// by the executor.
	FlagPolicyViolation FlagType = "POLICY_VIOLATION"
)

// ValidFlagType reports whether t is one of the known flag types.
func ValidFlagType(t FlagType) bool {
	switch t {
	case FlagConflict, FlagMissingInfo, FlagLowConfidence, FlagPolicyViolation:
		return true
	}
	return false
}

// Severity grades how urgently a flag needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Flag is a recorded issue needing attention: a conflict, missing
// information, low confidence, or a policy violation. Every id a flag
// references must exist in the ledger when the flag is appended.
type Flag struct {
	// ID is the unique flag identifier (UUID).
	ID string `json:"id"`

	// Type classifies the issue.
	Type FlagType `json:"type"`

	// Severity grades the issue.
	Severity Severity `json:"severity"`

	// Message describes the issue for a human reviewer.
	Message string `json:"message"`

	// Topic optionally names the open question the flag concerns.
	Topic string `json:"topic,omitempty"`

	// EvidenceIDs lists related evidence.
	EvidenceIDs []string `json:"evidence_ids,omitempty"`

	// AssumptionIDs lists related assumptions.
	AssumptionIDs []string `json:"assumption_ids,omitempty"`

	// InferenceIDs lists related inferences.
	InferenceIDs []string `json:"inference_ids,omitempty"`

	// DecisionID optionally names a related decision.
	DecisionID string `json:"decision_id,omitempty"`

	// Timestamp is when the flag was raised.
	Timestamp time.Time `json:"timestamp"`

	// Resolved reports whether a reviewer has addressed the flag.
	// Flags are raised unresolved; resolution is recorded by consumers.
	Resolved bool `json:"resolved"`

	// Stage names the pipeline stage that raised the flag.
	Stage string `json:"stage,omitempty"`
}

// NewFlag creates a flag with a generated UUID and the current time.
func NewFlag(t FlagType, severity Severity, message string) (*Flag, error) {
	f := &Flag{
		ID:        uuid.New().String(),
		Type:      t,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the flag against its schema.
func (f *Flag) Validate() error {
	if f.ID == "" {
		return errors.New("flag ID cannot be empty")
	}
	if _, err := uuid.Parse(f.ID); err != nil {
		return errors.New("invalid flag ID format")
	}
	if !ValidFlagType(f.Type) {
		return fmt.Errorf("%w: flag type %q", ErrInvalidType, f.Type)
	}
	if !ValidSeverity(f.Severity) {
		return fmt.Errorf("%w: severity %q", ErrInvalidType, f.Severity)
	}
	if f.Message == "" {
		return ErrEmptyMessage
	}
	return nil
}
