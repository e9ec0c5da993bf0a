package takeoff

import (
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/snapshot"
)

// The ledger's record types are aliased here so collaborating code outside
// this module can build and inspect them without reaching into internal
// packages.
type (
	// Evidence is a typed, sourced, confidence-scored fact extracted from
	// a document.
	Evidence = ledger.Evidence

	// Inference is a candidate answer to a topic, backed by evidence and
	// assumptions already in the ledger.
	Inference = ledger.Inference

	// Decision is the policy-selected final answer to a topic.
	Decision = ledger.Decision

	// Flag is a recorded issue needing human attention.
	Flag = ledger.Flag

	// Source records where evidence came from and how much the extractor
	// trusted it.
	Source = ledger.Source

	// Content is the typed evidence payload; exactly one field is set.
	Content = ledger.Content

	// BoundingBox locates a region on a document page.
	BoundingBox = ledger.BoundingBox

	// TextContent, ImageContent, TableContent, SymbolContent,
	// DimensionContent and ScheduleContent are the evidence payload kinds.
	TextContent      = ledger.TextContent
	ImageContent     = ledger.ImageContent
	TableContent     = ledger.TableContent
	SymbolContent    = ledger.SymbolContent
	DimensionContent = ledger.DimensionContent
	ScheduleContent  = ledger.ScheduleContent

	// Alternative is a candidate value an inference considered but did
	// not select.
	Alternative = ledger.Alternative

	// PolicyUsed is the verbatim record of the thresholds and tiebreakers
	// that governed a decision.
	PolicyUsed = ledger.PolicyUsed

	// EvidenceType classifies how evidence was expressed in the source.
	EvidenceType = ledger.EvidenceType

	// FlagType classifies a recorded issue.
	FlagType = ledger.FlagType

	// Severity grades how urgently a flag needs attention.
	Severity = ledger.Severity

	// Snapshot is the serialized image of one run's ledger.
	Snapshot = snapshot.Snapshot
)

// Evidence types.
const (
	EvidenceText      = ledger.EvidenceText
	EvidenceImage     = ledger.EvidenceImage
	EvidenceTable     = ledger.EvidenceTable
	EvidenceSymbol    = ledger.EvidenceSymbol
	EvidenceDimension = ledger.EvidenceDimension
	EvidenceSchedule  = ledger.EvidenceSchedule
)

// Flag types.
const (
	FlagConflict        = ledger.FlagConflict
	FlagMissingInfo     = ledger.FlagMissingInfo
	FlagLowConfidence   = ledger.FlagLowConfidence
	FlagPolicyViolation = ledger.FlagPolicyViolation
)

// Flag severities.
const (
	SeverityLow      = ledger.SeverityLow
	SeverityMedium   = ledger.SeverityMedium
	SeverityHigh     = ledger.SeverityHigh
	SeverityCritical = ledger.SeverityCritical
)

// Sentinel errors append failures wrap; test with errors.Is.
var (
	ErrDuplicateID       = ledger.ErrDuplicateID
	ErrMissingReference  = ledger.ErrMissingReference
	ErrInvalidConfidence = ledger.ErrInvalidConfidence
)

// NewEvidence creates evidence with a generated id and the current time.
// The content payload must match the given type.
func NewEvidence(t EvidenceType, source Source, content Content) (*Evidence, error) {
	return ledger.NewEvidence(t, source, content)
}

// NewInference creates an inference with a generated id and the current
// time. Attach used evidence and assumption ids before appending.
func NewInference(topic string, value any, confidence float64, method string) (*Inference, error) {
	return ledger.NewInference(topic, value, confidence, method)
}

// NewDecision creates a decision with a generated id and the current time.
func NewDecision(topic string, selectedValue any, selectedInferenceID string, policyUsed PolicyUsed) (*Decision, error) {
	return ledger.NewDecision(topic, selectedValue, selectedInferenceID, policyUsed)
}

// NewFlag creates an unresolved flag with a generated id and the current
// time.
func NewFlag(t FlagType, severity Severity, message string) (*Flag, error) {
	return ledger.NewFlag(t, severity, message)
}
