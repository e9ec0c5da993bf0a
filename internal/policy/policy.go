// Package policy defines the versioned resolution policy that governs
// conflict resolution: acceptance thresholds, source-reliability priors and
// tiebreaker ordering, plus extraction and pricing limits carried for
// downstream consumers. Policies are immutable per run; a run resolves its
// policy once at start and never observes later edits.
package policy

import (
	"errors"
	"fmt"
)

// DefaultPolicyID is the id of the always-present fallback policy.
const DefaultPolicyID = "default"

// Common errors for policy operations.
var (
	// ErrInvalidPolicy is returned when a policy fails schema or domain validation.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrReservedID is returned when a custom policy tries to use the default id.
	ErrReservedID = errors.New("policy id is reserved")
)

// Thresholds are the confidence cutoffs used by conflict resolution.
type Thresholds struct {
	// AcceptInference is the minimum confidence for a candidate to be
	// auto-selected. Domain rule: at least 0.5.
	AcceptInference float64 `json:"accept_inference" koanf:"accept_inference"`

	// ConflictGap is the minimum lead over the runner-up required for
	// auto-selection without tiebreakers. Domain rule: at least 0.1.
	ConflictGap float64 `json:"conflict_gap" koanf:"conflict_gap"`

	// MaxAmbiguity bounds the fraction of ConflictGap below which two
	// candidates are genuinely indistinguishable. Domain rule: at most 0.5.
	MaxAmbiguity float64 `json:"max_ambiguity" koanf:"max_ambiguity"`
}

// Priors hold the source-reliability weights applied to evidence-backed
// inferences during ranking.
type Priors struct {
	// SourceReliability maps an evidence source type (text, table, symbol,
	// dimension, schedule, image) to a weight in [0, 1]. Domain rule: the
	// weights must sum to a value in [2.0, 5.0] so that no policy can
	// flatten or inflate every source at once.
	SourceReliability map[string]float64 `json:"source_reliability" koanf:"source_reliability"`
}

// Extraction bounds the collection side. Not consumed by resolution.
type Extraction struct {
	MaxPages              int     `json:"max_pages" koanf:"max_pages"`
	MinEvidenceConfidence float64 `json:"min_evidence_confidence" koanf:"min_evidence_confidence"`
}

// Pricing carries pricing parameters for downstream consumers. Not consumed
// by resolution.
type Pricing struct {
	WastePercent       float64 `json:"waste_percent" koanf:"waste_percent"`
	RegionalMultiplier float64 `json:"regional_multiplier" koanf:"regional_multiplier"`
}

// Policy is a flat, versioned resolution policy.
type Policy struct {
	// ID addresses the policy. "default" is reserved for the fallback.
	ID string `json:"id" koanf:"id"`

	// Version is a human-assigned revision of the policy record.
	Version string `json:"version" koanf:"version"`

	// Description says what the policy is for.
	Description string `json:"description,omitempty" koanf:"description"`

	Thresholds Thresholds `json:"thresholds" koanf:"thresholds"`
	Priors     Priors     `json:"priors" koanf:"priors"`

	// Tiebreakers is the ordered list of source types consulted when two
	// candidates are within ConflictGap of each other. Domain rule: every
	// entry must name a key present in Priors.SourceReliability.
	Tiebreakers []string `json:"tiebreakers" koanf:"tiebreakers"`

	Extraction Extraction `json:"extraction" koanf:"extraction"`
	Pricing    Pricing    `json:"pricing" koanf:"pricing"`
}

// Default returns the built-in fallback policy. Every call returns a fresh
// copy so callers cannot mutate shared state.
func Default() *Policy {
	return &Policy{
		ID:          DefaultPolicyID,
		Version:     "1.0.0",
		Description: "Built-in resolution defaults for residential framing takeoffs.",
		Thresholds: Thresholds{
			AcceptInference: 0.7,
			ConflictGap:     0.15,
			MaxAmbiguity:    0.25,
		},
		Priors: Priors{
			SourceReliability: map[string]float64{
				"schedule":  0.95,
				"dimension": 0.90,
				"table":     0.85,
				"symbol":    0.80,
				"text":      0.70,
				"image":     0.60,
			},
		},
		Tiebreakers: []string{"schedule", "dimension", "table", "symbol", "text"},
		Extraction: Extraction{
			MaxPages:              50,
			MinEvidenceConfidence: 0.3,
		},
		Pricing: Pricing{
			WastePercent:       10.0,
			RegionalMultiplier: 1.0,
		},
	}
}

// Validate checks schema shape and the domain rules that keep a policy
// usable for resolution.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidPolicy)
	}
	if p.Version == "" {
		return fmt.Errorf("%w: version cannot be empty", ErrInvalidPolicy)
	}

	t := p.Thresholds
	if t.AcceptInference < 0.5 || t.AcceptInference > 1.0 {
		return fmt.Errorf("%w: thresholds.accept_inference must be in [0.5, 1.0], got %v", ErrInvalidPolicy, t.AcceptInference)
	}
	if t.ConflictGap < 0.1 || t.ConflictGap > 1.0 {
		return fmt.Errorf("%w: thresholds.conflict_gap must be in [0.1, 1.0], got %v", ErrInvalidPolicy, t.ConflictGap)
	}
	if t.MaxAmbiguity < 0.0 || t.MaxAmbiguity > 0.5 {
		return fmt.Errorf("%w: thresholds.max_ambiguity must be in [0.0, 0.5], got %v", ErrInvalidPolicy, t.MaxAmbiguity)
	}

	if len(p.Priors.SourceReliability) == 0 {
		return fmt.Errorf("%w: priors.source_reliability cannot be empty", ErrInvalidPolicy)
	}
	var sum float64
	for source, weight := range p.Priors.SourceReliability {
		if weight < 0.0 || weight > 1.0 {
			return fmt.Errorf("%w: priors.source_reliability[%s] must be in [0.0, 1.0], got %v", ErrInvalidPolicy, source, weight)
		}
		sum += weight
	}
	if sum < 2.0 || sum > 5.0 {
		return fmt.Errorf("%w: priors.source_reliability weights must sum to [2.0, 5.0], got %v", ErrInvalidPolicy, sum)
	}

	for _, tb := range p.Tiebreakers {
		if _, ok := p.Priors.SourceReliability[tb]; !ok {
			return fmt.Errorf("%w: tiebreaker %q has no source_reliability entry", ErrInvalidPolicy, tb)
		}
	}

	if p.Extraction.MaxPages < 1 {
		return fmt.Errorf("%w: extraction.max_pages must be at least 1", ErrInvalidPolicy)
	}
	if p.Extraction.MinEvidenceConfidence < 0.0 || p.Extraction.MinEvidenceConfidence > 1.0 {
		return fmt.Errorf("%w: extraction.min_evidence_confidence must be in [0.0, 1.0]", ErrInvalidPolicy)
	}
	return nil
}

// Clone returns a deep copy of the policy.
func (p *Policy) Clone() *Policy {
	out := *p
	out.Priors.SourceReliability = make(map[string]float64, len(p.Priors.SourceReliability))
	for k, v := range p.Priors.SourceReliability {
		out.Priors.SourceReliability[k] = v
	}
	out.Tiebreakers = append([]string(nil), p.Tiebreakers...)
	return &out
}

// Reliability returns the source-reliability weight for a source type,
// or 1.0 when the policy has no prior for it.
func (p *Policy) Reliability(sourceType string) float64 {
	if w, ok := p.Priors.SourceReliability[sourceType]; ok {
		return w
	}
	return 1.0
}
