// Package strategy defines the pluggable inference units run by the
// multi-strategy inference stage. A strategy inspects the evidence and
// assumptions gathered for a run and proposes a value for its topic along
// with the provenance backing it; the stage materializes successful
// proposals as ledger inferences.
package strategy

import (
	"context"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// Context is the read-only view of a run handed to a strategy.
type Context struct {
	// Topic is the open question the strategy is being asked about.
	Topic string

	// Evidence is every evidence record collected so far.
	Evidence []*ledger.Evidence

	// Assumptions are the assumptions seeded for the run, superseded
	// records included. Strategies filter for active ones themselves.
	Assumptions []*ledger.Assumption
}

// Result is a strategy's proposal for its topic.
type Result struct {
	// Success reports whether the strategy produced a value. False with a
	// nil error means the strategy had nothing to propose, which is not a
	// fault.
	Success bool

	// Value is the proposed answer.
	Value any

	// Confidence is the strategy's own confidence in [0,1], before any
	// policy reliability weighting.
	Confidence float64

	// Alternatives are other candidate values the strategy considered
	// and rejected, strongest first.
	Alternatives []ledger.Alternative

	// Explanation describes how the value was derived.
	Explanation string

	// UsedEvidence lists the evidence ids backing the selected value.
	UsedEvidence []string

	// UsedAssumptions lists the assumption ids backing the selected value.
	UsedAssumptions []string
}

// Strategy proposes inferences for one topic.
type Strategy interface {
	// Name identifies the strategy in logs and flags.
	Name() string

	// Topic is the open question this strategy answers.
	Topic() string

	// CanHandle reports whether the strategy has enough material to run.
	CanHandle(sctx Context) bool

	// Execute derives a proposal. Implementations respect ctx and return
	// an error only for real faults; "nothing found" is Success=false.
	Execute(ctx context.Context, sctx Context) (Result, error)
}
