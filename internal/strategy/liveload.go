package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// LiveLoadStrategy answers the live_load topic from design load notes and
// load dimensions, falling back to the seeded code default.
type LiveLoadStrategy struct{}

// NewLiveLoadStrategy creates the built-in live load strategy.
func NewLiveLoadStrategy() *LiveLoadStrategy {
	return &LiveLoadStrategy{}
}

func (s *LiveLoadStrategy) Name() string  { return "live_load_from_notes" }
func (s *LiveLoadStrategy) Topic() string { return TopicLiveLoad }

// CanHandle reports whether any load-bearing note or dimension exists.
func (s *LiveLoadStrategy) CanHandle(sctx Context) bool {
	for _, ev := range sctx.Evidence {
		if s.reads(ev) {
			return true
		}
	}
	return activeAssumption(sctx.Assumptions, keyLiveLoad) != nil
}

func (s *LiveLoadStrategy) reads(ev *ledger.Evidence) bool {
	switch ev.Type {
	case ledger.EvidenceText:
		t := ev.Content.Text
		return t != nil && liveLoadPattern.MatchString(t.Raw)
	case ledger.EvidenceDimension:
		d := ev.Content.Dimension
		if d == nil {
			return false
		}
		label := strings.ToUpper(d.Label)
		return strings.Contains(label, "LIVE") && strings.Contains(label, "LOAD")
	}
	return false
}

// Execute scans the run's material for design live load callouts.
func (s *LiveLoadStrategy) Execute(ctx context.Context, sctx Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cands := newCandidateSet()
	for _, ev := range sctx.Evidence {
		switch ev.Type {
		case ledger.EvidenceText:
			s.fromText(cands, ev)
		case ledger.EvidenceDimension:
			s.fromDimension(cands, ev)
		}
	}

	if def := activeAssumption(sctx.Assumptions, keyLiveLoad); def != nil {
		if v, ok := toFloat(def.Value); ok {
			cands.addAssumption(floatKey(v), v, def.Confidence, def.ID,
				fmt.Sprintf("seeded code default %s=%g psf", keyLiveLoad, v))
		}
	}

	return resultFrom(cands, func(best *candidate) string {
		return fmt.Sprintf("design live load %v psf backed by %d record(s): %s",
			best.value, best.support, strings.Join(best.reasons, "; "))
	}), nil
}

func (s *LiveLoadStrategy) fromText(cands *candidateSet, ev *ledger.Evidence) {
	t := ev.Content.Text
	if t == nil {
		return
	}
	m := liveLoadPattern.FindStringSubmatch(t.Raw)
	if m == nil {
		return
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return
	}
	cands.addEvidence(floatKey(v), v, ev.Source.Confidence, ev.ID,
		fmt.Sprintf("note %q on page %d", t.Raw, ev.Source.PageNumber))
}

func (s *LiveLoadStrategy) fromDimension(cands *candidateSet, ev *ledger.Evidence) {
	d := ev.Content.Dimension
	if d == nil {
		return
	}
	label := strings.ToUpper(d.Label)
	if !strings.Contains(label, "LIVE") || !strings.Contains(label, "LOAD") {
		return
	}
	if d.Unit != "" && !strings.EqualFold(d.Unit, "psf") {
		return
	}
	cands.addEvidence(floatKey(d.Value), d.Value, ev.Source.Confidence, ev.ID,
		fmt.Sprintf("dimension %q on page %d", d.Label, ev.Source.PageNumber))
}

var _ Strategy = (*LiveLoadStrategy)(nil)
