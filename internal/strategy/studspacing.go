package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// StudSpacingStrategy answers the stud_spacing topic. It reads spacing
// from dimension callouts, on-center text notes, framing symbols and
// framing tables, falling back to the seeded spacing default.
type StudSpacingStrategy struct{}

// NewStudSpacingStrategy creates the built-in stud spacing strategy.
func NewStudSpacingStrategy() *StudSpacingStrategy {
	return &StudSpacingStrategy{}
}

func (s *StudSpacingStrategy) Name() string  { return "stud_spacing_from_plan" }
func (s *StudSpacingStrategy) Topic() string { return TopicStudSpacing }

// CanHandle reports whether any spacing-bearing material is available.
func (s *StudSpacingStrategy) CanHandle(sctx Context) bool {
	for _, ev := range sctx.Evidence {
		if s.reads(ev) {
			return true
		}
	}
	return activeAssumption(sctx.Assumptions, keyStudSpacingDefault) != nil
}

// reads reports whether one evidence record can carry a spacing signal.
func (s *StudSpacingStrategy) reads(ev *ledger.Evidence) bool {
	switch ev.Type {
	case ledger.EvidenceDimension:
		d := ev.Content.Dimension
		return d != nil && strings.Contains(strings.ToUpper(d.Label), "SPACING")
	case ledger.EvidenceText:
		t := ev.Content.Text
		return t != nil && studPattern.MatchString(t.Raw) && onCenterPattern.MatchString(t.Raw)
	case ledger.EvidenceSymbol:
		sym := ev.Content.Symbol
		return sym != nil && strings.Contains(strings.ToLower(sym.Symbol), "stud")
	case ledger.EvidenceTable:
		tbl := ev.Content.Table
		return tbl != nil && columnIndex(tbl.Headers, "SPACING") >= 0
	}
	return false
}

// Execute scans the run's material for stud spacing callouts.
func (s *StudSpacingStrategy) Execute(ctx context.Context, sctx Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cands := newCandidateSet()
	for _, ev := range sctx.Evidence {
		switch ev.Type {
		case ledger.EvidenceDimension:
			s.fromDimension(cands, ev)
		case ledger.EvidenceText:
			s.fromText(cands, ev)
		case ledger.EvidenceSymbol:
			s.fromSymbol(cands, ev)
		case ledger.EvidenceTable:
			s.fromTable(cands, ev)
		}
	}

	if def := activeAssumption(sctx.Assumptions, keyStudSpacingDefault); def != nil {
		if v, ok := toFloat(def.Value); ok {
			cands.addAssumption(floatKey(v), v, def.Confidence, def.ID,
				fmt.Sprintf("seeded default %s=%g", keyStudSpacingDefault, v))
		}
	}

	return resultFrom(cands, func(best *candidate) string {
		return fmt.Sprintf("stud spacing %v in on center backed by %d record(s): %s",
			best.value, best.support, strings.Join(best.reasons, "; "))
	}), nil
}

func (s *StudSpacingStrategy) fromDimension(cands *candidateSet, ev *ledger.Evidence) {
	d := ev.Content.Dimension
	if d == nil {
		return
	}
	label := strings.ToUpper(d.Label)
	if !strings.Contains(label, "STUD") || !strings.Contains(label, "SPACING") {
		return
	}
	v := d.Value
	if strings.EqualFold(d.Unit, "ft") {
		v *= 12
	}
	cands.addEvidence(floatKey(v), v, ev.Source.Confidence, ev.ID,
		fmt.Sprintf("dimension %q on page %d", d.Label, ev.Source.PageNumber))
}

func (s *StudSpacingStrategy) fromText(cands *candidateSet, ev *ledger.Evidence) {
	t := ev.Content.Text
	if t == nil || !studPattern.MatchString(t.Raw) {
		return
	}
	m := onCenterPattern.FindStringSubmatch(t.Raw)
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

func (s *StudSpacingStrategy) fromSymbol(cands *candidateSet, ev *ledger.Evidence) {
	sym := ev.Content.Symbol
	if sym == nil || !strings.Contains(strings.ToLower(sym.Symbol), "stud") {
		return
	}
	raw, ok := sym.Properties["spacing"]
	if !ok {
		return
	}
	v, ok := parseSpacing(raw)
	if !ok {
		return
	}
	cands.addEvidence(floatKey(v), v, ev.Source.Confidence, ev.ID,
		fmt.Sprintf("%d %s symbol(s) on page %d", sym.Count, sym.Symbol, ev.Source.PageNumber))
}

func (s *StudSpacingStrategy) fromTable(cands *candidateSet, ev *ledger.Evidence) {
	tbl := ev.Content.Table
	if tbl == nil {
		return
	}
	spacing := columnIndex(tbl.Headers, "SPACING")
	if spacing < 0 {
		return
	}
	for _, row := range tbl.Rows {
		if spacing >= len(row) || !studPattern.MatchString(strings.Join(row, " ")) {
			continue
		}
		v, ok := parseSpacing(row[spacing])
		if !ok {
			continue
		}
		cands.addEvidence(floatKey(v), v, ev.Source.Confidence, ev.ID,
			fmt.Sprintf("table %q row %q", tbl.Caption, strings.Join(row, " / ")))
	}
}

var _ Strategy = (*StudSpacingStrategy)(nil)
