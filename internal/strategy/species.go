package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// JoistSpeciesStrategy answers the joist_species topic. It reads species
// from schedule SPECIES columns and framing notes, falling back to the
// seeded regional species default. Schedule rows vote, so a schedule
// listing SPF on every joist mark outweighs a single stray note.
type JoistSpeciesStrategy struct{}

// NewJoistSpeciesStrategy creates the built-in joist species strategy.
func NewJoistSpeciesStrategy() *JoistSpeciesStrategy {
	return &JoistSpeciesStrategy{}
}

func (s *JoistSpeciesStrategy) Name() string  { return "joist_species_from_schedule" }
func (s *JoistSpeciesStrategy) Topic() string { return TopicJoistSpecies }

// CanHandle reports whether any species-bearing material is available.
func (s *JoistSpeciesStrategy) CanHandle(sctx Context) bool {
	for _, ev := range sctx.Evidence {
		if s.reads(ev) {
			return true
		}
	}
	return activeAssumption(sctx.Assumptions, keySpeciesDefault) != nil
}

func (s *JoistSpeciesStrategy) reads(ev *ledger.Evidence) bool {
	switch ev.Type {
	case ledger.EvidenceSchedule:
		sch := ev.Content.Schedule
		return sch != nil && columnIndex(sch.Columns, "SPECIES") >= 0
	case ledger.EvidenceText:
		t := ev.Content.Text
		return t != nil && FramingPattern.MatchString(t.Raw) && SpeciesPattern.MatchString(t.Raw)
	}
	return false
}

// Execute scans schedules and notes for lumber species callouts.
func (s *JoistSpeciesStrategy) Execute(ctx context.Context, sctx Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cands := newCandidateSet()
	for _, ev := range sctx.Evidence {
		switch ev.Type {
		case ledger.EvidenceSchedule:
			s.fromSchedule(cands, ev)
		case ledger.EvidenceText:
			s.fromText(cands, ev)
		}
	}

	if def := activeAssumption(sctx.Assumptions, keySpeciesDefault); def != nil {
		if raw, ok := def.Value.(string); ok && raw != "" {
			sp := NormalizeSpecies(raw)
			cands.addAssumption(sp, sp, def.Confidence, def.ID,
				fmt.Sprintf("seeded regional default %s=%s", keySpeciesDefault, sp))
		}
	}

	return resultFrom(cands, func(best *candidate) string {
		return fmt.Sprintf("species %v backed by %d record(s): %s",
			best.value, best.support, strings.Join(best.reasons, "; "))
	}), nil
}

func (s *JoistSpeciesStrategy) fromSchedule(cands *candidateSet, ev *ledger.Evidence) {
	sch := ev.Content.Schedule
	if sch == nil {
		return
	}
	var speciesCol string
	for _, c := range sch.Columns {
		if strings.EqualFold(strings.TrimSpace(c), "SPECIES") {
			speciesCol = c
			break
		}
	}
	if speciesCol == "" {
		return
	}
	for _, row := range sch.Rows {
		raw := strings.TrimSpace(row[speciesCol])
		if raw == "" {
			continue
		}
		sp := NormalizeSpecies(raw)
		cands.addEvidence(sp, sp, ev.Source.Confidence, ev.ID,
			fmt.Sprintf("schedule %q row %s", sch.Name, rowLabel(sch.Columns, row)))
	}
}

func (s *JoistSpeciesStrategy) fromText(cands *candidateSet, ev *ledger.Evidence) {
	t := ev.Content.Text
	if t == nil || !FramingPattern.MatchString(t.Raw) {
		return
	}
	for _, m := range SpeciesPattern.FindAllStringSubmatch(t.Raw, -1) {
		sp := NormalizeSpecies(m[1])
		cands.addEvidence(sp, sp, ev.Source.Confidence, ev.ID,
			fmt.Sprintf("note %q on page %d", t.Raw, ev.Source.PageNumber))
	}
}

// rowLabel renders a schedule row's leading cell for explanations, falling
// back to the whole row.
func rowLabel(columns []string, row map[string]string) string {
	if len(columns) > 0 {
		if mark := strings.TrimSpace(row[columns[0]]); mark != "" {
			return mark
		}
	}
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, row[c])
	}
	return strings.Join(parts, " / ")
}

var _ Strategy = (*JoistSpeciesStrategy)(nil)
