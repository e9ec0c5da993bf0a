package stages

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
	"github.com/plumblinelabs/takeoffd/internal/strategy"
)

// seedDefault is one fallback value seeded when the ledger has no active
// assumption for its key.
type seedDefault struct {
	key        string
	value      any
	confidence float64
	source     string
}

// codeDefaults are the building-code fallbacks every run starts from.
var codeDefaults = []seedDefault{
	{"live_load", 40.0, 0.95, "IRC residential floor live load"},
	{"dead_load", 10.0, 0.90, "IRC residential dead load"},
	{"stud_spacing_default", 16.0, 0.90, "conventional light-frame construction"},
	{"joist_spacing_default", 16.0, 0.85, "conventional light-frame construction"},
	{"wall_height", 8.0, 0.85, "standard plate height"},
}

// regionalSpecies maps a supply region to its prevailing framing species.
var regionalSpecies = map[string]string{
	"northeast": "SPF",
	"midwest":   "SPF",
	"southeast": "SYP",
	"west":      "DF-L",
}

// gradePattern matches lumber grade callouts like `NO.2`, `NO. 2` or `#2`.
var gradePattern = regexp.MustCompile(`(?i)\b(?:NO\.?\s*([123])|#([123]))\b`)

// AssumptionSeeding fills the ledger's assumption layer in three passes:
// code defaults, regional defaults, then document-derived values mined
// from collected evidence. Derived values supersede defaults they
// outrank; user overrides always stand. Keys already carrying an active
// assumption are left alone, so reruns and retries add nothing.
type AssumptionSeeding struct {
	region string
	logger *zap.Logger
}

// NewAssumptionSeeding creates the seeding stage for a supply region
// ("northeast", "southeast", "midwest", "west"). Unknown or empty
// regions get national defaults.
func NewAssumptionSeeding(region string, logger *zap.Logger) *AssumptionSeeding {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssumptionSeeding{region: region, logger: logger}
}

func (s *AssumptionSeeding) Name() string { return "assumption_seeding" }

func (s *AssumptionSeeding) Execute(ctx context.Context, input any, pctx *pipeline.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := pctx.Ledger()
	log := s.logger.With(
		zap.String("stage", s.Name()),
		zap.String("trace_id", pctx.TraceID()),
	)

	seeded := 0
	for _, d := range codeDefaults {
		if s.seed(l, log, d, ledger.BasisCodeDefault) {
			seeded++
		}
	}

	region := strings.ToLower(strings.TrimSpace(s.region))
	if region == "" {
		region = "national"
	}
	species, ok := regionalSpecies[region]
	if !ok {
		species = "SPF"
	}
	for _, d := range []seedDefault{
		{"lumber_species", species, 0.80, "region:" + region},
		{"lumber_grade", "No.2", 0.80, "region:" + region},
		{"lumber_treatment", "untreated", 0.80, "region:" + region},
	} {
		if s.seed(l, log, d, ledger.BasisRegionalDefault) {
			seeded++
		}
	}

	derived := s.deriveFromEvidence(l, log)

	log.Info("assumptions seeded",
		zap.String("region", region),
		zap.Int("defaults", seeded),
		zap.Int("derived", derived))
	return input, nil
}

// seed appends one default assumption unless the key already carries an
// active assumption.
func (s *AssumptionSeeding) seed(l *ledger.Ledger, log *zap.Logger, d seedDefault, basis ledger.AssumptionBasis) bool {
	if _, err := l.CurrentAssumption(d.key); err == nil {
		return false
	}
	a, err := ledger.NewAssumption(d.key, d.value, basis, d.confidence)
	if err != nil {
		log.Warn("skipping malformed default", zap.String("key", d.key), zap.Error(err))
		return false
	}
	a.Source = d.source
	if err := l.AddAssumption(a); err != nil {
		log.Warn("seeding failed", zap.String("key", d.key), zap.Error(err))
		return false
	}
	return true
}

// derivedVote tallies document support for one candidate value. The
// strongest contributing record is kept for provenance.
type derivedVote struct {
	value      string
	support    int
	confidence float64
	evidenceID string
}

type voteSet struct {
	byValue map[string]*derivedVote
	order   []string
}

func newVoteSet() *voteSet {
	return &voteSet{byValue: make(map[string]*derivedVote)}
}

func (vs *voteSet) add(value string, confidence float64, evidenceID string) {
	v, ok := vs.byValue[value]
	if !ok {
		v = &derivedVote{value: value}
		vs.byValue[value] = v
		vs.order = append(vs.order, value)
	}
	v.support++
	if confidence > v.confidence {
		v.confidence = confidence
		v.evidenceID = evidenceID
	}
}

// winner returns the most supported vote; confidence then first
// appearance break ties.
func (vs *voteSet) winner() *derivedVote {
	var best *derivedVote
	for _, value := range vs.order {
		v := vs.byValue[value]
		if best == nil ||
			v.support > best.support ||
			(v.support == best.support && v.confidence > best.confidence) {
			best = v
		}
	}
	return best
}

// deriveFromEvidence mines collected evidence for values that override
// the seeded defaults: species and grade from framing notes and schedule
// rows, stud size from annotated symbols.
func (s *AssumptionSeeding) deriveFromEvidence(l *ledger.Ledger, log *zap.Logger) int {
	speciesVotes := newVoteSet()
	gradeVotes := newVoteSet()
	sizeVotes := newVoteSet()

	for _, ev := range l.AllEvidence() {
		switch {
		case ev.Content.Schedule != nil:
			sc := ev.Content.Schedule
			col := scheduleColumn(sc.Columns, "SPECIES")
			if col == "" {
				continue
			}
			for _, row := range sc.Rows {
				raw := strings.TrimSpace(row[col])
				if raw == "" {
					continue
				}
				speciesVotes.add(strategy.NormalizeSpecies(raw), ev.Source.Confidence, ev.ID)
			}
		case ev.Content.Text != nil:
			raw := ev.Content.Text.Raw
			if !strategy.FramingPattern.MatchString(raw) {
				continue
			}
			if m := strategy.SpeciesPattern.FindStringSubmatch(raw); m != nil {
				speciesVotes.add(strategy.NormalizeSpecies(m[1]), ev.Source.Confidence, ev.ID)
			}
			if m := gradePattern.FindStringSubmatch(raw); m != nil {
				digit := m[1]
				if digit == "" {
					digit = m[2]
				}
				gradeVotes.add("No."+digit, ev.Source.Confidence, ev.ID)
			}
		case ev.Content.Symbol != nil:
			if size := strings.TrimSpace(ev.Content.Symbol.Properties["size"]); size != "" {
				sizeVotes.add(strings.ToLower(size), ev.Source.Confidence, ev.ID)
			}
		}
	}

	derived := 0
	if w := speciesVotes.winner(); w != nil {
		if s.applyDerived(l, log, "lumber_species", w) {
			derived++
		}
	}
	if w := gradeVotes.winner(); w != nil {
		if s.applyDerived(l, log, "lumber_grade", w) {
			derived++
		}
	}
	if w := sizeVotes.winner(); w != nil {
		if s.applyDerived(l, log, "stud_size", w) {
			derived++
		}
	}
	return derived
}

// applyDerived appends a document-derived assumption, superseding the
// default it outranks. User overrides always stand, and a derived value
// that is already current is not re-appended.
func (s *AssumptionSeeding) applyDerived(l *ledger.Ledger, log *zap.Logger, key string, w *derivedVote) bool {
	current, err := l.CurrentAssumption(key)
	if err != nil {
		current = nil
	}
	if current != nil {
		if current.Basis == ledger.BasisUserOverride {
			return false
		}
		if current.Basis == ledger.BasisDocumentDerived && current.Value == any(w.value) {
			return false
		}
		if w.confidence < current.Confidence {
			return false
		}
	}

	a, err := ledger.NewAssumption(key, w.value, ledger.BasisDocumentDerived, w.confidence)
	if err != nil {
		log.Warn("skipping malformed derived assumption", zap.String("key", key), zap.Error(err))
		return false
	}
	a.Source = "evidence:" + w.evidenceID
	if current != nil {
		a.Supersedes = current.ID
	}
	if err := l.AddAssumption(a); err != nil {
		log.Warn("derived assumption append failed", zap.String("key", key), zap.Error(err))
		return false
	}
	log.Debug("derived assumption",
		zap.String("key", key),
		zap.String("value", w.value),
		zap.Float64("confidence", w.confidence),
		zap.Int("support", w.support))
	return true
}

var _ pipeline.Stage = (*AssumptionSeeding)(nil)
