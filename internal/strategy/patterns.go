package strategy

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// Topics answered by the built-in strategies.
const (
	TopicStudSpacing  = "stud_spacing"
	TopicJoistSpecies = "joist_species"
	TopicLiveLoad     = "live_load"
)

// Assumption keys the built-in strategies consult as fallbacks.
const (
	keyStudSpacingDefault = "stud_spacing_default"
	keySpeciesDefault     = "lumber_species"
	keyLiveLoad           = "live_load"
)

var (
	// onCenterPattern matches spacing callouts like `16" O.C.` or `24 OC`.
	onCenterPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:"|in\.?)?\s*o\.?\s*c\b\.?`)

	// studPattern gates spacing matches to stud-related notes.
	studPattern = regexp.MustCompile(`(?i)\bSTUDS?\b`)

	// liveLoadPattern matches design load notes like `LIVE LOAD: 40 PSF`.
	liveLoadPattern = regexp.MustCompile(`(?i)\bLIVE\s+LOAD\s*[:=]?\s*(\d+(?:\.\d+)?)\s*PSF\b`)

	// SpeciesPattern matches common framing lumber species callouts.
	// Longer alternatives come first so `S-P-F` wins over `SPF`.
	SpeciesPattern = regexp.MustCompile(`(?i)\b(S-P-F|SPF|SYP|DF-L|DFL|DOUGLAS[- ]FIR|DOUG[- ]FIR|HEM[- ]FIR|HF|DF)\b`)

	// FramingPattern gates species matches to framing-related notes.
	FramingPattern = regexp.MustCompile(`(?i)\b(LUMBER|FRAMING|JOIST|STUD|RAFTER|PLATE)S?\b`)
)

// NormalizeSpecies maps a raw species token to its canonical grading-rule
// form.
func NormalizeSpecies(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "-")
	switch s {
	case "S-P-F", "SPF":
		return "SPF"
	case "SYP":
		return "SYP"
	case "DF", "DFL", "DF-L", "DOUG-FIR", "DOUGLAS-FIR":
		return "DF-L"
	case "HF", "HEM-FIR":
		return "Hem-Fir"
	default:
		return s
	}
}

// parseSpacing parses a schedule or table spacing cell like `16"`,
// `16" O.C.` or `24` into inches.
func parseSpacing(cell string) (float64, bool) {
	s := strings.ToUpper(strings.TrimSpace(cell))
	s = strings.TrimSuffix(s, "O.C.")
	s = strings.TrimSuffix(s, "OC")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimSuffix(s, "IN")
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// floatKey renders a float64 into a canonical candidate key.
func floatKey(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// toFloat coerces the numeric forms an assumption value may carry.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// columnIndex returns the index of the named header, case-insensitive, or
// -1 when absent.
func columnIndex(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// appendUnique appends id unless it is already present.
func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// activeAssumption returns the highest-confidence active assumption for a
// key, or nil.
func activeAssumption(assumptions []*ledger.Assumption, key string) *ledger.Assumption {
	var best *ledger.Assumption
	for _, a := range assumptions {
		if a.Key != key || !a.Active() {
			continue
		}
		if best == nil || a.Confidence > best.Confidence {
			best = a
		}
	}
	return best
}

// candidate accumulates support for one proposed value.
type candidate struct {
	value         any
	confidence    float64
	support       int
	reasons       []string
	evidenceIDs   []string
	assumptionIDs []string
}

// candidateSet collects candidates keyed by a canonical value form. First
// insertion order is preserved so ranking ties resolve deterministically.
type candidateSet struct {
	byKey map[string]*candidate
	order []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byKey: make(map[string]*candidate)}
}

func (cs *candidateSet) get(key string, value any) *candidate {
	if c, ok := cs.byKey[key]; ok {
		return c
	}
	c := &candidate{value: value}
	cs.byKey[key] = c
	cs.order = append(cs.order, key)
	return c
}

// addEvidence records evidence support for a value. The candidate keeps
// the strongest confidence seen across its supporting records; a record
// contributing several rows is listed once.
func (cs *candidateSet) addEvidence(key string, value any, confidence float64, evidenceID, reason string) {
	c := cs.get(key, value)
	c.support++
	if confidence > c.confidence {
		c.confidence = confidence
	}
	c.evidenceIDs = appendUnique(c.evidenceIDs, evidenceID)
	c.reasons = append(c.reasons, reason)
}

// addAssumption records assumption support for a value.
func (cs *candidateSet) addAssumption(key string, value any, confidence float64, assumptionID, reason string) {
	c := cs.get(key, value)
	c.support++
	if confidence > c.confidence {
		c.confidence = confidence
	}
	c.assumptionIDs = appendUnique(c.assumptionIDs, assumptionID)
	c.reasons = append(c.reasons, reason)
}

func (cs *candidateSet) empty() bool {
	return len(cs.order) == 0
}

// ranked returns the candidates strongest first. Higher confidence wins,
// then more supporting records, then first insertion.
func (cs *candidateSet) ranked() []*candidate {
	ranked := make([]*candidate, 0, len(cs.order))
	for _, key := range cs.order {
		ranked = append(ranked, cs.byKey[key])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].confidence != ranked[j].confidence {
			return ranked[i].confidence > ranked[j].confidence
		}
		return ranked[i].support > ranked[j].support
	})
	return ranked
}

// resultFrom turns a candidate set into a strategy result, selecting the
// strongest candidate and demoting the rest to alternatives.
func resultFrom(cs *candidateSet, explain func(best *candidate) string) Result {
	if cs.empty() {
		return Result{}
	}
	ranked := cs.ranked()
	best, rest := ranked[0], ranked[1:]

	alternatives := make([]ledger.Alternative, 0, len(rest))
	for _, c := range rest {
		alternatives = append(alternatives, ledger.Alternative{
			Value:      c.value,
			Confidence: c.confidence,
			Reason:     strings.Join(c.reasons, "; "),
		})
	}

	return Result{
		Success:         true,
		Value:           best.value,
		Confidence:      best.confidence,
		Alternatives:    alternatives,
		Explanation:     explain(best),
		UsedEvidence:    best.evidenceIDs,
		UsedAssumptions: best.assumptionIDs,
	}
}
