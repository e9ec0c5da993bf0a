package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource(confidence float64) Source {
	return Source{
		DocumentID:    "doc-1",
		PageNumber:    1,
		ExtractorName: "text-ocr",
		Confidence:    confidence,
	}
}

func mustEvidence(t *testing.T, confidence float64) *Evidence {
	t.Helper()
	ev, err := NewEvidence(EvidenceText, testSource(confidence), TextContentOf(`2X6 STUDS AT 16" O.C.`))
	require.NoError(t, err)
	return ev
}

func mustAssumption(t *testing.T, key string, value any, confidence float64) *Assumption {
	t.Helper()
	a, err := NewAssumption(key, value, BasisCodeDefault, confidence)
	require.NoError(t, err)
	return a
}

func mustInference(t *testing.T, topic string, confidence float64) *Inference {
	t.Helper()
	inf, err := NewInference(topic, "SPF", confidence, "schedule-lookup")
	require.NoError(t, err)
	return inf
}

func TestLedger_AddEvidence(t *testing.T) {
	l := New("run-1", "default")

	ev := mustEvidence(t, 0.9)
	require.NoError(t, l.AddEvidence(ev))

	got, err := l.Evidence(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, EvidenceText, got.Type)
	assert.Len(t, l.AllEvidence(), 1)
}

func TestLedger_AddEvidenceRejectsInvalid(t *testing.T) {
	l := New("run-1", "default")

	// Confidence out of range.
	ev := mustEvidence(t, 0.9)
	ev.Source.Confidence = 1.5
	err := l.AddEvidence(ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfidence)
	assert.Empty(t, l.AllEvidence())

	// Content payload not matching the declared type.
	mismatched := mustEvidence(t, 0.9)
	mismatched.Type = EvidenceTable
	err = l.AddEvidence(mismatched)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentMismatch)
	assert.Empty(t, l.AllEvidence())
}

func TestLedger_AddEvidenceRejectsDuplicateID(t *testing.T) {
	l := New("run-1", "default")

	ev := mustEvidence(t, 0.9)
	require.NoError(t, l.AddEvidence(ev))

	dup := mustEvidence(t, 0.8)
	dup.ID = ev.ID
	err := l.AddEvidence(dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Len(t, l.AllEvidence(), 1)
}

func TestLedger_AddInferenceReferentialIntegrity(t *testing.T) {
	l := New("run-1", "default")

	ev := mustEvidence(t, 0.9)
	require.NoError(t, l.AddEvidence(ev))
	a := mustAssumption(t, "live_load", 40.0, 0.95)
	require.NoError(t, l.AddAssumption(a))

	// A dangling evidence id fails the append atomically.
	inf := mustInference(t, "joist_species", 0.8)
	inf.UsedEvidence = []string{ev.ID, "ghost-evidence"}
	inf.UsedAssumptions = []string{a.ID}

	before := len(l.AllInferences())
	err := l.AddInference(inf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingReference)
	assert.Contains(t, err.Error(), "missing evidence")
	assert.Contains(t, err.Error(), "ghost-evidence")
	assert.Equal(t, before, len(l.AllInferences()))

	// Missing ids of both kinds are all reported in one error.
	inf2 := mustInference(t, "joist_species", 0.8)
	inf2.UsedEvidence = []string{"ghost-evidence"}
	inf2.UsedAssumptions = []string{"ghost-assumption"}
	err = l.AddInference(inf2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost-evidence")
	assert.Contains(t, err.Error(), "ghost-assumption")

	// With valid references the append succeeds.
	inf.UsedEvidence = []string{ev.ID}
	require.NoError(t, l.AddInference(inf))
	assert.Len(t, l.AllInferences(), 1)
}

func TestLedger_Supersession(t *testing.T) {
	l := New("run-1", "default")

	a := mustAssumption(t, "stud_spacing_default", 16.0, 0.9)
	require.NoError(t, l.AddAssumption(a))

	b := mustAssumption(t, "stud_spacing_default", 24.0, 0.9)
	b.Basis = BasisUserOverride
	b.Supersedes = a.ID
	require.NoError(t, l.AddAssumption(b))

	require.NotNil(t, a.ExpiresAt)
	assert.False(t, a.ExpiresAt.After(time.Now().UTC()))

	active := l.ActiveAssumptions()
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestLedger_SupersessionMissingTargetIsNoOp(t *testing.T) {
	l := New("run-1", "default")

	b := mustAssumption(t, "stud_spacing_default", 24.0, 0.9)
	b.Supersedes = "never-appended"
	require.NoError(t, l.AddAssumption(b))
	assert.Len(t, l.AllAssumptions(), 1)
	assert.Nil(t, b.ExpiresAt)
}

func TestLedger_SupersessionDoesNotRestamp(t *testing.T) {
	l := New("run-1", "default")

	a := mustAssumption(t, "species", "SPF", 0.8)
	require.NoError(t, l.AddAssumption(a))

	b := mustAssumption(t, "species", "DF-L", 0.8)
	b.Supersedes = a.ID
	require.NoError(t, l.AddAssumption(b))
	require.NotNil(t, a.ExpiresAt)
	firstStamp := *a.ExpiresAt

	time.Sleep(5 * time.Millisecond)

	c := mustAssumption(t, "species", "Hem-Fir", 0.8)
	c.Supersedes = a.ID
	require.NoError(t, l.AddAssumption(c))
	assert.Equal(t, firstStamp, *a.ExpiresAt)
}

func TestLedger_CurrentAssumptionPicksHighestConfidence(t *testing.T) {
	l := New("run-1", "default")

	low := mustAssumption(t, "live_load", 30.0, 0.6)
	high := mustAssumption(t, "live_load", 40.0, 0.9)
	require.NoError(t, l.AddAssumption(low))
	require.NoError(t, l.AddAssumption(high))

	got, err := l.CurrentAssumption("live_load")
	require.NoError(t, err)
	assert.Equal(t, high.ID, got.ID)
}

func TestLedger_CurrentAssumptionTieBreaksByInsertionOrder(t *testing.T) {
	l := New("run-1", "default")

	first := mustAssumption(t, "live_load", 40.0, 0.8)
	second := mustAssumption(t, "live_load", 50.0, 0.8)
	require.NoError(t, l.AddAssumption(first))
	require.NoError(t, l.AddAssumption(second))

	got, err := l.CurrentAssumption("live_load")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestLedger_CurrentAssumptionIgnoresExpired(t *testing.T) {
	l := New("run-1", "default")

	a := mustAssumption(t, "live_load", 40.0, 0.95)
	require.NoError(t, l.AddAssumption(a))
	b := mustAssumption(t, "live_load", 60.0, 0.7)
	b.Supersedes = a.ID
	require.NoError(t, l.AddAssumption(b))

	got, err := l.CurrentAssumption("live_load")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = l.CurrentAssumption("unknown_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_AddDecisionReferencing(t *testing.T) {
	l := New("run-1", "default")

	inf := mustInference(t, "joist_species", 0.92)
	require.NoError(t, l.AddInference(inf))

	policyUsed := PolicyUsed{
		PolicyID:    "default",
		Thresholds:  map[string]float64{"accept_inference": 0.7, "conflict_gap": 0.15},
		Tiebreakers: []string{"schedule", "dimension"},
	}

	// Missing selected inference fails.
	d, err := NewDecision("joist_species", "SPF", "ghost-inference", policyUsed)
	require.NoError(t, err)
	err = l.AddDecision(d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingReference)
	assert.Empty(t, l.AllDecisions())

	// Missing competing inference fails too.
	d2, err := NewDecision("joist_species", "SPF", inf.ID, policyUsed)
	require.NoError(t, err)
	d2.CompetingInferences = []string{"ghost-inference"}
	err = l.AddDecision(d2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingReference)

	// Valid references append and are retrievable by id.
	d3, err := NewDecision("joist_species", "SPF", inf.ID, policyUsed)
	require.NoError(t, err)
	require.NoError(t, l.AddDecision(d3))

	got, err := l.Decision(d3.ID)
	require.NoError(t, err)
	assert.Equal(t, "SPF", got.SelectedValue)

	byTopic, err := l.DecisionByTopic("joist_species")
	require.NoError(t, err)
	assert.Equal(t, d3.ID, byTopic.ID)
}

func TestLedger_AddFlagReferencing(t *testing.T) {
	l := New("run-1", "default")

	inf := mustInference(t, "stud_spacing", 0.74)
	require.NoError(t, l.AddInference(inf))

	f, err := NewFlag(FlagConflict, SeverityHigh, "competing stud spacing values")
	require.NoError(t, err)
	f.Topic = "stud_spacing"
	f.InferenceIDs = []string{inf.ID, "ghost-inference"}

	err = l.AddFlag(f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingReference)
	assert.Empty(t, l.AllFlags())

	f.InferenceIDs = []string{inf.ID}
	require.NoError(t, l.AddFlag(f))
	assert.Len(t, l.OpenFlags(), 1)
}

type recordingObserver struct {
	events []AppendEvent
}

func (r *recordingObserver) LedgerAppended(event AppendEvent) {
	r.events = append(r.events, event)
}

func TestLedger_ObserverReceivesAppendEvents(t *testing.T) {
	l := New("run-1", "default")
	rec := &recordingObserver{}
	l.Subscribe(rec)

	ev := mustEvidence(t, 0.9)
	require.NoError(t, l.AddEvidence(ev))
	a := mustAssumption(t, "live_load", 40.0, 0.95)
	require.NoError(t, l.AddAssumption(a))

	// Failed appends emit nothing.
	bad := mustInference(t, "stud_spacing", 0.8)
	bad.UsedEvidence = []string{"ghost"}
	require.Error(t, l.AddInference(bad))

	require.Len(t, rec.events, 2)
	assert.Equal(t, KindEvidence, rec.events[0].Kind)
	assert.Equal(t, ev.ID, rec.events[0].EntityID)
	assert.Equal(t, KindAssumption, rec.events[1].Kind)
	assert.Equal(t, "run-1", rec.events[1].RunID)
}

func TestLedger_Summary(t *testing.T) {
	l := New("run-1", "default")

	ev := mustEvidence(t, 0.8)
	require.NoError(t, l.AddEvidence(ev))
	a := mustAssumption(t, "live_load", 40.0, 0.6)
	require.NoError(t, l.AddAssumption(a))
	inf := mustInference(t, "joist_species", 0.9)
	inf.UsedEvidence = []string{ev.ID}
	require.NoError(t, l.AddInference(inf))

	d, err := NewDecision("joist_species", "SPF", inf.ID, PolicyUsed{PolicyID: "default"})
	require.NoError(t, err)
	require.NoError(t, l.AddDecision(d))

	s := l.Summary()
	assert.Equal(t, 1, s.EvidenceCount)
	assert.Equal(t, 1, s.AssumptionCount)
	assert.Equal(t, 1, s.InferenceCount)
	assert.Equal(t, 1, s.DecisionCount)
	assert.Equal(t, []string{"joist_species"}, s.DecidedTopics)
	// (0.8 + 0.6 + 0.9 + 1.0) / 4
	assert.InDelta(t, 0.825, s.MeanConfidence, 0.0001)
}

func TestLedger_SummaryEmpty(t *testing.T) {
	l := New("run-1", "default")
	s := l.Summary()
	assert.Zero(t, s.MeanConfidence)
	assert.Zero(t, s.EvidenceCount)
}

func TestLedger_MarkCompletedIdempotent(t *testing.T) {
	l := New("run-1", "default")

	l.RecordStageOutcome(true)
	l.RecordStageOutcome(false)
	l.MarkCompleted()

	m := l.Metadata()
	require.NotNil(t, m.CompletedAt)
	first := *m.CompletedAt
	assert.Equal(t, 2, m.TotalStages)
	assert.Equal(t, 1, m.SuccessStages)

	time.Sleep(5 * time.Millisecond)
	l.MarkCompleted()
	assert.Equal(t, first, *l.Metadata().CompletedAt)
}

func TestLedger_Filters(t *testing.T) {
	l := New("run-1", "default")

	text := mustEvidence(t, 0.9)
	require.NoError(t, l.AddEvidence(text))

	sched, err := NewEvidence(EvidenceSchedule, Source{
		DocumentID:    "doc-1",
		PageNumber:    3,
		ExtractorName: "schedule-parser",
		Confidence:    0.97,
	}, ScheduleContentOf("FLOOR JOIST SCHEDULE", []string{"MARK", "SPECIES"}, []map[string]string{
		{"MARK": "FJ-1", "SPECIES": "SPF"},
	}))
	require.NoError(t, err)
	require.NoError(t, l.AddEvidence(sched))

	assert.Len(t, l.EvidenceByType(EvidenceText), 1)
	assert.Len(t, l.EvidenceByType(EvidenceSchedule), 1)
	assert.Empty(t, l.EvidenceByType(EvidenceImage))

	i1 := mustInference(t, "joist_species", 0.9)
	i2 := mustInference(t, "joist_species", 0.5)
	i3 := mustInference(t, "stud_spacing", 0.8)
	require.NoError(t, l.AddInference(i1))
	require.NoError(t, l.AddInference(i2))
	require.NoError(t, l.AddInference(i3))

	assert.Len(t, l.InferencesByTopic("joist_species"), 2)
	assert.Equal(t, []string{"joist_species", "stud_spacing"}, l.Topics())
}
