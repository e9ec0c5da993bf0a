package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// populatedLedger builds a small but fully linked ledger: an evidence pair,
// a superseded assumption chain, an inference, a decision and an open flag.
func populatedLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New("run-1", "default")

	sched, err := ledger.NewEvidence(ledger.EvidenceSchedule,
		ledger.Source{DocumentID: "doc-1", PageNumber: 3, ExtractorName: "plan-schedule", Confidence: 0.97},
		ledger.ScheduleContentOf("FLOOR JOIST SCHEDULE", []string{"MARK", "SPECIES"},
			[]map[string]string{{"MARK": "FJ-1", "SPECIES": "SPF"}}))
	require.NoError(t, err)
	require.NoError(t, l.AddEvidence(sched))

	note, err := ledger.NewEvidence(ledger.EvidenceText,
		ledger.Source{DocumentID: "doc-1", PageNumber: 1, ExtractorName: "plan-text", Confidence: 0.84},
		ledger.TextContentOf("ALL FRAMING LUMBER TO BE SPF NO.2 OR BETTER"))
	require.NoError(t, err)
	require.NoError(t, l.AddEvidence(note))

	seeded, err := ledger.NewAssumption("lumber_species", "SPF", ledger.BasisRegionalDefault, 0.8)
	require.NoError(t, err)
	require.NoError(t, l.AddAssumption(seeded))

	derived, err := ledger.NewAssumption("lumber_species", "SPF", ledger.BasisDocumentDerived, 0.95)
	require.NoError(t, err)
	derived.Supersedes = seeded.ID
	require.NoError(t, l.AddAssumption(derived))

	inf, err := ledger.NewInference("joist_species", "SPF", 0.92, "joist_species_from_schedule")
	require.NoError(t, err)
	inf.UsedEvidence = []string{sched.ID, note.ID}
	inf.UsedAssumptions = []string{derived.ID}
	require.NoError(t, l.AddInference(inf))

	dec, err := ledger.NewDecision("joist_species", "SPF", inf.ID, ledger.PolicyUsed{
		PolicyID:     "default",
		Thresholds:   map[string]float64{"accept_inference": 0.7},
		AppliedRules: []string{"accept_threshold"},
	})
	require.NoError(t, err)
	require.NoError(t, l.AddDecision(dec))

	flag, err := ledger.NewFlag(ledger.FlagLowConfidence, ledger.SeverityMedium, "stud_size below threshold")
	require.NoError(t, err)
	flag.Topic = "stud_size"
	flag.InferenceIDs = []string{inf.ID}
	require.NoError(t, l.AddFlag(flag))

	l.RecordStageOutcome(true)
	l.RecordStageOutcome(true)
	l.MarkCompleted()
	return l
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "ledger:doc-1:run-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "ledger:doc-1:run-1", []byte("one")))
	require.NoError(t, s.Set(ctx, "ledger:doc-1:run-2", []byte("two")))
	require.NoError(t, s.Set(ctx, "ledger:doc-2:run-1", []byte("three")))

	got, err := s.Get(ctx, "ledger:doc-1:run-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	// Mutating a returned value must not reach the store.
	got[0] = 'X'
	again, err := s.Get(ctx, "ledger:doc-1:run-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), again)

	keys, err := s.List(ctx, "ledger:doc-1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger:doc-1:run-1", "ledger:doc-1:run-2"}, keys)

	require.NoError(t, s.Delete(ctx, "ledger:doc-1:run-1"))
	_, err = s.Get(ctx, "ledger:doc-1:run-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "ledger:doc-1:run-1"), ErrNotFound)
}

func TestFileStore_AtomicLayout(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewFileStore(base)
	require.NoError(t, err)

	key := Key("doc-1", "run-1")
	require.NoError(t, s.Set(ctx, key, []byte(`{"version":1}`)))

	path := filepath.Join(base, "ledger", "doc-1", "run-1.json")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "tmp file must not survive a commit")

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":1}`), got)

	require.NoError(t, s.Set(ctx, Key("doc-1", "run-2"), []byte("x")))
	require.NoError(t, s.Set(ctx, Key("doc-2", "run-1"), []byte("y")))

	keys, err := s.List(ctx, DocumentPrefix("doc-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger:doc-1:run-1", "ledger:doc-1:run-2"}, keys)

	all, err := s.List(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{
		"",
		"ledger:..:run-1",
		"ledger:doc-1:../../etc/passwd",
		"ledger::run-1",
		"ledger:doc/1:run-1",
	} {
		assert.ErrorIs(t, s.Set(ctx, key, []byte("x")), ErrInvalidKey, "key %q", key)
		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"plain", "doc-1", false},
		{"uuid", "0b7e6c5a-9f1d-4e0a-8a9b-2f6d3c1e5b4a", false},
		{"dotted", "plan.v2", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"leading dot", ".hidden", true},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"colon", "a:b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitKey(t *testing.T) {
	doc, run, err := SplitKey(Key("doc-1", "run-9"))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc)
	assert.Equal(t, "run-9", run)

	_, _, err = SplitKey("policy:doc-1:run-9")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, _, err = SplitKey("ledger:doc-only")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	orig := populatedLedger(t)

	require.NoError(t, Save(ctx, store, "doc-1", orig))

	loaded, err := Load(ctx, store, "doc-1", "run-1")
	require.NoError(t, err)

	assert.Equal(t, orig.ID(), loaded.ID())
	assert.Equal(t, "run-1", loaded.RunID())
	assert.Equal(t, "default", loaded.PolicyID())

	assert.Len(t, loaded.AllEvidence(), 2)
	assert.Len(t, loaded.AllAssumptions(), 2)
	assert.Len(t, loaded.AllInferences(), 1)
	assert.Len(t, loaded.AllDecisions(), 1)
	assert.Len(t, loaded.AllFlags(), 1)

	// The superseded record keeps its stored expiry; the chain still
	// resolves to the derived record.
	chain := loaded.AssumptionsByKey("lumber_species")
	require.Len(t, chain, 2)
	assert.NotNil(t, chain[0].ExpiresAt)
	assert.Equal(t, chain[0].ID, chain[1].Supersedes)
	current, err := loaded.CurrentAssumption("lumber_species")
	require.NoError(t, err)
	assert.Equal(t, chain[1].ID, current.ID)
	assert.InDelta(t, 0.95, current.Confidence, 1e-9)

	dec, err := loaded.DecisionByTopic("joist_species")
	require.NoError(t, err)
	assert.Equal(t, "SPF", dec.SelectedValue)
	assert.Equal(t, []string{"accept_threshold"}, dec.PolicyUsed.AppliedRules)

	meta := loaded.Metadata()
	origMeta := orig.Metadata()
	assert.Equal(t, origMeta.TotalStages, meta.TotalStages)
	assert.Equal(t, origMeta.SuccessStages, meta.SuccessStages)
	assert.True(t, meta.CreatedAt.Equal(origMeta.CreatedAt))
	require.NotNil(t, meta.CompletedAt)
	assert.True(t, meta.CompletedAt.Equal(*origMeta.CompletedAt))

	assert.Empty(t, loaded.ValidateIntegrity())
}

func TestSaveLoad_FileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	orig := populatedLedger(t)

	require.NoError(t, Save(ctx, store, "doc-1", orig))
	loaded, err := Load(ctx, store, "doc-1", "run-1")
	require.NoError(t, err)
	assert.Equal(t, orig.ID(), loaded.ID())
	assert.Empty(t, loaded.ValidateIntegrity())
}

func TestSave_RefusesBrokenLedger(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := populatedLedger(t)

	// Reach behind the append path and break a reference.
	l.AllFlags()[0].InferenceIDs = append(l.AllFlags()[0].InferenceIDs, "ghost-inference")

	err := Save(ctx, store, "doc-1", l)
	assert.ErrorIs(t, err, ErrIntegrity)

	keys, lerr := store.List(ctx, KeyPrefix)
	require.NoError(t, lerr)
	assert.Empty(t, keys, "a failing ledger must not be persisted")
}

func TestLoad_RejectsCorruption(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	key := Key("doc-1", "run-1")
	require.NoError(t, store.Set(ctx, key, []byte("{broken")))
	_, err := Load(ctx, store, "doc-1", "run-1")
	assert.ErrorIs(t, err, ErrCorrupted)

	require.NoError(t, store.Set(ctx, key, []byte(`{"version":99,"ledger_id":"x","run_id":"run-1"}`)))
	_, err = Load(ctx, store, "doc-1", "run-1")
	assert.ErrorIs(t, err, ErrCorrupted)

	// A structurally valid snapshot whose references were tampered with
	// fails replay.
	require.NoError(t, Save(ctx, store, "doc-1", populatedLedger(t)))
	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	snap, err := Decode(data)
	require.NoError(t, err)
	snap.Evidence = nil // inference now references missing evidence
	tampered, err := snap.Encode()
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, key, tampered))

	_, err = Load(ctx, store, "doc-1", "run-1")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, runID := range []string{"run-2", "run-1"} {
		l := ledger.New(runID, "default")
		require.NoError(t, Save(ctx, store, "doc-1", l))
	}
	other := ledger.New("run-7", "default")
	require.NoError(t, Save(ctx, store, "doc-2", other))

	runs, err := Runs(ctx, store, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-2"}, runs)
}
