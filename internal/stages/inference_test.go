package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/strategy"
)

func TestMultiStrategyInference_AppendsStrategyInferences(t *testing.T) {
	pctx := newRunContext()
	runStages(t, pctx,
		NewEvidenceCollection(extract.NewStubClient(), defaultFlags(), zaptest.NewLogger(t)),
		NewAssumptionSeeding("northeast", zaptest.NewLogger(t)),
		NewMultiStrategyInference(strategy.NewDefaultRegistry(), zaptest.NewLogger(t)),
	)

	l := pctx.Ledger()

	spacing := l.InferencesByTopic("stud_spacing")
	require.Len(t, spacing, 1)
	assert.Equal(t, 16.0, spacing[0].Value)
	assert.Equal(t, "stud_spacing_from_plan", spacing[0].Method)
	assert.Equal(t, "multi_strategy_inference", spacing[0].Stage)
	// The strategy claims 0.92 (the dimension callout) but the best
	// support is the seeded default at 0.90; the dimension weighs in at
	// 0.92 x 0.90 reliability.
	assert.InDelta(t, 0.90, spacing[0].Confidence, 1e-9)
	assert.Len(t, spacing[0].UsedEvidence, 4)
	assert.Len(t, spacing[0].UsedAssumptions, 1)
	assert.NotEmpty(t, spacing[0].Explanation)

	species := l.InferencesByTopic("joist_species")
	require.Len(t, species, 1)
	assert.Equal(t, "SPF", species[0].Value)
	assert.Equal(t, "joist_species_from_schedule", species[0].Method)
	assert.InDelta(t, 0.97, species[0].Confidence, 1e-9)

	load := l.InferencesByTopic("live_load")
	require.Len(t, load, 1)
	assert.Equal(t, 40.0, load[0].Value)
	assert.Equal(t, "live_load_from_notes", load[0].Method)
	// The note agrees with the code default, so the default's 0.95
	// stands instead of being dragged down to text reliability.
	assert.InDelta(t, 0.95, load[0].Confidence, 1e-9)
}

func TestMultiStrategyInference_PatternSupplements(t *testing.T) {
	pctx := newRunContext()
	runStages(t, pctx,
		NewEvidenceCollection(extract.NewStubClient(), defaultFlags(), zaptest.NewLogger(t)),
		NewAssumptionSeeding("northeast", zaptest.NewLogger(t)),
		NewMultiStrategyInference(strategy.NewDefaultRegistry(), zaptest.NewLogger(t)),
	)

	l := pctx.Ledger()
	assert.Len(t, l.AllInferences(), 5, "three strategy topics plus two pattern topics")

	// joist_spacing has no strategy; the seeded default co-occurs with
	// the joist schedule, discounted below the default's own confidence.
	joistSpacing := l.InferencesByTopic("joist_spacing")
	require.Len(t, joistSpacing, 1)
	assert.Equal(t, 16.0, joistSpacing[0].Value)
	assert.Equal(t, ledger.MethodFromEvidencePatterns, joistSpacing[0].Method)
	assert.InDelta(t, 0.85*0.75, joistSpacing[0].Confidence, 1e-9)
	assert.Len(t, joistSpacing[0].UsedEvidence, 1)
	assert.Len(t, joistSpacing[0].UsedAssumptions, 1)

	studSize := l.InferencesByTopic("stud_size")
	require.Len(t, studSize, 1)
	assert.Equal(t, "2x6", studSize[0].Value)
	assert.Equal(t, ledger.MethodFromEvidencePatterns, studSize[0].Method)
	assert.InDelta(t, 0.82*0.85*0.75, studSize[0].Confidence, 1e-9)

	// Keys with no echoing evidence produce nothing.
	assert.Empty(t, l.InferencesByTopic("dead_load"))
	assert.Empty(t, l.InferencesByTopic("wall_height"))
	assert.Empty(t, l.InferencesByTopic("lumber_treatment"))
}

func TestMultiStrategyInference_EvidenceOnlyCappedByReliability(t *testing.T) {
	pctx := newRunContext()
	l := pctx.Ledger()
	ev := addTestEvidence(t, l, ledger.EvidenceText, 0.9)

	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(&fakeStrategy{
		name:  "note_reader",
		topic: "wall_height",
		result: strategy.Result{
			Success:      true,
			Value:        9.0,
			Confidence:   0.95,
			UsedEvidence: []string{ev.ID},
		},
	}))

	stage := NewMultiStrategyInference(reg, zaptest.NewLogger(t))
	_, err := stage.Execute(context.Background(), testInput(), pctx)
	require.NoError(t, err)

	infs := l.InferencesByTopic("wall_height")
	require.Len(t, infs, 1)
	assert.InDelta(t, 0.9*0.7, infs[0].Confidence, 1e-9,
		"text reliability caps an evidence-only inference")
}

func TestMultiStrategyInference_StrategyFailureIsFlagged(t *testing.T) {
	pctx := newRunContext()
	l := pctx.Ledger()

	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(&fakeStrategy{
		name: "broken", topic: "wall_height", err: errors.New("model exploded"),
	}))
	require.NoError(t, reg.Register(&fakeStrategy{
		name: "working", topic: "wind_load",
		result: strategy.Result{Success: true, Value: 90.0, Confidence: 0.8},
	}))

	stage := NewMultiStrategyInference(reg, zaptest.NewLogger(t))
	_, err := stage.Execute(context.Background(), testInput(), pctx)
	require.NoError(t, err, "a broken strategy must not fail the stage")

	flags := l.AllFlags()
	require.Len(t, flags, 1)
	assert.Equal(t, ledger.FlagPolicyViolation, flags[0].Type)
	assert.Equal(t, ledger.SeverityMedium, flags[0].Severity)
	assert.Equal(t, "wall_height", flags[0].Topic)
	assert.Equal(t, "multi_strategy_inference", flags[0].Stage)
	assert.Contains(t, flags[0].Message, "model exploded")

	require.Len(t, l.InferencesByTopic("wind_load"), 1, "remaining strategies still run")
}

func TestMultiStrategyInference_ContextErrorFailsStage(t *testing.T) {
	pctx := newRunContext()
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(&fakeStrategy{
		name: "slow", topic: "wall_height", err: context.DeadlineExceeded,
	}))

	stage := NewMultiStrategyInference(reg, zaptest.NewLogger(t))
	_, err := stage.Execute(context.Background(), testInput(), pctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, pctx.Ledger().AllFlags(), "timeouts are retried, not flagged")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stage.Execute(ctx, testInput(), newRunContext())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMultiStrategyInference_RerunSkipsExistingMethods(t *testing.T) {
	pctx := newRunContext()
	infer := NewMultiStrategyInference(strategy.NewDefaultRegistry(), zaptest.NewLogger(t))
	runStages(t, pctx,
		NewEvidenceCollection(extract.NewStubClient(), defaultFlags(), zaptest.NewLogger(t)),
		NewAssumptionSeeding("northeast", zaptest.NewLogger(t)),
		infer,
	)

	l := pctx.Ledger()
	before := len(l.AllInferences())

	_, err := infer.Execute(context.Background(), testInput(), pctx)
	require.NoError(t, err)
	assert.Len(t, l.AllInferences(), before)
}
