package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

func TestAssumptionSeeding_SeedsCodeAndRegionalDefaults(t *testing.T) {
	pctx := newRunContext()
	stage := NewAssumptionSeeding("northeast", zaptest.NewLogger(t))

	out, err := stage.Execute(context.Background(), testInput(), pctx)
	require.NoError(t, err)
	assert.Equal(t, testInput(), out)

	l := pctx.Ledger()
	assert.Len(t, l.AllAssumptions(), 8)

	liveLoad, err := l.CurrentAssumption("live_load")
	require.NoError(t, err)
	assert.Equal(t, 40.0, liveLoad.Value)
	assert.Equal(t, ledger.BasisCodeDefault, liveLoad.Basis)
	assert.InDelta(t, 0.95, liveLoad.Confidence, 1e-9)

	spacing, err := l.CurrentAssumption("stud_spacing_default")
	require.NoError(t, err)
	assert.Equal(t, 16.0, spacing.Value)
	assert.InDelta(t, 0.90, spacing.Confidence, 1e-9)

	species, err := l.CurrentAssumption("lumber_species")
	require.NoError(t, err)
	assert.Equal(t, "SPF", species.Value)
	assert.Equal(t, ledger.BasisRegionalDefault, species.Basis)
	assert.Equal(t, "region:northeast", species.Source)
	assert.InDelta(t, 0.80, species.Confidence, 1e-9)

	for _, key := range []string{"dead_load", "joist_spacing_default", "wall_height", "lumber_grade", "lumber_treatment"} {
		_, err := l.CurrentAssumption(key)
		assert.NoError(t, err, "missing default for %s", key)
	}
}

func TestAssumptionSeeding_RegionalSpecies(t *testing.T) {
	cases := map[string]string{
		"northeast": "SPF",
		"midwest":   "SPF",
		"southeast": "SYP",
		"West":      "DF-L",
		"":          "SPF",
		"mars":      "SPF",
	}
	for region, want := range cases {
		pctx := newRunContext()
		_, err := NewAssumptionSeeding(region, zaptest.NewLogger(t)).Execute(context.Background(), testInput(), pctx)
		require.NoError(t, err)

		species, err := pctx.Ledger().CurrentAssumption("lumber_species")
		require.NoError(t, err)
		assert.Equal(t, want, species.Value, "region %q", region)
	}

	pctx := newRunContext()
	_, err := NewAssumptionSeeding("", zaptest.NewLogger(t)).Execute(context.Background(), testInput(), pctx)
	require.NoError(t, err)
	species, err := pctx.Ledger().CurrentAssumption("lumber_species")
	require.NoError(t, err)
	assert.Equal(t, "region:national", species.Source)
}

func TestAssumptionSeeding_DerivesFromEvidence(t *testing.T) {
	pctx := newRunContext()
	runStages(t, pctx,
		NewEvidenceCollection(extract.NewStubClient(), defaultFlags(), zaptest.NewLogger(t)),
		NewAssumptionSeeding("west", zaptest.NewLogger(t)),
	)

	l := pctx.Ledger()
	// 5 code defaults, 3 regional defaults, 3 document-derived.
	assert.Len(t, l.AllAssumptions(), 11)

	// The joist schedule lists SPF on every mark, overriding the west
	// region's DF-L default at the schedule's extraction confidence.
	species, err := l.CurrentAssumption("lumber_species")
	require.NoError(t, err)
	assert.Equal(t, "SPF", species.Value)
	assert.Equal(t, ledger.BasisDocumentDerived, species.Basis)
	assert.InDelta(t, 0.97, species.Confidence, 1e-9)

	history := l.AssumptionsByKey("lumber_species")
	require.Len(t, history, 2)
	assert.NotNil(t, history[0].ExpiresAt, "regional default superseded")
	assert.Equal(t, history[0].ID, history[1].Supersedes)

	grade, err := l.CurrentAssumption("lumber_grade")
	require.NoError(t, err)
	assert.Equal(t, "No.2", grade.Value)
	assert.Equal(t, ledger.BasisDocumentDerived, grade.Basis)
	assert.InDelta(t, 0.84, grade.Confidence, 1e-9)

	size, err := l.CurrentAssumption("stud_size")
	require.NoError(t, err)
	assert.Equal(t, "2x6", size.Value)
	assert.Equal(t, ledger.BasisDocumentDerived, size.Basis)
}

func TestAssumptionSeeding_UserOverrideStands(t *testing.T) {
	pctx := newRunContext()
	l := pctx.Ledger()

	override, err := ledger.NewAssumption("lumber_species", "DF-L", ledger.BasisUserOverride, 0.6)
	require.NoError(t, err)
	require.NoError(t, l.AddAssumption(override))

	runStages(t, pctx,
		NewEvidenceCollection(extract.NewStubClient(), defaultFlags(), zaptest.NewLogger(t)),
		NewAssumptionSeeding("northeast", zaptest.NewLogger(t)),
	)

	species, err := l.CurrentAssumption("lumber_species")
	require.NoError(t, err)
	assert.Equal(t, override.ID, species.ID)
	assert.Equal(t, "DF-L", species.Value)
	assert.Len(t, l.AssumptionsByKey("lumber_species"), 1,
		"neither the regional default nor the schedule may displace an override")
}

func TestAssumptionSeeding_RerunAppendsNothing(t *testing.T) {
	pctx := newRunContext()
	seed := NewAssumptionSeeding("northeast", zaptest.NewLogger(t))
	runStages(t, pctx,
		NewEvidenceCollection(extract.NewStubClient(), defaultFlags(), zaptest.NewLogger(t)),
		seed,
	)

	l := pctx.Ledger()
	before := len(l.AllAssumptions())

	_, err := seed.Execute(context.Background(), testInput(), pctx)
	require.NoError(t, err)
	assert.Len(t, l.AllAssumptions(), before)
}
