package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestResolver_PolicyFallsBackToDefault(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	r := NewResolver(zap.New(core))

	p := r.Policy("unknown_id")
	require.NotNil(t, p)
	assert.Equal(t, DefaultPolicyID, p.ID)

	// The fallback is warned about, never silent.
	entries := observed.FilterMessageSnippet("falling back to default").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "unknown_id", entries[0].ContextMap()["policy_id"])
}

func TestResolver_PolicyExactMatch(t *testing.T) {
	r := NewResolver(zap.NewNop())

	custom := Default()
	custom.ID = "project-7"
	custom.Thresholds.AcceptInference = 0.8
	require.NoError(t, r.Register(custom))

	p := r.Policy("project-7")
	assert.Equal(t, "project-7", p.ID)
	assert.Equal(t, 0.8, p.Thresholds.AcceptInference)

	assert.Equal(t, DefaultPolicyID, r.Policy("").ID)
	assert.Equal(t, DefaultPolicyID, r.Policy(DefaultPolicyID).ID)
}

func TestResolver_RegisterRejectsReservedAndInvalid(t *testing.T) {
	r := NewResolver(zap.NewNop())

	reserved := Default()
	err := r.Register(reserved)
	assert.ErrorIs(t, err, ErrReservedID)

	invalid := Default()
	invalid.ID = "bad"
	invalid.Thresholds.ConflictGap = 0.01
	err = r.Register(invalid)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Empty(t, r.Known())
}

func TestResolver_CreateCustomPolicyMergesKeyWise(t *testing.T) {
	r := NewResolver(zap.NewNop())

	override := []byte(`
version: "2.0.0"
thresholds:
  accept_inference: 0.8
priors:
  source_reliability:
    text: 0.75
`)
	p, err := r.CreateCustomPolicy("strict", override)
	require.NoError(t, err)
	assert.Equal(t, "strict", p.ID)

	// Overridden keys take the new values.
	assert.Equal(t, 0.8, p.Thresholds.AcceptInference)
	assert.Equal(t, 0.75, p.Priors.SourceReliability["text"])

	// Untouched keys keep the default values: object merge is key-wise.
	assert.Equal(t, 0.15, p.Thresholds.ConflictGap)
	assert.Equal(t, 0.95, p.Priors.SourceReliability["schedule"])

	// The registered policy resolves by id.
	assert.Equal(t, "strict", r.Policy("strict").ID)
}

func TestResolver_CreateCustomPolicyReplacesArraysWholesale(t *testing.T) {
	r := NewResolver(zap.NewNop())

	override := []byte(`
tiebreakers: ["dimension", "schedule"]
`)
	p, err := r.CreateCustomPolicy("dims-first", override)
	require.NoError(t, err)
	assert.Equal(t, []string{"dimension", "schedule"}, p.Tiebreakers)
}

func TestResolver_CreateCustomPolicyInvalidMergeReturnsUnmodifiedDefault(t *testing.T) {
	r := NewResolver(zap.NewNop())

	// Gap below the domain floor makes the merged policy invalid.
	override := []byte(`
thresholds:
  conflict_gap: 0.01
`)
	p, err := r.CreateCustomPolicy("broken", override)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Equal(t, DefaultPolicyID, p.ID)
	assert.Equal(t, 0.15, p.Thresholds.ConflictGap)

	// Nothing was registered; the id still resolves to default.
	assert.Equal(t, DefaultPolicyID, r.Policy("broken").ID)
	assert.Empty(t, r.Known())
}

func TestResolver_CreateCustomPolicyRejectsReservedID(t *testing.T) {
	r := NewResolver(zap.NewNop())

	_, err := r.CreateCustomPolicy(DefaultPolicyID, []byte(`version: "9"`))
	assert.ErrorIs(t, err, ErrReservedID)

	_, err = r.CreateCustomPolicy("", []byte(`version: "9"`))
	assert.ErrorIs(t, err, ErrReservedID)
}

func TestResolver_CreateCustomPolicyUnparseableOverride(t *testing.T) {
	r := NewResolver(zap.NewNop())

	p, err := r.CreateCustomPolicy("garbled", []byte("thresholds: ["))
	require.Error(t, err)
	assert.Equal(t, DefaultPolicyID, p.ID)
}
