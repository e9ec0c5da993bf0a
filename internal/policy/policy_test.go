package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, DefaultPolicyID, p.ID)
	assert.Equal(t, 0.7, p.Thresholds.AcceptInference)
	assert.Equal(t, 0.15, p.Thresholds.ConflictGap)
}

func TestDefault_ReturnsFreshCopies(t *testing.T) {
	a := Default()
	a.Priors.SourceReliability["text"] = 0.0
	a.Tiebreakers[0] = "image"

	b := Default()
	assert.Equal(t, 0.7, b.Priors.SourceReliability["text"])
	assert.Equal(t, "schedule", b.Tiebreakers[0])
}

func TestPolicy_ValidateDomainRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr string
	}{
		{
			name:   "valid policy passes",
			mutate: func(p *Policy) {},
		},
		{
			name:    "accept threshold below floor",
			mutate:  func(p *Policy) { p.Thresholds.AcceptInference = 0.4 },
			wantErr: "accept_inference",
		},
		{
			name:    "conflict gap below floor",
			mutate:  func(p *Policy) { p.Thresholds.ConflictGap = 0.05 },
			wantErr: "conflict_gap",
		},
		{
			name:    "ambiguity above ceiling",
			mutate:  func(p *Policy) { p.Thresholds.MaxAmbiguity = 0.6 },
			wantErr: "max_ambiguity",
		},
		{
			name: "reliability weights sum too low",
			mutate: func(p *Policy) {
				p.Priors.SourceReliability = map[string]float64{"text": 0.5, "table": 0.5}
				p.Tiebreakers = []string{"text"}
			},
			wantErr: "sum",
		},
		{
			name: "reliability weight out of range",
			mutate: func(p *Policy) {
				p.Priors.SourceReliability["text"] = 1.5
			},
			wantErr: "source_reliability[text]",
		},
		{
			name: "tiebreaker without reliability entry",
			mutate: func(p *Policy) {
				p.Tiebreakers = append(p.Tiebreakers, "hearsay")
			},
			wantErr: "tiebreaker",
		},
		{
			name:    "empty id",
			mutate:  func(p *Policy) { p.ID = "" },
			wantErr: "id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPolicy_Clone(t *testing.T) {
	p := Default()
	c := p.Clone()

	c.Priors.SourceReliability["schedule"] = 0.1
	c.Tiebreakers[0] = "image"
	c.Thresholds.AcceptInference = 0.99

	assert.Equal(t, 0.95, p.Priors.SourceReliability["schedule"])
	assert.Equal(t, "schedule", p.Tiebreakers[0])
	assert.Equal(t, 0.7, p.Thresholds.AcceptInference)
}

func TestPolicy_Reliability(t *testing.T) {
	p := Default()
	assert.Equal(t, 0.95, p.Reliability("schedule"))
	assert.Equal(t, 1.0, p.Reliability("unknown_source"))
}
