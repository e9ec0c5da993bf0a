package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIntegrity_CleanLedger(t *testing.T) {
	l := New("run-1", "default")

	ev := mustEvidence(t, 0.9)
	require.NoError(t, l.AddEvidence(ev))
	a := mustAssumption(t, "live_load", 40.0, 0.95)
	require.NoError(t, l.AddAssumption(a))
	inf := mustInference(t, "joist_species", 0.9)
	inf.UsedEvidence = []string{ev.ID}
	inf.UsedAssumptions = []string{a.ID}
	require.NoError(t, l.AddInference(inf))
	d, err := NewDecision("joist_species", "SPF", inf.ID, PolicyUsed{PolicyID: "default"})
	require.NoError(t, err)
	require.NoError(t, l.AddDecision(d))

	assert.Empty(t, l.ValidateIntegrity())
}

func TestValidateIntegrity_ReportsEveryViolation(t *testing.T) {
	l := New("run-1", "default")

	ev := mustEvidence(t, 0.9)
	require.NoError(t, l.AddEvidence(ev))
	a := mustAssumption(t, "live_load", 40.0, 0.95)
	require.NoError(t, l.AddAssumption(a))
	b := mustAssumption(t, "live_load", 50.0, 0.9)
	b.Supersedes = a.ID
	require.NoError(t, l.AddAssumption(b))
	inf := mustInference(t, "joist_species", 0.9)
	inf.UsedEvidence = []string{ev.ID}
	require.NoError(t, l.AddInference(inf))

	// Corrupt appended records through their shared pointers: the audit must
	// find all of it, not stop at the first finding.
	a.Confidence = 3.0
	a.ExpiresAt = nil
	inf.UsedEvidence = append(inf.UsedEvidence, "ghost-evidence")
	ev.Source.ExtractorName = ""

	violations := l.ValidateIntegrity()
	require.GreaterOrEqual(t, len(violations), 4)

	var messages []string
	for _, v := range violations {
		messages = append(messages, v.String())
	}
	joined := ""
	for _, m := range messages {
		joined += m + "\n"
	}
	assert.Contains(t, joined, "schema violation")
	assert.Contains(t, joined, "ghost-evidence")
	assert.Contains(t, joined, "no expiry")
}

func TestValidateIntegrity_MissingSupersessionTargetIsNotViolation(t *testing.T) {
	l := New("run-1", "default")

	b := mustAssumption(t, "species", "SPF", 0.8)
	b.Supersedes = "never-existed"
	require.NoError(t, l.AddAssumption(b))

	assert.Empty(t, l.ValidateIntegrity())
}
