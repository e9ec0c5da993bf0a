package featureflag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func noEnv(string) (string, bool) { return "", false }

func TestService_Defaults(t *testing.T) {
	s := NewWithLookup(zap.NewNop(), noEnv)

	assert.True(t, s.Enabled(UseNewLedger))
	assert.True(t, s.Enabled(UseConflictResolver))
	assert.False(t, s.Enabled(EnableAuditTrail))
	assert.False(t, s.Enabled(EnableVisionStrategies))
	assert.False(t, s.Enabled(Flag("neverHeardOfIt")))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "TAKEOFF_FLAG_USE_NEW_LEDGER", EnvKey(UseNewLedger))
	assert.Equal(t, "TAKEOFF_FLAG_ENABLE_AUDIT_TRAIL", EnvKey(EnableAuditTrail))
	assert.Equal(t, "TAKEOFF_FLAG_ENABLE_VISION_STRATEGIES", EnvKey(EnableVisionStrategies))
}

func TestService_EnvOverride(t *testing.T) {
	env := map[string]string{
		"TAKEOFF_FLAG_ENABLE_AUDIT_TRAIL":   "true",
		"TAKEOFF_FLAG_USE_CONFLICT_RESOLVER": "0",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	s := NewWithLookup(zap.NewNop(), lookup)
	assert.True(t, s.Enabled(EnableAuditTrail))
	assert.False(t, s.Enabled(UseConflictResolver))
	// Untouched flags keep their defaults.
	assert.True(t, s.Enabled(UseNewLedger))
}

func TestService_EnvOverrideIgnoresGarbage(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "TAKEOFF_FLAG_ENABLE_AUDIT_TRAIL" {
			return "maybe", true
		}
		return "", false
	}

	s := NewWithLookup(zap.NewNop(), lookup)
	assert.False(t, s.Enabled(EnableAuditTrail))
}

func TestService_SetAndAll(t *testing.T) {
	s := NewWithLookup(zap.NewNop(), noEnv)
	s.Set(EnableVisionStrategies, true)
	assert.True(t, s.Enabled(EnableVisionStrategies))

	states := s.All()
	assert.Len(t, states, 4)
	// Sorted by flag name.
	assert.Equal(t, EnableAuditTrail, states[0].Flag)
	for _, st := range states {
		if st.Flag == EnableVisionStrategies {
			assert.True(t, st.Enabled)
		}
	}
}
