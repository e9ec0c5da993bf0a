// Package featureflag provides the process-wide feature toggles consulted by
// pipeline stages to skip optional sub-work. The service is explicitly
// constructed and injected; there is no package-level mutable state.
package featureflag

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Flag names a known feature toggle.
type Flag string

const (
	// UseNewLedger selected the current ledger implementation during its
	// rollout. The legacy implementation is gone; the flag remains
	// registered so old configurations still resolve, and disabling it is
	// rejected with a warning at startup.
	UseNewLedger Flag = "useNewLedger"

	// EnableAuditTrail publishes every ledger append to the audit subject.
	EnableAuditTrail Flag = "enableAuditTrail"

	// UseConflictResolver runs the conflict-resolution stage. When off,
	// runs stop after inference and every topic is left for manual review.
	UseConflictResolver Flag = "useConflictResolver"

	// EnableVisionStrategies adds the vision collector to evidence
	// collection.
	EnableVisionStrategies Flag = "enableVisionStrategies"
)

// EnvPrefix is prepended to the upper-snake flag name for environment
// overrides, e.g. TAKEOFF_FLAG_ENABLE_AUDIT_TRAIL=true.
const EnvPrefix = "TAKEOFF_FLAG_"

// Defaults returns the default value of every known flag.
func Defaults() map[Flag]bool {
	return map[Flag]bool{
		UseNewLedger:           true,
		EnableAuditTrail:       false,
		UseConflictResolver:    true,
		EnableVisionStrategies: false,
	}
}

// Service resolves feature flags. Reads vastly outnumber writes; the
// mutex makes the occasional runtime Set safe for concurrent runs.
type Service struct {
	mu     sync.RWMutex
	logger *zap.Logger
	flags  map[Flag]bool
}

// New creates a service seeded with defaults and then overridden from the
// environment.
func New(logger *zap.Logger) *Service {
	return NewWithLookup(logger, os.LookupEnv)
}

// NewWithLookup creates a service using the given environment lookup,
// for callers that need a deterministic environment.
func NewWithLookup(logger *zap.Logger, lookup func(string) (string, bool)) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		logger: logger,
		flags:  Defaults(),
	}
	s.applyEnv(lookup)
	return s
}

func (s *Service) applyEnv(lookup func(string) (string, bool)) {
	for flag := range s.flags {
		key := EnvKey(flag)
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			s.logger.Warn("ignoring unparseable feature flag override",
				zap.String("flag", string(flag)),
				zap.String("env", key),
				zap.String("value", raw))
			continue
		}
		s.flags[flag] = value
		s.logger.Info("feature flag overridden from environment",
			zap.String("flag", string(flag)),
			zap.Bool("enabled", value))
	}
}

// EnvKey returns the environment variable that overrides a flag:
// the camel-case name converted to upper snake case under EnvPrefix.
func EnvKey(flag Flag) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for i, r := range string(flag) {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Enabled reports whether a flag is on. Unknown flags are off.
func (s *Service) Enabled(flag Flag) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[flag]
}

// Set overrides a flag at runtime. Runs already consulting the service see
// the new value on their next lookup.
func (s *Service) Set(flag Flag, enabled bool) {
	s.mu.Lock()
	s.flags[flag] = enabled
	s.mu.Unlock()
}

// All returns a sorted snapshot of every flag and its current value.
func (s *Service) All() []State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]State, 0, len(s.flags))
	for flag, enabled := range s.flags {
		out = append(out, State{Flag: flag, Enabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flag < out[j].Flag })
	return out
}

// State is one flag and its current value.
type State struct {
	Flag    Flag `json:"flag"`
	Enabled bool `json:"enabled"`
}
