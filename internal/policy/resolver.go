package policy

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// Resolver holds the always-present default policy and any registered
// per-project policies. It is an explicitly constructed service: build one
// at process start and hand it to each run.
//
// Policy lookups never fail. An unknown id resolves to the default policy
// with a logged warning, so a misconfigured project degrades to safe
// defaults instead of blocking its runs.
type Resolver struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	fallback *Policy
	policies map[string]*Policy
}

// NewResolver creates a resolver seeded with the built-in default policy.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger:   logger,
		fallback: Default(),
		policies: make(map[string]*Policy),
	}
}

// Policy resolves a policy id. The exact match is returned when registered;
// anything else resolves to the default policy with a warning. The returned
// policy is shared and must be treated as read-only; reloads replace
// registry entries rather than mutating them, so a run that resolved its
// policy keeps a stable view.
func (r *Resolver) Policy(id string) *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" || id == DefaultPolicyID {
		return r.fallback
	}
	if p, ok := r.policies[id]; ok {
		return p
	}
	r.logger.Warn("unknown policy id, falling back to default",
		zap.String("policy_id", id))
	return r.fallback
}

// Default returns the resolver's default policy.
func (r *Resolver) Default() *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Known returns the registered policy ids, default excluded.
func (r *Resolver) Known() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	return ids
}

// Register validates and registers a complete policy. Registering over an
// existing id replaces the entry; the previous pointer stays valid for runs
// that already resolved it.
func (r *Resolver) Register(p *Policy) error {
	if p == nil {
		return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	if p.ID == DefaultPolicyID {
		return fmt.Errorf("%w: %q", ErrReservedID, p.ID)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.policies[p.ID] = p.Clone()
	r.mu.Unlock()
	r.logger.Info("registered policy",
		zap.String("policy_id", p.ID),
		zap.String("version", p.Version))
	return nil
}

// CreateCustomPolicy merges a partial YAML override onto the default policy,
// validates the merged result and registers it under the given id.
//
// Merging is key-wise for object fields and wholesale for array fields
// (an override's tiebreakers replace the default list entirely). When the
// merged policy fails validation, the unmodified default policy is returned
// together with the error, and nothing is registered: an invalid override
// must never produce a partially-merged policy.
func (r *Resolver) CreateCustomPolicy(id string, overrideYAML []byte) (*Policy, error) {
	if id == "" || id == DefaultPolicyID {
		return r.Default(), fmt.Errorf("%w: %q", ErrReservedID, id)
	}

	merged, err := r.merge(overrideYAML)
	if err != nil {
		r.logger.Warn("custom policy rejected, using default",
			zap.String("policy_id", id),
			zap.Error(err))
		return r.Default(), err
	}
	merged.ID = id

	if err := merged.Validate(); err != nil {
		r.logger.Warn("custom policy failed validation, using default",
			zap.String("policy_id", id),
			zap.Error(err))
		return r.Default(), err
	}

	r.mu.Lock()
	r.policies[id] = merged
	r.mu.Unlock()
	r.logger.Info("created custom policy",
		zap.String("policy_id", id),
		zap.String("version", merged.Version))
	return merged, nil
}

// merge layers an override document over the default policy using koanf's
// key-wise map merge. Arrays replace wholesale, which is koanf's native
// behavior and exactly the override semantics wanted here.
func (r *Resolver) merge(overrideYAML []byte) (*Policy, error) {
	base, err := json.Marshal(r.Default())
	if err != nil {
		return nil, fmt.Errorf("encoding default policy: %w", err)
	}

	k := koanf.New(".")
	// YAML is a superset of JSON, so the yaml parser loads both layers.
	if err := k.Load(rawbytes.Provider(base), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading default policy: %w", err)
	}
	if err := k.Load(rawbytes.Provider(overrideYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: parsing override: %v", ErrInvalidPolicy, err)
	}

	var merged Policy
	if err := k.Unmarshal("", &merged); err != nil {
		return nil, fmt.Errorf("%w: decoding merged policy: %v", ErrInvalidPolicy, err)
	}
	return &merged, nil
}
