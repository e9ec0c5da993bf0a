package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the registered strategies. Registration happens at
// startup; lookups run concurrently across pipeline runs.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// NewDefaultRegistry creates a registry preloaded with the built-in
// strategies.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	// Built-in names cannot collide with each other.
	_ = r.Register(NewStudSpacingStrategy())
	_ = r.Register(NewJoistSpeciesStrategy())
	_ = r.Register(NewLiveLoadStrategy())
	return r
}

// Register adds a strategy to the registry. Nil strategies, empty names
// and duplicate names are rejected.
func (r *Registry) Register(s Strategy) error {
	if s == nil || s.Name() == "" {
		return fmt.Errorf("strategy must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.Name()]; exists {
		return fmt.Errorf("strategy %q already registered", s.Name())
	}
	r.strategies[s.Name()] = s
	return nil
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// All returns every registered strategy ordered by topic then name, so a
// pipeline run visits strategies deterministically.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Topic() != result[j].Topic() {
			return result[i].Topic() < result[j].Topic()
		}
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Topics returns the distinct topics covered by registered strategies,
// sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.strategies))
	topics := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		if _, ok := seen[s.Topic()]; ok {
			continue
		}
		seen[s.Topic()] = struct{}{}
		topics = append(topics, s.Topic())
	}
	sort.Strings(topics)
	return topics
}

// Covers reports whether any registered strategy answers the topic.
func (r *Registry) Covers(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.strategies {
		if s.Topic() == topic {
			return true
		}
	}
	return false
}
