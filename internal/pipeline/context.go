package pipeline

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/policy"
)

// Context carries the run-scoped services and shared data handed to every
// stage. One Context belongs to one run. Stages within a run execute
// sequentially, but a stage may fan out internally, so the data map is
// guarded.
type Context struct {
	ledger  *ledger.Ledger
	policy  *policy.Policy
	traceID string
	stage   string

	mu       sync.RWMutex
	metadata map[string]string
	data     map[string]any
}

// NewContext creates the root context for one run.
func NewContext(l *ledger.Ledger, p *policy.Policy) *Context {
	return &Context{
		ledger:   l,
		policy:   p,
		traceID:  uuid.NewString(),
		metadata: make(map[string]string),
		data:     make(map[string]any),
	}
}

// Ledger returns the run's ledger.
func (c *Context) Ledger() *ledger.Ledger { return c.ledger }

// Policy returns the policy resolved for the run. It does not change for
// the lifetime of the run.
func (c *Context) Policy() *policy.Policy { return c.policy }

// TraceID correlates the run across logs, spans and audit events.
func (c *Context) TraceID() string { return c.traceID }

// Stage names the stage this context was derived for; empty at the root.
func (c *Context) Stage() string { return c.stage }

// SetMeta records a run metadata field such as the document id or the
// requesting user.
func (c *Context) SetMeta(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Meta reads a run metadata field.
func (c *Context) Meta(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata[key]
}

// Metadata returns a copy of the run metadata.
func (c *Context) Metadata() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Set stores a shared data value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Get reads a shared data value.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Keys lists the shared data keys, sorted.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Child derives a context scoped to one stage or sub-task. The child
// shares the ledger, policy, trace id and metadata, but carries only the
// whitelisted shared data keys; writes to the child stay in the child.
func (c *Context) Child(stage string, keys ...string) *Context {
	child := &Context{
		ledger:   c.ledger,
		policy:   c.policy,
		traceID:  c.traceID,
		stage:    stage,
		metadata: make(map[string]string),
		data:     make(map[string]any, len(keys)),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.metadata {
		child.metadata[k] = v
	}
	for _, k := range keys {
		if v, ok := c.data[k]; ok {
			child.data[k] = v
		}
	}
	return child
}
