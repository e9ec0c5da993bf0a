// Package pipeline provides the staged execution machinery for a run: an
// ordered list of stages driven by an executor with per-stage retry,
// exponential backoff and attempt deadlines. A failing stage is recorded
// on the run's ledger and the run continues with the previous output, so
// a run always terminates with a usable, possibly partial, result.
package pipeline

import "context"

// Pipeline is an ordered, named list of stages.
type Pipeline struct {
	name   string
	stages []Stage
}

// NewPipeline creates an empty pipeline.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// AddStage appends a stage and returns the pipeline for chaining. Stages
// are fixed before the first run; AddStage is not safe during execution.
func (p *Pipeline) AddStage(s Stage) *Pipeline {
	if s != nil {
		p.stages = append(p.stages, s)
	}
	return p
}

// Stages returns the ordered stages.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Clone returns a pipeline with the same name and stage order. Stage
// instances are shared, so they must be reusable across runs.
func (p *Pipeline) Clone() *Pipeline {
	clone := &Pipeline{
		name:   p.name,
		stages: make([]Stage, len(p.stages)),
	}
	copy(clone.stages, p.stages)
	return clone
}

// Execute runs the pipeline with the given executor.
func (p *Pipeline) Execute(ctx context.Context, e *Executor, input any, pctx *Context) *Result {
	return e.Execute(ctx, p, input, pctx)
}
