package pipeline

import "context"

// Stage is one unit of pipeline work. The executor advances a stage's
// output to the next stage's input only when the stage succeeds.
type Stage interface {
	// Name identifies the stage in results, logs, flags and metrics.
	Name() string

	// Execute transforms the input. The ctx carries the per-attempt
	// deadline; implementations check it at I/O boundaries and return
	// promptly once it is done.
	Execute(ctx context.Context, input any, pctx *Context) (any, error)
}

// InputValidator is implemented by stages that reject bad input before
// the first attempt. A rejected input fails the stage without retries,
// since retrying cannot change the input.
type InputValidator interface {
	ValidateInput(input any) error
}

// OutputValidator is implemented by stages that check their own output.
// A validation failure counts as an attempt failure and is retried.
type OutputValidator interface {
	ValidateOutput(output any) error
}

// StageState tracks where a stage is in its lifecycle. Entering and
// Executing are transient, logged states; Succeeded and Failed are the
// terminal states recorded on the run result.
type StageState string

const (
	StateEntering  StageState = "entering"
	StateExecuting StageState = "executing"
	StateSucceeded StageState = "succeeded"
	StateFailed    StageState = "failed"
)
