package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

const instrumentationName = "github.com/plumblinelabs/takeoffd/internal/pipeline"

// Config bounds stage execution.
type Config struct {
	// MaxRetries is the total number of attempts per stage.
	MaxRetries int `json:"max_retries" koanf:"max_retries"`

	// StageTimeout bounds one attempt; zero disables the deadline.
	StageTimeout time.Duration `json:"stage_timeout" koanf:"stage_timeout"`

	// BackoffBase seeds the exponential backoff between attempts.
	BackoffBase time.Duration `json:"backoff_base" koanf:"backoff_base"`

	// BackoffCap is the ceiling for one backoff wait.
	BackoffCap time.Duration `json:"backoff_cap" koanf:"backoff_cap"`
}

// DefaultConfig returns the production executor settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		StageTimeout: 30 * time.Second,
		BackoffBase:  time.Second,
		BackoffCap:   10 * time.Second,
	}
}

// StageError is the terminal failure of one stage after all attempts.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOutcome is the terminal state of one stage within a run.
type StageOutcome struct {
	Stage    string        `json:"stage"`
	State    StageState    `json:"state"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Result is the terminal outcome of one pipeline run. It is always
// produced, even when every stage failed.
type Result struct {
	// Output is the last successfully advanced stage output. A failing
	// stage does not advance it.
	Output any

	// Ledger holds everything accumulated during the run, including
	// entities appended by stages that later failed.
	Ledger *ledger.Ledger

	// Success is true when no stage exhausted its attempts.
	Success bool

	// Errors holds one entry per failed stage, in stage order.
	Errors []*StageError

	// StageOutcomes records the terminal state of every stage.
	StageOutcomes []StageOutcome

	// ExecutionTime is the wall-clock duration of the run.
	ExecutionTime time.Duration
}

// Executor drives a pipeline's stages in order with per-stage retry,
// backoff and attempt deadlines. A stage that exhausts its attempts is
// recorded as a POLICY_VIOLATION flag on the ledger and the run continues
// with the previous output.
type Executor struct {
	config  Config
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// NewExecutor creates an executor. Zero config fields fall back to the
// defaults.
func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}

	return &Executor{
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		metrics: NewMetrics(),
	}
}

// Execute runs every stage of the pipeline against the input. The result
// is always non-nil and its ledger keeps everything appended before any
// failure. Canceling ctx abandons the run: in-flight attempts finish or
// time out on their own schedule, remaining stages fail fast.
func (e *Executor) Execute(ctx context.Context, p *Pipeline, input any, pctx *Context) *Result {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("pipeline", p.Name()),
		attribute.String("trace_id", pctx.TraceID()),
		attribute.Int("stages", len(p.Stages())),
	)

	log := e.logger.With(
		zap.String("pipeline", p.Name()),
		zap.String("trace_id", pctx.TraceID()),
	)
	log.Info("pipeline run started", zap.Int("stages", len(p.Stages())))

	result := &Result{
		Output: input,
		Ledger: pctx.Ledger(),
	}

	for _, stage := range p.Stages() {
		stageStart := time.Now()
		output, attempts, stageErr := e.runStage(ctx, stage, result.Output, pctx, log)

		outcome := StageOutcome{
			Stage:    stage.Name(),
			Attempts: attempts,
			Duration: time.Since(stageStart),
		}

		if stageErr != nil {
			outcome.State = StateFailed
			result.Errors = append(result.Errors, stageErr)
			pctx.Ledger().RecordStageOutcome(false)
			e.flagStageFailure(pctx, stageErr, log)
		} else {
			outcome.State = StateSucceeded
			result.Output = output
			pctx.Ledger().RecordStageOutcome(true)
		}
		result.StageOutcomes = append(result.StageOutcomes, outcome)
	}

	pctx.Ledger().MarkCompleted()

	result.Success = len(result.Errors) == 0
	result.ExecutionTime = time.Since(start)

	e.metrics.RecordRun(p.Name(), result.Success)
	for _, f := range pctx.Ledger().AllFlags() {
		e.metrics.RecordFlag(string(f.Type), string(f.Severity))
	}

	if !result.Success {
		span.SetStatus(codes.Error, fmt.Sprintf("%d stage(s) failed", len(result.Errors)))
	}
	log.Info("pipeline run finished",
		zap.Bool("success", result.Success),
		zap.Int("failed_stages", len(result.Errors)),
		zap.Duration("execution_time", result.ExecutionTime))

	return result
}

// runStage drives one stage through validation, attempts and backoff. It
// returns the attempts consumed alongside the output or terminal error.
func (e *Executor) runStage(ctx context.Context, stage Stage, input any, pctx *Context, log *zap.Logger) (any, int, *StageError) {
	log = log.With(zap.String("stage", stage.Name()))
	log.Debug("stage state", zap.String("state", string(StateEntering)))

	ctx, span := e.tracer.Start(ctx, "pipeline.stage")
	defer span.End()
	span.SetAttributes(attribute.String("stage", stage.Name()))

	if v, ok := stage.(InputValidator); ok {
		if err := v.ValidateInput(input); err != nil {
			err = fmt.Errorf("invalid input: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("stage input rejected", zap.Error(err))
			return nil, 0, &StageError{Stage: stage.Name(), Err: err}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := e.backoffBefore(attempt - 1)
			log.Debug("retrying stage",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				err := ctx.Err()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, attempt - 1, &StageError{Stage: stage.Name(), Attempts: attempt - 1, Err: err}
			}
		}

		log.Debug("stage state",
			zap.String("state", string(StateExecuting)),
			zap.Int("attempt", attempt))

		attemptStart := time.Now()
		output, err := e.runAttempt(ctx, stage, input, pctx)
		e.metrics.RecordStageAttempt(stage.Name(), err == nil, time.Since(attemptStart).Seconds())

		if err == nil {
			if v, ok := stage.(OutputValidator); ok {
				if verr := v.ValidateOutput(output); verr != nil {
					err = fmt.Errorf("invalid output: %w", verr)
				}
			}
		}
		if err == nil {
			log.Info("stage succeeded", zap.Int("attempt", attempt))
			return output, attempt, nil
		}

		lastErr = err
		span.RecordError(err)
		log.Warn("stage attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	span.SetStatus(codes.Error, lastErr.Error())
	return nil, e.config.MaxRetries, &StageError{Stage: stage.Name(), Attempts: e.config.MaxRetries, Err: lastErr}
}

// attemptResult carries one attempt's outcome across the deadline race.
type attemptResult struct {
	output any
	err    error
}

// runAttempt runs a single attempt under the per-attempt deadline. The
// stage goroutine finishes on its own schedule after a timeout; the
// buffered channel lets it exit without leaking.
func (e *Executor) runAttempt(ctx context.Context, stage Stage, input any, pctx *Context) (any, error) {
	attemptCtx := ctx
	cancel := func() {}
	if e.config.StageTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.config.StageTimeout)
	}
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		output, err := stage.Execute(attemptCtx, input, pctx)
		done <- attemptResult{output: output, err: err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("stage %s attempt: %w", stage.Name(), attemptCtx.Err())
	}
}

// backoffBefore returns the wait before retry n (n ≥ 1).
func (e *Executor) backoffBefore(n int) time.Duration {
	backoff := e.config.BackoffBase * time.Duration(1<<(n-1))
	if backoff > e.config.BackoffCap {
		backoff = e.config.BackoffCap
	}
	return backoff
}

// flagStageFailure records a stage's terminal failure on the ledger. The
// run keeps going, so the flag is the durable trace of what was skipped.
func (e *Executor) flagStageFailure(pctx *Context, stageErr *StageError, log *zap.Logger) {
	flag, err := ledger.NewFlag(ledger.FlagPolicyViolation, ledger.SeverityHigh, stageErr.Error())
	if err == nil {
		flag.Stage = stageErr.Stage
		err = pctx.Ledger().AddFlag(flag)
	}
	if err != nil {
		log.Error("failed to record stage failure flag",
			zap.String("stage", stageErr.Stage),
			zap.Error(err))
	}
}
