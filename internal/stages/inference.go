package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
	"github.com/plumblinelabs/takeoffd/internal/policy"
	"github.com/plumblinelabs/takeoffd/internal/strategy"
)

// patternDiscount scales supplementary pattern-derived inferences below
// what a dedicated strategy would claim for the same material.
const patternDiscount = 0.75

// MultiStrategyInference runs every registered strategy over the ledger's
// evidence and assumptions and appends the resulting inferences. Topics
// no strategy covers get supplementary pattern-derived inferences from
// assumption/evidence co-occurrence. A strategy error is flagged and the
// run moves on; only context cancellation fails the stage.
type MultiStrategyInference struct {
	registry *strategy.Registry
	logger   *zap.Logger
}

// NewMultiStrategyInference creates the inference stage.
func NewMultiStrategyInference(registry *strategy.Registry, logger *zap.Logger) *MultiStrategyInference {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiStrategyInference{registry: registry, logger: logger}
}

func (s *MultiStrategyInference) Name() string { return "multi_strategy_inference" }

func (s *MultiStrategyInference) Execute(ctx context.Context, input any, pctx *pipeline.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := pctx.Ledger()
	pol := pctx.Policy()
	log := s.logger.With(
		zap.String("stage", s.Name()),
		zap.String("trace_id", pctx.TraceID()),
	)

	evidence := l.AllEvidence()
	assumptions := l.AllAssumptions()

	appended := 0
	for _, strat := range s.registry.All() {
		if hasInference(l, strat.Topic(), strat.Name()) {
			continue
		}

		sctx := strategy.Context{
			Topic:       strat.Topic(),
			Evidence:    evidence,
			Assumptions: assumptions,
		}
		if !strat.CanHandle(sctx) {
			continue
		}

		res, err := strat.Execute(ctx, sctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("strategy %s: %w", strat.Name(), err)
			}
			s.flagStrategyFailure(l, log, strat, err)
			continue
		}
		if !res.Success {
			log.Debug("strategy proposed nothing",
				zap.String("strategy", strat.Name()),
				zap.String("topic", strat.Topic()))
			continue
		}

		inf, err := ledger.NewInference(strat.Topic(), res.Value, s.combineConfidence(pol, l, res), strat.Name())
		if err != nil {
			log.Warn("discarding malformed inference",
				zap.String("strategy", strat.Name()), zap.Error(err))
			continue
		}
		inf.UsedEvidence = res.UsedEvidence
		inf.UsedAssumptions = res.UsedAssumptions
		inf.Explanation = res.Explanation
		inf.Alternatives = res.Alternatives
		inf.Stage = s.Name()
		if err := l.AddInference(inf); err != nil {
			log.Warn("inference append failed",
				zap.String("strategy", strat.Name()), zap.Error(err))
			continue
		}
		appended++
	}

	supplemented := s.patternInferences(l, pol, log, evidence)

	log.Info("inference complete",
		zap.Int("from_strategies", appended),
		zap.Int("from_patterns", supplemented))
	return input, nil
}

// combineConfidence caps a strategy's confidence at the strength of its
// best supporting record: evidence weighted by the policy's source
// reliability, assumptions at their own confidence. An unsupported
// result keeps the strategy's confidence.
func (s *MultiStrategyInference) combineConfidence(pol *policy.Policy, l *ledger.Ledger, res strategy.Result) float64 {
	limit := 0.0
	supported := false
	for _, id := range res.UsedEvidence {
		ev, err := l.Evidence(id)
		if err != nil {
			continue
		}
		supported = true
		if w := ev.Source.Confidence * pol.Reliability(string(ev.Type)); w > limit {
			limit = w
		}
	}
	for _, id := range res.UsedAssumptions {
		a, err := l.Assumption(id)
		if err != nil {
			continue
		}
		supported = true
		if a.Confidence > limit {
			limit = a.Confidence
		}
	}
	if !supported || limit >= res.Confidence {
		return res.Confidence
	}
	return limit
}

func (s *MultiStrategyInference) flagStrategyFailure(l *ledger.Ledger, log *zap.Logger, strat strategy.Strategy, cause error) {
	f, err := ledger.NewFlag(ledger.FlagPolicyViolation, ledger.SeverityMedium,
		fmt.Sprintf("strategy %s failed: %v", strat.Name(), cause))
	if err != nil {
		log.Error("building strategy failure flag", zap.Error(err))
		return
	}
	f.Topic = strat.Topic()
	f.Stage = s.Name()
	if err := l.AddFlag(f); err != nil {
		log.Error("recording strategy failure flag",
			zap.String("strategy", strat.Name()), zap.Error(err))
	}
	log.Warn("strategy failed",
		zap.String("strategy", strat.Name()),
		zap.String("topic", strat.Topic()),
		zap.Error(cause))
}

// patternInferences supplements strategy output for assumption-backed
// topics no strategy covers. An active assumption whose key words all
// appear in at least one evidence record becomes a discounted inference
// tying the assumption to the records that echo it.
func (s *MultiStrategyInference) patternInferences(l *ledger.Ledger, pol *policy.Policy, log *zap.Logger, evidence []*ledger.Evidence) int {
	appended := 0
	done := make(map[string]bool)

	for _, a := range l.ActiveAssumptions() {
		topic := strings.TrimSuffix(a.Key, "_default")
		if done[topic] || s.registry.Covers(topic) {
			continue
		}
		if len(l.InferencesByTopic(topic)) > 0 {
			continue
		}

		matched, best := matchEvidence(pol, evidence, strings.Split(topic, "_"))
		if len(matched) == 0 {
			continue
		}

		confidence := a.Confidence
		if best < confidence {
			confidence = best
		}
		confidence *= patternDiscount

		inf, err := ledger.NewInference(topic, a.Value, confidence, ledger.MethodFromEvidencePatterns)
		if err != nil {
			log.Warn("discarding malformed pattern inference",
				zap.String("topic", topic), zap.Error(err))
			continue
		}
		inf.UsedEvidence = matched
		inf.UsedAssumptions = []string{a.ID}
		inf.Explanation = fmt.Sprintf("assumption %s echoed by %d evidence record(s)", a.Key, len(matched))
		inf.Stage = s.Name()
		if err := l.AddInference(inf); err != nil {
			log.Warn("pattern inference append failed",
				zap.String("topic", topic), zap.Error(err))
			continue
		}
		done[topic] = true
		appended++
	}
	return appended
}

// matchEvidence returns the ids of records containing every keyword,
// plus the best reliability-weighted confidence among them.
func matchEvidence(pol *policy.Policy, evidence []*ledger.Evidence, keywords []string) ([]string, float64) {
	var matched []string
	best := 0.0
	for _, ev := range evidence {
		text := strings.ToUpper(contentText(ev))
		all := true
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if !strings.Contains(text, strings.ToUpper(kw)) {
				all = false
				break
			}
		}
		if !all {
			continue
		}
		matched = append(matched, ev.ID)
		if w := ev.Source.Confidence * pol.Reliability(string(ev.Type)); w > best {
			best = w
		}
	}
	return matched, best
}

// hasInference reports whether the topic already carries an inference
// from the named method, so a retried stage does not double-append.
func hasInference(l *ledger.Ledger, topic, method string) bool {
	for _, inf := range l.InferencesByTopic(topic) {
		if inf.Method == method {
			return true
		}
	}
	return false
}

var _ pipeline.Stage = (*MultiStrategyInference)(nil)
