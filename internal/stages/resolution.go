package stages

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/featureflag"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
	"github.com/plumblinelabs/takeoffd/internal/policy"
)

// ConflictResolution ranks each topic's competing inferences under the
// run's policy and either appends a decision or raises a flag. Ranking
// order is reliability-adjusted confidence; acceptance and gap checks
// run on the raw confidences. Topics already decided are skipped, so a
// retried stage never issues a second decision.
type ConflictResolution struct {
	flags  *featureflag.Service
	logger *zap.Logger
}

// NewConflictResolution creates the resolution stage.
func NewConflictResolution(flags *featureflag.Service, logger *zap.Logger) *ConflictResolution {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictResolution{flags: flags, logger: logger}
}

func (s *ConflictResolution) Name() string { return "conflict_resolution" }

func (s *ConflictResolution) Execute(ctx context.Context, input any, pctx *pipeline.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := s.logger.With(
		zap.String("stage", s.Name()),
		zap.String("trace_id", pctx.TraceID()),
	)
	if s.flags != nil && !s.flags.Enabled(featureflag.UseConflictResolver) {
		log.Warn("conflict resolver disabled, topics left undecided")
		return input, nil
	}

	l := pctx.Ledger()
	pol := pctx.Policy()

	decided, flagged := 0, 0
	for _, topic := range l.Topics() {
		if _, err := l.DecisionByTopic(topic); err == nil {
			continue
		}
		if s.resolveTopic(l, pol, log, topic) {
			decided++
		} else {
			flagged++
		}
	}

	log.Info("resolution complete",
		zap.Int("decided", decided),
		zap.Int("flagged", flagged))
	return input, nil
}

// rankedInference pairs an inference with its reliability-adjusted score.
type rankedInference struct {
	inf      *ledger.Inference
	adjusted float64
}

// resolveTopic applies the policy to one topic. It reports whether a
// decision was appended; otherwise a conflict or low-confidence flag was.
func (s *ConflictResolution) resolveTopic(l *ledger.Ledger, pol *policy.Policy, log *zap.Logger, topic string) bool {
	infs := l.InferencesByTopic(topic)
	ranked := rankByReliability(l, pol, infs)
	top := ranked[0]

	if top.inf.Confidence < pol.Thresholds.AcceptInference {
		s.flagTopic(l, log, ledger.FlagLowConfidence, ledger.SeverityMedium, topic, infs,
			fmt.Sprintf("best inference for %s at %.2f, below the %.2f acceptance threshold",
				topic, top.inf.Confidence, pol.Thresholds.AcceptInference))
		return false
	}

	if len(ranked) == 1 {
		return s.decide(l, pol, log, topic, top.inf, infs,
			fmt.Sprintf("selected %v at confidence %.2f (uncontested)",
				top.inf.Value, top.inf.Confidence),
			"accept_threshold")
	}

	gap := top.inf.Confidence - ranked[1].inf.Confidence
	if gap < 0 {
		gap = 0
	}
	if gap >= pol.Thresholds.ConflictGap {
		return s.decide(l, pol, log, topic, top.inf, infs,
			fmt.Sprintf("selected %v at confidence %.2f, %.2f ahead of the runner-up",
				top.inf.Value, top.inf.Confidence, gap),
			"accept_threshold")
	}

	// Candidates inside the conflict gap. Below the noise floor they are
	// statistically indistinguishable and only a reviewer can resolve it;
	// above, the tiebreaker ordering picks by evidence source.
	noise := pol.Thresholds.ConflictGap * pol.Thresholds.MaxAmbiguity
	if gap > noise {
		if winner, srcType := tiebreak(l, pol, ranked, top.inf.Confidence); winner != nil {
			return s.decide(l, pol, log, topic, winner, infs,
				fmt.Sprintf("selected %v by %s tiebreaker, candidates within %.2f of each other",
					winner.Value, srcType, pol.Thresholds.ConflictGap),
				"tiebreaker:"+srcType)
		}
	}

	s.flagTopic(l, log, ledger.FlagConflict, ledger.SeverityHigh, topic, infs,
		fmt.Sprintf("conflicting values for %s: %v (%.2f) vs %v (%.2f)",
			topic, top.inf.Value, top.inf.Confidence, ranked[1].inf.Value, ranked[1].inf.Confidence))
	return false
}

// rankByReliability orders inferences by confidence weighted with the
// strongest reliability prior among their evidence. Assumption-only
// inferences rank on confidence alone.
func rankByReliability(l *ledger.Ledger, pol *policy.Policy, infs []*ledger.Inference) []rankedInference {
	ranked := make([]rankedInference, 0, len(infs))
	for _, inf := range infs {
		ranked = append(ranked, rankedInference{inf: inf, adjusted: inf.Confidence * bestReliability(l, pol, inf)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].adjusted != ranked[j].adjusted {
			return ranked[i].adjusted > ranked[j].adjusted
		}
		return ranked[i].inf.Confidence > ranked[j].inf.Confidence
	})
	return ranked
}

// bestReliability returns the strongest reliability prior among an
// inference's evidence, or 1.0 when it used none.
func bestReliability(l *ledger.Ledger, pol *policy.Policy, inf *ledger.Inference) float64 {
	best := 0.0
	backed := false
	for _, id := range inf.UsedEvidence {
		ev, err := l.Evidence(id)
		if err != nil {
			continue
		}
		backed = true
		if w := pol.Reliability(string(ev.Type)); w > best {
			best = w
		}
	}
	if !backed {
		return 1.0
	}
	return best
}

// tiebreak walks the policy's source-type ordering and returns the
// best-ranked contender backed by the first type that backs any of them.
// Contenders are inferences within ConflictGap of the leader.
func tiebreak(l *ledger.Ledger, pol *policy.Policy, ranked []rankedInference, topConfidence float64) (*ledger.Inference, string) {
	floor := topConfidence - pol.Thresholds.ConflictGap
	var contenders []rankedInference
	for _, r := range ranked {
		if r.inf.Confidence >= floor {
			contenders = append(contenders, r)
		}
	}

	for _, srcType := range pol.Tiebreakers {
		for _, r := range contenders {
			if backedBy(l, r.inf, srcType) {
				return r.inf, srcType
			}
		}
	}
	return nil, ""
}

// backedBy reports whether any of the inference's evidence is of the
// given source type.
func backedBy(l *ledger.Ledger, inf *ledger.Inference, srcType string) bool {
	for _, id := range inf.UsedEvidence {
		ev, err := l.Evidence(id)
		if err != nil {
			continue
		}
		if string(ev.Type) == srcType {
			return true
		}
	}
	return false
}

// decide appends the decision for a topic, carrying the governing policy
// parameters verbatim and listing every rival inference.
func (s *ConflictResolution) decide(l *ledger.Ledger, pol *policy.Policy, log *zap.Logger, topic string, selected *ledger.Inference, all []*ledger.Inference, justification, rule string) bool {
	competing := make([]string, 0, len(all)-1)
	for _, inf := range all {
		if inf.ID != selected.ID {
			competing = append(competing, inf.ID)
		}
	}

	d, err := ledger.NewDecision(topic, selected.Value, selected.ID, ledger.PolicyUsed{
		PolicyID: pol.ID,
		Thresholds: map[string]float64{
			"accept_inference": pol.Thresholds.AcceptInference,
			"conflict_gap":     pol.Thresholds.ConflictGap,
			"max_ambiguity":    pol.Thresholds.MaxAmbiguity,
		},
		Tiebreakers:  append([]string(nil), pol.Tiebreakers...),
		AppliedRules: []string{rule},
	})
	if err != nil {
		log.Error("building decision", zap.String("topic", topic), zap.Error(err))
		return false
	}
	d.CompetingInferences = competing
	d.Justification = justification
	d.Stage = s.Name()
	if err := l.AddDecision(d); err != nil {
		log.Error("decision append failed", zap.String("topic", topic), zap.Error(err))
		return false
	}

	log.Info("topic decided",
		zap.String("topic", topic),
		zap.Any("value", selected.Value),
		zap.Float64("confidence", selected.Confidence),
		zap.String("rule", rule))
	return true
}

// flagTopic raises one flag naming every inference considered.
func (s *ConflictResolution) flagTopic(l *ledger.Ledger, log *zap.Logger, t ledger.FlagType, severity ledger.Severity, topic string, infs []*ledger.Inference, message string) {
	f, err := ledger.NewFlag(t, severity, message)
	if err != nil {
		log.Error("building flag", zap.String("topic", topic), zap.Error(err))
		return
	}
	f.Topic = topic
	f.Stage = s.Name()
	for _, inf := range infs {
		f.InferenceIDs = append(f.InferenceIDs, inf.ID)
	}
	if err := l.AddFlag(f); err != nil {
		log.Error("flag append failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	log.Warn("topic flagged",
		zap.String("topic", topic),
		zap.String("type", string(t)),
		zap.String("severity", string(severity)),
		zap.String("message", message))
}

var _ pipeline.Stage = (*ConflictResolution)(nil)
