// Package takeoff is the append surface external collaborators integrate
// through.
//
// Extraction adapters, enrichment modules and pricing engines record
// provenance by appending evidence, inferences, decisions and flags to a
// run's ledger. Integration is opt-in and additive: a Collector without a
// ledger accepts every call and does nothing, so collaborating code never
// branches on whether provenance recording is enabled.
package takeoff

import (
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/snapshot"
)

// Collector appends provenance records to an optional ledger.
//
// A nil ledger makes every append a silent no-op that returns nil. With a
// ledger attached, appends go through the ledger's own validation and
// referential checks, and their errors are returned unchanged.
type Collector struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewCollector creates a collector for the given ledger. Both arguments may
// be nil: a nil ledger detaches the collector, a nil logger disables its
// debug logging.
func NewCollector(l *ledger.Ledger, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{ledger: l, logger: logger}
}

// Detached creates a collector with no ledger. Every append is a no-op.
func Detached() *Collector {
	return NewCollector(nil, nil)
}

// Attached reports whether appends reach a ledger.
func (c *Collector) Attached() bool {
	return c.ledger != nil
}

// AppendEvidence records a piece of evidence.
func (c *Collector) AppendEvidence(ev *Evidence) error {
	if c.ledger == nil {
		return nil
	}
	if err := c.ledger.AddEvidence(ev); err != nil {
		return err
	}
	c.logger.Debug("appended evidence",
		zap.String("evidence_id", ev.ID),
		zap.String("type", string(ev.Type)))
	return nil
}

// AppendInference records a candidate answer to a topic. Every evidence and
// assumption id the inference references must already be in the ledger.
func (c *Collector) AppendInference(inf *Inference) error {
	if c.ledger == nil {
		return nil
	}
	if err := c.ledger.AddInference(inf); err != nil {
		return err
	}
	c.logger.Debug("appended inference",
		zap.String("inference_id", inf.ID),
		zap.String("topic", inf.Topic))
	return nil
}

// AppendDecision records a resolved answer. The selected and competing
// inference ids must already be in the ledger.
func (c *Collector) AppendDecision(d *Decision) error {
	if c.ledger == nil {
		return nil
	}
	if err := c.ledger.AddDecision(d); err != nil {
		return err
	}
	c.logger.Debug("appended decision",
		zap.String("decision_id", d.ID),
		zap.String("topic", d.Topic))
	return nil
}

// AppendFlag records an issue for human review. Every id the flag
// references must already be in the ledger.
func (c *Collector) AppendFlag(f *Flag) error {
	if c.ledger == nil {
		return nil
	}
	if err := c.ledger.AddFlag(f); err != nil {
		return err
	}
	c.logger.Debug("appended flag",
		zap.String("flag_id", f.ID),
		zap.String("type", string(f.Type)),
		zap.String("severity", string(f.Severity)))
	return nil
}

// Snapshot returns the current image of the attached ledger, or nil when
// detached. The ledger may still be live; the image is a stable copy.
func (c *Collector) Snapshot() *Snapshot {
	if c.ledger == nil {
		return nil
	}
	return snapshot.Capture(c.ledger)
}
