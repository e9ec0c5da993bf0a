// Package audit streams ledger append events to NATS.
//
// Every successful append on a subscribed ledger becomes one message on
//
//	takeoff.audit.<runID>.<entity>
//
// where entity is the record kind (evidence, assumption, inference,
// decision, flag). Consumers subscribe with takeoff.audit.<runID>.> to
// follow a run, or takeoff.audit.> to follow the daemon. Publishing is
// fire-and-forget: the ledger calls observers synchronously, so a broker
// outage must never fail or stall a pipeline run.
package audit

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/featureflag"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// SubjectRoot prefixes every audit subject.
const SubjectRoot = "takeoff.audit"

// Subject returns the audit subject for one run and entity kind.
func Subject(runID string, kind ledger.EntityKind) string {
	return fmt.Sprintf("%s.%s.%s", SubjectRoot, runID, kind)
}

// RunSubject returns the wildcard subject covering all of a run's events.
func RunSubject(runID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectRoot, runID)
}

// Trail publishes ledger append events. It implements ledger.Observer;
// wire it with Ledger.Subscribe before the run starts.
type Trail struct {
	nc     *nats.Conn
	flags  *featureflag.Service
	logger *zap.Logger
}

// NewTrail creates a trail over an established NATS connection. The
// connection is borrowed: the caller owns its lifecycle. A nil flag
// service leaves the trail always on.
func NewTrail(nc *nats.Conn, flags *featureflag.Service, logger *zap.Logger) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{nc: nc, flags: flags, logger: logger}
}

// LedgerAppended implements ledger.Observer. The audit flag is consulted
// per event, so toggling it mid-run takes effect immediately. Publish
// failures are logged and swallowed; the append that triggered the event
// has already committed.
func (t *Trail) LedgerAppended(event ledger.AppendEvent) {
	if t.flags != nil && !t.flags.Enabled(featureflag.EnableAuditTrail) {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.logger.Error("marshal audit event",
			zap.String("run_id", event.RunID),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
		return
	}

	subject := Subject(event.RunID, event.Kind)
	if err := t.nc.Publish(subject, data); err != nil {
		t.logger.Warn("publish audit event",
			zap.String("subject", subject),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

var _ ledger.Observer = (*Trail)(nil)
