package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// Version is stamped into every encoded snapshot. Decoders reject images
// written by a newer takeoffd.
const Version = 1

// Snapshot is the serialized image of one run's ledger. Slices keep the
// ledger's append order; rebuilding depends on it.
//
// Values of type any round-trip through JSON, so numeric values come back
// as float64 regardless of how they were appended.
type Snapshot struct {
	Version  int    `json:"version"`
	LedgerID string `json:"ledger_id"`
	RunID    string `json:"run_id"`
	PolicyID string `json:"policy_id"`

	Metadata ledger.RunMetadata `json:"metadata"`

	Evidence    []*ledger.Evidence   `json:"evidence,omitempty"`
	Assumptions []*ledger.Assumption `json:"assumptions,omitempty"`
	Inferences  []*ledger.Inference  `json:"inferences,omitempty"`
	Decisions   []*ledger.Decision   `json:"decisions,omitempty"`
	Flags       []*ledger.Flag       `json:"flags,omitempty"`
}

// Capture copies a ledger into its snapshot form. The ledger may still be
// live; the accessors hand back stable copies of the append order.
func Capture(l *ledger.Ledger) *Snapshot {
	return &Snapshot{
		Version:     Version,
		LedgerID:    l.ID(),
		RunID:       l.RunID(),
		PolicyID:    l.PolicyID(),
		Metadata:    l.Metadata(),
		Evidence:    l.AllEvidence(),
		Assumptions: l.AllAssumptions(),
		Inferences:  l.AllInferences(),
		Decisions:   l.AllDecisions(),
		Flags:       l.AllFlags(),
	}
}

// Encode renders the snapshot as indented JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses an encoded snapshot and checks its version.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if s.Version > Version {
		return nil, fmt.Errorf("%w: version %d is newer than supported %d", ErrCorrupted, s.Version, Version)
	}
	if s.RunID == "" || s.LedgerID == "" {
		return nil, fmt.Errorf("%w: missing ledger identity", ErrCorrupted)
	}
	return &s, nil
}
