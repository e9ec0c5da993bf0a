package snapshot

import (
	"context"
	"fmt"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// Save audits a ledger and writes its snapshot under the run's key. A
// ledger that fails the integrity audit is never persisted; the error names
// the first violation so the caller can log something actionable.
func Save(ctx context.Context, store Store, documentID string, l *ledger.Ledger) error {
	if err := ValidateID(documentID); err != nil {
		return err
	}
	if err := ValidateID(l.RunID()); err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	if violations := l.ValidateIntegrity(); len(violations) > 0 {
		return fmt.Errorf("%w: %d violation(s), first: %s", ErrIntegrity, len(violations), violations[0])
	}

	data, err := Capture(l).Encode()
	if err != nil {
		return err
	}
	if err := store.Set(ctx, Key(documentID, l.RunID()), data); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Load fetches and rebuilds the ledger for one run of one document.
func Load(ctx context.Context, store Store, documentID, runID string) (*ledger.Ledger, error) {
	data, err := store.Get(ctx, Key(documentID, runID))
	if err != nil {
		return nil, err
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return snap.Rebuild()
}

// Rebuild replays the snapshot into a fresh ledger through the same append
// path a live run uses, so every schema and reference invariant is checked
// again. A snapshot that no longer satisfies them is reported as corrupted.
//
// Replay preserves stored supersession expiries: the append path only
// stamps an expiry that is still nil, and stored records carry theirs.
func (s *Snapshot) Rebuild() (*ledger.Ledger, error) {
	l := ledger.Restore(s.LedgerID, s.RunID, s.PolicyID, s.Metadata.CreatedAt)

	for _, ev := range s.Evidence {
		if err := l.AddEvidence(ev); err != nil {
			return nil, fmt.Errorf("%w: replay evidence: %v", ErrCorrupted, err)
		}
	}
	for _, a := range s.Assumptions {
		if err := l.AddAssumption(a); err != nil {
			return nil, fmt.Errorf("%w: replay assumption: %v", ErrCorrupted, err)
		}
	}
	for _, inf := range s.Inferences {
		if err := l.AddInference(inf); err != nil {
			return nil, fmt.Errorf("%w: replay inference: %v", ErrCorrupted, err)
		}
	}
	for _, d := range s.Decisions {
		if err := l.AddDecision(d); err != nil {
			return nil, fmt.Errorf("%w: replay decision: %v", ErrCorrupted, err)
		}
	}
	for _, f := range s.Flags {
		if err := l.AddFlag(f); err != nil {
			return nil, fmt.Errorf("%w: replay flag: %v", ErrCorrupted, err)
		}
	}

	l.SetMetadata(s.Metadata)
	return l, nil
}

// Runs lists the stored run ids for a document, newest key order not
// guaranteed; keys sort lexicographically.
func Runs(ctx context.Context, store Store, documentID string) ([]string, error) {
	if err := ValidateID(documentID); err != nil {
		return nil, err
	}
	keys, err := store.List(ctx, DocumentPrefix(documentID))
	if err != nil {
		return nil, err
	}
	runs := make([]string, 0, len(keys))
	for _, key := range keys {
		_, runID, err := SplitKey(key)
		if err != nil {
			return nil, err
		}
		runs = append(runs, runID)
	}
	return runs, nil
}
