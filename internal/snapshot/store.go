// Package snapshot persists completed ledgers and rebuilds them later.
//
// A snapshot is the full JSON image of one run's ledger, written through a
// small key/value Store contract so callers can swap the in-memory store
// (tests, ephemeral runs) for the filesystem store (daemon) without touching
// the codec or the replay loader. Keys follow the fixed
// "ledger:<documentID>:<runID>" form so one document's runs share a prefix.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Errors for snapshot operations.
var (
	ErrNotFound   = errors.New("snapshot not found")
	ErrInvalidKey = errors.New("invalid snapshot key")
	ErrCorrupted  = errors.New("snapshot corrupted")
	ErrIntegrity  = errors.New("ledger failed integrity audit")
)

// KeyPrefix starts every ledger snapshot key.
const KeyPrefix = "ledger:"

// idPattern constrains the ids embedded in keys to filesystem-safe names.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Store is the persistence contract snapshots are written through. Values
// are opaque bytes; implementations must not interpret them.
type Store interface {
	// Get returns the value for a key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes a value, replacing any previous value for the key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key, or returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// List returns the stored keys with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ValidateID checks that an id is safe to embed in a snapshot key. Rejects
// empty names, path separators and traversal forms.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidKey)
	}
	if len(id) > 255 {
		return fmt.Errorf("%w: id too long (max 255)", ErrInvalidKey)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: traversal id %q", ErrInvalidKey, id)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: id %q must be alphanumeric with dots, hyphens or underscores", ErrInvalidKey, id)
	}
	return nil
}

// Key builds the snapshot key for one run of one document.
func Key(documentID, runID string) string {
	return KeyPrefix + documentID + ":" + runID
}

// DocumentPrefix builds the shared key prefix of all of a document's runs.
func DocumentPrefix(documentID string) string {
	return KeyPrefix + documentID + ":"
}

// SplitKey breaks a snapshot key back into its document and run ids.
func SplitKey(key string) (documentID, runID string, err error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q lacks the %q prefix", ErrInvalidKey, key, KeyPrefix)
	}
	documentID, runID, ok = strings.Cut(rest, ":")
	if !ok || documentID == "" || runID == "" {
		return "", "", fmt.Errorf("%w: %q is not ledger:<document>:<run>", ErrInvalidKey, key)
	}
	return documentID, runID, nil
}
