package ledger

import "errors"

// Common errors for ledger operations.
var (
	// ErrNilEntity is returned when a nil entity is passed to an append operation.
	ErrNilEntity = errors.New("entity cannot be nil")

	// ErrNotFound is returned by point lookups when no entity has the given id.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateID is returned when an append would reuse an existing id.
	ErrDuplicateID = errors.New("duplicate entity id")

	// ErrMissingReference is returned when an append references ids that are
	// not present in the ledger. The wrapped message lists every missing id.
	ErrMissingReference = errors.New("missing reference")

	// ErrInvalidConfidence is returned when a confidence score falls outside [0.0, 1.0].
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")

	// ErrEmptyKey is returned when an assumption has no key.
	ErrEmptyKey = errors.New("assumption key cannot be empty")

	// ErrEmptyTopic is returned when an inference or decision has no topic.
	ErrEmptyTopic = errors.New("topic cannot be empty")

	// ErrEmptyMessage is returned when a flag carries no message.
	ErrEmptyMessage = errors.New("flag message cannot be empty")

	// ErrInvalidType is returned for an unknown evidence type, basis, flag type
	// or severity value.
	ErrInvalidType = errors.New("invalid enum value")

	// ErrEmptyContent is returned when evidence content carries no payload.
	ErrEmptyContent = errors.New("evidence content cannot be empty")

	// ErrAmbiguousContent is returned when evidence content carries more than
	// one payload. Exactly one payload, matching the evidence type, must be set.
	ErrAmbiguousContent = errors.New("evidence content must carry exactly one payload")

	// ErrContentMismatch is returned when the populated content payload does
	// not correspond to the declared evidence type.
	ErrContentMismatch = errors.New("evidence content does not match evidence type")
)
