package store

import "errors"

var (
	// ErrInvalidEntity is returned by Create when the entity fails validation
	// and was therefore never written.
	ErrInvalidEntity = errors.New("canopy: entity is not valid")

	// ErrMalformedResponse is returned when a record from the store does not
	// match the mapping rules (missing key path, multi-valued property,
	// unknown or empty value tag).
	ErrMalformedResponse = errors.New("canopy: malformed response")

	// ErrUnsupportedValue is returned when a native value has no wire
	// representation. Encode panics with it, since a Value can only be one of
	// the supported kinds.
	ErrUnsupportedValue = errors.New("canopy: unsupported value kind")

	// ErrKindMismatch is returned when an entity is handed to a repository of
	// a different kind.
	ErrKindMismatch = errors.New("canopy: entity kind does not match repository")

	// ErrTransactionDone is returned when a transaction context is used after
	// its commit or rollback.
	ErrTransactionDone = errors.New("canopy: transaction already finished")
)
