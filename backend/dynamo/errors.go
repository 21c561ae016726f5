package dynamo

import "errors"

var (
	// ErrConflict is returned when a write loses a condition check, such as
	// an allocated id that is already taken by a caller-chosen id.
	ErrConflict = errors.New("canopy/dynamo: conflicting write")

	// ErrTooManyWrites is returned when a commit holds more writes than a
	// single DynamoDB transaction accepts.
	ErrTooManyWrites = errors.New("canopy/dynamo: too many writes in one commit")

	// ErrUnknownTransaction is returned for a transaction handle that was
	// never begun or has already finished.
	ErrUnknownTransaction = errors.New("canopy/dynamo: unknown transaction")

	// ErrUnsupportedRequest is returned when a method is called with a
	// request or response of the wrong type.
	ErrUnsupportedRequest = errors.New("canopy/dynamo: unsupported request")

	// ErrInvalidKey is returned for keys that are not a single kind/id segment.
	ErrInvalidKey = errors.New("canopy/dynamo: invalid key")

	// ErrUnsupportedFilter is returned for filter operators other than
	// "and" and "equal".
	ErrUnsupportedFilter = errors.New("canopy/dynamo: unsupported filter")

	// ErrInvalidValue is returned for values DynamoDB cannot store, such as
	// NaN, or for stored attributes that are not wire values.
	ErrInvalidValue = errors.New("canopy/dynamo: invalid value")
)
