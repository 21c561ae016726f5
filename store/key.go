package store

import (
	"fmt"

	"github.com/jacentio/canopy/wire"
)

// MakeKey builds the single-segment key for an entity of the given kind.
// An id <= 0 produces a kind-only key, which the store reads as a request
// to allocate an id.
func MakeKey(kind string, id int64) wire.Key {
	elem := wire.PathElement{Kind: kind}
	if id > 0 {
		elem.ID = wire.Int64(id)
	}
	return wire.Key{Path: []wire.PathElement{elem}}
}

// KeyID extracts the kind and id from a single-segment key.
func KeyID(key wire.Key) (string, int64, error) {
	if len(key.Path) != 1 {
		return "", 0, fmt.Errorf("%w: key path has %d elements", ErrMalformedResponse, len(key.Path))
	}

	elem := key.Path[0]
	if elem.Kind == "" {
		return "", 0, fmt.Errorf("%w: key has no kind", ErrMalformedResponse)
	}
	if elem.ID <= 0 {
		return "", 0, fmt.Errorf("%w: key %s has no id", ErrMalformedResponse, elem.Kind)
	}

	return elem.Kind, int64(elem.ID), nil
}
