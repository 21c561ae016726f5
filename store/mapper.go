package store

import (
	"fmt"

	"github.com/jacentio/canopy/wire"
)

// FromWire converts a stored record into a persisted Entity. A record
// without properties yields an entity with an empty property map.
func FromWire(rec wire.Entity) (*Entity, error) {
	kind, id, err := KeyID(rec.Key)
	if err != nil {
		return nil, err
	}

	e := &Entity{
		kind:  kind,
		id:    Int(id),
		props: make(Properties, len(rec.Properties)),
		state: StatePersisted,
	}

	for name, prop := range rec.Properties {
		if name == IDProperty {
			return nil, fmt.Errorf("%w: %s/%d carries a property named %q", ErrMalformedResponse, kind, id, IDProperty)
		}
		if len(prop.Values) != 1 {
			return nil, fmt.Errorf("%w: property %q has %d values", ErrMalformedResponse, name, len(prop.Values))
		}

		v, err := Decode(prop.Values[0])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		e.props[name] = v
	}

	return e, nil
}

// ToWireProperties wraps each property as a single-valued list of its
// encoded value. The id is never emitted.
func ToWireProperties(e *Entity) map[string]wire.Property {
	props := make(map[string]wire.Property, len(e.props))
	for name, v := range e.props {
		props[name] = wire.Property{Values: []wire.Value{Encode(v)}}
	}
	return props
}

// ToWireEntity builds the full wire record for e, keyed by its id when it
// has one.
func ToWireEntity(e *Entity) wire.Entity {
	id, _ := e.ID()
	return wire.Entity{
		Key:        MakeKey(e.kind, id),
		Properties: ToWireProperties(e),
	}
}
