package store

import (
	"maps"
	"sort"
)

// IDProperty is the reserved property name under which the id is addressed.
// It is never part of the property map.
const IDProperty = "id"

// State is the lifecycle state of an in-memory entity relative to the store.
type State int

const (
	// StateTransient entities have never been written.
	StateTransient State = iota

	// StatePersisted entities exist remotely under their id.
	StatePersisted

	// StateDestroyed entities were deleted remotely. The last known id is
	// kept so the entity can still be referenced or saved again.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateTransient:
		return "transient"
	case StatePersisted:
		return "persisted"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Properties maps property names to values.
type Properties map[string]Value

// Entity is an instance of a kind: an optional id plus an open set of
// scalar properties.
//
// Entity is not safe for concurrent mutation.
type Entity struct {
	kind  string
	id    Value
	props Properties
	state State
}

// NewEntity returns a transient entity. A property named "id" sets the id
// instead of becoming a property.
func NewEntity(kind string, props Properties) *Entity {
	e := &Entity{
		kind:  kind,
		props: make(Properties, len(props)),
	}
	for name, v := range props {
		e.Set(name, v)
	}
	return e
}

// Kind returns the entity's kind.
func (e *Entity) Kind() string {
	return e.kind
}

// ID returns the entity id and whether one is assigned. An id set to a
// non-integer value reports false.
func (e *Entity) ID() (int64, bool) {
	n, ok := e.id.(Int)
	return int64(n), ok
}

// SetID assigns the id explicitly.
func (e *Entity) SetID(id int64) {
	e.id = Int(id)
}

// State returns the lifecycle state.
func (e *Entity) State() State {
	return e.state
}

// Get returns the named property.
func (e *Entity) Get(name string) (Value, bool) {
	if name == IDProperty {
		return e.id, e.id != nil
	}
	v, ok := e.props[name]
	return v, ok
}

// Set assigns a property. Setting "id" assigns the id, which makes the
// entity invalid unless v is a positive Int.
func (e *Entity) Set(name string, v Value) {
	if name == IDProperty {
		e.id = v
		return
	}
	if e.props == nil {
		e.props = make(Properties)
	}
	e.props[name] = normalize(v)
}

// SetAny converts v with ValueOf and assigns it. The entity is left
// unchanged when v has no wire representation.
func (e *Entity) SetAny(name string, v any) error {
	val, err := ValueOf(v)
	if err != nil {
		return err
	}
	e.Set(name, val)
	return nil
}

// Unset removes a property.
func (e *Entity) Unset(name string) {
	if name == IDProperty {
		e.id = nil
		return
	}
	delete(e.props, name)
}

// Properties returns a copy of the property map.
func (e *Entity) Properties() Properties {
	return maps.Clone(e.props)
}

// Names returns the property names in sorted order.
func (e *Entity) Names() []string {
	names := make([]string, 0, len(e.props))
	for name := range e.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two entities have the same kind, id and
// properties. Lifecycle state is not compared.
func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.kind != other.kind || !Equal(e.id, other.id) || len(e.props) != len(other.props) {
		return false
	}
	for name, v := range e.props {
		ov, ok := other.props[name]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}
