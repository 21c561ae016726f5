package store

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacentio/canopy/wire"
)

// Repository is the CRUD surface for one kind.
//
// Every operation issues at most one remote call, outside a transaction,
// and returns transport errors unchanged.
type Repository struct {
	store *Store
	kind  string
}

// Kind returns the repository's kind.
func (r *Repository) Kind() string {
	return r.kind
}

// New returns a transient entity of the repository's kind.
func (r *Repository) New(props Properties) *Entity {
	return NewEntity(r.kind, props)
}

// Find looks up the entity with the given id. A missing entity is reported
// as (nil, false, nil).
func (r *Repository) Find(ctx context.Context, id int64) (_ *Entity, _ bool, err error) {
	ctx, span := r.store.tracer.Start(ctx, "find", trace.WithAttributes(
		attribute.String(TraceAttributeKind, r.kind),
		attribute.Int64(TraceAttributeID, id),
	))
	defer func() { endSpan(span, err) }()

	if id <= 0 {
		return nil, false, nil
	}

	resp, err := r.store.lookup(ctx, MakeKey(r.kind, id))
	if err != nil {
		return nil, false, err
	}

	if len(resp.Found) == 0 {
		r.store.logger.Debug("entity not found", "kind", r.kind, "id", id)
		return nil, false, nil
	}

	e, err := r.fromWire(resp.Found[0].Entity)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// All returns every entity of the repository's kind.
func (r *Repository) All(ctx context.Context) (_ []*Entity, err error) {
	ctx, span := r.store.tracer.Start(ctx, "all", trace.WithAttributes(
		attribute.String(TraceAttributeKind, r.kind),
	))
	defer func() { endSpan(span, err) }()

	return r.query(ctx, BuildAll(r.kind))
}

// Where returns the entities matching every filter.
func (r *Repository) Where(ctx context.Context, filters ...Filter) (_ []*Entity, err error) {
	ctx, span := r.store.tracer.Start(ctx, "where", trace.WithAttributes(
		attribute.String(TraceAttributeKind, r.kind),
		attribute.Int("canopy.filters", len(filters)),
	))
	defer func() { endSpan(span, err) }()

	if err = checkFilters(filters); err != nil {
		return nil, err
	}

	return r.query(ctx, BuildWhere(r.kind, filters))
}

// Create builds a transient entity from props and saves it. The entity is
// returned even when saving fails; ErrInvalidEntity reports a validation
// failure.
func (r *Repository) Create(ctx context.Context, props Properties) (*Entity, error) {
	e := r.New(props)

	ok, err := r.Save(ctx, e)
	if err != nil {
		return e, err
	}
	if !ok {
		return e, ErrInvalidEntity
	}
	return e, nil
}

// Save writes e. It returns false without a remote call when e is not
// valid. An entity without an id is inserted and receives the id the store
// allocates; an entity with an id replaces the stored property set.
//
// Inside a transaction the write is queued and takes effect, including id
// assignment, when the transaction commits.
func (r *Repository) Save(ctx context.Context, e *Entity) (_ bool, err error) {
	ctx, span := r.store.tracer.Start(ctx, "save", trace.WithAttributes(
		attribute.String(TraceAttributeKind, r.kind),
	))
	defer func() { endSpan(span, err) }()

	if e == nil {
		return false, nil
	}
	if err = r.checkKind(e); err != nil {
		return false, err
	}
	if !IsValid(e) {
		r.store.logger.Debug("refusing to save invalid entity", "kind", r.kind)
		return false, nil
	}

	tx, err := txFromContext(ctx)
	if err != nil {
		return false, err
	}
	if tx != nil {
		tx.queueSave(e)
		return true, nil
	}

	id, hasID := e.ID()
	if !hasID {
		return r.insert(ctx, e)
	}

	span.SetAttributes(attribute.Int64(TraceAttributeID, id))
	if _, err = r.store.blindWrite(ctx, wire.Mutation{Upsert: []wire.Entity{ToWireEntity(e)}}); err != nil {
		return false, err
	}

	e.state = StatePersisted
	r.store.logger.Debug("entity upserted", "kind", r.kind, "id", id)
	return true, nil
}

// Destroy deletes e from the store. Entities without an id are left alone.
// The id is kept after deletion and the entity moves to StateDestroyed.
func (r *Repository) Destroy(ctx context.Context, e *Entity) (err error) {
	ctx, span := r.store.tracer.Start(ctx, "destroy", trace.WithAttributes(
		attribute.String(TraceAttributeKind, r.kind),
	))
	defer func() { endSpan(span, err) }()

	if err = r.checkKind(e); err != nil {
		return err
	}

	tx, err := txFromContext(ctx)
	if err != nil {
		return err
	}

	id, hasID := e.ID()
	if tx != nil {
		tx.queueDestroy(e)
		return nil
	}
	if !hasID || id <= 0 {
		return nil
	}

	span.SetAttributes(attribute.Int64(TraceAttributeID, id))
	if _, err = r.store.blindWrite(ctx, wire.Mutation{Delete: []wire.Key{MakeKey(r.kind, id)}}); err != nil {
		return err
	}

	e.state = StateDestroyed
	r.store.logger.Debug("entity destroyed", "kind", r.kind, "id", id)
	return nil
}

func (r *Repository) insert(ctx context.Context, e *Entity) (bool, error) {
	resp, err := r.store.blindWrite(ctx, wire.Mutation{InsertAutoID: []wire.Entity{ToWireEntity(e)}})
	if err != nil {
		return false, err
	}

	if len(resp.MutationResult.InsertAutoIDKeys) != 1 {
		return false, fmt.Errorf("%w: expected 1 allocated key, got %d", ErrMalformedResponse, len(resp.MutationResult.InsertAutoIDKeys))
	}
	_, id, err := KeyID(resp.MutationResult.InsertAutoIDKeys[0])
	if err != nil {
		return false, err
	}

	e.id = Int(id)
	e.state = StatePersisted
	r.store.logger.Debug("entity inserted", "kind", r.kind, "id", id)
	return true, nil
}

func (r *Repository) query(ctx context.Context, q wire.Query) ([]*Entity, error) {
	resp, err := r.store.runQuery(ctx, q)
	if err != nil {
		return nil, err
	}

	results := resp.Batch.EntityResults
	entities := make([]*Entity, 0, len(results))
	for _, res := range results {
		e, err := r.fromWire(res.Entity)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	r.store.logger.Debug("query completed", "kind", r.kind, "count", len(entities))
	return entities, nil
}

func (r *Repository) fromWire(rec wire.Entity) (*Entity, error) {
	e, err := FromWire(rec)
	if err != nil {
		return nil, err
	}
	if e.kind != r.kind {
		return nil, fmt.Errorf("%w: got %s record from %s query", ErrMalformedResponse, e.kind, r.kind)
	}
	return e, nil
}

func (r *Repository) checkKind(e *Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrKindMismatch)
	}
	if e.kind != r.kind {
		return fmt.Errorf("%w: %s entity in %s repository", ErrKindMismatch, e.kind, r.kind)
	}
	return nil
}
