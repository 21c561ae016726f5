// Package memory provides an in-process store.Executor.
//
// It implements the same wire semantics as the remote store: per-kind id
// allocation, type-exact equality filters, blind writes and transactions
// whose writes are applied atomically on commit. It is meant for tests and
// local tooling.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/canopy/wire"
)

var (
	// ErrUnknownTransaction is returned for commit or rollback of a handle
	// that was never begun or has already finished.
	ErrUnknownTransaction = errors.New("canopy/memory: unknown transaction")

	// ErrUnsupportedRequest is returned when a method is called with a
	// request or response of the wrong type.
	ErrUnsupportedRequest = errors.New("canopy/memory: unsupported request")

	// ErrInvalidMutation is returned for writes with malformed keys.
	ErrInvalidMutation = errors.New("canopy/memory: invalid mutation")

	// ErrUnsupportedFilter is returned for filter operators other than
	// "and" and "equal".
	ErrUnsupportedFilter = errors.New("canopy/memory: unsupported filter")
)

// Executor is an in-memory document store. The zero value is not usable;
// call New.
type Executor struct {
	mu      sync.Mutex
	kinds   map[string]map[int64]wire.Entity
	nextID  map[string]int64
	openTxs map[string]struct{}
}

// New returns an empty store.
func New() *Executor {
	return &Executor{
		kinds:   make(map[string]map[int64]wire.Entity),
		nextID:  make(map[string]int64),
		openTxs: make(map[string]struct{}),
	}
}

// Len returns the number of stored entities of kind.
func (x *Executor) Len(kind string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.kinds[kind])
}

// Execute dispatches method against the in-memory state.
func (x *Executor) Execute(ctx context.Context, method wire.Method, request, response any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	switch method {
	case wire.MethodLookup:
		req, ok1 := request.(*wire.LookupRequest)
		resp, ok2 := response.(*wire.LookupResponse)
		if !ok1 || !ok2 {
			break
		}
		return x.lookup(req, resp)

	case wire.MethodRunQuery:
		req, ok1 := request.(*wire.RunQueryRequest)
		resp, ok2 := response.(*wire.RunQueryResponse)
		if !ok1 || !ok2 {
			break
		}
		return x.runQuery(req, resp)

	case wire.MethodBlindWrite:
		req, ok1 := request.(*wire.BlindWriteRequest)
		resp, ok2 := response.(*wire.BlindWriteResponse)
		if !ok1 || !ok2 {
			break
		}
		result, err := x.apply(req.Mutation)
		if err != nil {
			return err
		}
		resp.MutationResult = result
		return nil

	case wire.MethodBeginTransaction:
		resp, ok := response.(*wire.BeginTransactionResponse)
		if !ok {
			break
		}
		handle := uuid.NewString()
		x.openTxs[handle] = struct{}{}
		resp.Transaction = handle
		return nil

	case wire.MethodCommit:
		req, ok1 := request.(*wire.CommitRequest)
		resp, ok2 := response.(*wire.CommitResponse)
		if !ok1 || !ok2 {
			break
		}
		if _, open := x.openTxs[req.Transaction]; !open {
			return ErrUnknownTransaction
		}
		delete(x.openTxs, req.Transaction)
		result, err := x.apply(req.Mutation)
		if err != nil {
			return err
		}
		resp.MutationResult = result
		return nil

	case wire.MethodRollback:
		req, ok := request.(*wire.RollbackRequest)
		if !ok {
			break
		}
		if _, open := x.openTxs[req.Transaction]; !open {
			return ErrUnknownTransaction
		}
		delete(x.openTxs, req.Transaction)
		return nil
	}

	return fmt.Errorf("%w: %s with %T/%T", ErrUnsupportedRequest, method, request, response)
}

func (x *Executor) lookup(req *wire.LookupRequest, resp *wire.LookupResponse) error {
	if err := x.checkRead(req.ReadOptions); err != nil {
		return err
	}

	resp.Found = resp.Found[:0]
	resp.Missing = resp.Missing[:0]
	for _, key := range req.Keys {
		kind, id, err := keyParts(key)
		if err != nil {
			return err
		}
		if rec, ok := x.kinds[kind][id]; ok {
			resp.Found = append(resp.Found, wire.EntityResult{Entity: cloneEntity(rec)})
		} else {
			resp.Missing = append(resp.Missing, wire.EntityResult{Entity: wire.Entity{Key: key}})
		}
	}
	return nil
}

func (x *Executor) runQuery(req *wire.RunQueryRequest, resp *wire.RunQueryResponse) error {
	if err := x.checkRead(req.ReadOptions); err != nil {
		return err
	}

	results := []wire.EntityResult{}
	for _, k := range req.Query.Kinds {
		records := x.kinds[k.Name]

		ids := make([]int64, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			rec := records[id]
			ok, err := matches(rec, req.Query.Filter)
			if err != nil {
				return err
			}
			if ok {
				results = append(results, wire.EntityResult{Entity: cloneEntity(rec)})
			}
		}
	}

	resp.Batch.EntityResults = results
	return nil
}

func (x *Executor) checkRead(opts *wire.ReadOptions) error {
	if opts == nil || opts.Transaction == "" {
		return nil
	}
	if _, open := x.openTxs[opts.Transaction]; !open {
		return ErrUnknownTransaction
	}
	return nil
}

// apply validates m in full before changing any state.
func (x *Executor) apply(m wire.Mutation) (wire.MutationResult, error) {
	for _, e := range m.Upsert {
		if _, _, err := keyParts(e.Key); err != nil {
			return wire.MutationResult{}, err
		}
	}
	for _, e := range m.InsertAutoID {
		if len(e.Key.Path) != 1 || e.Key.Path[0].Kind == "" || e.Key.Path[0].ID != 0 {
			return wire.MutationResult{}, fmt.Errorf("%w: insertAutoId needs a kind-only key", ErrInvalidMutation)
		}
	}
	for _, key := range m.Delete {
		if _, _, err := keyParts(key); err != nil {
			return wire.MutationResult{}, err
		}
	}

	for _, e := range m.Upsert {
		kind, id, _ := keyParts(e.Key)
		x.put(kind, id, e)
		if id >= x.nextID[kind] {
			x.nextID[kind] = id
		}
	}

	var result wire.MutationResult
	for _, e := range m.InsertAutoID {
		kind := e.Key.Path[0].Kind
		x.nextID[kind]++
		id := x.nextID[kind]

		key := wire.Key{Path: []wire.PathElement{{Kind: kind, ID: wire.Int64(id)}}}
		x.put(kind, id, wire.Entity{Key: key, Properties: e.Properties})
		result.InsertAutoIDKeys = append(result.InsertAutoIDKeys, key)
	}

	for _, key := range m.Delete {
		kind, id, _ := keyParts(key)
		delete(x.kinds[kind], id)
	}

	return result, nil
}

func (x *Executor) put(kind string, id int64, e wire.Entity) {
	records, ok := x.kinds[kind]
	if !ok {
		records = make(map[int64]wire.Entity)
		x.kinds[kind] = records
	}
	records[id] = cloneEntity(e)
}

func keyParts(key wire.Key) (string, int64, error) {
	if len(key.Path) != 1 || key.Path[0].Kind == "" || key.Path[0].ID <= 0 {
		return "", 0, fmt.Errorf("%w: key %+v", ErrInvalidMutation, key.Path)
	}
	return key.Path[0].Kind, int64(key.Path[0].ID), nil
}

func matches(rec wire.Entity, f *wire.Filter) (bool, error) {
	if f == nil {
		return true, nil
	}

	switch {
	case f.CompositeFilter != nil:
		if f.CompositeFilter.Operator != wire.OperatorAnd {
			return false, fmt.Errorf("%w: composite operator %q", ErrUnsupportedFilter, f.CompositeFilter.Operator)
		}
		for i := range f.CompositeFilter.Filters {
			ok, err := matches(rec, &f.CompositeFilter.Filters[i])
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case f.PropertyFilter != nil:
		pf := f.PropertyFilter
		if pf.Operator != wire.OperatorEqual {
			return false, fmt.Errorf("%w: property operator %q", ErrUnsupportedFilter, pf.Operator)
		}
		prop, ok := rec.Properties[pf.Property.Name]
		if !ok || len(prop.Values) != 1 {
			return false, nil
		}
		return valuesEqual(prop.Values[0], pf.Value), nil
	}

	return true, nil
}

// valuesEqual compares two wire values by tag and content. Values with
// different tags are never equal.
func valuesEqual(a, b wire.Value) bool {
	switch {
	case a.StringValue != nil:
		return b.StringValue != nil && *a.StringValue == *b.StringValue
	case a.IntegerValue != nil:
		return b.IntegerValue != nil && *a.IntegerValue == *b.IntegerValue
	case a.DoubleValue != nil:
		return b.DoubleValue != nil && *a.DoubleValue == *b.DoubleValue
	case a.BooleanValue != nil:
		return b.BooleanValue != nil && *a.BooleanValue == *b.BooleanValue
	case a.DateTimeValue != nil:
		if b.DateTimeValue == nil {
			return false
		}
		ta, errA := time.Parse(time.RFC3339Nano, *a.DateTimeValue)
		tb, errB := time.Parse(time.RFC3339Nano, *b.DateTimeValue)
		if errA != nil || errB != nil {
			return *a.DateTimeValue == *b.DateTimeValue
		}
		return ta.Equal(tb)
	}
	return false
}

func cloneEntity(e wire.Entity) wire.Entity {
	out := wire.Entity{
		Key: wire.Key{Path: append([]wire.PathElement(nil), e.Key.Path...)},
	}
	if e.Properties != nil {
		out.Properties = make(map[string]wire.Property, len(e.Properties))
		for name, p := range e.Properties {
			out.Properties[name] = wire.Property{Values: append([]wire.Value(nil), p.Values...)}
		}
	}
	return out
}
