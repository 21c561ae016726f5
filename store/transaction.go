package store

import (
	"context"
	"fmt"

	"github.com/jacentio/canopy/wire"
)

type txContextKey struct{}

// transaction buffers the writes of one RunInTransaction call. Writes are
// sent in a single commit; reads carry the handle.
type transaction struct {
	handle string
	done   bool

	inserts []*Entity
	upserts []*Entity
	deletes []*Entity
}

func newTransaction(handle string) *transaction {
	return &transaction{handle: handle}
}

// txFromContext returns the transaction carried by ctx, or nil.
func txFromContext(ctx context.Context) (*transaction, error) {
	tx, ok := ctx.Value(txContextKey{}).(*transaction)
	if !ok {
		return nil, nil
	}
	if tx.done {
		return nil, ErrTransactionDone
	}
	return tx, nil
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	tx, err := txFromContext(ctx)
	return err == nil && tx != nil
}

// queueSave records a save of e. Saving the same entity twice in one
// transaction keeps a single write carrying the latest properties.
func (tx *transaction) queueSave(e *Entity) {
	tx.deletes = without(tx.deletes, e)
	if _, hasID := e.ID(); hasID {
		if !contains(tx.upserts, e) {
			tx.upserts = append(tx.upserts, e)
		}
		return
	}
	if !contains(tx.inserts, e) {
		tx.inserts = append(tx.inserts, e)
	}
}

// queueDestroy records a delete of e. Destroying an entity whose insert is
// still queued drops the insert instead.
func (tx *transaction) queueDestroy(e *Entity) {
	id, hasID := e.ID()
	if !hasID || id <= 0 {
		tx.inserts = without(tx.inserts, e)
		return
	}
	tx.upserts = without(tx.upserts, e)
	if !contains(tx.deletes, e) {
		tx.deletes = append(tx.deletes, e)
	}
}

func contains(list []*Entity, e *Entity) bool {
	for _, q := range list {
		if q == e {
			return true
		}
	}
	return false
}

func without(list []*Entity, e *Entity) []*Entity {
	kept := list[:0]
	for _, q := range list {
		if q != e {
			kept = append(kept, q)
		}
	}
	return kept
}

// check revalidates the queued saves, which may have been changed since
// they were queued.
func (tx *transaction) check() error {
	for _, list := range [][]*Entity{tx.inserts, tx.upserts} {
		for _, e := range list {
			if !IsValid(e) {
				return fmt.Errorf("%w: %s entity changed after it was saved", ErrInvalidEntity, e.kind)
			}
		}
	}
	return nil
}

// mutation builds the commit mutation from the current entity state.
func (tx *transaction) mutation() wire.Mutation {
	var m wire.Mutation
	for _, e := range tx.inserts {
		m.InsertAutoID = append(m.InsertAutoID, ToWireEntity(e))
	}
	for _, e := range tx.upserts {
		m.Upsert = append(m.Upsert, ToWireEntity(e))
	}
	for _, e := range tx.deletes {
		id, _ := e.ID()
		m.Delete = append(m.Delete, MakeKey(e.kind, id))
	}
	return m
}

// apply updates the queued entities after a successful commit.
func (tx *transaction) apply(result wire.MutationResult) error {
	if len(result.InsertAutoIDKeys) != len(tx.inserts) {
		return fmt.Errorf("%w: %d inserts committed, %d keys returned", ErrMalformedResponse, len(tx.inserts), len(result.InsertAutoIDKeys))
	}

	ids := make([]int64, len(tx.inserts))
	for i, key := range result.InsertAutoIDKeys {
		_, id, err := KeyID(key)
		if err != nil {
			return err
		}
		ids[i] = id
	}

	for i, e := range tx.inserts {
		e.id = Int(ids[i])
		e.state = StatePersisted
	}
	for _, e := range tx.upserts {
		e.state = StatePersisted
	}
	for _, e := range tx.deletes {
		e.state = StateDestroyed
	}
	return nil
}

// RunInTransaction runs fn inside a store transaction. Reads made with the
// context passed to fn are scoped to the transaction, and writes are queued
// and committed together once fn returns nil. When fn fails or panics, the
// transaction is rolled back and fn's error returned or its panic resumed.
// An entity saved inside fn that is no longer valid when fn returns fails
// the transaction with ErrInvalidEntity.
//
// A context that already carries a transaction joins it: fn runs directly
// and the outer call commits.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	ctx, span := s.tracer.Start(ctx, "transaction")
	defer func() { endSpan(span, err) }()

	begin := &wire.BeginTransactionResponse{}
	if err = s.exec.Execute(ctx, wire.MethodBeginTransaction, &wire.BeginTransactionRequest{}, begin); err != nil {
		return err
	}

	tx := newTransaction(begin.Transaction)
	txCtx := context.WithValue(ctx, txContextKey{}, tx)

	defer func() {
		if r := recover(); r != nil {
			if !tx.done {
				tx.done = true
				s.rollback(ctx, tx, fmt.Errorf("panic: %v", r))
			}
			panic(r)
		}
	}()

	if err = fn(txCtx); err == nil {
		err = tx.check()
	}
	tx.done = true
	if err != nil {
		s.rollback(ctx, tx, err)
		return err
	}

	commit := &wire.CommitResponse{}
	err = s.exec.Execute(ctx, wire.MethodCommit, &wire.CommitRequest{
		Transaction: tx.handle,
		Mutation:    tx.mutation(),
		Mode:        "TRANSACTIONAL",
	}, commit)
	if err != nil {
		return err
	}

	if err = tx.apply(commit.MutationResult); err != nil {
		return err
	}

	s.logger.Debug("transaction committed",
		"transaction", tx.handle,
		"inserted", len(tx.inserts),
		"upserted", len(tx.upserts),
		"deleted", len(tx.deletes),
	)
	return nil
}

// rollback abandons tx. A failed rollback is logged; the transaction's own
// error is what the caller sees.
func (s *Store) rollback(ctx context.Context, tx *transaction, cause error) {
	err := s.exec.Execute(ctx, wire.MethodRollback, &wire.RollbackRequest{Transaction: tx.handle}, &wire.RollbackResponse{})
	if err != nil {
		s.logger.Error("failed to roll back transaction",
			"transaction", tx.handle,
			"error", err,
			"cause", cause,
		)
	}
}
