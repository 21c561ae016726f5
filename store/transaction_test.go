package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jacentio/canopy/backend/memory"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/wire"
)

func TestTransaction_CommitAssignsIDs(t *testing.T) {
	exec := memory.New()
	s := store.New(exec)
	ctx := context.Background()
	samples := s.Kind("Sample")

	var a, b *store.Entity
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		a = samples.New(store.Properties{"n": store.Int(1)})
		b = samples.New(store.Properties{"n": store.Int(2)})
		for _, e := range []*store.Entity{a, b} {
			if _, err := samples.Save(ctx, e); err != nil {
				return err
			}
		}

		// Nothing is visible or assigned before commit.
		if _, ok := a.ID(); ok {
			t.Error("expected no id before commit")
		}
		if exec.Len("Sample") != 0 {
			t.Error("expected no writes before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	for _, e := range []*store.Entity{a, b} {
		if _, ok := e.ID(); !ok {
			t.Error("expected id after commit")
		}
		if e.State() != store.StatePersisted {
			t.Errorf("expected persisted, got %s", e.State())
		}
	}
	if exec.Len("Sample") != 2 {
		t.Errorf("expected 2 stored entities, got %d", exec.Len("Sample"))
	}
}

func TestTransaction_RollbackOnError(t *testing.T) {
	rec := &recorder{next: memory.New()}
	s := store.New(rec)
	ctx := context.Background()
	samples := s.Kind("Sample")
	boom := errors.New("boom")

	var e *store.Entity
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		e = samples.New(store.Properties{"a": store.Int(1)})
		if _, err := samples.Save(ctx, e); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected fn error, got %v", err)
	}

	want := []wire.Method{wire.MethodBeginTransaction, wire.MethodRollback}
	if len(rec.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, rec.calls)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], rec.calls[i])
		}
	}
	if e.State() != store.StateTransient {
		t.Errorf("expected transient after rollback, got %s", e.State())
	}
}

func TestTransaction_ReadsCarryHandle(t *testing.T) {
	rec := &recorder{next: memory.New()}
	s := store.New(rec)
	ctx := context.Background()
	samples := s.Kind("Sample")

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		if !store.InTransaction(ctx) {
			t.Error("expected transaction in context")
		}
		if _, _, err := samples.Find(ctx, 1); err != nil {
			return err
		}
		_, err := samples.Where(ctx, store.Eq("a", store.Int(1)))
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	var handle string
	for i, m := range rec.calls {
		switch m {
		case wire.MethodLookup:
			opts := rec.reqs[i].(*wire.LookupRequest).ReadOptions
			if opts == nil || opts.Transaction == "" {
				t.Fatal("lookup without transaction handle")
			}
			handle = opts.Transaction
		case wire.MethodRunQuery:
			opts := rec.reqs[i].(*wire.RunQueryRequest).ReadOptions
			if opts == nil || opts.Transaction != handle {
				t.Errorf("runQuery carried %+v, expected handle %q", opts, handle)
			}
		case wire.MethodCommit:
			req := rec.reqs[i].(*wire.CommitRequest)
			if req.Transaction != handle {
				t.Errorf("commit carried %q, expected %q", req.Transaction, handle)
			}
			if !req.Mutation.Empty() {
				t.Errorf("expected empty mutation, got %+v", req.Mutation)
			}
		}
	}

	// Outside the transaction reads are unscoped again.
	rec.calls, rec.reqs = nil, nil
	if _, _, err := samples.Find(ctx, 1); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if opts := rec.reqs[0].(*wire.LookupRequest).ReadOptions; opts != nil {
		t.Errorf("expected no read options outside a transaction, got %+v", opts)
	}
}

func TestTransaction_QueuedWrites(t *testing.T) {
	rec := &recorder{next: memory.New()}
	s := store.New(rec)
	ctx := context.Background()
	samples := s.Kind("Sample")

	existing, err := samples.Create(ctx, store.Properties{"a": store.Int(1)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	doomed, err := samples.Create(ctx, store.Properties{"a": store.Int(2)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec.calls, rec.reqs = nil, nil

	err = s.RunInTransaction(ctx, func(ctx context.Context) error {
		existing.Set("a", store.Int(10))
		if _, err := samples.Save(ctx, existing); err != nil {
			return err
		}
		// Saving twice keeps one write.
		if _, err := samples.Save(ctx, existing); err != nil {
			return err
		}
		if err := samples.Destroy(ctx, doomed); err != nil {
			return err
		}

		// An insert destroyed in the same transaction is never sent.
		temp := samples.New(nil)
		if _, err := samples.Save(ctx, temp); err != nil {
			return err
		}
		return samples.Destroy(ctx, temp)
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	commit := rec.reqs[len(rec.reqs)-1].(*wire.CommitRequest)
	if len(commit.Mutation.Upsert) != 1 || len(commit.Mutation.Delete) != 1 || len(commit.Mutation.InsertAutoID) != 0 {
		t.Errorf("unexpected mutation %+v", commit.Mutation)
	}
	if doomed.State() != store.StateDestroyed {
		t.Errorf("expected destroyed, got %s", doomed.State())
	}

	all, err := samples.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(all))
	}
	if v, _ := all[0].Get("a"); v != store.Int(10) {
		t.Errorf("expected a=10, got %#v", v)
	}
}

func TestTransaction_CommitFailure(t *testing.T) {
	conflict := errors.New("conflict")
	rec := &recorder{next: memory.New(), failOn: wire.MethodCommit, failErr: conflict}
	s := store.New(rec)
	samples := s.Kind("Sample")

	var e *store.Entity
	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		e = samples.New(nil)
		_, err := samples.Save(ctx, e)
		return err
	})
	if err != conflict {
		t.Fatalf("expected commit error, got %v", err)
	}
	if _, ok := e.ID(); ok || e.State() != store.StateTransient {
		t.Error("expected entity untouched after failed commit")
	}
}

func TestTransaction_ContextUsedAfterDone(t *testing.T) {
	s, _ := newTestStore(t)
	samples := s.Kind("Sample")

	var leaked context.Context
	if err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		leaked = ctx
		return nil
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	if _, _, err := samples.Find(leaked, 1); !errors.Is(err, store.ErrTransactionDone) {
		t.Errorf("expected ErrTransactionDone, got %v", err)
	}
	if _, err := samples.Save(leaked, samples.New(nil)); !errors.Is(err, store.ErrTransactionDone) {
		t.Errorf("expected ErrTransactionDone, got %v", err)
	}
}

func TestTransaction_Nested(t *testing.T) {
	rec := &recorder{next: memory.New()}
	s := store.New(rec)
	samples := s.Kind("Sample")

	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := samples.Save(ctx, samples.New(nil))
			return err
		})
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	begins := 0
	for _, m := range rec.calls {
		if m == wire.MethodBeginTransaction {
			begins++
		}
	}
	if begins != 1 {
		t.Errorf("expected one transaction, got %d", begins)
	}
}

func TestTransaction_EntityInvalidatedAfterSave(t *testing.T) {
	rec := &recorder{next: memory.New()}
	s := store.New(rec)
	samples := s.Kind("Sample")

	var e *store.Entity
	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		e = samples.New(store.Properties{"a": store.Int(1)})
		if _, err := samples.Save(ctx, e); err != nil {
			return err
		}
		e.Set("b", nil)
		return nil
	})
	if !errors.Is(err, store.ErrInvalidEntity) {
		t.Fatalf("expected ErrInvalidEntity, got %v", err)
	}

	want := []wire.Method{wire.MethodBeginTransaction, wire.MethodRollback}
	if len(rec.calls) != len(want) || rec.calls[0] != want[0] || rec.calls[1] != want[1] {
		t.Errorf("expected calls %v, got %v", want, rec.calls)
	}
	if _, ok := e.ID(); ok || e.State() != store.StateTransient {
		t.Error("expected entity untouched after failed transaction")
	}
}

func TestTransaction_RollbackOnPanic(t *testing.T) {
	rec := &recorder{next: memory.New()}
	s := store.New(rec)
	samples := s.Kind("Sample")

	var leaked context.Context
	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("expected panic to propagate, got %v", r)
			}
		}()
		_ = s.RunInTransaction(context.Background(), func(ctx context.Context) error {
			leaked = ctx
			if _, err := samples.Save(ctx, samples.New(nil)); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	want := []wire.Method{wire.MethodBeginTransaction, wire.MethodRollback}
	if len(rec.calls) != len(want) || rec.calls[0] != want[0] || rec.calls[1] != want[1] {
		t.Errorf("expected calls %v, got %v", want, rec.calls)
	}
	if _, _, err := samples.Find(leaked, 1); !errors.Is(err, store.ErrTransactionDone) {
		t.Errorf("expected ErrTransactionDone, got %v", err)
	}
}
