// Package store maps typed entities onto a remote schemaless document store.
//
// Application code works with kinds (entity classes) through a
// [Repository] and never builds wire requests by hand. The remote store is
// reached through a single [Executor] capability, so the same code runs
// against DynamoDB, an HTTP JSON endpoint or the in-memory backend used in
// tests.
//
// # Entities
//
// An [Entity] is a kind, an optional positive id and an open set of
// properties. Property values are a closed set of scalar kinds:
//
//	String, Int, Float, Bool, Timestamp
//
// Timestamps are normalized to UTC on assignment and travel as RFC 3339
// text. Lists and nil values have no representation; [IsValid] rejects an
// entity holding a nil value, and [ValueOf] rejects any native value
// outside the supported kinds.
//
// # Repositories
//
//	s := store.New(executor)
//	samples := s.Kind("Sample")
//
//	e, err := samples.Create(ctx, store.Properties{"a": store.Int(1)})
//	found, ok, err := samples.Find(ctx, id)
//	all, err := samples.All(ctx)
//	ones, err := samples.Where(ctx, store.Eq("a", store.Int(1)))
//	ok, err = samples.Save(ctx, e)
//	err = samples.Destroy(ctx, e)
//
// Filters compare encoded values exactly, so Eq("a", String("1")) does not
// match an Int(1) property.
//
// # Lifecycle
//
// Entities move from [StateTransient] to [StatePersisted] on their first
// successful save, and to [StateDestroyed] after [Repository.Destroy]. A
// destroyed entity keeps its id; saving it again writes it back under the
// same id.
//
// # Transactions
//
// [Store.RunInTransaction] begins a remote transaction, scopes every read
// made with the context it passes to the transaction, queues every write
// and commits them together. Ids of entities inserted inside the
// transaction are assigned after the commit succeeds.
//
// # Errors
//
//   - [ErrInvalidEntity] - Create refused an entity that failed validation
//   - [ErrMalformedResponse] - a record from the store violated the mapping rules
//   - [ErrUnsupportedValue] - a native value has no wire representation
//   - [ErrKindMismatch] - an entity was passed to another kind's repository
//   - [ErrTransactionDone] - a transaction context was used after it finished
//
// Errors from the Executor are returned unchanged and never retried.
package store
