// Package dynamo implements store.Executor on top of DynamoDB.
//
// Every entity is one item in a single table. Items of a kind are spread
// over NumShards partitions; runQuery fans out one Query per partition and
// merges the results. Deletes are soft: the item's TTL is set to the
// current time, reads filter it out immediately and DynamoDB removes it
// later. Auto ids come from an atomic per-kind counter in a second table.
//
// Transactions give an atomic commit through TransactWriteItems. Reads made
// under a transaction handle are plain consistent reads; they are not
// isolated from concurrent writers.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/canopy/internal/shard"
	"github.com/jacentio/canopy/wire"
)

// maxTransactItems is the DynamoDB limit on items in one TransactWriteItems call.
const maxTransactItems = 100

// API is the subset of the DynamoDB client used by the Executor.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Executor serves wire methods from DynamoDB.
type Executor struct {
	client API
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	openTxs map[string]struct{}
}

// New creates an Executor with the given client and config.
func New(client API, config Config) *Executor {
	config.validate()
	return &Executor{
		client:  client,
		config:  config,
		logger:  slog.Default(),
		now:     time.Now,
		openTxs: make(map[string]struct{}),
	}
}

// SetLogger replaces the logger used for diagnostics.
func (x *Executor) SetLogger(logger *slog.Logger) {
	x.logger = logger
}

// Config returns the validated configuration.
func (x *Executor) Config() Config {
	return x.config
}

// Execute dispatches method to DynamoDB.
func (x *Executor) Execute(ctx context.Context, method wire.Method, request, response any) error {
	switch method {
	case wire.MethodLookup:
		req, ok1 := request.(*wire.LookupRequest)
		resp, ok2 := response.(*wire.LookupResponse)
		if !ok1 || !ok2 {
			break
		}
		if err := x.checkRead(req.ReadOptions); err != nil {
			return err
		}
		return x.lookup(ctx, req, resp)

	case wire.MethodRunQuery:
		req, ok1 := request.(*wire.RunQueryRequest)
		resp, ok2 := response.(*wire.RunQueryResponse)
		if !ok1 || !ok2 {
			break
		}
		if err := x.checkRead(req.ReadOptions); err != nil {
			return err
		}
		return x.runQuery(ctx, req, resp)

	case wire.MethodBlindWrite:
		req, ok1 := request.(*wire.BlindWriteRequest)
		resp, ok2 := response.(*wire.BlindWriteResponse)
		if !ok1 || !ok2 {
			break
		}
		result, err := x.blindWrite(ctx, req.Mutation)
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
		x.mu.Lock()
		x.openTxs[handle] = struct{}{}
		x.mu.Unlock()
		resp.Transaction = handle
		return nil

	case wire.MethodCommit:
		req, ok1 := request.(*wire.CommitRequest)
		resp, ok2 := response.(*wire.CommitResponse)
		if !ok1 || !ok2 {
			break
		}
		if err := x.finish(req.Transaction); err != nil {
			return err
		}
		result, err := x.commit(ctx, req.Mutation)
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
		return x.finish(req.Transaction)
	}

	return fmt.Errorf("%w: %s with %T/%T", ErrUnsupportedRequest, method, request, response)
}

func (x *Executor) checkRead(opts *wire.ReadOptions) error {
	if opts == nil || opts.Transaction == "" {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, open := x.openTxs[opts.Transaction]; !open {
		return ErrUnknownTransaction
	}
	return nil
}

// finish closes an open transaction handle.
func (x *Executor) finish(handle string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, open := x.openTxs[handle]; !open {
		return ErrUnknownTransaction
	}
	delete(x.openTxs, handle)
	return nil
}

func (x *Executor) lookup(ctx context.Context, req *wire.LookupRequest, resp *wire.LookupResponse) error {
	resp.Found = resp.Found[:0]
	resp.Missing = resp.Missing[:0]

	for _, key := range req.Keys {
		kind, id, err := keyParts(key)
		if err != nil {
			return err
		}
		pk, err := primaryKey(kind, id, x.config.NumShards)
		if err != nil {
			return err
		}

		out, err := x.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(x.config.Table),
			Key:            pk,
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("lookup %s/%d: %w", kind, id, err)
		}

		if out.Item == nil || IsDeleted(out.Item, x.now()) {
			resp.Missing = append(resp.Missing, wire.EntityResult{Entity: wire.Entity{Key: key}})
			continue
		}

		e, err := DecodeItem(out.Item)
		if err != nil {
			return fmt.Errorf("lookup %s/%d: %w", kind, id, err)
		}
		resp.Found = append(resp.Found, wire.EntityResult{Entity: e})
	}

	return nil
}

func (x *Executor) runQuery(ctx context.Context, req *wire.RunQueryRequest, resp *wire.RunQueryResponse) error {
	filterExpr, names, values, err := buildFilter(req.Query.Filter, x.now())
	if err != nil {
		return err
	}

	results := []wire.EntityResult{}
	for _, k := range req.Query.Kinds {
		entities, err := x.queryKind(ctx, k.Name, filterExpr, names, values)
		if err != nil {
			return err
		}
		for _, e := range entities {
			results = append(results, wire.EntityResult{Entity: e})
		}
	}

	resp.Batch.EntityResults = results
	return nil
}

// queryKind queries every partition of kind and returns the matches
// ordered by id.
func (x *Executor) queryKind(ctx context.Context, kind, filterExpr string, names map[string]string, values map[string]types.AttributeValue) ([]wire.Entity, error) {
	pks := shard.PKs(kind, x.config.NumShards)

	// Fast path for single shard (default)
	if len(pks) == 1 {
		entities, err := x.queryPartition(ctx, pks[0], filterExpr, names, values)
		if err != nil {
			return nil, err
		}
		sortByID(entities)
		return entities, nil
	}

	var mu sync.Mutex
	var all []wire.Entity
	var wg sync.WaitGroup
	errs := make(chan error, len(pks))

	for _, pk := range pks {
		wg.Add(1)
		go func(pk string) {
			defer wg.Done()

			entities, err := x.queryPartition(ctx, pk, filterExpr, names, values)
			if err != nil {
				errs <- fmt.Errorf("shard %s: %w", pk, err)
				return
			}

			mu.Lock()
			all = append(all, entities...)
			mu.Unlock()
		}(pk)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sortByID(all)
	return all, nil
}

func (x *Executor) queryPartition(ctx context.Context, pk, filterExpr string, names map[string]string, values map[string]types.AttributeValue) ([]wire.Entity, error) {
	exprNames := merge(names, map[string]string{"#pk": attrPK})
	exprValues := merge(values, map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	})

	paginator := dynamodb.NewQueryPaginator(x.client, &dynamodb.QueryInput{
		TableName:                 aws.String(x.config.Table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		FilterExpression:          aws.String(filterExpr),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ConsistentRead:            aws.Bool(true),
	})

	var entities []wire.Entity
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			e, err := DecodeItem(item)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
	}

	return entities, nil
}

func sortByID(entities []wire.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Key.Path[0].ID < entities[j].Key.Path[0].ID
	})
}

// writeItems translates m into DynamoDB writes, allocating ids for
// insertAutoId entities. Keys are returned in insertAutoId order.
func (x *Executor) writeItems(ctx context.Context, m wire.Mutation) ([]types.TransactWriteItem, []wire.Key, error) {
	var items []types.TransactWriteItem

	for _, e := range m.Upsert {
		kind, id, err := keyParts(e.Key)
		if err != nil {
			return nil, nil, err
		}
		item, err := entityItem(e, kind, id, x.config.NumShards)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(x.config.Table),
				Item:      item,
			},
		})
	}

	// Validate delete keys before any id is allocated.
	for _, key := range m.Delete {
		if _, _, err := keyParts(key); err != nil {
			return nil, nil, err
		}
	}

	var keys []wire.Key
	if len(m.InsertAutoID) > 0 {
		var err error
		keys, err = x.assignKeys(ctx, m.InsertAutoID)
		if err != nil {
			return nil, nil, err
		}
	}

	for i, e := range m.InsertAutoID {
		kind, id, _ := keyParts(keys[i])
		item, err := entityItem(e, kind, id, x.config.NumShards)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(x.config.Table),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": attrID},
			},
		})
	}

	now := x.now()
	for _, key := range m.Delete {
		kind, id, _ := keyParts(key)
		pk, err := primaryKey(kind, id, x.config.NumShards)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(x.config.Table),
				Key:                       pk,
				UpdateExpression:          aws.String(softDeleteExpr),
				ExpressionAttributeNames:  ttlNames(),
				ExpressionAttributeValues: ttlValues(now),
			},
		})
	}

	return items, keys, nil
}

// blindWrite applies m one item at a time. A failure leaves the writes
// before it in place.
func (x *Executor) blindWrite(ctx context.Context, m wire.Mutation) (wire.MutationResult, error) {
	items, keys, err := x.writeItems(ctx, m)
	if err != nil {
		return wire.MutationResult{}, err
	}

	for _, item := range items {
		switch {
		case item.Put != nil:
			_, err = x.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:                item.Put.TableName,
				Item:                     item.Put.Item,
				ConditionExpression:      item.Put.ConditionExpression,
				ExpressionAttributeNames: item.Put.ExpressionAttributeNames,
			})
		case item.Update != nil:
			_, err = x.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:                 item.Update.TableName,
				Key:                       item.Update.Key,
				UpdateExpression:          item.Update.UpdateExpression,
				ExpressionAttributeNames:  item.Update.ExpressionAttributeNames,
				ExpressionAttributeValues: item.Update.ExpressionAttributeValues,
			})
		}
		if err != nil {
			return wire.MutationResult{}, mapWriteError(err)
		}
	}

	return wire.MutationResult{InsertAutoIDKeys: keys}, nil
}

// commit applies m atomically.
func (x *Executor) commit(ctx context.Context, m wire.Mutation) (wire.MutationResult, error) {
	if m.Empty() {
		return wire.MutationResult{}, nil
	}

	n := len(m.Upsert) + len(m.InsertAutoID) + len(m.Delete)
	if n > maxTransactItems {
		return wire.MutationResult{}, fmt.Errorf("%w: %d > %d", ErrTooManyWrites, n, maxTransactItems)
	}

	if kind, id, ok := repeatedKey(m); ok {
		return wire.MutationResult{}, fmt.Errorf("%w: several writes to %s/%d in one commit", ErrConflict, kind, id)
	}

	items, keys, err := x.writeItems(ctx, m)
	if err != nil {
		return wire.MutationResult{}, err
	}

	_, err = x.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return wire.MutationResult{}, mapWriteError(err)
	}

	x.logger.Debug("committed transaction",
		"table", x.config.Table,
		"writes", n,
	)
	return wire.MutationResult{InsertAutoIDKeys: keys}, nil
}

// repeatedKey finds a key written more than once by m. TransactWriteItems
// rejects a request that touches one item twice.
func repeatedKey(m wire.Mutation) (string, int64, bool) {
	type entityKey struct {
		kind string
		id   int64
	}
	seen := make(map[entityKey]bool, len(m.Upsert)+len(m.Delete))
	keys := make([]wire.Key, 0, len(m.Upsert)+len(m.Delete))
	for _, e := range m.Upsert {
		keys = append(keys, e.Key)
	}
	keys = append(keys, m.Delete...)

	for _, key := range keys {
		kind, id, err := keyParts(key)
		if err != nil {
			// writeItems reports it.
			continue
		}
		k := entityKey{kind, id}
		if seen[k] {
			return kind, id, true
		}
		seen[k] = true
	}
	return "", 0, false
}

// mapWriteError maps condition failures to ErrConflict.
func mapWriteError(err error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %v", ErrConflict, err)
			}
		}
	}

	return err
}
