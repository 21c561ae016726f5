package dynamo

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient keeps items in memory. Query returns the items of a partition
// that are not soft deleted; it does not evaluate property filters.
type fakeClient struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	counters map[string]int64

	queries      []*dynamodb.QueryInput
	transactions []*dynamodb.TransactWriteItemsInput
	failWith     error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		items:    make(map[string]map[string]types.AttributeValue),
		counters: make(map[string]int64),
	}
}

func itemID(key map[string]types.AttributeValue) string {
	pk := key[attrPK].(*types.AttributeValueMemberS).Value
	id := key[attrID].(*types.AttributeValueMemberN).Value
	return pk + "/" + id
}

func (f *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemID(params.Key)]}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &dynamodb.PutItemOutput{}, f.put(params.Item, params.ConditionExpression)
}

func (f *fakeClient) put(item map[string]types.AttributeValue, condition *string) error {
	id := itemID(item)
	if condition != nil {
		if _, exists := f.items[id]; exists {
			return &types.ConditionalCheckFailedException{Message: aws.String("item exists")}
		}
	}
	f.items[id] = item
	return nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if kind, ok := params.Key[attrKind].(*types.AttributeValueMemberS); ok {
		n, _ := strconv.ParseInt(params.ExpressionAttributeValues[":n"].(*types.AttributeValueMemberN).Value, 10, 64)
		f.counters[kind.Value] += n
		return &dynamodb.UpdateItemOutput{
			Attributes: map[string]types.AttributeValue{
				"next": &types.AttributeValueMemberN{Value: strconv.FormatInt(f.counters[kind.Value], 10)},
			},
		}, nil
	}

	if f.failWith != nil {
		return nil, f.failWith
	}
	f.softDelete(params.Key, params.ExpressionAttributeValues[":now"])
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) softDelete(key map[string]types.AttributeValue, now types.AttributeValue) {
	id := itemID(key)
	item, ok := f.items[id]
	if !ok {
		item = map[string]types.AttributeValue{attrPK: key[attrPK], attrID: key[attrID]}
		f.items[id] = item
	}
	if _, has := item[attrTTL]; !has {
		item[attrTTL] = now
	}
}

func (f *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, params)

	pk := params.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for id, item := range f.items {
		if strings.HasPrefix(id, pk+"/") && !IsDeleted(item, time.Now()) {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions = append(f.transactions, params)
	if f.failWith != nil {
		return nil, f.failWith
	}

	for _, item := range params.TransactItems {
		if item.Put != nil && item.Put.ConditionExpression != nil {
			if _, exists := f.items[itemID(item.Put.Item)]; exists {
				return nil, &types.TransactionCanceledException{
					Message: aws.String("cancelled"),
					CancellationReasons: []types.CancellationReason{
						{Code: aws.String("ConditionalCheckFailed")},
					},
				}
			}
		}
	}
	for _, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			f.items[itemID(item.Put.Item)] = item.Put.Item
		case item.Update != nil:
			f.softDelete(item.Update.Key, item.Update.ExpressionAttributeValues[":now"])
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
