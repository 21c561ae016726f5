package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/wire"
)

type counter struct {
	Next int64 `dynamodbav:"next"`
}

// allocateIDs reserves n consecutive ids for kind and returns the first.
// Ids are never reused, even when the write that claimed them fails.
func (x *Executor) allocateIDs(ctx context.Context, kind string, n int) (int64, error) {
	out, err := x.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(x.config.CounterTable),
		Key: map[string]types.AttributeValue{
			attrKind: &types.AttributeValueMemberS{Value: kind},
		},
		UpdateExpression:         aws.String("ADD #next :n"),
		ExpressionAttributeNames: map[string]string{"#next": "next"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate %d ids for %s: %w", n, kind, err)
	}

	var c counter
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return 0, fmt.Errorf("allocate %d ids for %s: %w", n, kind, err)
	}
	if c.Next < int64(n) {
		return 0, fmt.Errorf("allocate %d ids for %s: counter at %d", n, kind, c.Next)
	}

	return c.Next - int64(n) + 1, nil
}

// assignKeys allocates one id per insertAutoId entity, one counter update
// per kind, and returns the keys in request order.
func (x *Executor) assignKeys(ctx context.Context, inserts []wire.Entity) ([]wire.Key, error) {
	counts := make(map[string]int)
	for _, e := range inserts {
		if len(e.Key.Path) != 1 || e.Key.Path[0].Kind == "" || e.Key.Path[0].ID != 0 {
			return nil, fmt.Errorf("%w: insertAutoId needs a kind-only key", ErrInvalidKey)
		}
		counts[e.Key.Path[0].Kind]++
	}

	next := make(map[string]int64, len(counts))
	for kind, n := range counts {
		first, err := x.allocateIDs(ctx, kind, n)
		if err != nil {
			return nil, err
		}
		next[kind] = first
	}

	keys := make([]wire.Key, len(inserts))
	for i, e := range inserts {
		kind := e.Key.Path[0].Kind
		keys[i] = wire.Key{Path: []wire.PathElement{{Kind: kind, ID: wire.Int64(next[kind])}}}
		next[kind]++
	}
	return keys, nil
}
