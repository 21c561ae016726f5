package dynamo

import (
	"maps"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Destroy sets the ttl attribute and leaves expiry to DynamoDB. Until the
// item is gone, reads treat it as missing once its ttl has passed.
const (
	// liveExpr matches items that are not soft-deleted.
	liveExpr = "(attribute_not_exists(#ttl) OR #ttl > :now)"

	// softDeleteExpr keeps the first deletion time on repeated deletes.
	softDeleteExpr = "SET #ttl = if_not_exists(#ttl, :now)"
)

// deletedAt returns the item's ttl in Unix seconds, if it has one.
func deletedAt(item map[string]types.AttributeValue) (int64, bool) {
	n, ok := item[attrTTL].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	ttl, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return ttl, true
}

// IsDeleted reports whether item was soft-deleted at or before now.
func IsDeleted(item map[string]types.AttributeValue, now time.Time) bool {
	ttl, ok := deletedAt(item)
	return ok && ttl <= now.Unix()
}

func ttlNames() map[string]string {
	return map[string]string{"#ttl": attrTTL}
}

func ttlValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
}

// merge combines expression attribute maps; later maps win on conflicts.
func merge[V any](ms ...map[string]V) map[string]V {
	out := make(map[string]V)
	for _, m := range ms {
		maps.Copy(out, m)
	}
	return out
}
