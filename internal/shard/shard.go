// Package shard provides partition key generation for sharded entity tables.
package shard

import (
	"fmt"
	"hash/fnv"
	"strconv"
)

// EntityPK computes the partition key for an entity item.
// With numShards=1, every entity of a kind goes to shard "00".
// With numShards>1, entities are distributed across shards by id hash.
func EntityPK(kind string, id int64, numShards int) string {
	if numShards <= 1 {
		return fmt.Sprintf("%s#00", kind)
	}
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(id, 10)))
	shard := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", kind, shard)
}

// PKs returns every partition key a kind can occupy, in shard order.
func PKs(kind string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	pks := make([]string, numShards)
	for i := range pks {
		pks[i] = fmt.Sprintf("%s#%02x", kind, i)
	}
	return pks
}
