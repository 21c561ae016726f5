package dynamo

// Config holds configuration for the Executor.
type Config struct {
	// Table is the name of the entity table. Its key schema is
	// pk (S, partition) + id (N, sort), with TTL enabled on "ttl".
	// Default: "canopy_entities"
	Table string

	// CounterTable is the name of the id allocation table, keyed by kind (S).
	// Default: "canopy_counters"
	CounterTable string

	// NumShards is the number of partitions each kind is spread over.
	// Higher values increase write throughput but require more parallel
	// queries for runQuery.
	// Default: 1 (no sharding, single query)
	// Max: 256
	//
	// Changing NumShards for a table that already holds data makes the
	// existing items unreachable.
	NumShards int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		Table:        "canopy_entities",
		CounterTable: "canopy_counters",
		NumShards:    1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "canopy_entities"
	}
	if c.CounterTable == "" {
		c.CounterTable = "canopy_counters"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
}
