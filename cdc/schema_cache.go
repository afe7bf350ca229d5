package cdc

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// tableSchemaCacheSize bounds the number of cached table-map entries.
// The source rotates table ids over time, so the cache is an LRU rather
// than an unbounded map.
const tableSchemaCacheSize = 128

// TableSchema is the cached payload of a table-map announcement.
// Row events reference tables by numeric id and carry bare positional
// values, so the announcement must be observed before rows for that
// table can be interpreted.
type TableSchema struct {
	Schema      string
	Table       string
	ColumnNames []string // Empty unless the binlog carries full row metadata
}

// SchemaCache caches table-map announcements keyed by binlog table id.
type SchemaCache struct {
	cache *lru.Cache[uint64, *TableSchema]
}

// NewSchemaCache creates the cache.
func NewSchemaCache() (*SchemaCache, error) {
	cache, err := lru.New[uint64, *TableSchema](tableSchemaCacheSize)
	if err != nil {
		return nil, err
	}
	return &SchemaCache{cache: cache}, nil
}

// Put records a table-map announcement.
func (c *SchemaCache) Put(tableID uint64, schema *TableSchema) {
	c.cache.Add(tableID, schema)
}

// Get returns the cached announcement for a table id.
func (c *SchemaCache) Get(tableID uint64) (*TableSchema, bool) {
	return c.cache.Get(tableID)
}

// Len reports the number of cached announcements.
func (c *SchemaCache) Len() int {
	return c.cache.Len()
}
