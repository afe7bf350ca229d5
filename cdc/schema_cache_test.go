package cdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCachePutGet(t *testing.T) {
	c, err := NewSchemaCache()
	require.NoError(t, err)

	c.Put(7, &TableSchema{
		Schema:      "oscar",
		Table:       "demographic",
		ColumnNames: []string{"demographic_no", "first_name"},
	})

	schema, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, "oscar", schema.Schema)
	assert.Equal(t, "demographic", schema.Table)
	assert.Equal(t, []string{"demographic_no", "first_name"}, schema.ColumnNames)

	_, ok = c.Get(8)
	assert.False(t, ok)
}

func TestSchemaCacheOverwrite(t *testing.T) {
	c, err := NewSchemaCache()
	require.NoError(t, err)

	c.Put(1, &TableSchema{Schema: "oscar", Table: "demographic"})
	c.Put(1, &TableSchema{Schema: "oscar", Table: "demographic", ColumnNames: []string{"demographic_no"}})

	schema, ok := c.Get(1)
	require.True(t, ok)
	assert.Len(t, schema.ColumnNames, 1)
	assert.Equal(t, 1, c.Len())
}

func TestSchemaCacheEvictsOldEntries(t *testing.T) {
	c, err := NewSchemaCache()
	require.NoError(t, err)

	for i := uint64(0); i < tableSchemaCacheSize+16; i++ {
		c.Put(i, &TableSchema{Schema: "oscar", Table: "demographic"})
	}

	assert.Equal(t, tableSchemaCacheSize, c.Len())
	_, ok := c.Get(0)
	assert.False(t, ok)
	_, ok = c.Get(tableSchemaCacheSize + 15)
	assert.True(t, ok)
}
