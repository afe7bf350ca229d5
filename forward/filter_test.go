package forward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFilterEmptyMatchesAll(t *testing.T) {
	f, err := NewKindFilter(nil)
	require.NoError(t, err)

	assert.True(t, f.Match("patient_upsert"))
	assert.True(t, f.Match("anything"))
}

func TestKindFilterExact(t *testing.T) {
	f, err := NewKindFilter([]string{"patient_upsert"})
	require.NoError(t, err)

	assert.True(t, f.Match("patient_upsert"))
	assert.False(t, f.Match("patient_delete"))
}

func TestKindFilterGlob(t *testing.T) {
	f, err := NewKindFilter([]string{"patient_*"})
	require.NoError(t, err)

	assert.True(t, f.Match("patient_upsert"))
	assert.False(t, f.Match("audit_upsert"))
}

func TestKindFilterInvalidPattern(t *testing.T) {
	_, err := NewKindFilter([]string{"[unclosed"})
	assert.Error(t, err)
}
