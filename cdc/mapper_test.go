package cdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRow() []interface{} {
	return []interface{}{
		"12345", "John", "Doe", "1985-02-17", "M",
		"555-0100", "john@example.com",
		"Toronto", "ON", "Canada", "M5V 2T6",
	}
}

func TestMapRowFullRecord(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	p, ok := m.MapRow("demographic", nil, fullRow())
	require.True(t, ok)

	assert.Equal(t, "12345", p.DemographicNo)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "John", *p.FirstName)
	require.NotNil(t, p.LastName)
	assert.Equal(t, "Doe", *p.LastName)
	require.NotNil(t, p.DateOfBirth)
	assert.Equal(t, "1985-02-17", *p.DateOfBirth)
	require.NotNil(t, p.Sex)
	assert.Equal(t, "M", *p.Sex)
	require.NotNil(t, p.Location)
	assert.Equal(t, "Toronto", p.Location.City)
	assert.Equal(t, "ON", p.Location.Region)
	assert.Equal(t, "Canada", p.Location.Country)
	assert.Equal(t, "M5V 2T6", p.Location.Postal)
}

func TestMapRowWrongTableFiltered(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	_, ok := m.MapRow("appointment", nil, fullRow())
	assert.False(t, ok)
}

func TestMapRowMissingIdentifierFiltered(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	row := fullRow()
	row[0] = nil
	_, ok := m.MapRow("demographic", nil, row)
	assert.False(t, ok)

	row[0] = ""
	_, ok = m.MapRow("demographic", nil, row)
	assert.False(t, ok)
}

func TestMapRowNumericIdentifier(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	row := fullRow()
	row[0] = int64(98765)
	p, ok := m.MapRow("demographic", nil, row)
	require.True(t, ok)
	assert.Equal(t, "98765", p.DemographicNo)
}

func TestMapRowPartialAddressDropped(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	row := fullRow()
	row[9] = nil // country missing
	p, ok := m.MapRow("demographic", nil, row)
	require.True(t, ok)
	assert.Nil(t, p.Location)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "John", *p.FirstName)
}

func TestMapRowNilOptionals(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	row := []interface{}{"7", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil}
	p, ok := m.MapRow("demographic", nil, row)
	require.True(t, ok)

	assert.Equal(t, "7", p.DemographicNo)
	assert.Nil(t, p.FirstName)
	assert.Nil(t, p.LastName)
	assert.Nil(t, p.DateOfBirth)
	assert.Nil(t, p.Sex)
	assert.Nil(t, p.Phone)
	assert.Nil(t, p.Email)
	assert.Nil(t, p.Location)
}

func TestMapRowByteSliceValues(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	row := []interface{}{
		[]byte("321"), []byte("Jane"), nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
	}
	p, ok := m.MapRow("demographic", nil, row)
	require.True(t, ok)
	assert.Equal(t, "321", p.DemographicNo)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "Jane", *p.FirstName)
}

func TestMapRowResolveByName(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), true)

	// Columns in a different order than the static map, identified by
	// the metadata names.
	names := []string{"first_name", "demographic_no", "province", "city", "country", "postal"}
	row := []interface{}{"Alice", "42", "QC", "Montreal", "Canada", "H2X 1Y4"}

	p, ok := m.MapRow("demographic", names, row)
	require.True(t, ok)
	assert.Equal(t, "42", p.DemographicNo)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "Alice", *p.FirstName)
	assert.Nil(t, p.LastName)
	require.NotNil(t, p.Location)
	assert.Equal(t, "Montreal", p.Location.City)
	assert.Equal(t, "QC", p.Location.Region)
}

func TestMapRowNameResolutionFallsBackToPositional(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), true)

	// No metadata names available; the static ordinals apply.
	p, ok := m.MapRow("demographic", nil, fullRow())
	require.True(t, ok)
	assert.Equal(t, "12345", p.DemographicNo)
}

func TestMapRowShortRow(t *testing.T) {
	m := NewMapper("demographic", DefaultColumnMap(), false)

	p, ok := m.MapRow("demographic", nil, []interface{}{"9", "Sam"})
	require.True(t, ok)
	assert.Equal(t, "9", p.DemographicNo)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "Sam", *p.FirstName)
	assert.Nil(t, p.LastName)
	assert.Nil(t, p.Location)
}
