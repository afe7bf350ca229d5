package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArsMedicaTech/fhir-sync/domain"
)

func TestMarshalUnmarshalPatient(t *testing.T) {
	first := "Jane"
	sex := "female"
	p := domain.Patient{
		DemographicNo: "123",
		FirstName:     &first,
		Sex:           &sex,
	}

	data, err := Marshal(p)
	require.NoError(t, err)

	var back domain.Patient
	require.NoError(t, Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestUnmarshalLooseStrings(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"id": "42"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, Unmarshal(data, &decoded))

	// Strings decode as strings, not []byte.
	assert.Equal(t, "42", decoded["id"])
}

func TestUnmarshalGarbage(t *testing.T) {
	var out map[string]interface{}
	err := Unmarshal([]byte{0xc1}, &out)
	assert.Error(t, err)
}
