package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStreamName(t *testing.T) {
	assert.Equal(t, "fhirsync_patient_upsert", sanitizeStreamName("fhirsync.patient_upsert"))
	assert.Equal(t, "plain", sanitizeStreamName("plain"))
}
