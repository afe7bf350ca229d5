package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArsMedicaTech/fhir-sync/bus"
	"github.com/ArsMedicaTech/fhir-sync/domain"
)

func newTestServer(t *testing.T) (*Server, *bus.Bus) {
	t.Helper()
	b := bus.New(16)
	producer, err := b.Attach("http_test")
	require.NoError(t, err)
	t.Cleanup(producer.Close)
	return NewServer("127.0.0.1:0", producer), b
}

func postPatient(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/patient", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestIngestPatientAccepted(t *testing.T) {
	s, b := newTestServer(t)

	rec := postPatient(s, `{
		"demographic_no": "12345",
		"first_name": "John",
		"last_name": "Doe",
		"location": ["Toronto", "ON", "Canada", "M5V 2T6"]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "12345", resp["demographic_no"])

	ev := <-b.Events()
	assert.Equal(t, domain.KindPatientUpsert, ev.Kind)
	assert.Equal(t, domain.OriginIngestion, ev.Origin)
	assert.Equal(t, "12345", ev.Patient.DemographicNo)
	require.NotNil(t, ev.Patient.Location)
	assert.Equal(t, "Toronto", ev.Patient.Location.City)
}

func TestIngestPatientRejectsMalformedJSON(t *testing.T) {
	s, b := newTestServer(t)

	rec := postPatient(s, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, b.Events())
}

func TestIngestPatientRejectsMissingIdentifier(t *testing.T) {
	s, b := newTestServer(t)

	rec := postPatient(s, `{"first_name": "NoID"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "demographic_no")
	assert.Empty(t, b.Events())
}

func TestIngestPatientRejectsBadLocationArity(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postPatient(s, `{"demographic_no": "1", "location": ["only", "three", "parts"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
