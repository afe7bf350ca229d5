package grpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
)

func TestCodecRoundTripsWireMessages(t *testing.T) {
	c := syncCodec{}

	in := &ChangeSet{Patients: []*fhir.Patient{{Id: &fhir.Id{Value: "12"}}}}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out ChangeSet
	require.NoError(t, c.Unmarshal(data, &out))
	require.Len(t, out.Patients, 1)
	assert.Equal(t, "12", out.Patients[0].LogicalID())
}

func TestCodecRoundTripsProtobufMessages(t *testing.T) {
	c := syncCodec{}

	in := &healthpb.HealthCheckRequest{Service: ServiceName}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := &healthpb.HealthCheckRequest{}
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, ServiceName, out.Service)
}

func TestCodecRegistersAsProto(t *testing.T) {
	assert.Equal(t, "proto", syncCodec{}.Name())
}
