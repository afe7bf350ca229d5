package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
)

// FhirSyncClient is the client API for the FhirSync service
type FhirSyncClient interface {
	GetPatient(ctx context.Context, in *PatientRef, opts ...grpc.CallOption) (*fhir.Patient, error)
	UpsertPatient(ctx context.Context, in *fhir.Patient, opts ...grpc.CallOption) (*PatientAck, error)
	StreamChanges(ctx context.Context, opts ...grpc.CallOption) (FhirSync_StreamChangesClient, error)
	WatchPatients(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (FhirSync_WatchPatientsClient, error)
}

// FhirSync_StreamChangesClient is the client side of the bidirectional
// change stream
type FhirSync_StreamChangesClient interface {
	Send(*ChangeSet) error
	Recv() (*Ack, error)
	grpc.ClientStream
}

// FhirSync_WatchPatientsClient is the client side of the watch stream
type FhirSync_WatchPatientsClient interface {
	Recv() (*fhir.Patient, error)
	grpc.ClientStream
}

type fhirSyncClient struct {
	cc grpc.ClientConnInterface
}

// NewFhirSyncClient creates a client over an existing connection
func NewFhirSyncClient(cc grpc.ClientConnInterface) FhirSyncClient {
	return &fhirSyncClient{cc: cc}
}

// DialOptions returns the dial options a peer connection should use
func DialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if IsCompressionEnabled() {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.UseCompressor(GetCompressionName())))
	}
	return opts
}

// Dial connects to a peer sync service
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target, DialOptions()...)
}

func (c *fhirSyncClient) GetPatient(ctx context.Context, in *PatientRef, opts ...grpc.CallOption) (*fhir.Patient, error) {
	out := new(fhir.Patient)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetPatient", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fhirSyncClient) UpsertPatient(ctx context.Context, in *fhir.Patient, opts ...grpc.CallOption) (*PatientAck, error) {
	out := new(PatientAck)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/UpsertPatient", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fhirSyncClient) StreamChanges(ctx context.Context, opts ...grpc.CallOption) (FhirSync_StreamChangesClient, error) {
	stream, err := c.cc.NewStream(ctx, &fhirSyncServiceDesc.Streams[0], "/"+ServiceName+"/StreamChanges", opts...)
	if err != nil {
		return nil, err
	}
	return &fhirSyncStreamChangesClient{stream}, nil
}

type fhirSyncStreamChangesClient struct {
	grpc.ClientStream
}

func (x *fhirSyncStreamChangesClient) Send(m *ChangeSet) error {
	return x.ClientStream.SendMsg(m)
}

func (x *fhirSyncStreamChangesClient) Recv() (*Ack, error) {
	m := new(Ack)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *fhirSyncClient) WatchPatients(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (FhirSync_WatchPatientsClient, error) {
	stream, err := c.cc.NewStream(ctx, &fhirSyncServiceDesc.Streams[1], "/"+ServiceName+"/WatchPatients", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &fhirSyncWatchPatientsClient{stream}, nil
}

type fhirSyncWatchPatientsClient struct {
	grpc.ClientStream
}

func (x *fhirSyncWatchPatientsClient) Recv() (*fhir.Patient, error) {
	m := new(fhir.Patient)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
