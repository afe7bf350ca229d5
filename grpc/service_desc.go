package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "arsmedicatech.fhir_sync.v1.FhirSync"

// FhirSyncServer is the server API for the FhirSync service
type FhirSyncServer interface {
	GetPatient(context.Context, *PatientRef) (*fhir.Patient, error)
	UpsertPatient(context.Context, *fhir.Patient) (*PatientAck, error)
	StreamChanges(FhirSync_StreamChangesServer) error
	WatchPatients(*WatchRequest, FhirSync_WatchPatientsServer) error
}

// FhirSync_StreamChangesServer is the server side of the bidirectional
// change stream
type FhirSync_StreamChangesServer interface {
	Send(*Ack) error
	Recv() (*ChangeSet, error)
	grpc.ServerStream
}

// FhirSync_WatchPatientsServer is the server side of the watch stream
type FhirSync_WatchPatientsServer interface {
	Send(*fhir.Patient) error
	grpc.ServerStream
}

// RegisterFhirSyncServer registers the service implementation with a
// gRPC server
func RegisterFhirSyncServer(s grpc.ServiceRegistrar, srv FhirSyncServer) {
	s.RegisterService(&fhirSyncServiceDesc, srv)
}

var fhirSyncServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FhirSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetPatient",
			Handler:    getPatientHandler,
		},
		{
			MethodName: "UpsertPatient",
			Handler:    upsertPatientHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamChanges",
			Handler:       streamChangesHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "WatchPatients",
			Handler:       watchPatientsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "fhir_sync.proto",
}

func getPatientHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PatientRef)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FhirSyncServer).GetPatient(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/GetPatient",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FhirSyncServer).GetPatient(ctx, req.(*PatientRef))
	}
	return interceptor(ctx, in, info, handler)
}

func upsertPatientHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(fhir.Patient)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FhirSyncServer).UpsertPatient(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/UpsertPatient",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FhirSyncServer).UpsertPatient(ctx, req.(*fhir.Patient))
	}
	return interceptor(ctx, in, info, handler)
}

func streamChangesHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(FhirSyncServer).StreamChanges(&fhirSyncStreamChangesServer{stream})
}

type fhirSyncStreamChangesServer struct {
	grpc.ServerStream
}

func (x *fhirSyncStreamChangesServer) Send(m *Ack) error {
	return x.ServerStream.SendMsg(m)
}

func (x *fhirSyncStreamChangesServer) Recv() (*ChangeSet, error) {
	m := new(ChangeSet)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func watchPatientsHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(WatchRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(FhirSyncServer).WatchPatients(m, &fhirSyncWatchPatientsServer{stream})
}

type fhirSyncWatchPatientsServer struct {
	grpc.ServerStream
}

func (x *fhirSyncWatchPatientsServer) Send(m *fhir.Patient) error {
	return x.ServerStream.SendMsg(m)
}
