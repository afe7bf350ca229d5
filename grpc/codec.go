package grpc

import (
	grpcenc "google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"

	"github.com/ArsMedicaTech/fhir-sync/encoding"
)

// codecName shadows the stock proto codec. Registering under "proto"
// means both sides of every call go through this codec without any
// content-subtype negotiation: generated protobuf types (the health
// service) keep their protobuf framing, and the FhirSync messages
// travel as msgpack.
const codecName = "proto"

func init() {
	grpcenc.RegisterCodec(syncCodec{})
}

// syncCodec dispatches on the message type
type syncCodec struct{}

func (syncCodec) Marshal(v interface{}) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return encoding.Marshal(v)
}

func (syncCodec) Unmarshal(data []byte, v interface{}) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return encoding.Unmarshal(data, v)
}

func (syncCodec) Name() string {
	return codecName
}
