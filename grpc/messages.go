package grpc

import "github.com/ArsMedicaTech/fhir-sync/fhir"

// Wire messages for the FhirSync service. They travel as msgpack
// frames through the shared codec, so field tags are the wire
// contract.

// PatientRef identifies a patient by logical id
type PatientRef struct {
	Id string `msgpack:"id"`
}

// PatientAck acknowledges an upsert
type PatientAck struct {
	Id     string `msgpack:"id"`
	Status string `msgpack:"status"`
}

// ChangeSet is one inbound unit on a StreamChanges call. A peer may
// batch any number of patient records per change-set, including zero.
type ChangeSet struct {
	Patients []*fhir.Patient `msgpack:"patients,omitempty"`
}

// Ack is the outbound acknowledgment for one ChangeSet
type Ack struct {
	Message string `msgpack:"message"`
}

// WatchRequest opens a server stream of adapted patient updates.
// An empty filter subscribes to every patient.
type WatchRequest struct {
	DemographicNos []string `msgpack:"demographic_nos,omitempty"`
}
