package grpc

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
	"github.com/ArsMedicaTech/fhir-sync/notify"
	"github.com/ArsMedicaTech/fhir-sync/store"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// streamAckBuffer is the capacity of the per-call channel between the
// inbound receive loop and the outbound forwarding goroutine.
const streamAckBuffer = 32

// ackMessage is the fixed acknowledgment payload for a change-set.
const ackMessage = "got it"

// FhirSyncService serves the patient synchronization API. Lookups go
// through the shared store; upserts and streamed change-sets feed the
// same store and the watch hub.
type FhirSyncService struct {
	store *store.Store
	hub   *notify.Hub
}

// NewFhirSyncService creates the service around the shared state.
func NewFhirSyncService(st *store.Store, hub *notify.Hub) *FhirSyncService {
	return &FhirSyncService{store: st, hub: hub}
}

// GetPatient looks up a patient by logical id. When no backing record
// exists the response still carries the requested id, so the id always
// round-trips.
func (s *FhirSyncService) GetPatient(ctx context.Context, req *PatientRef) (*fhir.Patient, error) {
	if req.Id == "" {
		telemetry.RPCRequestsTotal.With("GetPatient", "invalid").Inc()
		return nil, status.Error(codes.InvalidArgument, "patient id is required")
	}

	p, err := s.store.Lookup(ctx, req.Id)
	if err != nil {
		log.Error().Err(err).Str("id", req.Id).Msg("Patient lookup failed")
		telemetry.RPCRequestsTotal.With("GetPatient", "error").Inc()
		return nil, status.Errorf(codes.Internal, "lookup failed: %v", err)
	}
	if p == nil {
		p = &fhir.Patient{Id: &fhir.Id{Value: req.Id}}
	}

	telemetry.RPCRequestsTotal.With("GetPatient", "ok").Inc()
	return p, nil
}

// UpsertPatient accepts a clinical record from a peer. Idempotent:
// re-submitting the same record yields the same acknowledgment.
func (s *FhirSyncService) UpsertPatient(ctx context.Context, p *fhir.Patient) (*PatientAck, error) {
	id := p.LogicalID()
	if id == "" {
		telemetry.RPCRequestsTotal.With("UpsertPatient", "invalid").Inc()
		return nil, status.Error(codes.InvalidArgument, "patient id is required")
	}

	s.store.Put(p)
	s.hub.Signal(id, p)

	telemetry.RPCRequestsTotal.With("UpsertPatient", "ok").Inc()
	return &PatientAck{Id: id, Status: "ok"}, nil
}

// StreamChanges is the bidirectional change-acknowledgment exchange.
// Every inbound change-set produces exactly one acknowledgment, in
// arrival order. The outbound stream is driven by a forwarding
// goroutine reading from a per-call channel; the receive loop owns the
// channel and closes it when the inbound stream ends or fails.
func (s *FhirSyncService) StreamChanges(stream FhirSync_StreamChangesServer) error {
	acks := make(chan *Ack, streamAckBuffer)
	sendDone := make(chan error, 1)

	go func() {
		for ack := range acks {
			if err := stream.Send(ack); err != nil {
				sendDone <- err
				// Keep draining so the receive loop never blocks on
				// a dead outbound stream.
				for range acks {
				}
				return
			}
			telemetry.StreamAcksTotal.Inc()
		}
		sendDone <- nil
	}()

	var recvErr error
	for {
		changeSet, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				recvErr = err
			}
			break
		}

		s.applyChangeSet(changeSet)

		select {
		case acks <- &Ack{Message: ackMessage}:
		case <-stream.Context().Done():
			recvErr = stream.Context().Err()
			goto done
		}
	}

done:
	close(acks)
	sendErr := <-sendDone

	if recvErr != nil {
		log.Warn().Err(recvErr).Msg("Change stream terminated by inbound error")
		telemetry.RPCRequestsTotal.With("StreamChanges", "error").Inc()
		return recvErr
	}
	if sendErr != nil {
		telemetry.RPCRequestsTotal.With("StreamChanges", "error").Inc()
		return sendErr
	}
	telemetry.RPCRequestsTotal.With("StreamChanges", "ok").Inc()
	return nil
}

// applyChangeSet folds the patients of one change-set into shared
// state. Records without a logical id are skipped.
func (s *FhirSyncService) applyChangeSet(cs *ChangeSet) {
	for _, p := range cs.Patients {
		id := p.LogicalID()
		if id == "" {
			continue
		}
		s.store.Put(p)
		s.hub.Signal(id, p)
	}
}

// WatchPatients streams adapted patient updates to the peer as the
// pipeline observes them. Updates the subscriber cannot keep up with
// are dropped rather than backing up the pipeline.
func (s *FhirSyncService) WatchPatients(req *WatchRequest, stream FhirSync_WatchPatientsServer) error {
	updates, cancel := s.hub.Subscribe(notify.Filter{DemographicNos: req.DemographicNos})
	defer cancel()

	log.Debug().Strs("filter", req.DemographicNos).Msg("Watch stream opened")

	for {
		select {
		case <-stream.Context().Done():
			telemetry.RPCRequestsTotal.With("WatchPatients", "ok").Inc()
			return nil
		case p, ok := <-updates:
			if !ok {
				telemetry.RPCRequestsTotal.With("WatchPatients", "ok").Inc()
				return nil
			}
			if err := stream.Send(p); err != nil {
				telemetry.RPCRequestsTotal.With("WatchPatients", "error").Inc()
				return err
			}
		}
	}
}
