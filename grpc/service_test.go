package grpc

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
	"github.com/ArsMedicaTech/fhir-sync/notify"
	"github.com/ArsMedicaTech/fhir-sync/store"
)

func newTestService() *FhirSyncService {
	return NewFhirSyncService(store.New(nil), notify.NewHub())
}

func wirePatient(id string) *fhir.Patient {
	return &fhir.Patient{Id: &fhir.Id{Value: id}}
}

// fakeServerStream satisfies the grpc.ServerStream plumbing for
// handler-level tests.
type fakeServerStream struct {
	ctx context.Context
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(interface{}) error    { return nil }
func (f *fakeServerStream) RecvMsg(interface{}) error    { return nil }

// fakeChangeStream feeds a fixed inbound sequence and records acks.
type fakeChangeStream struct {
	fakeServerStream
	inbound []*ChangeSet
	recvErr error // returned once inbound is drained; io.EOF when nil

	mu   sync.Mutex
	acks []*Ack
}

func (s *fakeChangeStream) Recv() (*ChangeSet, error) {
	if len(s.inbound) == 0 {
		if s.recvErr != nil {
			return nil, s.recvErr
		}
		return nil, io.EOF
	}
	next := s.inbound[0]
	s.inbound = s.inbound[1:]
	return next, nil
}

func (s *fakeChangeStream) Send(a *Ack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, a)
	return nil
}

func (s *fakeChangeStream) sentAcks() []*Ack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Ack, len(s.acks))
	copy(out, s.acks)
	return out
}

// fakeWatchStream records sent updates.
type fakeWatchStream struct {
	fakeServerStream

	mu   sync.Mutex
	sent []*fhir.Patient
}

func (s *fakeWatchStream) Send(p *fhir.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
	return nil
}

func (s *fakeWatchStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestGetPatientEchoesUnknownID(t *testing.T) {
	svc := newTestService()

	p, err := svc.GetPatient(context.Background(), &PatientRef{Id: "12345"})
	require.NoError(t, err)
	assert.Equal(t, "12345", p.LogicalID())
	assert.Empty(t, p.Name)
	assert.Nil(t, p.Gender)
}

func TestGetPatientReturnsStoredRecord(t *testing.T) {
	st := store.New(nil)
	svc := NewFhirSyncService(st, notify.NewHub())

	stored := wirePatient("7")
	stored.Gender = &fhir.GenderCode{Value: fhir.GenderFemale}
	st.Put(stored)

	p, err := svc.GetPatient(context.Background(), &PatientRef{Id: "7"})
	require.NoError(t, err)
	assert.Same(t, stored, p)
}

func TestGetPatientRequiresID(t *testing.T) {
	svc := newTestService()

	_, err := svc.GetPatient(context.Background(), &PatientRef{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUpsertPatientIdempotent(t *testing.T) {
	st := store.New(nil)
	svc := NewFhirSyncService(st, notify.NewHub())
	p := wirePatient("55")

	first, err := svc.UpsertPatient(context.Background(), p)
	require.NoError(t, err)
	second, err := svc.UpsertPatient(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "55", first.Id)
	assert.Equal(t, "ok", first.Status)

	stored, ok := st.Get("55")
	require.True(t, ok)
	assert.Same(t, p, stored)
}

func TestUpsertPatientRequiresID(t *testing.T) {
	svc := newTestService()

	_, err := svc.UpsertPatient(context.Background(), &fhir.Patient{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUpsertPatientSignalsWatchers(t *testing.T) {
	hub := notify.NewHub()
	svc := NewFhirSyncService(store.New(nil), hub)

	updates, cancel := hub.Subscribe(notify.Filter{})
	defer cancel()

	_, err := svc.UpsertPatient(context.Background(), wirePatient("3"))
	require.NoError(t, err)

	select {
	case p := <-updates:
		assert.Equal(t, "3", p.LogicalID())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch signal")
	}
}

func TestStreamChangesOneAckPerChangeSet(t *testing.T) {
	svc := newTestService()

	stream := &fakeChangeStream{
		fakeServerStream: fakeServerStream{ctx: context.Background()},
		inbound: []*ChangeSet{
			{Patients: []*fhir.Patient{wirePatient("1")}},
			{},
			{Patients: []*fhir.Patient{wirePatient("2"), wirePatient("3")}},
		},
	}

	require.NoError(t, svc.StreamChanges(stream))

	acks := stream.sentAcks()
	require.Len(t, acks, 3)
	for _, ack := range acks {
		assert.Equal(t, "got it", ack.Message)
	}
}

func TestStreamChangesAppliesPatients(t *testing.T) {
	st := store.New(nil)
	svc := NewFhirSyncService(st, notify.NewHub())

	stream := &fakeChangeStream{
		fakeServerStream: fakeServerStream{ctx: context.Background()},
		inbound: []*ChangeSet{
			{Patients: []*fhir.Patient{wirePatient("10"), {}}},
		},
	}

	require.NoError(t, svc.StreamChanges(stream))

	_, ok := st.Get("10")
	assert.True(t, ok)
	// The record without an id is skipped, not stored.
	assert.Equal(t, 1, st.Len())
}

func TestStreamChangesInboundErrorEndsStream(t *testing.T) {
	svc := newTestService()

	streamErr := errors.New("connection reset")
	stream := &fakeChangeStream{
		fakeServerStream: fakeServerStream{ctx: context.Background()},
		inbound: []*ChangeSet{
			{Patients: []*fhir.Patient{wirePatient("1")}},
		},
		recvErr: streamErr,
	}

	err := svc.StreamChanges(stream)
	assert.ErrorIs(t, err, streamErr)

	// The change-set received before the fault was still acknowledged.
	assert.Len(t, stream.sentAcks(), 1)
}

func TestWatchPatientsDeliversUpdates(t *testing.T) {
	hub := notify.NewHub()
	svc := NewFhirSyncService(store.New(nil), hub)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &fakeWatchStream{fakeServerStream: fakeServerStream{ctx: ctx}}

	done := make(chan error, 1)
	go func() {
		done <- svc.WatchPatients(&WatchRequest{}, stream)
	}()

	// Give the stream time to subscribe before signalling.
	require.Eventually(t, func() bool {
		hub.Signal("9", wirePatient("9"))
		return stream.sentCount() > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch stream did not exit on context cancel")
	}
}

func TestWatchPatientsFilter(t *testing.T) {
	hub := notify.NewHub()
	svc := NewFhirSyncService(store.New(nil), hub)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &fakeWatchStream{fakeServerStream: fakeServerStream{ctx: ctx}}

	done := make(chan error, 1)
	go func() {
		done <- svc.WatchPatients(&WatchRequest{DemographicNos: []string{"7"}}, stream)
	}()

	require.Eventually(t, func() bool {
		hub.Signal("8", wirePatient("8"))
		hub.Signal("7", wirePatient("7"))
		return stream.sentCount() > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	for _, p := range stream.sent {
		assert.Equal(t, "7", p.LogicalID())
	}
}
