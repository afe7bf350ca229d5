package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
)

type fakeReader struct {
	patients map[string]*fhir.Patient
	err      error
	calls    int
}

func (f *fakeReader) Get(_ context.Context, demographicNo string) (*fhir.Patient, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.patients[demographicNo], nil
}

func (f *fakeReader) Close() error { return nil }

func cached(id string) *fhir.Patient {
	return &fhir.Patient{Id: &fhir.Id{Value: id}}
}

func TestStorePutGet(t *testing.T) {
	s := New(nil)

	s.Put(cached("1"))
	p, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "1", p.Id.Value)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Get("2")
	assert.False(t, ok)
}

func TestStorePutLastWriteWins(t *testing.T) {
	s := New(nil)

	first := cached("1")
	second := cached("1")
	s.Put(first)
	s.Put(second)

	p, ok := s.Get("1")
	require.True(t, ok)
	assert.Same(t, second, p)
	assert.Equal(t, 1, s.Len())
}

func TestStorePutIgnoresRecordsWithoutID(t *testing.T) {
	s := New(nil)
	s.Put(nil)
	s.Put(&fhir.Patient{})
	assert.Equal(t, 0, s.Len())
}

func TestLookupMissWithoutSource(t *testing.T) {
	s := New(nil)
	p, err := s.Lookup(context.Background(), "1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLookupReadsThroughAndCaches(t *testing.T) {
	reader := &fakeReader{patients: map[string]*fhir.Patient{"5": cached("5")}}
	s := New(reader)

	p, err := s.Lookup(context.Background(), "5")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "5", p.Id.Value)
	assert.Equal(t, 1, reader.calls)

	// Second lookup is served from memory.
	_, err = s.Lookup(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls)
}

func TestLookupSourceMiss(t *testing.T) {
	reader := &fakeReader{patients: map[string]*fhir.Patient{}}
	s := New(reader)

	p, err := s.Lookup(context.Background(), "404")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 0, s.Len())
}

func TestLookupSourceError(t *testing.T) {
	reader := &fakeReader{err: errors.New("connection refused")}
	s := New(reader)

	_, err := s.Lookup(context.Background(), "1")
	assert.Error(t, err)
}
