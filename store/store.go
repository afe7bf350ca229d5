// Package store keeps the latest adapted record per patient. The
// in-memory map is authoritative for anything the pipeline has seen;
// an optional source reader fills misses straight from the database.
package store

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
)

// Reader resolves a patient that the pipeline has not observed yet.
type Reader interface {
	Get(ctx context.Context, demographicNo string) (*fhir.Patient, error)
	Close() error
}

// Store is the last-write-wins cache of adapted patient records keyed
// by demographic number.
type Store struct {
	patients *xsync.MapOf[string, *fhir.Patient]
	source   Reader // nil = memory only
}

// New creates a store. source may be nil, in which case lookups never
// reach past memory.
func New(source Reader) *Store {
	return &Store{
		patients: xsync.NewMapOf[string, *fhir.Patient](),
		source:   source,
	}
}

// Put records the latest adapted state for a patient. Records without
// a logical id are ignored.
func (s *Store) Put(p *fhir.Patient) {
	if p == nil || p.LogicalID() == "" {
		return
	}
	s.patients.Store(p.LogicalID(), p)
}

// Get returns the cached record for a patient, if any.
func (s *Store) Get(demographicNo string) (*fhir.Patient, bool) {
	return s.patients.Load(demographicNo)
}

// Lookup resolves a patient, reading through to the source on a miss.
// A successful read-through populates the cache. A miss with no source
// configured returns (nil, nil).
func (s *Store) Lookup(ctx context.Context, demographicNo string) (*fhir.Patient, error) {
	if p, ok := s.patients.Load(demographicNo); ok {
		return p, nil
	}
	if s.source == nil {
		return nil, nil
	}

	p, err := s.source.Get(ctx, demographicNo)
	if err != nil {
		return nil, err
	}
	if p != nil {
		s.patients.Store(demographicNo, p)
	}
	return p, nil
}

// Len reports how many patients the cache holds.
func (s *Store) Len() int {
	return s.patients.Size()
}
