package domain

// EventKind discriminates the variants of Event. New entity types
// (encounters, appointments, ...) get additional kinds on the same
// tagged union rather than new event structs.
type EventKind uint8

const (
	// KindPatientUpsert covers inserts and updates alike; the CDC feed
	// does not distinguish create from modify for this entity.
	KindPatientUpsert EventKind = iota
)

// String returns the stable wire name of the kind, used for sink
// topics and filters.
func (k EventKind) String() string {
	switch k {
	case KindPatientUpsert:
		return "patient_upsert"
	default:
		return "unknown"
	}
}

// Event origin labels, used in logs and telemetry.
const (
	OriginCDC       = "cdc"
	OriginIngestion = "ingestion"
)

// Event is the unit carried by the event bus. Exactly one payload
// field is set, selected by Kind. Events are transferred by value and
// owned by one goroutine at a time.
type Event struct {
	Kind    EventKind
	Origin  string
	Patient Patient
}

// NewPatientUpsert builds a patient upsert event from the given origin.
func NewPatientUpsert(origin string, p Patient) Event {
	return Event{
		Kind:    KindPatientUpsert,
		Origin:  origin,
		Patient: p,
	}
}
