package notify

import (
	"sync"
	"sync/atomic"

	"github.com/ArsMedicaTech/fhir-sync/fhir"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// defaultSignalBufferSize is the buffer size for patient update channels.
// Sized to handle typical burst rates while keeping memory low.
// Subscribers that can't keep up will have updates dropped (non-blocking send).
const defaultSignalBufferSize = 16

// Filter restricts a subscription to specific patients. An empty
// filter matches every update.
type Filter struct {
	DemographicNos []string
}

// subscription represents a single subscriber.
type subscription struct {
	id     uint64
	filter Filter
	ch     chan *fhir.Patient
	closed atomic.Bool
}

// matches checks if the patient matches this subscription's filter.
func (s *subscription) matches(demographicNo string) bool {
	// nil or empty = all patients
	if len(s.filter.DemographicNos) == 0 {
		return true
	}

	for _, no := range s.filter.DemographicNos {
		if no == demographicNo {
			return true
		}
	}
	return false
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub is a thread-safe fan-out point for adapted patient updates.
// The forwarder signals it after each processed event; watch streams
// subscribe to it.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
}

// NewHub creates a new patient update hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
	}
}

// Signal sends a patient update to all matching subscribers (non-blocking).
func (h *Hub) Signal(demographicNo string, patient *fhir.Patient) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if !sub.matches(demographicNo) {
			continue
		}

		// Non-blocking send - drop if buffer full
		select {
		case sub.ch <- patient:
		default:
			// Buffer full, skip this subscriber
		}
	}
}

// Subscribe creates a new subscription and returns the update channel and cancel function.
// The returned channel is buffered. If the subscriber cannot keep up with the update rate,
// updates will be dropped silently by Signal(). The cancel function is idempotent.
func (h *Hub) Subscribe(filter Filter) (<-chan *fhir.Patient, func()) {
	sub := &subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan *fhir.Patient, defaultSignalBufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()
	telemetry.WatchSubscribers.Inc()

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
		telemetry.WatchSubscribers.Dec()
	}
}
