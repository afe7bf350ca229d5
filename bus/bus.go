// Package bus provides the bounded in-process channel that carries
// domain events from the CDC listener and the ingestion endpoint to the
// sync forwarder.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ArsMedicaTech/fhir-sync/domain"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// DefaultCapacity is the reference bus capacity, sized to absorb write
// bursts from the binlog without unbounded memory growth.
const DefaultCapacity = 1024

// Bus is a bounded multi-producer/single-consumer event channel.
// Delivery is FIFO per producer; no ordering is guaranteed across
// producers. The delivery channel closes once every attached producer
// has been closed.
type Bus struct {
	ch chan domain.Event

	mu        sync.Mutex
	producers int
	closed    bool
}

// New creates a bus with the given capacity. Capacity <= 0 falls back
// to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{ch: make(chan domain.Event, capacity)}
}

// Events returns the delivery channel. Exactly one consumer should
// range over it; it closes when all producers have detached.
func (b *Bus) Events() <-chan domain.Event {
	return b.ch
}

// Depth reports the number of buffered, undelivered events.
func (b *Bus) Depth() int {
	return len(b.ch)
}

// Attach registers a new producer. Every producer must be closed for
// the bus to complete.
func (b *Bus) Attach(name string) (*Producer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	b.producers++

	log.Debug().Str("producer", name).Int("producers", b.producers).Msg("Producer attached to bus")
	return &Producer{bus: b, name: name}, nil
}

// detach is called by Producer.Close; the last detach closes the
// delivery channel.
func (b *Bus) detach(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.producers--
	log.Debug().Str("producer", name).Int("producers", b.producers).Msg("Producer detached from bus")

	if b.producers <= 0 {
		b.closed = true
		close(b.ch)
		log.Info().Msg("All producers detached, closing event bus")
	}
}

// Producer is a handle through which one task publishes events.
// Publish calls from a single producer are delivered in call order.
// The owning task must not publish concurrently with its own Close:
// the last Close shuts the delivery channel.
type Producer struct {
	bus    *Bus
	name   string
	closed atomic.Bool
	once   sync.Once
}

// Publish places an event on the bus. Events failing the patient
// invariant are rejected, and publishing through a closed producer is
// an error. When the bus is full the call blocks until space frees up
// or ctx is cancelled; the event is neither dropped nor duplicated.
func (p *Producer) Publish(ctx context.Context, ev domain.Event) error {
	if p.closed.Load() {
		return fmt.Errorf("producer %s is closed", p.name)
	}
	if err := ev.Patient.Validate(); err != nil {
		telemetry.BusEventsRejected.Inc()
		return fmt.Errorf("rejecting event from %s: %w", p.name, err)
	}

	select {
	case p.bus.ch <- ev:
		telemetry.BusEventsPublished.With(p.name).Inc()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish from %s cancelled: %w", p.name, ctx.Err())
	}
}

// Close detaches the producer from the bus. Idempotent.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.closed.Store(true)
		p.bus.detach(p.name)
	})
}
