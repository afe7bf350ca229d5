// Package forward drains the event bus: every event is adapted to its
// clinical representation, cached, announced to watchers, and published
// to the configured downstream sinks.
package forward

import (
	"fmt"
	"sync"

	"github.com/ArsMedicaTech/fhir-sync/cfg"
)

// Sink represents a destination for adapted patient records (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends a record to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Filter determines whether an event should be forwarded to a sink
type Filter interface {
	// Match returns true if the event kind should be forwarded
	Match(kind string) bool
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// createSink creates a sink based on the configuration
func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}
