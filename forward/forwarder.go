package forward

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ArsMedicaTech/fhir-sync/cfg"
	"github.com/ArsMedicaTech/fhir-sync/domain"
	"github.com/ArsMedicaTech/fhir-sync/encoding"
	"github.com/ArsMedicaTech/fhir-sync/fhir"
	"github.com/ArsMedicaTech/fhir-sync/notify"
	"github.com/ArsMedicaTech/fhir-sync/store"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

const (
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of retry attempts before giving up on a publish operation
	DefaultMaxRetries = 100
)

// route binds one configured sink to its filter and retry policy.
type route struct {
	name            string
	sink            Sink
	filter          Filter
	topicPrefix     string
	retryInitial    time.Duration
	retryMax        time.Duration
	retryMultiplier float64
	maxRetries      int
}

// Forwarder is the single consumer of the event bus. Events are
// processed strictly in arrival order: adapt, cache, announce, then
// publish to every matching sink. A sink that keeps failing past its
// retry budget drops that event for that sink only.
type Forwarder struct {
	events <-chan domain.Event
	store  *store.Store
	hub    *notify.Hub
	routes []*route

	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex
}

// NewForwarder builds the forwarder and its sinks. Sinks that were
// already created are closed again when a later one fails to build.
func NewForwarder(events <-chan domain.Event, st *store.Store, hub *notify.Hub, sinkConfigs []cfg.SinkConfiguration) (*Forwarder, error) {
	f := &Forwarder{
		events: events,
		store:  st,
		hub:    hub,
		routes: make([]*route, 0, len(sinkConfigs)),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	for _, sinkCfg := range sinkConfigs {
		r, err := newRoute(sinkCfg)
		if err != nil {
			f.closeSinks()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
		f.routes = append(f.routes, r)

		log.Info().
			Str("sink", sinkCfg.Name).
			Str("type", sinkCfg.Type).
			Msg("Added forwarding sink")
	}

	return f, nil
}

func newRoute(config cfg.SinkConfiguration) (*route, error) {
	snk, err := createSink(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink: %w", err)
	}

	filter, err := NewKindFilter(config.FilterKinds)
	if err != nil {
		snk.Close()
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	r := &route{
		name:            config.Name,
		sink:            snk,
		filter:          filter,
		topicPrefix:     config.TopicPrefix,
		retryInitial:    time.Duration(config.RetryInitialMS) * time.Millisecond,
		retryMax:        time.Duration(config.RetryMaxMS) * time.Millisecond,
		retryMultiplier: config.RetryMultiplier,
		maxRetries:      config.MaxRetries,
	}
	if r.retryInitial <= 0 {
		r.retryInitial = DefaultRetryInitial
	}
	if r.retryMax <= 0 {
		r.retryMax = DefaultRetryMax
	}
	if r.retryMultiplier <= 0 {
		r.retryMultiplier = DefaultRetryMultiplier
	}
	if r.maxRetries <= 0 {
		r.maxRetries = DefaultMaxRetries
	}
	return r, nil
}

// Start starts the forwarder goroutine
func (f *Forwarder) Start() {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if f.running.Load() {
		return // Already running
	}

	f.running.Store(true)
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})

	log.Info().Int("sinks", len(f.routes)).Msg("Starting sync forwarder")

	go f.drainLoop()
}

// Stop stops the forwarder gracefully and closes all sinks
func (f *Forwarder) Stop() {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if !f.running.Load() {
		return // Not running
	}

	log.Info().Msg("Stopping sync forwarder")

	close(f.stopCh)
	<-f.doneCh // Wait for goroutine to finish
	f.running.Store(false)

	f.closeSinks()

	log.Info().Msg("Sync forwarder stopped")
}

// drainLoop is the main forwarder loop. It exits when the bus channel
// closes, which happens after every producer has detached.
func (f *Forwarder) drainLoop() {
	defer close(f.doneCh)

	for {
		select {
		case <-f.stopCh:
			f.drainBacklog()
			return
		case ev, ok := <-f.events:
			if !ok {
				log.Info().Msg("Event bus closed, forwarder draining complete")
				return
			}
			f.process(ev)
			telemetry.BusDepth.Set(float64(len(f.events)))
		}
	}
}

// drainBacklog processes events already accepted onto the bus when a
// stop arrives. It never blocks waiting for new events, so a stop with
// producers still attached only flushes the buffered backlog.
func (f *Forwarder) drainBacklog() {
	for {
		select {
		case ev, ok := <-f.events:
			if !ok {
				return
			}
			f.process(ev)
			telemetry.BusDepth.Set(float64(len(f.events)))
		default:
			return
		}
	}
}

// process handles a single event end to end. Sink failures never stop
// the in-process consumers: the cache and watch hub are updated before
// any sink is attempted.
func (f *Forwarder) process(ev domain.Event) {
	start := time.Now()
	adapted := fhir.ToPatient(ev.Patient)
	telemetry.AdaptSeconds.Observe(time.Since(start).Seconds())

	f.store.Put(adapted)
	f.hub.Signal(ev.Patient.DemographicNo, adapted)

	if len(f.routes) == 0 {
		telemetry.ForwardedTotal.With("ok").Inc()
		return
	}

	payload, err := encoding.Marshal(adapted)
	if err != nil {
		log.Error().
			Err(err).
			Str("demographic_no", ev.Patient.DemographicNo).
			Msg("Failed to encode adapted patient")
		telemetry.ForwardedTotal.With("encode_error").Inc()
		return
	}

	kind := ev.Kind.String()
	result := "ok"
	for _, r := range f.routes {
		if !r.filter.Match(kind) {
			continue
		}

		topic := buildTopic(r.topicPrefix, kind)
		if err := f.publishWithRetry(r, topic, ev.Patient.DemographicNo, payload); err != nil {
			log.Error().
				Err(err).
				Str("sink", r.name).
				Str("demographic_no", ev.Patient.DemographicNo).
				Msg("Dropped event for sink after exhausting retries")
			result = "sink_error"
		}
	}
	telemetry.ForwardedTotal.With(result).Inc()
}

// buildTopic builds the topic name for an event kind
func buildTopic(prefix, kind string) string {
	if prefix == "" {
		return kind
	}
	return fmt.Sprintf("%s.%s", prefix, kind)
}

// publishWithRetry publishes data with exponential backoff retry
// Returns error if max retries exhausted or forwarder stopped
func (f *Forwarder) publishWithRetry(r *route, topic, key string, data []byte) error {
	delay := r.retryInitial
	attempts := 0

	for {
		err := r.sink.Publish(topic, key, data)
		if err == nil {
			telemetry.SinkPublishTotal.With(r.name, "ok").Inc()
			return nil
		}
		telemetry.SinkPublishTotal.With(r.name, "error").Inc()

		attempts++
		if attempts >= r.maxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", r.maxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("sink", r.name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("Publish failed, retrying")
		telemetry.SinkRetriesTotal.With(r.name).Inc()

		select {
		case <-f.stopCh:
			return fmt.Errorf("forwarder stopped while retrying topic %s: %w", topic, err)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.retryMultiplier)
		if delay > r.retryMax {
			delay = r.retryMax
		}
	}
}

func (f *Forwarder) closeSinks() {
	for _, r := range f.routes {
		if err := r.sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", r.name).Msg("Failed to close sink")
		}
	}
}
