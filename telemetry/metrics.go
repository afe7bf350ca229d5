package telemetry

// Histogram bucket definitions
var (
	// PublishBuckets for sink publish latencies (network round trips)
	PublishBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// AdaptBuckets for in-process transformation latencies
	AdaptBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005}
)

// Event Bus Metrics
var (
	// BusEventsPublished counts events published to the bus by producer
	BusEventsPublished CounterVec = noopCounterVec{}

	// BusEventsRejected counts events rejected before publishing (invariant failures)
	BusEventsRejected Counter = NoopStat{}

	// BusDepth tracks the number of buffered events on the bus
	BusDepth Gauge = NoopStat{}
)

// CDC Listener Metrics
var (
	// BinlogEventsTotal counts binlog records by type (rows, table_map, rotate, other)
	BinlogEventsTotal CounterVec = noopCounterVec{}

	// BinlogRowsMapped counts demographic rows mapped to patient events
	BinlogRowsMapped Counter = NoopStat{}

	// BinlogRowsSkipped counts rows skipped (non-tracked table or missing key)
	BinlogRowsSkipped CounterVec = noopCounterVec{}

	// CheckpointPosition tracks the last durably stored binlog offset
	CheckpointPosition Gauge = NoopStat{}
)

// Forwarder Metrics
var (
	// ForwardedTotal counts events adapted and forwarded by result
	ForwardedTotal CounterVec = noopCounterVec{}

	// SinkPublishTotal counts sink publishes by sink and result
	SinkPublishTotal CounterVec = noopCounterVec{}

	// SinkRetriesTotal counts sink publish retries by sink
	SinkRetriesTotal CounterVec = noopCounterVec{}

	// AdaptSeconds measures domain-to-FHIR adaptation latency
	AdaptSeconds Histogram = NoopStat{}
)

// RPC / HTTP Metrics
var (
	// RPCRequestsTotal counts sync service calls by method and result
	RPCRequestsTotal CounterVec = noopCounterVec{}

	// StreamAcksTotal counts acknowledgments emitted on change streams
	StreamAcksTotal Counter = NoopStat{}

	// WatchSubscribers tracks active patient watch streams
	WatchSubscribers Gauge = NoopStat{}

	// IngestRequestsTotal counts HTTP ingestion requests by status
	IngestRequestsTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after the registry exists.
func InitMetrics() {
	// Event Bus Metrics
	BusEventsPublished = NewCounterVec(
		"bus_events_published_total",
		"Events published to the bus by producer",
		[]string{"producer"},
	)
	BusEventsRejected = NewCounter(
		"bus_events_rejected_total",
		"Events rejected before publishing",
	)
	BusDepth = NewGauge(
		"bus_depth",
		"Number of buffered events on the bus",
	)

	// CDC Listener Metrics
	BinlogEventsTotal = NewCounterVec(
		"binlog_events_total",
		"Binlog records read by type",
		[]string{"type"},
	)
	BinlogRowsMapped = NewCounter(
		"binlog_rows_mapped_total",
		"Demographic rows mapped to patient events",
	)
	BinlogRowsSkipped = NewCounterVec(
		"binlog_rows_skipped_total",
		"Rows skipped by reason",
		[]string{"reason"},
	)
	CheckpointPosition = NewGauge(
		"checkpoint_position",
		"Last durably stored binlog offset",
	)

	// Forwarder Metrics
	ForwardedTotal = NewCounterVec(
		"forwarded_total",
		"Events adapted and forwarded by result",
		[]string{"result"},
	)
	SinkPublishTotal = NewCounterVec(
		"sink_publish_total",
		"Sink publishes by sink and result",
		[]string{"sink", "result"},
	)
	SinkRetriesTotal = NewCounterVec(
		"sink_retries_total",
		"Sink publish retries by sink",
		[]string{"sink"},
	)
	AdaptSeconds = NewHistogramWithBuckets(
		"adapt_seconds",
		"Domain-to-FHIR adaptation latency in seconds",
		AdaptBuckets,
	)

	// RPC / HTTP Metrics
	RPCRequestsTotal = NewCounterVec(
		"rpc_requests_total",
		"Sync service calls by method and result",
		[]string{"method", "result"},
	)
	StreamAcksTotal = NewCounter(
		"stream_acks_total",
		"Acknowledgments emitted on change streams",
	)
	WatchSubscribers = NewGauge(
		"watch_subscribers",
		"Active patient watch streams",
	)
	IngestRequestsTotal = NewCounterVec(
		"ingest_requests_total",
		"HTTP ingestion requests by status",
		[]string{"status"},
	)
}
