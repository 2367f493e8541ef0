package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Runtime registry metrics
	FlowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowforge_flows_total",
			Help: "Total number of registered flows by state",
		},
		[]string{"state"},
	)

	// Element registry metrics
	RegistryIntrospectionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowforge_registry_introspection_total",
			Help: "Total number of factory introspection attempts by result",
		},
		[]string{"result"},
	)

	RegistrySkippedFactoriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowforge_registry_skipped_factories_total",
			Help: "Number of factories currently on the crash-prone skip list",
		},
	)

	// Pipeline build metrics
	BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowforge_pipeline_build_duration_seconds",
			Help:    "Time taken to build a pipeline from a flow document in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BuildFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowforge_pipeline_build_failures_total",
			Help: "Total number of pipeline build failures by error kind",
		},
		[]string{"kind"},
	)

	FanOutInsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowforge_pipeline_fanout_inserted_total",
			Help: "Total number of tee elements auto-inserted for fan-out",
		},
	)

	// Lifecycle manager metrics
	FlowStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowforge_flow_state_transitions_total",
			Help: "Total number of flow state transitions",
		},
		[]string{"from", "to"},
	)

	FlowStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowforge_flow_start_duration_seconds",
			Help:    "Time taken to start a flow in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlowStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowforge_flow_stop_duration_seconds",
			Help:    "Time taken to stop a flow in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlowStartTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowforge_flow_start_timeouts_total",
			Help: "Total number of flow starts that exceeded the startup timeout",
		},
	)

	// Property & pad service metrics
	PropertyWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowforge_property_write_duration_seconds",
			Help:    "Time taken to apply a live property write in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PropertyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowforge_property_errors_total",
			Help: "Total number of property read/write errors by kind",
		},
		[]string{"kind"},
	)

	// Event broadcaster metrics
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowforge_events_published_total",
			Help: "Total number of events published by kind",
		},
		[]string{"kind"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowforge_events_dropped_total",
			Help: "Total number of events dropped due to a full subscriber buffer",
		},
	)

	EventSubscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowforge_event_subscribers",
			Help: "Current number of active event subscribers",
		},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowforge_reconciliation_duration_seconds",
			Help:    "Time taken for a startup reconciliation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowforge_reconciliation_restarts_total",
			Help: "Total number of flows auto-restarted during reconciliation",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowforge_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowforge_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(FlowsTotal)
	prometheus.MustRegister(RegistryIntrospectionTotal)
	prometheus.MustRegister(RegistrySkippedFactoriesTotal)
	prometheus.MustRegister(BuildDuration)
	prometheus.MustRegister(BuildFailuresTotal)
	prometheus.MustRegister(FanOutInsertedTotal)
	prometheus.MustRegister(FlowStateTransitionsTotal)
	prometheus.MustRegister(FlowStartDuration)
	prometheus.MustRegister(FlowStopDuration)
	prometheus.MustRegister(FlowStartTimeoutsTotal)
	prometheus.MustRegister(PropertyWriteDuration)
	prometheus.MustRegister(PropertyErrorsTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(EventSubscribersGauge)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationRestartsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
