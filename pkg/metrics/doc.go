/*
Package metrics provides Prometheus metrics collection and exposition for
the Flow Runtime.

The metrics package defines and registers every runtime metric using the
Prometheus client library, providing observability into flow lifecycle
transitions, pipeline build outcomes, event fan-out, and API latency.
Metrics are exposed via an HTTP endpoint for scraping by Prometheus
servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (flows by state)     │          │
	│  │  Counter: Monotonic increases (transitions) │          │
	│  │  Histogram: Distributions (start/stop time) │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Flow: state gauges, transition counters    │          │
	│  │  Registry: introspection, skip-listed count │          │
	│  │  Pipeline: build duration, fan-out inserted │          │
	│  │  Property: write duration, error kinds      │          │
	│  │  Events: published/dropped, subscriber count│          │
	│  │  Reconciler: cycle duration, restart count  │          │
	│  │  API: request count, duration               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

flowforge_flows_total{state}:
  - Type: Gauge
  - Description: Flows currently in each PipelineState.

flowforge_flow_state_transitions_total{from, to}:
  - Type: Counter
  - Description: Lifecycle transitions observed, by source and destination state.

flowforge_flow_start_duration_seconds / flowforge_flow_stop_duration_seconds:
  - Type: Histogram
  - Description: Time from a start/stop request to the bus-confirmed state change.

flowforge_flow_start_timeouts_total:
  - Type: Counter
  - Description: Starts that never observed a Playing confirmation within the start deadline.

flowforge_registry_introspection_total{result}:
  - Type: Counter
  - Description: Property/pad-property introspection calls, by outcome (ok, failed).

flowforge_registry_skipped_factories_total:
  - Type: Gauge
  - Description: Factories excluded from introspection by the skip list. Registered, but no package in this module sets it.

flowforge_pipeline_build_duration_seconds:
  - Type: Histogram
  - Description: Time to expand blocks, instantiate elements, and link a Flow document.

flowforge_pipeline_build_failures_total{kind}:
  - Type: Counter
  - Description: Build failures by kind (not_found, link_error, block_error, other; runtime for fatal bus errors).

flowforge_pipeline_fanout_inserted_total:
  - Type: Counter
  - Description: Tee/fan-out elements auto-inserted for one-to-many links.

flowforge_property_write_duration_seconds:
  - Type: Histogram
  - Description: Time for a live element/pad property write to complete.

flowforge_property_errors_total{kind}:
  - Type: Counter
  - Description: Property errors by kind (type_mismatch, write_failed).

flowforge_events_published_total{kind} / flowforge_events_dropped_total:
  - Type: Counter
  - Description: Events broadcast by kind, and events dropped for lagging subscribers.

flowforge_event_subscribers:
  - Type: Gauge
  - Description: Live event-stream subscriptions across all flows.

flowforge_reconciliation_duration_seconds / flowforge_reconciliation_restarts_total:
  - Type: Histogram / Counter
  - Description: Reconciliation pass duration, and auto-restarts performed on startup.

flowforge_api_requests_total{method, status} / flowforge_api_request_duration_seconds{method}:
  - Type: Counter / Histogram
  - Description: REST request count and latency.

# Usage

	import "github.com/flowforge/runtime/pkg/metrics"

	metrics.FlowsTotal.WithLabelValues("running").Inc()
	metrics.FlowStateTransitionsTotal.WithLabelValues("starting", "running").Inc()

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.FlowStartDuration)

	timer2 := metrics.NewTimer()
	// ... perform operation ...
	timer2.ObserveDurationVec(metrics.APIRequestDuration, "GET")

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/flow: Updates flow state gauges, transition counters, start/stop histograms
  - pkg/pipeline: Records build duration, failures, and fan-out insertions
  - pkg/registry: Tracks introspection outcomes
  - pkg/propsvc: Records property write duration and error kinds
  - pkg/events: Tracks published/dropped events and subscriber count
  - pkg/reconciler: Tracks reconciliation duration and restart count
  - pkg/api: Instruments request count and duration
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - Every metric registered in init() via MustRegister
  - Ensures metrics are available before main() runs

Label Discipline:
  - Labels are state names, error kinds, HTTP methods — all bounded cardinality
  - Flow IDs and element IDs are never used as label values (unbounded)

Timer Pattern:
  - Create a Timer at operation start
  - Call ObserveDuration/ObserveDurationVec when the operation completes

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
