// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventledger_events_appended_total",
		Help: "Total number of events appended, by stream",
	}, []string{"stream_id"})

	appendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventledger_append_latency_seconds",
		Help:    "Latency of append requests in seconds",
		Buckets: prometheus.DefBuckets,
	})

	pollRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventledger_poll_requests_total",
		Help: "Total number of poll requests, by stream and outcome",
	}, []string{"stream_id", "outcome"})

	pollEventsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventledger_poll_events_returned",
		Help:    "Number of events returned per poll request",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	commitRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventledger_commit_requests_total",
		Help: "Total number of commit requests, by stream and outcome",
	}, []string{"stream_id", "outcome"})

	compactionAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventledger_compaction_applied_total",
		Help: "Total number of change records applied to the compacted projection, by stream",
	}, []string{"stream_id"})

	compactionSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventledger_compaction_skipped_total",
		Help: "Total number of change records skipped by the compactor's monotonic guard, by stream",
	}, []string{"stream_id"})

	changeFeedPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventledger_changefeed_publish_failures_total",
		Help: "Total number of change-feed publish attempts that failed and fell back to the WAL retry loop",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventledger_http_requests_total",
		Help: "Total HTTP requests, by method, route and status code",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventledger_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordAppend records a successful append of n events to streamID.
func RecordAppend(streamID string, n int, seconds float64) {
	eventsAppendedTotal.WithLabelValues(streamID).Add(float64(n))
	appendLatency.Observe(seconds)
}

// RecordPoll records the outcome of a poll request and how many events
// it returned.
func RecordPoll(streamID, outcome string, eventsReturned int) {
	pollRequestsTotal.WithLabelValues(streamID, outcome).Inc()
	pollEventsReturned.Observe(float64(eventsReturned))
}

// RecordCommit records the outcome of a commit request.
func RecordCommit(streamID, outcome string) {
	commitRequestsTotal.WithLabelValues(streamID, outcome).Inc()
}

// RecordCompactionApplied records that a change record updated the
// compacted projection for streamID.
func RecordCompactionApplied(streamID string) {
	compactionAppliedTotal.WithLabelValues(streamID).Inc()
}

// RecordCompactionSkipped records that a change record was dropped by
// the compactor's monotonic sequence guard.
func RecordCompactionSkipped(streamID string) {
	compactionSkippedTotal.WithLabelValues(streamID).Inc()
}

// RecordChangeFeedPublishFailure increments the change-feed publish
// failure counter.
func RecordChangeFeedPublishFailure() {
	changeFeedPublishFailuresTotal.Inc()
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, route, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
