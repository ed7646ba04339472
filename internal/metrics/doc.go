// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package metrics provides Prometheus instrumentation for the event
ledger's engine and HTTP layers, exposed at /metrics in Prometheus
text format via promhttp.Handler().

# Available Metrics

Append path:
  - eventledger_events_appended_total (counter, label stream_id)
  - eventledger_append_latency_seconds (histogram)

Poll/commit path:
  - eventledger_poll_requests_total (counter, labels stream_id, outcome)
  - eventledger_poll_events_returned (histogram)
  - eventledger_commit_requests_total (counter, labels stream_id, outcome)

Compaction:
  - eventledger_compaction_applied_total (counter, label stream_id)
  - eventledger_compaction_skipped_total (counter, label stream_id)
  - eventledger_changefeed_publish_failures_total (counter)

HTTP:
  - eventledger_http_requests_total (counter, labels method, route, status)
  - eventledger_http_request_duration_seconds (histogram, labels method, route)

The WAL's own durability metrics (wal_writes_total, wal_pending_entries,
and friends) live alongside the WAL in internal/wal/metrics.go rather
than here, since they are promauto-registered at package init and do
not depend on this package.

# Cardinality

Route labels on HTTP metrics come from the matched chi route pattern
(e.g. /streams/{streamID}/events), not the raw request path, so path
parameters never explode the series count.
*/
package metrics
