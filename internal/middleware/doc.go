// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package middleware provides HTTP middleware components for the application.

This package implements infrastructure middleware for compression, performance
monitoring, request ID tracking, and Prometheus metrics integration. internal/api
layers these around chi's router alongside go-chi/cors and go-chi/httprate.

Key Components:

  - Compression: Gzip compression for every response when the client accepts gzip
  - Performance Monitor: Request latency tracking with percentile calculations
  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation

Middleware Stack:

internal/api.Server.NewRouter builds the stack in this order:

	chimiddleware.Recoverer        // Layer 1: panic recovery
	middleware.RequestID           // Layer 2: request tracking
	middleware.PrometheusMetrics   // Layer 3: metrics
	middleware.Compression         // Layer 4: gzip
	perf.Middleware                // Layer 5: sliding-window latency stats
	cors.Handler                   // Layer 6: CORS headers
	httprate.LimitByIP             // Layer 7: rate limiting

Usage Example - Compression:

	import "github.com/tomtom215/cartographus/internal/middleware"

	// Wrap handler with gzip compression
	http.HandleFunc("/api/v1/data",
	    middleware.Compression(handler),
	)

	// Responses of any size are compressed
	// Accept-Encoding: gzip header is required

Usage Example - Performance Monitoring:

	// Create performance monitor with a 1000-request sliding window
	perfMon := middleware.NewPerformanceMonitor(1000)

	// Wrap handler
	http.Handle("/api/v1/stats",
	    perfMon.Middleware(handler),
	)

	// Get per-endpoint performance statistics (durations in ms)
	for _, s := range perfMon.GetStats() {
	    fmt.Printf("%s p50: %d, p95: %d, p99: %d\n",
	        s.Path, s.P50Duration, s.P95Duration, s.P99Duration)
	}

Usage Example - Request ID:

	// Request ID middleware
	http.HandleFunc("/api/v1/logs",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := r.Context().Value(middleware.RequestIDKey).(string)
	    log.Printf("[%s] Processing request", requestID)
	}

Performance Characteristics:

  - Compression: 70-90% size reduction for JSON (text/json mime types)
  - Compression overhead: ~1-2ms for typical responses
  - Metrics overhead: <0.1ms per request
  - Request ID overhead: <0.01ms (UUID generation)
  - Performance monitor: sliding-window slice of latency samples guarded by sync.RWMutex

Compression Details:

The compression middleware:
  - Compresses responses of any size; there is no size threshold
  - Supports gzip encoding (Accept-Encoding: gzip)
  - Applies to every content type; the mime type is not inspected
  - Automatically sets Content-Encoding header
  - Does not implement http.Flusher, so handlers cannot flush partial output

Performance Monitor:

The performance monitor tracks:
  - Request count and the status code of each request (no error rate is computed)
  - Latency percentiles (p50, p95, p99)
  - Rolling window of the maxMetrics most recent requests (1000 in internal/api)
  - Thread-safe concurrent access with RWMutex

Thread Safety:

All middleware components are thread-safe:
  - Compression uses per-request gzip writers
  - Performance monitor uses sync.RWMutex
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

See Also:

  - internal/api: router and handlers wrapped by this middleware stack
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
