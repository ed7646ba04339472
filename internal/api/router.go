// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cartographus/internal/middleware"
)

// NewRouter builds the full chi route tree for s, layering CORS, rate
// limiting, request-ID propagation, compression and Prometheus
// instrumentation around every handler (spec.md §6).
func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return middleware.RequestID(next.ServeHTTP)
	})
	r.Use(middleware.PrometheusMetrics)
	r.Use(func(next http.Handler) http.Handler {
		return middleware.Compression(next.ServeHTTP)
	})
	r.Use(s.perf.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		MaxAge:           300,
		AllowCredentials: false,
	}))
	r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/performance", s.DebugPerformance)

	r.Route("/streams", func(r chi.Router) {
		r.Post("/", s.CreateStream)
		r.Get("/", s.ListStreams)

		r.Route("/{streamID}", func(r chi.Router) {
			r.Get("/", s.GetStream)
			r.Delete("/", s.DeleteStream)

			r.Post("/events", s.PublishEvents)

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", s.CreateSubscription)

				r.Route("/{subscriptionID}", func(r chi.Router) {
					r.Get("/", s.GetSubscription)
					r.Delete("/", s.DeleteSubscription)
					r.Get("/poll", s.Poll)
					r.Post("/commit", s.Commit)
				})
			})

			r.Route("/compacted", func(r chi.Router) {
				r.Get("/", s.ListCompacted)
				r.Get("/{key}", s.GetCompacted)
			})
		})
	})

	return r
}

// default timeouts applied by cmd/server when building the http.Server;
// kept here so the router package documents the values it expects to be
// wrapped with.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
)
