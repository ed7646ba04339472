// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/compact"
	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/ledgererr"
	"github.com/tomtom215/cartographus/internal/middleware"
	"github.com/tomtom215/cartographus/internal/poll"
	"github.com/tomtom215/cartographus/internal/publish"
	"github.com/tomtom215/cartographus/internal/registry"
)

// Server holds every engine the HTTP handlers dispatch to.
type Server struct {
	streams   *registry.StreamRegistry
	subs      *registry.SubscriptionRegistry
	publisher *publish.Publisher
	poller    *poll.Engine
	compactor *compact.Compactor
	cfg       config.APIConfig
	logger    zerolog.Logger
	perf      *middleware.PerformanceMonitor
}

func NewServer(
	streams *registry.StreamRegistry,
	subs *registry.SubscriptionRegistry,
	publisher *publish.Publisher,
	poller *poll.Engine,
	compactor *compact.Compactor,
	cfg config.APIConfig,
	logger zerolog.Logger,
) *Server {
	return &Server{
		streams:   streams,
		subs:      subs,
		publisher: publisher,
		poller:    poller,
		compactor: compactor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		perf:      middleware.NewPerformanceMonitor(1000),
	}
}

// DebugPerformance reports a sliding-window view of per-endpoint
// latency percentiles, useful alongside the Prometheus histograms for
// ad hoc p50/p95/p99 inspection without a metrics backend.
func (s *Server) DebugPerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.perf.GetStats())
}

// --- Streams ---

type createStreamRequest struct {
	StreamID       string `json:"stream_id"`
	PartitionCount uint32 `json:"partition_count"`
	RetentionHours uint32 `json:"retention_hours"`
}

func (s *Server) CreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, ledgererr.Validation("malformed request body"))
		return
	}
	partitionCount := req.PartitionCount
	if partitionCount == 0 {
		partitionCount = s.cfg.DefaultPartitionCount
	}
	retentionHours := req.RetentionHours
	if retentionHours == 0 {
		retentionHours = s.cfg.DefaultRetentionHours
	}

	stream, err := s.streams.Create(r.Context(), req.StreamID, partitionCount, retentionHours)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, stream)
}

func (s *Server) GetStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	stream, err := s.streams.Get(r.Context(), streamID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

func (s *Server) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.streams.List(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

func (s *Server) DeleteStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	if err := s.streams.Delete(r.Context(), streamID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- Subscriptions ---

type createSubscriptionRequest struct {
	SubscriptionID string               `json:"subscription_id"`
	StartFrom      eventmodel.StartFrom `json:"start_from"`
}

func (s *Server) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, ledgererr.Validation("malformed request body"))
		return
	}
	if req.StartFrom == "" {
		req.StartFrom = eventmodel.StartLatest
	}

	sub, err := s.subs.Create(r.Context(), streamID, req.SubscriptionID, req.StartFrom)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) GetSubscription(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	subID := chi.URLParam(r, "subscriptionID")
	sub, err := s.subs.Get(r.Context(), streamID, subID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	subID := chi.URLParam(r, "subscriptionID")
	if err := s.subs.Delete(r.Context(), streamID, subID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- Events (append path) ---

type publishRequest struct {
	Events []eventmodel.PublishEvent `json:"events"`
}

func (s *Server) PublishEvents(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, ledgererr.Validation("malformed request body"))
		return
	}

	refs, err := s.publisher.Publish(r.Context(), streamID, req.Events)
	if err != nil {
		// refs may hold partial results (spec.md §4.3 "Ordering"); callers
		// get both so they know which events are durable despite the error.
		writeJSON(w, http.StatusPartialContent, struct {
			Published []eventmodel.PublishedRef `json:"published"`
			Error     errorBody                 `json:"error"`
		}{Published: refs, Error: toErrorBody(err)})
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Published []eventmodel.PublishedRef `json:"published"`
	}{Published: refs})
}

func toErrorBody(err error) errorBody {
	if le, ok := ledgererr.As(err); ok {
		return errorBody{Code: string(le.Code), Message: le.Message, Details: le.Details}
	}
	return errorBody{Code: string(ledgererr.CodeInternal), Message: "internal error"}
}

// --- Poll / Commit ---

func (s *Server) Poll(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	subID := chi.URLParam(r, "subscriptionID")

	limit := s.cfg.DefaultPollLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, s.logger, ledgererr.Validation("limit must be a positive integer"))
			return
		}
		if parsed > s.cfg.MaxPollLimit {
			parsed = s.cfg.MaxPollLimit
		}
		limit = parsed
	}

	result, err := s.poller.Poll(r.Context(), streamID, subID, limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type commitRequest struct {
	Cursor string `json:"cursor"`
}

func (s *Server) Commit(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	subID := chi.URLParam(r, "subscriptionID")
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, ledgererr.Validation("malformed request body"))
		return
	}
	if err := s.poller.Commit(r.Context(), streamID, subID, req.Cursor); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- Compacted projection ---

func (s *Server) GetCompacted(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	key := chi.URLParam(r, "key")
	cp, err := s.compactor.Get(r.Context(), streamID, key)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if cp == nil {
		writeJSON(w, http.StatusNotFound, errorBody{
			Code:    "compacted_key_not_found",
			Message: "no compacted value for key",
		})
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) ListCompacted(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	items, err := s.compactor.List(r.Context(), streamID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
