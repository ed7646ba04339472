// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package api implements the HTTP surface (spec.md §6): a chi router
// exposing the stream, subscription, append, poll/commit and compacted
// read operations over the engine packages.
package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/ledgererr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the wire shape for every non-2xx response (spec.md §6).
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps an engine error onto its HTTP status via ledgererr and
// writes the standard error body. Unrecognized errors are reported as
// internal errors without leaking their text to the client.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if le, ok := ledgererr.As(err); ok {
		writeJSON(w, le.HTTPStatus(), errorBody{
			Code:    string(le.Code),
			Message: le.Message,
			Details: le.Details,
		})
		return
	}
	logger.Error().Err(err).Msg("unmapped engine error, reporting as internal")
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Code:    string(ledgererr.CodeInternal),
		Message: "internal error",
	})
}
