// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package ledgererr defines the typed error taxonomy shared by every
// engine package and the HTTP adapter that sits in front of them. Every
// engine-level failure is represented by a single Error value carrying a
// stable machine-readable Code and a pre-bound HTTPStatus, so the API
// layer never has to guess which status a given error deserves.
package ledgererr

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-visible identifier for an error kind. Clients
// are expected to branch on Code, never on Message.
type Code string

const (
	CodeStreamNotFound            Code = "stream_not_found"
	CodeStreamAlreadyExists       Code = "stream_already_exists"
	CodeSubscriptionNotFound      Code = "subscription_not_found"
	CodeSubscriptionAlreadyExists Code = "subscription_already_exists"
	CodeInvalidStreamID           Code = "invalid_stream_id"
	CodeInvalidSubscriptionID     Code = "invalid_subscription_id"
	CodeInvalidEventKey           Code = "invalid_event_key"
	CodeInvalidCursor             Code = "invalid_cursor"
	CodeValidation                Code = "validation"
	CodeDatabase                  Code = "database"
	CodeSerialization             Code = "serialization"
	CodeInternal                  Code = "internal"
)

// httpStatus maps every Code to the HTTP status the adapter reports for
// it. Kept as a single table so the §4.7 mapping is visible at a glance.
var httpStatus = map[Code]int{
	CodeStreamNotFound:            404,
	CodeStreamAlreadyExists:       409,
	CodeSubscriptionNotFound:      404,
	CodeSubscriptionAlreadyExists: 409,
	CodeInvalidStreamID:           400,
	CodeInvalidSubscriptionID:     400,
	CodeInvalidEventKey:           400,
	CodeInvalidCursor:             400,
	CodeValidation:                400,
	CodeDatabase:                  500,
	CodeSerialization:             400,
	CodeInternal:                  500,
}

// Error is the engine's boundary error type. It wraps an optional
// underlying cause so errors.Is/errors.As keep working across the
// engine/adapter boundary while still exposing a stable Code.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code the §4.7 table assigns to e's Code.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

// WithDetails attaches structured detail fields to an existing error and
// returns the same value for chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func new_(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

func StreamNotFound(streamID string) *Error {
	return new_(CodeStreamNotFound, fmt.Sprintf("stream %q not found", streamID), nil)
}

func StreamAlreadyExists(streamID string) *Error {
	return new_(CodeStreamAlreadyExists, fmt.Sprintf("stream %q already exists", streamID), nil)
}

func SubscriptionNotFound(streamID, subID string) *Error {
	return new_(CodeSubscriptionNotFound, fmt.Sprintf("subscription %q not found on stream %q", subID, streamID), nil)
}

func SubscriptionAlreadyExists(streamID, subID string) *Error {
	return new_(CodeSubscriptionAlreadyExists, fmt.Sprintf("subscription %q already exists on stream %q", subID, streamID), nil)
}

func InvalidStreamID(reason string) *Error {
	return new_(CodeInvalidStreamID, reason, nil)
}

func InvalidSubscriptionID(reason string) *Error {
	return new_(CodeInvalidSubscriptionID, reason, nil)
}

func InvalidEventKey(reason string) *Error {
	return new_(CodeInvalidEventKey, reason, nil)
}

func InvalidCursor(reason string, cause error) *Error {
	return new_(CodeInvalidCursor, reason, cause)
}

func Validation(reason string) *Error {
	return new_(CodeValidation, reason, nil)
}

func Database(op string, cause error) *Error {
	return new_(CodeDatabase, fmt.Sprintf("store operation %q failed", op), cause)
}

func Serialization(reason string, cause error) *Error {
	return new_(CodeSerialization, reason, cause)
}

func Internal(reason string, cause error) *Error {
	return new_(CodeInternal, reason, cause)
}

// As is a small convenience wrapper around errors.As for the common case
// of recovering a *Error from a wrapped error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
