// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package poll implements the poll/commit path (§4.5): reading events
// ahead of a subscription's committed offsets and accepting an opaque
// cursor back to durably advance them.
package poll

import (
	"encoding/base64"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartographus/internal/ledgererr"
)

// PartitionOffset is one element of a cursor's offsets array.
type PartitionOffset struct {
	Partition uint32 `json:"partition"`
	Offset    uint64 `json:"offset"`
}

// Cursor is the decoded form of the opaque, base64url-encoded cursor
// string returned by Poll and accepted by Commit.
type Cursor struct {
	Offsets []PartitionOffset `json:"offsets"`
}

var cursorEncoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// Encode serializes a cursor as JSON and base64url-without-padding, per
// spec.md §6's cursor format.
func Encode(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", ledgererr.Serialization("encode cursor", err)
	}
	return cursorEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode, returning ledgererr.InvalidCursor on any
// decode failure.
func Decode(s string) (Cursor, error) {
	raw, err := cursorEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ledgererr.InvalidCursor("cursor is not valid base64url", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ledgererr.InvalidCursor("cursor is not valid JSON", err)
	}
	return c, nil
}
