// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package eventmodel holds the wire/row types shared by the registry,
// publish, poll and compact packages, and the SK/PK key-building helpers
// for the row layout in SPEC_FULL.md §3.
package eventmodel

import (
	"fmt"
	"time"
)

// StartFrom selects where a new subscription's per-partition offsets
// are initialized from.
type StartFrom string

const (
	StartEarliest  StartFrom = "earliest"
	StartLatest    StartFrom = "latest"
	StartCompacted StartFrom = "compacted"
)

// Valid reports whether s is one of the three recognized policies.
func (s StartFrom) Valid() bool {
	switch s {
	case StartEarliest, StartLatest, StartCompacted:
		return true
	default:
		return false
	}
}

// Stream is the META row payload.
type Stream struct {
	StreamID       string    `json:"stream_id"`
	PartitionCount uint32    `json:"partition_count"`
	RetentionHours uint32    `json:"retention_hours"`
	CreatedAt      time.Time `json:"created_at"`
}

// Subscription is the SUB row payload.
type Subscription struct {
	StreamID       string    `json:"stream_id"`
	SubscriptionID string    `json:"subscription_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is the SEQ# row payload: one immutable appended record.
type Event struct {
	StreamID  string          `json:"stream_id"`
	Partition uint32          `json:"partition"`
	Sequence  uint64          `json:"sequence"`
	Key       string          `json:"key"`
	EventType string          `json:"event_type"`
	Data      any             `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// PublishedRef is returned to callers of the append path for each event
// that was successfully written.
type PublishedRef struct {
	StreamID  string    `json:"stream_id"`
	Partition uint32    `json:"partition"`
	Sequence  uint64    `json:"sequence"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishEvent is a caller-supplied event awaiting partition/sequence
// assignment.
type PublishEvent struct {
	Key       string `json:"key"`
	EventType string `json:"event_type" koanf:"type"`
	Data      any    `json:"data"`
}

// Offset is the OFFSET row payload.
type Offset struct {
	Offset      uint64    `json:"offset"`
	CommittedAt time.Time `json:"committed_at"`
}

// Compacted is the COMPACT row payload: the latest observed event for a
// given (stream_id, key).
type Compacted struct {
	StreamID  string    `json:"stream_id"`
	Key       string    `json:"key"`
	EventType string    `json:"event_type"`
	Data      any       `json:"data"`
	Sequence  uint64    `json:"sequence"`
	Partition uint32    `json:"partition"`
	Timestamp time.Time `json:"timestamp"`
}

// --- Key builders (SPEC_FULL.md §3) ---

func StreamPK(streamID string) string {
	return fmt.Sprintf("STREAM#%s", streamID)
}

const MetaSK = "META"

func SubSK(subscriptionID string) string {
	return fmt.Sprintf("SUB#%s", subscriptionID)
}

func PartitionPK(streamID string, partition uint32) string {
	return fmt.Sprintf("STREAM#%s#P%d", streamID, partition)
}

const CounterSK = "COUNTER"

// EventSK formats a sequence as a fixed-width, lexicographically sortable
// SK so that Badger's natural byte-order iteration matches sequence
// order.
func EventSK(sequence uint64) string {
	return fmt.Sprintf("SEQ#%020d", sequence)
}

func OffsetPK(streamID, subscriptionID string) string {
	return fmt.Sprintf("STREAM#%s#SUB#%s", streamID, subscriptionID)
}

func OffsetSK(partition uint32) string {
	return fmt.Sprintf("OFFSET#P%d", partition)
}

func CompactPK(streamID string) string {
	return fmt.Sprintf("STREAM#%s#COMPACT", streamID)
}

func CompactedSK(key string) string {
	return fmt.Sprintf("KEY#%s", key)
}
