// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package registry implements the stream registry (§4.2) and the
// subscription registry (§4.4): creation, lookup, listing and deletion
// of stream metadata, and consumer-group creation with per-partition
// offset initialization from a starting policy.
package registry

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/ledgererr"
	"github.com/tomtom215/cartographus/internal/store"
)

// StreamRegistry owns the META and COUNTER rows for every stream: create,
// get, list and delete.
type StreamRegistry struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewStreamRegistry(s *store.Store, logger zerolog.Logger) *StreamRegistry {
	return &StreamRegistry{store: s, logger: logger.With().Str("component", "registry").Logger()}
}

// Create writes stream metadata under a does-not-exist precondition and
// then seeds one COUNTER row per partition at sequence=0.
func (r *StreamRegistry) Create(ctx context.Context, streamID string, partitionCount, retentionHours uint32) (*eventmodel.Stream, error) {
	if err := validateStreamID(streamID); err != nil {
		return nil, err
	}
	if partitionCount < 1 {
		return nil, ledgererr.Validation("partition_count must be >= 1")
	}
	if retentionHours < 1 {
		return nil, ledgererr.Validation("retention_hours must be >= 1")
	}

	stream := &eventmodel.Stream{
		StreamID:       streamID,
		PartitionCount: partitionCount,
		RetentionHours: retentionHours,
		CreatedAt:      time.Now().UTC(),
	}
	payload, err := json.Marshal(stream)
	if err != nil {
		return nil, ledgererr.Serialization("encode stream metadata", err)
	}

	err = r.store.PutIfAbsent(ctx, eventmodel.StreamPK(streamID), eventmodel.MetaSK, payload)
	if err == store.ErrAlreadyExists {
		return nil, ledgererr.StreamAlreadyExists(streamID)
	}
	if err != nil {
		return nil, err
	}

	for p := uint32(0); p < partitionCount; p++ {
		if err := r.store.Put(ctx, eventmodel.PartitionPK(streamID, p), eventmodel.CounterSK, store.CounterValue(0)); err != nil {
			// Per SPEC_FULL.md §9 this partial-initialization window is
			// resolved by self-healing: internal/store.Increment treats a
			// missing counter row as implicit zero, so a failure here does
			// not require compensating deletion of META.
			r.logger.Error().Err(err).Str("stream_id", streamID).Uint32("partition", p).
				Msg("counter row write failed during stream creation, relying on lazy init")
		}
	}

	r.logger.Info().Str("stream_id", streamID).Uint32("partition_count", partitionCount).Msg("stream created")
	return stream, nil
}

// Get reads stream metadata, returning ledgererr.StreamNotFound if absent.
func (r *StreamRegistry) Get(ctx context.Context, streamID string) (*eventmodel.Stream, error) {
	raw, err := r.store.Get(ctx, eventmodel.StreamPK(streamID), eventmodel.MetaSK)
	if err == store.ErrNotFound {
		return nil, ledgererr.StreamNotFound(streamID)
	}
	if err != nil {
		return nil, err
	}
	var s eventmodel.Stream
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ledgererr.Serialization("decode stream metadata", err)
	}
	return &s, nil
}

// List returns every stream's metadata, in no particular order.
func (r *StreamRegistry) List(ctx context.Context) ([]*eventmodel.Stream, error) {
	rows, err := r.store.ScanPrefix(ctx, "STREAM#", eventmodel.MetaSK)
	if err != nil {
		return nil, err
	}
	streams := make([]*eventmodel.Stream, 0, len(rows))
	for _, row := range rows {
		var s eventmodel.Stream
		if err := json.Unmarshal(row.Value, &s); err != nil {
			r.logger.Warn().Err(err).Str("pk", row.PK).Msg("skipping malformed stream metadata row")
			continue
		}
		streams = append(streams, &s)
	}
	return streams, nil
}

// Delete removes META, every partition COUNTER row, and — per the
// delete-stream cascade decision in SPEC_FULL.md §9 — every dependent
// subscription, offset, event and compacted row under the stream's PK
// prefixes, rather than leaking them for out-of-band cleanup.
func (r *StreamRegistry) Delete(ctx context.Context, streamID string) error {
	stream, err := r.Get(ctx, streamID)
	if err != nil {
		return err
	}

	subRows, err := r.store.ScanPrefix(ctx, eventmodel.StreamPK(streamID), "")
	if err != nil {
		return err
	}
	for _, row := range subRows {
		if subID, ok := parseSubSK(row.SK); ok {
			if err := r.store.DeletePK(ctx, eventmodel.OffsetPK(streamID, subID), 500); err != nil {
				return err
			}
		}
	}

	for p := uint32(0); p < stream.PartitionCount; p++ {
		if err := r.store.DeletePK(ctx, eventmodel.PartitionPK(streamID, p), 500); err != nil {
			return err
		}
	}
	if err := r.store.DeletePK(ctx, eventmodel.StreamPK(streamID), 500); err != nil {
		return err
	}
	if err := r.store.DeletePK(ctx, eventmodel.CompactPK(streamID), 500); err != nil {
		return err
	}

	r.logger.Info().Str("stream_id", streamID).Msg("stream deleted (cascaded)")
	return nil
}

func validateStreamID(streamID string) error {
	if streamID == "" {
		return ledgererr.InvalidStreamID("stream_id must not be empty")
	}
	return nil
}

const subSKPrefix = "SUB#"

func parseSubSK(sk string) (subscriptionID string, ok bool) {
	if len(sk) <= len(subSKPrefix) || sk[:len(subSKPrefix)] != subSKPrefix {
		return "", false
	}
	return sk[len(subSKPrefix):], true
}
