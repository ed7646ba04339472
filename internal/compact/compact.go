// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package compact implements the compactor (§4.6): consuming the
// change-feed and maintaining a "latest value per key" projection under
// a monotonic guard, plus the read-only Get/List API over that
// projection supplemented from original_source/'s get_compacted and
// list_compacted.
package compact

import (
	"context"
	"encoding/binary"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/ledgererr"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/store"
)

// Compactor applies change records to the compacted projection.
type Compactor struct {
	store  *store.Store
	logger zerolog.Logger
}

func New(s *store.Store, logger zerolog.Logger) *Compactor {
	return &Compactor{store: s, logger: logger.With().Str("component", "compact").Logger()}
}

// ApplyChange implements §4.6's per-record algorithm. Individual record
// failures (malformed fields) are logged and swallowed so a single
// poison record cannot stall the whole batch; the caller is expected to
// ack the underlying change-feed message regardless, and is the one who
// owns surfacing batch-level failures (store errors) upward for
// change-feed-level retry.
func (c *Compactor) ApplyChange(ctx context.Context, event eventmodel.Event) error {
	if event.StreamID == "" || event.Key == "" {
		c.logger.Warn().Msg("skipping change record missing required fields")
		return nil
	}

	compacted := eventmodel.Compacted{
		StreamID:  event.StreamID,
		Key:       event.Key,
		EventType: event.EventType,
		Data:      event.Data,
		Sequence:  event.Sequence,
		Partition: event.Partition,
		Timestamp: event.Timestamp,
	}
	body, err := json.Marshal(compacted)
	if err != nil {
		c.logger.Warn().Err(err).Str("stream_id", event.StreamID).Str("key", event.Key).
			Msg("skipping change record that failed to encode")
		return nil
	}

	// The stored value is the sequence as an 8-byte big-endian prefix
	// followed by the JSON body, so CompareAndPutSequence can read the
	// existing row's sequence without a JSON round trip inside the
	// transaction.
	value := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(value[:8], event.Sequence)
	copy(value[8:], body)

	applied, err := c.store.CompareAndPutSequence(ctx,
		eventmodel.CompactPK(event.StreamID), eventmodel.CompactedSK(event.Key), event.Sequence, value)
	if err != nil {
		// Store errors are batch-level failures: surfaced so the
		// change-feed framework retries the whole batch (§4.6).
		return err
	}
	if !applied {
		c.logger.Debug().Str("stream_id", event.StreamID).Str("key", event.Key).
			Uint64("sequence", event.Sequence).Msg("compaction no-op, existing row has equal or newer sequence")
		metrics.RecordCompactionSkipped(event.StreamID)
		return nil
	}
	metrics.RecordCompactionApplied(event.StreamID)
	return nil
}

// Get reads the compacted projection row for (streamID, key). It returns
// (nil, nil) when no event has ever been compacted for that key — there
// is no dedicated "compacted row not found" code in the error taxonomy,
// since an absent projection is a normal steady state, not a failure.
func (c *Compactor) Get(ctx context.Context, streamID, key string) (*eventmodel.Compacted, error) {
	raw, err := c.store.Get(ctx, eventmodel.CompactPK(streamID), eventmodel.CompactedSK(key))
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeCompacted(raw)
}

// List returns every compacted row for streamID.
func (c *Compactor) List(ctx context.Context, streamID string) ([]*eventmodel.Compacted, error) {
	rows, err := c.store.ScanPrefix(ctx, eventmodel.CompactPK(streamID), "")
	if err != nil {
		return nil, err
	}
	out := make([]*eventmodel.Compacted, 0, len(rows))
	for _, row := range rows {
		cp, err := decodeCompacted(row.Value)
		if err != nil {
			c.logger.Warn().Err(err).Str("stream_id", streamID).Str("sk", row.SK).
				Msg("skipping malformed compacted row during list")
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func decodeCompacted(raw []byte) (*eventmodel.Compacted, error) {
	if len(raw) < 8 {
		return nil, ledgererr.Internal("compacted row shorter than sequence prefix", nil)
	}
	var cp eventmodel.Compacted
	if err := json.Unmarshal(raw[8:], &cp); err != nil {
		return nil, ledgererr.Serialization("decode compacted row", err)
	}
	return &cp, nil
}
