// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package poll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/ledgererr"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/registry"
	"github.com/tomtom215/cartographus/internal/store"
)

// Result is the poll response: events ordered by best-effort timestamp
// merge, the opaque cursor encoding the per-partition advance proposal,
// and the always-zero `remaining` field reserved for future use
// (spec.md §9).
type Result struct {
	Events    []eventmodel.Event `json:"events"`
	Cursor    string             `json:"cursor"`
	Remaining int                `json:"remaining"`
}

// Engine implements Poll and Commit over a store and the stream/
// subscription registries.
type Engine struct {
	store   *store.Store
	streams *registry.StreamRegistry
	subs    *registry.SubscriptionRegistry
	logger  zerolog.Logger
}

func New(s *store.Store, streams *registry.StreamRegistry, subs *registry.SubscriptionRegistry, logger zerolog.Logger) *Engine {
	return &Engine{store: s, streams: streams, subs: subs, logger: logger.With().Str("component", "poll").Logger()}
}

// Poll implements §4.5's poll algorithm.
func (e *Engine) Poll(ctx context.Context, streamID, subscriptionID string, limit int) (*Result, error) {
	stream, err := e.streams.Get(ctx, streamID)
	if err != nil {
		metrics.RecordPoll(streamID, "error", 0)
		return nil, err
	}
	if _, err := e.subs.Get(ctx, streamID, subscriptionID); err != nil {
		metrics.RecordPoll(streamID, "error", 0)
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	perPartition := limit / int(stream.PartitionCount)
	if perPartition < 1 {
		perPartition = 1
	}

	var aggregate []eventmodel.Event
	var offsets []PartitionOffset

	for p := uint32(0); p < stream.PartitionCount; p++ {
		offP, err := e.readOffset(ctx, streamID, subscriptionID, p)
		if err != nil {
			return nil, err
		}

		rows, err := e.store.RangeAfter(ctx, eventmodel.PartitionPK(streamID, p), eventmodel.EventSK(offP), perPartition)
		if err != nil {
			return nil, err
		}

		advance := offP
		for _, row := range rows {
			var ev eventmodel.Event
			if err := json.Unmarshal(row.Value, &ev); err != nil {
				e.logger.Warn().Err(err).Str("stream_id", streamID).Uint32("partition", p).
					Msg("skipping malformed event row during poll")
				continue
			}
			aggregate = append(aggregate, ev)
			if ev.Sequence > advance {
				advance = ev.Sequence
			}
		}
		offsets = append(offsets, PartitionOffset{Partition: p, Offset: advance})
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		return aggregate[i].Timestamp.Before(aggregate[j].Timestamp)
	})
	if len(aggregate) > limit {
		// Truncation may drop events already reflected in an advanced
		// cursor element; this is acceptable because the cursor is not
		// committed yet and the dropped events are re-read next poll
		// (spec.md §4.5 step 5).
		aggregate = aggregate[:limit]
	}

	cursor, err := Encode(Cursor{Offsets: offsets})
	if err != nil {
		metrics.RecordPoll(streamID, "error", 0)
		return nil, err
	}

	metrics.RecordPoll(streamID, "ok", len(aggregate))
	return &Result{Events: aggregate, Cursor: cursor, Remaining: 0}, nil
}

func (e *Engine) readOffset(ctx context.Context, streamID, subscriptionID string, partition uint32) (uint64, error) {
	raw, err := e.store.Get(ctx, eventmodel.OffsetPK(streamID, subscriptionID), eventmodel.OffsetSK(partition))
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var off eventmodel.Offset
	if err := json.Unmarshal(raw, &off); err != nil {
		return 0, ledgererr.Serialization("decode offset", err)
	}
	return off.Offset, nil
}

// Commit implements §4.5's commit algorithm: decode the cursor, write
// each partition's offset independently. Commit is intentionally not
// monotonic — a smaller cursor rewinds the subscription, which is a
// deliberate replay affordance (spec.md §4.5).
func (e *Engine) Commit(ctx context.Context, streamID, subscriptionID, cursorStr string) error {
	stream, err := e.streams.Get(ctx, streamID)
	if err != nil {
		metrics.RecordCommit(streamID, "error")
		return err
	}
	if _, err := e.subs.Get(ctx, streamID, subscriptionID); err != nil {
		metrics.RecordCommit(streamID, "error")
		return err
	}

	cursor, err := Decode(cursorStr)
	if err != nil {
		metrics.RecordCommit(streamID, "error")
		return err
	}

	for _, po := range cursor.Offsets {
		if po.Partition >= stream.PartitionCount {
			metrics.RecordCommit(streamID, "error")
			return ledgererr.InvalidCursor(fmt.Sprintf("cursor references partition %d, stream has %d partitions", po.Partition, stream.PartitionCount), nil)
		}
	}

	for _, po := range cursor.Offsets {
		offset := eventmodel.Offset{Offset: po.Offset, CommittedAt: time.Now().UTC()}
		payload, err := json.Marshal(offset)
		if err != nil {
			metrics.RecordCommit(streamID, "error")
			return ledgererr.Serialization("encode offset", err)
		}
		if err := e.store.Put(ctx, eventmodel.OffsetPK(streamID, subscriptionID), eventmodel.OffsetSK(po.Partition), payload); err != nil {
			metrics.RecordCommit(streamID, "error")
			return err
		}
	}
	metrics.RecordCommit(streamID, "ok")
	return nil
}
