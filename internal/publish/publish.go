// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package publish implements the append path (§4.3): partitioning each
// event by key, atomically allocating a per-partition sequence, and
// writing the event row. Durability of the derived change-feed record is
// handled separately by internal/wal before a feed.Publisher call, so a
// JetStream outage degrades to retry rather than dropping compaction
// input.
package publish

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/ledgererr"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/partition"
	"github.com/tomtom215/cartographus/internal/registry"
	"github.com/tomtom215/cartographus/internal/store"
)

// ChangeNotifier receives a change record for every event row committed
// by Publish, ahead of feed delivery. Implementations durably enqueue the
// record (internal/wal) before returning; Publish does not retry failed
// notifications itself, that is the retry loop's job.
type ChangeNotifier interface {
	Notify(ctx context.Context, change eventmodel.Event) error
}

// Publisher implements the append path.
type Publisher struct {
	store    *store.Store
	streams  *registry.StreamRegistry
	notifier ChangeNotifier
	logger   zerolog.Logger
}

func New(s *store.Store, streams *registry.StreamRegistry, notifier ChangeNotifier, logger zerolog.Logger) *Publisher {
	return &Publisher{
		store:    s,
		streams:  streams,
		notifier: notifier,
		logger:   logger.With().Str("component", "publish").Logger(),
	}
}

// Publish writes each event in events to stream's log, in order, and
// returns a published reference for every event that succeeded. Batches
// are not atomic: on a mid-batch failure, already-written events remain
// durable and the caller receives both the partial results and the
// error (spec.md §4.3 "Ordering").
func (pb *Publisher) Publish(ctx context.Context, streamID string, events []eventmodel.PublishEvent) ([]eventmodel.PublishedRef, error) {
	if streamID == "" {
		return nil, ledgererr.InvalidStreamID("stream_id must not be empty")
	}
	if len(events) == 0 {
		return nil, ledgererr.Validation("events must not be empty")
	}
	for i, e := range events {
		if e.Key == "" {
			return nil, ledgererr.InvalidEventKey("event at index " + strconv.Itoa(i) + " has empty key")
		}
		if e.EventType == "" {
			return nil, ledgererr.Validation("event at index " + strconv.Itoa(i) + " has empty event_type")
		}
	}

	stream, err := pb.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}

	// All events in a single publish call share one capture of now, so
	// intra-batch events tie-break on sequence within a partition and
	// are indistinguishable across partitions by timestamp (§4.3).
	now := time.Now().UTC()
	start := time.Now()

	refs := make([]eventmodel.PublishedRef, 0, len(events))
	for _, e := range events {
		part, seq, err := pb.writeOne(ctx, stream, e, now)
		if err != nil {
			metrics.RecordAppend(streamID, len(refs), time.Since(start).Seconds())
			return refs, err
		}
		refs = append(refs, eventmodel.PublishedRef{
			StreamID:  streamID,
			Partition: part,
			Sequence:  seq,
			Key:       e.Key,
			Timestamp: now,
		})
	}
	metrics.RecordAppend(streamID, len(refs), time.Since(start).Seconds())
	return refs, nil
}

func (pb *Publisher) writeOne(ctx context.Context, stream *eventmodel.Stream, e eventmodel.PublishEvent, now time.Time) (uint32, uint64, error) {
	part, err := partition.Of(e.Key, stream.PartitionCount)
	if err != nil {
		return 0, 0, ledgererr.Internal("partition computation failed", err)
	}

	seq, err := pb.store.Increment(ctx, eventmodel.PartitionPK(stream.StreamID, part), eventmodel.CounterSK)
	if err != nil {
		return 0, 0, err
	}

	event := eventmodel.Event{
		StreamID:  stream.StreamID,
		Partition: part,
		Sequence:  seq,
		Key:       e.Key,
		EventType: e.EventType,
		Data:      e.Data,
		Timestamp: now,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, 0, ledgererr.Serialization("encode event", err)
	}

	if err := pb.store.Put(ctx, eventmodel.PartitionPK(stream.StreamID, part), eventmodel.EventSK(seq), payload); err != nil {
		return 0, 0, err
	}

	if pb.notifier != nil {
		if err := pb.notifier.Notify(ctx, event); err != nil {
			// The WAL-backed notifier is expected to durably enqueue before
			// returning error; a failure here means even the durable
			// enqueue failed, which degrades compaction freshness for this
			// key but never the event row itself.
			pb.logger.Error().Err(err).Str("stream_id", stream.StreamID).
				Uint32("partition", part).Uint64("sequence", seq).
				Msg("change notification failed after event commit")
		}
	}

	return part, seq, nil
}
