// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

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

// SubscriptionRegistry owns SUB rows and the initial OFFSET rows written
// at subscription-creation time (§4.4).
type SubscriptionRegistry struct {
	store   *store.Store
	streams *StreamRegistry
	logger  zerolog.Logger
}

func NewSubscriptionRegistry(s *store.Store, streams *StreamRegistry, logger zerolog.Logger) *SubscriptionRegistry {
	return &SubscriptionRegistry{
		store:   s,
		streams: streams,
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Create registers a consumer group and seeds one OFFSET row per
// partition according to startFrom. `Compacted` is treated identically to
// `Earliest` for offset initialization (spec.md §9):
// a consumer that wants compacted-state semantics is expected to snapshot
// the compacted projection itself before polling.
func (r *SubscriptionRegistry) Create(ctx context.Context, streamID, subscriptionID string, startFrom eventmodel.StartFrom) (*eventmodel.Subscription, error) {
	if subscriptionID == "" {
		return nil, ledgererr.InvalidSubscriptionID("subscription_id must not be empty")
	}
	if !startFrom.Valid() {
		return nil, ledgererr.Validation("start_from must be one of earliest, latest, compacted")
	}

	stream, err := r.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}

	sub := &eventmodel.Subscription{
		StreamID:       streamID,
		SubscriptionID: subscriptionID,
		CreatedAt:      time.Now().UTC(),
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, ledgererr.Serialization("encode subscription", err)
	}

	err = r.store.PutIfAbsent(ctx, eventmodel.StreamPK(streamID), eventmodel.SubSK(subscriptionID), payload)
	if err == store.ErrAlreadyExists {
		return nil, ledgererr.SubscriptionAlreadyExists(streamID, subscriptionID)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for p := uint32(0); p < stream.PartitionCount; p++ {
		var initial uint64
		if startFrom == eventmodel.StartLatest {
			initial, err = r.store.ReadCounter(ctx, eventmodel.PartitionPK(streamID, p), eventmodel.CounterSK)
			if err != nil {
				return nil, err
			}
		}
		offset := eventmodel.Offset{Offset: initial, CommittedAt: now}
		offsetPayload, err := json.Marshal(offset)
		if err != nil {
			return nil, ledgererr.Serialization("encode initial offset", err)
		}
		if err := r.store.Put(ctx, eventmodel.OffsetPK(streamID, subscriptionID), eventmodel.OffsetSK(p), offsetPayload); err != nil {
			return nil, err
		}
	}

	r.logger.Info().Str("stream_id", streamID).Str("subscription_id", subscriptionID).
		Str("start_from", string(startFrom)).Msg("subscription created")
	return sub, nil
}

// Get reads a subscription row, returning ledgererr.SubscriptionNotFound
// if absent.
func (r *SubscriptionRegistry) Get(ctx context.Context, streamID, subscriptionID string) (*eventmodel.Subscription, error) {
	raw, err := r.store.Get(ctx, eventmodel.StreamPK(streamID), eventmodel.SubSK(subscriptionID))
	if err == store.ErrNotFound {
		return nil, ledgererr.SubscriptionNotFound(streamID, subscriptionID)
	}
	if err != nil {
		return nil, err
	}
	var sub eventmodel.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, ledgererr.Serialization("decode subscription", err)
	}
	return &sub, nil
}

// Delete removes the SUB row and every OFFSET row for the subscription.
func (r *SubscriptionRegistry) Delete(ctx context.Context, streamID, subscriptionID string) error {
	if _, err := r.Get(ctx, streamID, subscriptionID); err != nil {
		return err
	}
	if err := r.store.DeletePK(ctx, eventmodel.OffsetPK(streamID, subscriptionID), 500); err != nil {
		return err
	}
	return r.store.Delete(ctx, eventmodel.StreamPK(streamID), eventmodel.SubSK(subscriptionID))
}
