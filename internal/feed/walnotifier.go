// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package feed

import (
	"context"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/wal"
)

// WALNotifier implements publish.ChangeNotifier by durably enqueueing
// every change record in a WAL before attempting the JetStream publish,
// closing the gap SPEC_FULL.md §4.9 identifies between the Badger event
// commit and change-feed delivery becoming a separate operation.
type WALNotifier struct {
	wal       wal.WAL
	publisher *Publisher
}

func NewWALNotifier(w wal.WAL, publisher *Publisher) *WALNotifier {
	return &WALNotifier{wal: w, publisher: publisher}
}

// Notify writes the change record to the WAL, then attempts an immediate
// publish. A publish failure here is not fatal: the entry stays pending
// and the supervised retry loop (wal.RetryLoop) picks it up later.
func (n *WALNotifier) Notify(ctx context.Context, change eventmodel.Event) error {
	entryID, err := n.wal.Write(ctx, change)
	if err != nil {
		return err
	}
	if err := n.publisher.PublishChange(ctx, change); err != nil {
		metrics.RecordChangeFeedPublishFailure()
		return nil // recorded as pending; the retry loop will redeliver it
	}
	return n.wal.Confirm(ctx, entryID)
}

// PublisherAdapter adapts feed.Publisher to wal.Publisher for use by
// wal.RecoverPending / wal.RetryLoop, which know only how to publish an
// opaque *wal.Entry payload.
type PublisherAdapter struct {
	publisher *Publisher
}

func NewPublisherAdapter(publisher *Publisher) wal.PublisherFunc {
	adapter := &PublisherAdapter{publisher: publisher}
	return adapter.PublishEntry
}

func (a *PublisherAdapter) PublishEntry(ctx context.Context, entry *wal.Entry) error {
	var event eventmodel.Event
	if err := entry.UnmarshalPayload(&event); err != nil {
		return err
	}
	return a.publisher.PublishChange(ctx, event)
}
