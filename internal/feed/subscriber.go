// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package feed

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsio "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/eventmodel"
)

// SubscriberConfig configures the compactor's durable JetStream consumer.
type SubscriberConfig struct {
	URL            string
	StreamName     string
	DurableName    string
	MaxDeliver     int
	AckWaitTimeout time.Duration
}

// Subscriber wraps a Watermill NATS JetStream subscription and decodes
// each message back into an eventmodel.Event for the compactor.
type Subscriber struct {
	inner  message.Subscriber
	cfg    SubscriberConfig
	logger zerolog.Logger
}

// NewSubscriber connects to JetStream with a durable pull consumer.
func NewSubscriber(cfg SubscriberConfig, logger zerolog.Logger) (*Subscriber, error) {
	if cfg.URL == "" || cfg.DurableName == "" {
		return nil, ErrInvalidConfig
	}
	ackWait := cfg.AckWaitTimeout
	if ackWait <= 0 {
		ackWait = 30 * time.Second
	}
	maxDeliver := cfg.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = 20
	}

	subOpts := []natsio.SubOpt{
		natsio.MaxDeliver(maxDeliver),
		natsio.AckWait(ackWait),
	}

	watermillLogger := watermill.NewStdLogger(false, false)
	natsSubscriber, err := wmnats.NewSubscriber(
		wmnats.SubscriberConfig{
			URL:              cfg.URL,
			QueueGroupPrefix: cfg.DurableName,
			AckWaitTimeout:   ackWait,
			Unmarshaler:      &wmnats.NATSMarshaler{},
			JetStream: wmnats.JetStreamConfig{
				Disabled:         false,
				AutoProvision:    true,
				DurablePrefix:    cfg.DurableName,
				SubscribeOptions: subOpts,
			},
		},
		watermillLogger,
	)
	if err != nil {
		return nil, err
	}

	return &Subscriber{
		inner:  natsSubscriber,
		cfg:    cfg,
		logger: logger.With().Str("component", "feed.subscriber").Logger(),
	}, nil
}

// EventHandler processes one decoded change-feed event. Returning an
// error nacks the underlying message so JetStream redelivers it,
// matching the at-least-once delivery the compactor's monotonic guard is
// designed around.
type EventHandler func(ctx context.Context, event eventmodel.Event) error

// Run subscribes to streamID's change subject and invokes handler for
// every message until ctx is canceled. It blocks; callers run it inside
// a supervised goroutine (internal/supervisor).
func (s *Subscriber) Run(ctx context.Context, streamID string, handler EventHandler) error {
	return s.run(ctx, subjectFor(streamID), handler)
}

// changesWildcardSubject matches every stream's change subject so a
// single compactor consumer can follow all streams without one
// subscription per stream.
const changesWildcardSubject = "eventledger.changes.*"

// RunAll subscribes to every stream's change subject at once. The
// compactor uses this: it maintains the compacted projection for all
// streams from one durable consumer rather than re-subscribing whenever
// a stream is created.
func (s *Subscriber) RunAll(ctx context.Context, handler EventHandler) error {
	return s.run(ctx, changesWildcardSubject, handler)
}

func (s *Subscriber) run(ctx context.Context, subject string, handler EventHandler) error {
	messages, err := s.inner.Subscribe(ctx, subject)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(msg, handler)
		}
	}
}

func (s *Subscriber) handle(msg *message.Message, handler EventHandler) {
	var event eventmodel.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		s.logger.Error().Err(err).Msg("malformed change-feed message, nacking for redelivery")
		msg.Nack()
		return
	}
	if err := handler(msg.Context(), event); err != nil {
		s.logger.Error().Err(err).Str("stream_id", event.StreamID).Uint64("sequence", event.Sequence).
			Msg("change-feed handler failed, nacking")
		msg.Nack()
		return
	}
	msg.Ack()
}

// Close releases the underlying NATS connection.
func (s *Subscriber) Close() error {
	if s == nil || s.inner == nil {
		return nil
	}
	return s.inner.Close()
}
