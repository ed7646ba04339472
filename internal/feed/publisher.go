// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package feed wraps a Watermill publisher/subscriber pair backed by
// NATS JetStream into the engine's change-feed transport: every event
// row the append path commits is published here, and the compactor
// subscribes here to drive the compacted projection. A gobreaker circuit
// breaker guards the publish call so a JetStream outage degrades to
// logged, counted failures (retried from internal/wal) rather than
// wedging the append path.
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
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cartographus/internal/eventmodel"
)

// PublisherConfig configures the underlying NATS JetStream publisher.
type PublisherConfig struct {
	URL                     string
	StreamName              string
	MaxReconnects           int
	ReconnectWait           time.Duration
	CircuitBreakerThreshold uint32
}

// Publisher publishes change records to the JetStream subject for a
// stream, wrapped in a circuit breaker.
type Publisher struct {
	inner   message.Publisher
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
}

// NewPublisher connects to JetStream and returns a ready Publisher.
func NewPublisher(cfg PublisherConfig, logger zerolog.Logger) (*Publisher, error) {
	if cfg.URL == "" || cfg.StreamName == "" {
		return nil, ErrInvalidConfig
	}

	watermillLogger := watermill.NewStdLogger(false, false)

	natsPublisher, err := wmnats.NewPublisher(
		wmnats.PublisherConfig{
			URL: cfg.URL,
			NatsOptions: []natsio.Option{
				natsio.MaxReconnects(cfg.MaxReconnects),
				natsio.ReconnectWait(cfg.ReconnectWait),
			},
			Marshaler: &wmnats.NATSMarshaler{},
			JetStream: wmnats.JetStreamConfig{
				Disabled:      false,
				AutoProvision: true,
			},
		},
		watermillLogger,
	)
	if err != nil {
		return nil, err
	}

	threshold := cfg.CircuitBreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        "feed-publish-" + cfg.StreamName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	return &Publisher{
		inner:   natsPublisher,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger.With().Str("component", "feed.publisher").Logger(),
	}, nil
}

// subjectFor scopes every stream to its own JetStream subject so the
// compactor's durable consumer can be bound per stream if desired.
func subjectFor(streamID string) string {
	return "eventledger.changes." + streamID
}

// PublishChange serializes a change record and publishes it to the
// subject for event.StreamID, wrapped in the circuit breaker.
func (p *Publisher) PublishChange(ctx context.Context, event eventmodel.Event) error {
	if p == nil || p.inner == nil {
		return ErrNilPublisher
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.inner.Publish(subjectFor(event.StreamID), msg)
	})
	if err != nil {
		p.logger.Error().Err(err).Str("stream_id", event.StreamID).
			Uint64("sequence", event.Sequence).Msg("change-feed publish failed")
	}
	return err
}

// Close releases the underlying NATS connection.
func (p *Publisher) Close() error {
	if p == nil || p.inner == nil {
		return nil
	}
	return p.inner.Close()
}
