// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package compact

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/feed"
)

// changeSubscriber is the slice of *feed.Subscriber the compactor needs.
type changeSubscriber interface {
	RunAll(ctx context.Context, handler feed.EventHandler) error
}

// Service adapts a Compactor plus its change-feed subscription into a
// suture.Service: Serve blocks consuming the feed and applying each
// change until ctx is canceled, so the messaging-layer supervisor
// (internal/supervisor) can own its lifecycle alongside the WAL retry
// loop and the HTTP server.
type Service struct {
	compactor  *Compactor
	subscriber changeSubscriber
	logger     zerolog.Logger
}

func NewService(compactor *Compactor, subscriber changeSubscriber, logger zerolog.Logger) *Service {
	return &Service{
		compactor:  compactor,
		subscriber: subscriber,
		logger:     logger.With().Str("component", "compact.service").Logger(),
	}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.Info().Msg("compactor service starting")
	err := s.subscriber.RunAll(ctx, s.compactor.ApplyChange)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
