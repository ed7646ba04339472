// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Command server runs the event ledger: it opens the Badger-backed
// store and WAL, connects the NATS JetStream change-feed, wires the
// registries and engines described in SPEC_FULL.md, and serves the
// HTTP API under a supervised service tree.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/cartographus/internal/api"
	"github.com/tomtom215/cartographus/internal/compact"
	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/feed"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/poll"
	"github.com/tomtom215/cartographus/internal/publish"
	"github.com/tomtom215/cartographus/internal/registry"
	"github.com/tomtom215/cartographus/internal/store"
	"github.com/tomtom215/cartographus/internal/supervisor"
	"github.com/tomtom215/cartographus/internal/wal"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		panic(err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Store.Path, cfg.Store.SyncWrites)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	walCfg := wal.DefaultConfig()
	walCfg.Path = cfg.WAL.Path
	walCfg.SyncWrites = cfg.WAL.SyncWrites
	walCfg.RetryInterval = cfg.WAL.RetryInterval
	walCfg.MaxRetries = cfg.WAL.MaxRetries
	walCfg.LeaseDuration = cfg.WAL.LeaseDuration
	walCfg.EntryTTL = cfg.WAL.EntryTTL
	walCfg.CompactInterval = cfg.WAL.CompactInterval

	publishWAL, err := wal.Open(&walCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open publish WAL")
	}
	defer publishWAL.Close()

	streams := registry.NewStreamRegistry(db, logger)
	subs := registry.NewSubscriptionRegistry(db, streams, logger)
	compactor := compact.New(db, logger)
	pollEngine := poll.New(db, streams, subs, logger)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build supervisor tree")
	}

	var publisher *publish.Publisher
	if cfg.Feed.Enabled {
		feedURL := cfg.Feed.URL
		if cfg.Feed.EmbeddedEnabled {
			embedded, err := feed.NewEmbeddedServer(feed.EmbeddedServerConfig{
				Host:              cfg.Feed.EmbeddedHost,
				Port:              cfg.Feed.EmbeddedPort,
				StoreDir:          cfg.Feed.EmbeddedStoreDir,
				JetStreamMaxMem:   cfg.Feed.EmbeddedMaxMemoryBytes,
				JetStreamMaxStore: cfg.Feed.EmbeddedMaxStoreBytes,
			})
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to start embedded NATS server")
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = embedded.Shutdown(shutdownCtx)
			}()
			feedURL = embedded.ClientURL()
			logger.Info().Str("url", feedURL).Msg("embedded NATS server ready")
		}

		feedPublisher, err := feed.NewPublisher(feed.PublisherConfig{
			URL:                     feedURL,
			StreamName:              cfg.Feed.StreamName,
			MaxReconnects:           cfg.Feed.MaxReconnects,
			ReconnectWait:           cfg.Feed.ReconnectWait,
			CircuitBreakerThreshold: cfg.Feed.CircuitBreakerThreshold,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect change-feed publisher")
		}
		defer feedPublisher.Close()

		notifier := feed.NewWALNotifier(publishWAL, feedPublisher)
		publisher = publish.New(db, streams, notifier, logger)

		retryLoop := wal.NewRetryLoop(publishWAL, feed.NewPublisherAdapter(feedPublisher))
		tree.AddDataService(retryLoop)

		recoveryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if result, err := publishWAL.RecoverPending(recoveryCtx, feed.NewPublisherAdapter(feedPublisher)); err != nil {
			logger.Error().Err(err).Msg("WAL recovery failed")
		} else {
			logger.Info().Int("recovered", result.Recovered).Int("failed", result.Failed).Msg("WAL recovery complete")
		}
		cancel()

		feedSubscriber, err := feed.NewSubscriber(feed.SubscriberConfig{
			URL:            feedURL,
			StreamName:     cfg.Feed.StreamName,
			DurableName:    cfg.Feed.DurableName,
			MaxDeliver:     cfg.Feed.MaxDeliver,
			AckWaitTimeout: cfg.Feed.AckWaitTimeout,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect change-feed subscriber")
		}
		defer feedSubscriber.Close()

		tree.AddMessagingService(compact.NewService(compactor, feedSubscriber, logger))
	} else {
		// Non-goal per spec.md §9: deployments may run append/poll without
		// the change-feed, trading away compaction freshness.
		publisher = publish.New(db, streams, nil, logger)
		logger.Warn().Msg("change-feed disabled; compacted projection will not advance")
	}

	apiServer := api.NewServer(streams, subs, publisher, pollEngine, compactor, cfg.API, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           apiServer.NewRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: api.DefaultReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(&httpService{server: httpServer, shutdownTimeout: cfg.Server.ShutdownTimeout})

	logger.Info().Int("port", cfg.Server.Port).Msg("eventledger server starting")
	if err := tree.Serve(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("supervisor tree exited with error")
	}
	logger.Info().Msg("eventledger server stopped")
}

// httpService adapts http.Server to suture.Service.
type httpService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return ctx.Err()
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		_ = h.server.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}
