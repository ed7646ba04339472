// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package feed

import "errors"

var (
	// ErrDisabled identifies a change-feed configured off
	// (FeedConfig.Enabled = false). No function in this package returns
	// it; with the feed off, cmd/server constructs no Publisher or
	// Subscriber at all.
	ErrDisabled = errors.New("feed: change-feed disabled")

	// ErrNilPublisher guards against use of a zero-value Publisher.
	ErrNilPublisher = errors.New("feed: publisher not initialized")

	// ErrInvalidConfig is returned by NewPublisher and NewSubscriber when
	// required fields are missing.
	ErrInvalidConfig = errors.New("feed: invalid configuration")
)
