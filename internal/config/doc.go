// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package config provides centralized configuration management for the
event ledger server.

Configuration layers in ascending priority:

  - Struct defaults (defaultConfig)
  - An optional YAML file (config.yaml, or the path named by CONFIG_PATH)
  - Environment variables

# Configuration Structure

  - StoreConfig: BadgerDB store path and durability settings
  - WALConfig: publish WAL durability and retry tuning
  - FeedConfig: NATS JetStream change-feed connection and consumer settings
  - ServerConfig: HTTP listener settings
  - APIConfig: request-handling defaults and limits, CORS, rate limiting
  - LoggingConfig: zerolog level, format, caller annotation

See koanf.go for the full list of supported environment variables and
their defaults.
*/
package config
