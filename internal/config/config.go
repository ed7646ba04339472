// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package config holds all application configuration loaded from environment
// variables and an optional YAML config file. It follows the same layered
// Koanf loading order used throughout this codebase: built-in defaults, then
// an optional config file, then environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration for the event ledger server.
type Config struct {
	Store   StoreConfig   `koanf:"store"`
	WAL     WALConfig     `koanf:"wal"`
	Feed    FeedConfig    `koanf:"feed"`
	Server  ServerConfig  `koanf:"server"`
	API     APIConfig     `koanf:"api"`
	Logging LoggingConfig `koanf:"logging"`
}

// StoreConfig configures the embedded BadgerDB instance backing the
// single wide-row key-value table described by the data model.
type StoreConfig struct {
	// Path is the directory BadgerDB stores its files under.
	// Env: EVENTLEDGER_TABLE (default: ./data/eventledger)
	Path string `koanf:"path"`

	// SyncWrites forces fsync after every write.
	// Env: STORE_SYNC_WRITES (default: true)
	SyncWrites bool `koanf:"sync_writes"`

	// ValueLogGCInterval is loaded from config but not read by any
	// component; no value-log GC runs on the store.
	// Env: STORE_GC_INTERVAL (default: 10m)
	ValueLogGCInterval time.Duration `koanf:"gc_interval"`

	// DeleteCascadePageSize is loaded from config but not read by any
	// component; stream deletion pages at a fixed 500 rows per transaction.
	// Env: STORE_DELETE_PAGE_SIZE (default: 500)
	DeleteCascadePageSize int `koanf:"delete_cascade_page_size"`
}

// WALConfig configures the durability layer sitting between the append
// path's Badger commit and the change-feed publish.
type WALConfig struct {
	// Path is the directory the publish WAL stores its BadgerDB files under.
	// Env: WAL_PATH (default: ./data/wal)
	Path string `koanf:"path"`

	// SyncWrites forces fsync on every WAL write.
	// Env: WAL_SYNC_WRITES (default: true)
	SyncWrites bool `koanf:"sync_writes"`

	// RetryInterval is the time between retry loop iterations.
	// Env: WAL_RETRY_INTERVAL (default: 10s)
	RetryInterval time.Duration `koanf:"retry_interval"`

	// MaxRetries is the maximum number of publish attempts before an entry
	// is deleted from the WAL and counted in wal_max_retries_exceeded_total
	// instead of retried forever.
	// Env: WAL_MAX_RETRIES (default: 50)
	MaxRetries int `koanf:"max_retries"`

	// LeaseDuration bounds how long a retry-loop instance holds a durable
	// processing lease on a pending entry.
	// Env: WAL_LEASE_DURATION (default: 30s)
	LeaseDuration time.Duration `koanf:"lease_duration"`

	// EntryTTL is how long an unconfirmed entry survives before Badger
	// expires it outright (a last-resort backstop, not the normal path).
	// Env: WAL_ENTRY_TTL (default: 168h)
	EntryTTL time.Duration `koanf:"entry_ttl"`

	// CompactInterval is how often confirmed entries are swept out.
	// Env: WAL_COMPACT_INTERVAL (default: 1h)
	CompactInterval time.Duration `koanf:"compact_interval"`
}

// FeedConfig configures the JetStream-backed change-feed used to drive
// the compactor from newly appended event rows.
type FeedConfig struct {
	// Enabled controls whether the change-feed publish/subscribe path is
	// active. When disabled, the compactor never runs (Non-goal: it is
	// acceptable for a deployment to run publish/poll without compaction).
	// Env: FEED_ENABLED (default: true)
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server connection URL.
	// Env: EVENTLEDGER_NATS_URL (default: nats://127.0.0.1:4222)
	URL string `koanf:"url"`

	// StreamName is the JetStream stream name backing the change-feed.
	// Env: FEED_STREAM_NAME (default: eventledger-changes)
	StreamName string `koanf:"stream_name"`

	// DurableName is the compactor's durable JetStream consumer name.
	// Env: FEED_DURABLE_NAME (default: compactor)
	DurableName string `koanf:"durable_name"`

	// MaxDeliver bounds redelivery attempts for a change record before
	// JetStream stops retrying and the record is dropped from the
	// consumer's view (the underlying event row is never lost; only its
	// compaction is skipped for this delivery).
	// Env: FEED_MAX_DELIVER (default: 20)
	MaxDeliver int `koanf:"max_deliver"`

	// AckWaitTimeout is the JetStream consumer ack-wait window.
	// Env: FEED_ACK_WAIT (default: 30s)
	AckWaitTimeout time.Duration `koanf:"ack_wait"`

	// MaxReconnects bounds client reconnect attempts (-1 means unlimited,
	// matching the nats.go convention).
	// Env: FEED_MAX_RECONNECTS (default: -1)
	MaxReconnects int `koanf:"max_reconnects"`

	// ReconnectWait is the delay between reconnect attempts.
	// Env: FEED_RECONNECT_WAIT (default: 2s)
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// CircuitBreakerThreshold is the number of consecutive publish
	// failures that trip the circuit breaker guarding change-feed publish.
	// Env: FEED_BREAKER_THRESHOLD (default: 5)
	CircuitBreakerThreshold uint32 `koanf:"breaker_threshold"`

	// EmbeddedEnabled starts an in-process NATS JetStream server instead
	// of dialing URL, for single-binary deployments without an external
	// broker. When true, the embedded server's client URL overrides URL.
	// Env: FEED_EMBEDDED_ENABLED (default: false)
	EmbeddedEnabled bool `koanf:"embedded_enabled"`

	// EmbeddedHost/EmbeddedPort are the embedded server's listen address.
	// Env: FEED_EMBEDDED_HOST / FEED_EMBEDDED_PORT (default: 127.0.0.1 / 4222)
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port"`

	// EmbeddedStoreDir is the JetStream file-store directory for the
	// embedded server.
	// Env: FEED_EMBEDDED_STORE_DIR (default: ./data/nats)
	EmbeddedStoreDir string `koanf:"embedded_store_dir"`

	// EmbeddedMaxMemoryBytes/EmbeddedMaxStoreBytes bound the embedded
	// server's JetStream memory and file-store usage.
	// Env: FEED_EMBEDDED_MAX_MEMORY / FEED_EMBEDDED_MAX_STORE
	// (default: 1GB / 10GB)
	EmbeddedMaxMemoryBytes int64 `koanf:"embedded_max_memory"`
	EmbeddedMaxStoreBytes  int64 `koanf:"embedded_max_store"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Port is the HTTP listen port.
	// Env: HTTP_PORT (default: 8080)
	Port int `koanf:"port"`

	// Host is the HTTP listen address.
	// Env: HTTP_HOST (default: 0.0.0.0)
	Host string `koanf:"host"`

	// ReadTimeout bounds how long request reading may take.
	// Env: HTTP_READ_TIMEOUT (default: 15s)
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds how long response writing may take.
	// Env: HTTP_WRITE_TIMEOUT (default: 15s)
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Env: HTTP_SHUTDOWN_TIMEOUT (default: 10s)
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// APIConfig configures request-level defaults shared across handlers.
type APIConfig struct {
	// DefaultPollLimit is used when a poll request omits ?limit=.
	// Env: API_DEFAULT_POLL_LIMIT (default: 100)
	DefaultPollLimit int `koanf:"default_poll_limit"`

	// MaxPollLimit bounds the accepted ?limit= value.
	// Env: API_MAX_POLL_LIMIT (default: 1000)
	MaxPollLimit int `koanf:"max_poll_limit"`

	// DefaultPartitionCount is used when create-stream omits partition_count.
	// Env: API_DEFAULT_PARTITION_COUNT (default: 3)
	DefaultPartitionCount uint32 `koanf:"default_partition_count"`

	// DefaultRetentionHours is used when create-stream omits retention_hours.
	// Env: API_DEFAULT_RETENTION_HOURS (default: 168)
	DefaultRetentionHours uint32 `koanf:"default_retention_hours"`

	// CORSOrigins lists allowed CORS origins.
	// Env: CORS_ORIGINS (comma-separated, default: *)
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-window request budget enforced by httprate.
	// Env: RATE_LIMIT_REQUESTS (default: 200)
	RateLimitReqs int `koanf:"rate_limit_requests"`

	// RateLimitWindow is the httprate sliding window.
	// Env: RATE_LIMIT_WINDOW (default: 1m)
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the zerolog-backed structured logger.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	// Env: LOG_LEVEL (default: info)
	Level string `koanf:"level"`

	// Format is either "json" or "console".
	// Env: LOG_FORMAT (default: json)
	Format string `koanf:"format"`

	// Caller adds file:line to every log entry.
	// Env: LOG_CALLER (default: false)
	Caller bool `koanf:"caller"`
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values that would otherwise surface confusingly deep in the
// engine.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.API.DefaultPartitionCount < 1 {
		return fmt.Errorf("api.default_partition_count must be >= 1")
	}
	if c.API.DefaultRetentionHours < 1 {
		return fmt.Errorf("api.default_retention_hours must be >= 1")
	}
	if c.API.MaxPollLimit < 1 {
		return fmt.Errorf("api.max_poll_limit must be >= 1")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %q", c.Logging.Level)
	}
	return nil
}
