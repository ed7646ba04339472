// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/eventledger/config.yaml",
	"/etc/eventledger/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config populated with sensible defaults. These
// apply first, then are overridden by an optional config file, then by
// environment variables.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:                  "./data/eventledger",
			SyncWrites:            true,
			ValueLogGCInterval:    10 * time.Minute,
			DeleteCascadePageSize: 500,
		},
		WAL: WALConfig{
			Path:            "./data/wal",
			SyncWrites:      true,
			RetryInterval:   10 * time.Second,
			MaxRetries:      50,
			LeaseDuration:   30 * time.Second,
			EntryTTL:        168 * time.Hour,
			CompactInterval: time.Hour,
		},
		Feed: FeedConfig{
			Enabled:                 true,
			URL:                     "nats://127.0.0.1:4222",
			StreamName:              "eventledger-changes",
			DurableName:             "compactor",
			MaxDeliver:              20,
			AckWaitTimeout:          30 * time.Second,
			MaxReconnects:           -1,
			ReconnectWait:           2 * time.Second,
			CircuitBreakerThreshold: 5,
			EmbeddedEnabled:         false,
			EmbeddedHost:            "127.0.0.1",
			EmbeddedPort:            4222,
			EmbeddedStoreDir:        "./data/nats",
			EmbeddedMaxMemoryBytes:  1 << 30,
			EmbeddedMaxStoreBytes:   10 << 30,
		},
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		API: APIConfig{
			DefaultPollLimit:      100,
			MaxPollLimit:          1000,
			DefaultPartitionCount: 3,
			DefaultRetentionHours: 168,
			CORSOrigins:           []string{"*"},
			RateLimitReqs:         200,
			RateLimitWindow:       time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// sliceConfigPaths lists koanf paths that need comma-separated-string
// env values split into slices; YAML-sourced values already arrive as
// slices and are left alone.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// envMappings maps legacy/flat environment variable names (documented on
// each Config field above) onto their nested koanf path.
var envMappings = map[string]string{
	"EVENTLEDGER_TABLE":         "store.path",
	"STORE_SYNC_WRITES":         "store.sync_writes",
	"STORE_GC_INTERVAL":         "store.gc_interval",
	"STORE_DELETE_PAGE_SIZE":    "store.delete_cascade_page_size",

	"WAL_PATH":             "wal.path",
	"WAL_SYNC_WRITES":      "wal.sync_writes",
	"WAL_RETRY_INTERVAL":   "wal.retry_interval",
	"WAL_MAX_RETRIES":      "wal.max_retries",
	"WAL_LEASE_DURATION":   "wal.lease_duration",
	"WAL_ENTRY_TTL":        "wal.entry_ttl",
	"WAL_COMPACT_INTERVAL": "wal.compact_interval",

	"FEED_ENABLED":           "feed.enabled",
	"EVENTLEDGER_NATS_URL":   "feed.url",
	"FEED_STREAM_NAME":       "feed.stream_name",
	"FEED_DURABLE_NAME":      "feed.durable_name",
	"FEED_MAX_DELIVER":       "feed.max_deliver",
	"FEED_ACK_WAIT":          "feed.ack_wait",
	"FEED_MAX_RECONNECTS":    "feed.max_reconnects",
	"FEED_RECONNECT_WAIT":    "feed.reconnect_wait",
	"FEED_BREAKER_THRESHOLD": "feed.breaker_threshold",

	"FEED_EMBEDDED_ENABLED":   "feed.embedded_enabled",
	"FEED_EMBEDDED_HOST":      "feed.embedded_host",
	"FEED_EMBEDDED_PORT":      "feed.embedded_port",
	"FEED_EMBEDDED_STORE_DIR": "feed.embedded_store_dir",
	"FEED_EMBEDDED_MAX_MEMORY": "feed.embedded_max_memory",
	"FEED_EMBEDDED_MAX_STORE":  "feed.embedded_max_store",

	"HTTP_PORT":             "server.port",
	"HTTP_HOST":             "server.host",
	"HTTP_READ_TIMEOUT":     "server.read_timeout",
	"HTTP_WRITE_TIMEOUT":    "server.write_timeout",
	"HTTP_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",

	"API_DEFAULT_POLL_LIMIT":      "api.default_poll_limit",
	"API_MAX_POLL_LIMIT":          "api.max_poll_limit",
	"API_DEFAULT_PARTITION_COUNT": "api.default_partition_count",
	"API_DEFAULT_RETENTION_HOURS": "api.default_retention_hours",
	"CORS_ORIGINS":                "api.cors_origins",
	"RATE_LIMIT_REQUESTS":         "api.rate_limit_requests",
	"RATE_LIMIT_WINDOW":           "api.rate_limit_window",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",
	"LOG_CALLER": "logging.caller",
}

// LoadWithKoanf loads configuration in three layers, lowest priority first:
//
//  1. Defaults: the struct returned by defaultConfig
//  2. Config File: optional YAML file (see DefaultConfigPaths, ConfigPathEnvVar)
//  3. Environment Variables: highest priority, mapped via envMappings
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths, giving
// priority to an explicit CONFIG_PATH override.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// processSliceFields converts comma-separated env-sourced strings into
// slices for the paths listed in sliceConfigPaths.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps a flat environment variable name to its nested
// koanf config path via envMappings, falling back to a best-effort
// dotted lowercase form for anything not explicitly listed.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}
