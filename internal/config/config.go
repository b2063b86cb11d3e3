// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package config defines and loads the Kerbside configuration.
//
// Configuration is loaded via Koanf v2 with layered sources, highest
// priority last:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration for the pipeline and its daemon.
type Config struct {
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Transport TransportConfig `koanf:"transport"`
	Cache     CacheConfig     `koanf:"cache"`
	History   HistoryConfig   `koanf:"history"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// TelemetryConfig tunes the event buffer and batch dispatcher.
type TelemetryConfig struct {
	// BatchThreshold is the buffer size triggering an immediate flush.
	// Env: TELEMETRY_BATCH_THRESHOLD (default: 10)
	BatchThreshold int `koanf:"batch_threshold"`

	// RetentionCap is the hard bound on buffered events under retry.
	// Env: TELEMETRY_RETENTION_CAP (default: 50)
	RetentionCap int `koanf:"retention_cap"`

	// FlushInterval is the period of the timer-driven flush.
	// Env: TELEMETRY_FLUSH_INTERVAL (default: 30s)
	FlushInterval time.Duration `koanf:"flush_interval"`

	// StartOnline is the initial connectivity assumption before the host
	// delivers its first notification.
	// Env: TELEMETRY_START_ONLINE (default: true)
	StartOnline bool `koanf:"start_online"`
}

// TransportConfig tunes the analytics API client.
type TransportConfig struct {
	// BaseURL is the root of the remote analytics service. Required.
	// Env: TRANSPORT_BASE_URL
	BaseURL string `koanf:"base_url"`

	// Timeout is the per-request timeout.
	// Env: TRANSPORT_TIMEOUT (default: 10s)
	Timeout time.Duration `koanf:"timeout"`

	// BreakerFailureThreshold is consecutive failures before the circuit
	// breaker opens.
	// Env: TRANSPORT_BREAKER_FAILURE_THRESHOLD (default: 5)
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerTimeout is how long the breaker stays open.
	// Env: TRANSPORT_BREAKER_TIMEOUT (default: 30s)
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`

	// FlushRateLimit caps batch submissions per second. Zero disables.
	// Env: TRANSPORT_FLUSH_RATE_LIMIT (default: 1)
	FlushRateLimit float64 `koanf:"flush_rate_limit"`

	// FlushRateBurst is the burst allowance for the flush rate limit.
	// Env: TRANSPORT_FLUSH_RATE_BURST (default: 3)
	FlushRateBurst int `koanf:"flush_rate_burst"`
}

// CacheConfig tunes the query result cache.
type CacheConfig struct {
	// TTL is the freshness window for cached query results.
	// Env: CACHE_TTL (default: 5m)
	TTL time.Duration `koanf:"ttl"`
}

// HistoryConfig tunes the local search history window.
type HistoryConfig struct {
	// MaxRecords bounds the rolling history window.
	// Env: HISTORY_MAX_RECORDS (default: 100)
	MaxRecords int `koanf:"max_records"`
}

// ServerConfig configures the daemon's observability endpoint.
type ServerConfig struct {
	// Host is the listen address for /metrics and /healthz.
	// Env: SERVER_HOST (default: 127.0.0.1)
	Host string `koanf:"host"`

	// Port is the listen port.
	// Env: SERVER_PORT (default: 9180)
	Port int `koanf:"port"`

	// Timeout bounds request handling and graceful shutdown.
	// Env: SERVER_TIMEOUT (default: 10s)
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Env: LOG_LEVEL (default: info)
	Level string `koanf:"level"`

	// Format is json or console.
	// Env: LOG_FORMAT (default: json)
	Format string `koanf:"format"`

	// Caller includes caller file and line in log output.
	// Env: LOG_CALLER (default: false)
	Caller bool `koanf:"caller"`
}

// defaultConfig returns a Config with all default values applied.
// These defaults load first and are overridden by file and env layers.
func defaultConfig() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			BatchThreshold: 10,
			RetentionCap:   50,
			FlushInterval:  30 * time.Second,
			StartOnline:    true,
		},
		Transport: TransportConfig{
			BaseURL:                 "",
			Timeout:                 10 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
			FlushRateLimit:          1,
			FlushRateBurst:          3,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		History: HistoryConfig{
			MaxRecords: 100,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    9180,
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateTelemetry,
		c.validateTransport,
		c.validateCache,
		c.validateServer,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	t := c.Telemetry
	if t.BatchThreshold <= 0 {
		return errors.New("telemetry.batch_threshold must be positive")
	}
	if t.RetentionCap < t.BatchThreshold {
		return errors.New("telemetry.retention_cap must be at least telemetry.batch_threshold")
	}
	if t.FlushInterval <= 0 {
		return errors.New("telemetry.flush_interval must be positive")
	}
	return nil
}

func (c *Config) validateTransport() error {
	t := c.Transport
	if t.BaseURL == "" {
		return errors.New("transport.base_url is required")
	}
	if t.Timeout <= 0 {
		return errors.New("transport.timeout must be positive")
	}
	if t.FlushRateLimit < 0 {
		return errors.New("transport.flush_rate_limit cannot be negative")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	return nil
}
