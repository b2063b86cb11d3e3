// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package transport

import (
	"errors"
	"net/url"
	"time"
)

// Config holds configuration for the analytics API client.
type Config struct {
	// BaseURL is the root of the remote analytics service,
	// e.g. https://api.example.com. Required.
	BaseURL string

	// Timeout is the per-request timeout. A request exceeding it is a
	// transient failure.
	// Default: 10s
	Timeout time.Duration

	// BreakerFailureThreshold is the number of consecutive submission
	// failures before the circuit breaker opens.
	// Default: 5
	BreakerFailureThreshold uint32

	// BreakerInterval is the cyclic period in which the breaker clears
	// its failure counts while closed.
	// Default: 60s
	BreakerInterval time.Duration

	// BreakerTimeout is how long the breaker stays open before moving to
	// half-open.
	// Default: 30s
	BreakerTimeout time.Duration

	// BreakerMaxRequests is the number of probe requests allowed while
	// half-open.
	// Default: 1
	BreakerMaxRequests uint32

	// FlushRateLimit caps batch submissions per second so retry pressure
	// cannot hammer the ingestion endpoint. Zero disables the limit.
	// Default: 1
	FlushRateLimit float64

	// FlushRateBurst is the burst allowance for the flush rate limit.
	// Default: 3
	FlushRateBurst int
}

// DefaultConfig returns production defaults for the transport layer.
func DefaultConfig() Config {
	return Config{
		Timeout:                 10 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerInterval:         60 * time.Second,
		BreakerTimeout:          30 * time.Second,
		BreakerMaxRequests:      1,
		FlushRateLimit:          1,
		FlushRateBurst:          3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("base URL must be an absolute http(s) URL")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.FlushRateLimit < 0 {
		return errors.New("flush rate limit cannot be negative")
	}
	return nil
}
