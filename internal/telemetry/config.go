// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import (
	"errors"
	"time"
)

// Config holds tuning parameters for the event buffer and batch dispatcher.
type Config struct {
	// BatchThreshold is the buffer size that triggers an immediate flush
	// instead of waiting for the interval timer.
	// Default: 10
	BatchThreshold int

	// RetentionCap is the hard upper bound on buffered events. When a
	// transient failure requeues events past this cap, the oldest excess
	// events are dropped silently to bound memory.
	// Default: 50
	RetentionCap int

	// FlushInterval is the period of the timer-driven flush.
	// Default: 30s
	FlushInterval time.Duration
}

// DefaultConfig returns production defaults for the telemetry pipeline.
func DefaultConfig() Config {
	return Config{
		BatchThreshold: 10,
		RetentionCap:   50,
		FlushInterval:  30 * time.Second,
	}
}

// Validate checks the configuration for invalid combinations.
func (c Config) Validate() error {
	if c.BatchThreshold <= 0 {
		return errors.New("batch threshold must be positive")
	}
	if c.RetentionCap <= 0 {
		return errors.New("retention cap must be positive")
	}
	if c.RetentionCap < c.BatchThreshold {
		return errors.New("retention cap must be at least the batch threshold")
	}
	if c.FlushInterval <= 0 {
		return errors.New("flush interval must be positive")
	}
	return nil
}
