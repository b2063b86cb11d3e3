// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import (
	"sync"
	"time"

	"github.com/openkerb/kerbside/internal/metrics"
)

// Buffer is an in-memory ordered queue of pending telemetry events.
//
// The buffer is one of the two pieces of shared mutable state in the
// pipeline (the other is the query cache). All mutation goes through Record,
// Drain, and Requeue under a single mutex, so an event recorded before a
// Drain begins is included in that drain exactly once, and an event recorded
// after belongs to the next batch.
type Buffer struct {
	mu        sync.Mutex
	events    []Event
	lastTS    time.Time
	threshold int
	cap       int

	// signal carries the capacity-threshold notification to the dispatcher.
	// Size 1: repeated crossings before a flush coalesce into one signal.
	signal chan struct{}
}

// NewBuffer creates an event buffer with the given thresholds.
func NewBuffer(cfg Config) *Buffer {
	return &Buffer{
		events:    make([]Event, 0, cfg.BatchThreshold),
		threshold: cfg.BatchThreshold,
		cap:       cfg.RetentionCap,
		signal:    make(chan struct{}, 1),
	}
}

// Record enqueues an event in arrival order and returns its ID immediately.
// It never blocks. Timestamps are clamped so they are monotonically
// non-decreasing within the buffer even if the system clock steps backward.
//
// When the buffer reaches the configured threshold, Record signals the
// dispatcher to flush immediately rather than waiting for the timer.
func (b *Buffer) Record(e Event) string {
	b.mu.Lock()
	if e.Timestamp.Before(b.lastTS) {
		e.Timestamp = b.lastTS
	}
	b.lastTS = e.Timestamp
	b.events = append(b.events, e)
	depth := len(b.events)
	b.mu.Unlock()

	metrics.RecordEventRecorded(string(e.Type))
	metrics.SetBufferDepth(depth)

	if depth >= b.threshold {
		select {
		case b.signal <- struct{}{}:
		default:
		}
	}
	return e.ID
}

// Drain atomically removes and returns all currently queued events.
// The returned slice preserves arrival order and is owned by the caller.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	events := b.events
	b.events = make([]Event, 0, b.threshold)
	b.mu.Unlock()

	metrics.SetBufferDepth(0)
	return events
}

// Requeue pushes events back to the front of the buffer after a transient
// delivery failure, preserving chronological order relative to events that
// arrived during the flush attempt. If the combined length would exceed the
// retention cap, the oldest excess events are dropped silently; telemetry
// loss is preferable to unbounded growth. Returns the number dropped.
func (b *Buffer) Requeue(events []Event) int {
	if len(events) == 0 {
		return 0
	}

	b.mu.Lock()
	combined := make([]Event, 0, len(events)+len(b.events))
	combined = append(combined, events...)
	combined = append(combined, b.events...)

	dropped := 0
	if len(combined) > b.cap {
		dropped = len(combined) - b.cap
		combined = combined[dropped:]
	}
	b.events = combined
	depth := len(b.events)
	b.mu.Unlock()

	if dropped > 0 {
		metrics.RecordEventsDropped("capacity", dropped)
	}
	metrics.SetBufferDepth(depth)
	return dropped
}

// Len returns the number of queued events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Threshold returns the channel signalled when the buffer crosses its
// capacity threshold. The dispatcher selects on it alongside its timer.
func (b *Buffer) Threshold() <-chan struct{} {
	return b.signal
}
