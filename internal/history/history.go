// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package history retains a bounded rolling window of recent searches for
// the local pattern aggregator. State is in-memory and scoped to the running
// client instance; nothing is persisted.
package history

import (
	"sync"

	"github.com/openkerb/kerbside/internal/insights"
)

// DefaultMaxRecords bounds the rolling window when no limit is configured.
const DefaultMaxRecords = 100

// Store is a bounded FIFO of search records. When full, adding a record
// evicts the oldest one.
type Store struct {
	mu      sync.Mutex
	records []insights.Record
	max     int
}

// NewStore creates a history store retaining at most max records.
// Non-positive max falls back to DefaultMaxRecords.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &Store{
		records: make([]insights.Record, 0, max),
		max:     max,
	}
}

// Add appends a record in arrival order, evicting the oldest past the cap.
func (s *Store) Add(r insights.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	if len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}
}

// Recent returns a copy of the retained records in arrival order.
// It implements insights.Source.
func (s *Store) Recent() ([]insights.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]insights.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Clear discards all retained records.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
}
