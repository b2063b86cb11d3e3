// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package insights derives descriptive statistics from locally retained
// search history without any network dependency.
//
// These are best-effort insights, not critical-path data: if the history
// source fails or returns malformed records, every method returns its
// documented empty-shaped default instead of an error.
package insights

import (
	"sort"
	"strings"
	"time"
)

// Record is one retained search, consumed read-only from the history source.
type Record struct {
	Query               string    `json:"query"`
	Location            string    `json:"location"`
	Timestamp           time.Time `json:"timestamp"`
	UsedCurrentLocation bool      `json:"usedCurrentLocation"`
}

// Source supplies the retained search history in arrival order.
type Source interface {
	Recent() ([]Record, error)
}

// LocationCount is one entry of the geographic distribution.
type LocationCount struct {
	Location string `json:"location"`
	Count    int    `json:"count"`
}

// Summary holds the headline behavioral aggregates.
// The zero value is the documented default for empty or unreadable history.
type Summary struct {
	RepeatSearches             int `json:"repeatSearches"`
	LocationBasedSearches      int `json:"locationBasedSearches"`
	CurrentLocationSearches    int `json:"currentLocationSearches"`
	AverageTimeBetweenSearches int `json:"averageTimeBetweenSearches"` // whole minutes
}

// Aggregator computes local behavioral statistics over a Source.
type Aggregator struct {
	source Source
	now    func() time.Time
}

// Option customizes aggregator construction.
type Option func(*Aggregator)

// WithNow overrides the aggregator's time source for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates a pattern aggregator over the given history source.
func NewAggregator(source Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summary computes repeat-query, location-type, and inter-query timing
// aggregates. With fewer than two records the average interval is zero.
func (a *Aggregator) Summary() Summary {
	records := a.records()

	var s Summary
	seen := make(map[string]int, len(records))
	for _, r := range records {
		if r.UsedCurrentLocation {
			s.CurrentLocationSearches++
		} else {
			s.LocationBasedSearches++
		}
		seen[r.Query]++
	}
	for _, count := range seen {
		if count > 1 {
			s.RepeatSearches++
		}
	}

	if len(records) >= 2 {
		var total time.Duration
		for i := 1; i < len(records); i++ {
			total += records[i].Timestamp.Sub(records[i-1].Timestamp)
		}
		mean := total / time.Duration(len(records)-1)
		s.AverageTimeBetweenSearches = int(mean.Minutes())
	}
	return s
}

// GeographicDistribution groups records by normalized location label, counts
// occurrences, and returns the top 10 sorted by descending count.
func (a *Aggregator) GeographicDistribution() []LocationCount {
	records := a.records()

	counts := make(map[string]int)
	for _, r := range records {
		label := normalizeLocation(r.Location)
		if label == "" {
			continue
		}
		counts[label]++
	}

	distribution := make([]LocationCount, 0, len(counts))
	for location, count := range counts {
		distribution = append(distribution, LocationCount{Location: location, Count: count})
	}
	sort.Slice(distribution, func(i, j int) bool {
		if distribution[i].Count != distribution[j].Count {
			return distribution[i].Count > distribution[j].Count
		}
		return distribution[i].Location < distribution[j].Location
	})

	if len(distribution) > 10 {
		distribution = distribution[:10]
	}
	return distribution
}

// HourlyDistribution buckets records by hour of day.
// Hours with no records are absent from the map.
func (a *Aggregator) HourlyDistribution() map[int]int {
	records := a.records()

	hours := make(map[int]int)
	for _, r := range records {
		if r.Timestamp.IsZero() {
			continue
		}
		hours[r.Timestamp.Hour()]++
	}
	return hours
}

// DailyTrend counts records per calendar day over the last 7 days,
// keyed by ISO date (2006-01-02).
func (a *Aggregator) DailyTrend() map[string]int {
	records := a.records()
	cutoff := a.now().AddDate(0, 0, -7)

	days := make(map[string]int)
	for _, r := range records {
		if r.Timestamp.IsZero() || r.Timestamp.Before(cutoff) {
			continue
		}
		days[r.Timestamp.Format("2006-01-02")]++
	}
	return days
}

// records reads the history source, swallowing any error into an empty
// slice per the best-effort policy.
func (a *Aggregator) records() []Record {
	if a.source == nil {
		return nil
	}
	records, err := a.source.Recent()
	if err != nil {
		return nil
	}
	return records
}

// normalizeLocation reduces an address to its first comma-delimited segment.
func normalizeLocation(location string) string {
	segment, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(segment)
}
