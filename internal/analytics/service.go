// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package analytics is the module boundary the rest of the application
// talks to: cached read queries against the remote analytics service and
// the producer methods that capture usage events into the buffer.
//
// No error crosses this boundary as a Go error: every public query returns
// a uniform Result{Success, Data|Error} so calling UI code degrades to an
// empty panel instead of crashing. Event capture is best-effort and silent.
package analytics

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/openkerb/kerbside/internal/cache"
	"github.com/openkerb/kerbside/internal/history"
	"github.com/openkerb/kerbside/internal/insights"
	"github.com/openkerb/kerbside/internal/session"
	"github.com/openkerb/kerbside/internal/telemetry"
	"github.com/openkerb/kerbside/internal/transport"
)

// Querier performs a read query against the remote analytics service.
// Satisfied by *transport.Client.
type Querier interface {
	Query(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
}

// Result is the uniform outcome shape for analytics queries.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// emptyTrends is the valid-but-empty shape substituted when the
// popular-searches endpoint is permanently unavailable, so dashboards
// render an empty panel instead of failing.
var emptyTrends = json.RawMessage(`{"trends":[],"totalSearches":0}`)

// Service front-ends the query cache and the event buffer.
type Service struct {
	querier Querier
	cache   *cache.Cache
	buffer  *telemetry.Buffer
	session *session.Provider
	history *history.Store
	logger  zerolog.Logger
}

// NewService creates the analytics service. The history store may be nil if
// local pattern aggregation is disabled.
func NewService(querier Querier, c *cache.Cache, buf *telemetry.Buffer, sess *session.Provider, hist *history.Store, logger zerolog.Logger) *Service {
	return &Service{
		querier: querier,
		cache:   c,
		buffer:  buf,
		session: sess,
		history: hist,
		logger:  logger.With().Str("component", "analytics").Logger(),
	}
}

// PopularSearches returns trend data for the given period (e.g. "7d", "30d").
// If the endpoint is permanently unavailable (missing route), an empty
// trends shape is returned as a success so the UI does not crash.
func (s *Service) PopularSearches(ctx context.Context, period string) Result {
	params := map[string]string{"period": period}
	key := cache.GenerateKey(transport.EndpointPopularSearches, params)
	if data, ok := s.cache.Get(key); ok {
		return Result{Success: true, Data: data}
	}

	data, err := s.querier.Query(ctx, transport.EndpointPopularSearches, params)
	if err != nil {
		if telemetry.IsPermanentError(err) && telemetry.CategoryOf(err) == telemetry.ErrorCategoryRouteMissing {
			s.logger.Debug().Err(err).Msg("popular searches unavailable, substituting empty trends")
			return Result{Success: true, Data: emptyTrends}
		}
		return Result{Success: false, Error: err.Error()}
	}

	s.cache.Set(key, data)
	return Result{Success: true, Data: data}
}

// SearchMetrics returns search volume and latency metrics for a period.
func (s *Service) SearchMetrics(ctx context.Context, period string) Result {
	return s.cachedQuery(ctx, transport.EndpointSearchMetrics, map[string]string{"period": period})
}

// SearchInsights returns server-derived search behavior insights for a period.
func (s *Service) SearchInsights(ctx context.Context, period string) Result {
	return s.cachedQuery(ctx, transport.EndpointSearchInsights, map[string]string{"period": period})
}

// Revenue returns revenue analytics for a period, optionally filtered by
// location.
func (s *Service) Revenue(ctx context.Context, period, location string) Result {
	return s.cachedQuery(ctx, transport.EndpointRevenue, periodLocation(period, location))
}

// Utilization returns spot utilization analytics for a period, optionally
// filtered by location.
func (s *Service) Utilization(ctx context.Context, period, location string) Result {
	return s.cachedQuery(ctx, transport.EndpointUtilization, periodLocation(period, location))
}

// PeakHours returns peak-hour analytics for a period, optionally filtered
// by location.
func (s *Service) PeakHours(ctx context.Context, period, location string) Result {
	return s.cachedQuery(ctx, transport.EndpointPeakHours, periodLocation(period, location))
}

// UserBehavior returns user behavior analytics for a period.
func (s *Service) UserBehavior(ctx context.Context, period string) Result {
	return s.cachedQuery(ctx, transport.EndpointUserBehavior, map[string]string{"period": period})
}

// Realtime returns the real-time dashboard snapshot.
func (s *Service) Realtime(ctx context.Context) Result {
	return s.cachedQuery(ctx, transport.EndpointRealtime, nil)
}

// Locations returns the list of known parking locations.
func (s *Service) Locations(ctx context.Context) Result {
	return s.cachedQuery(ctx, transport.EndpointLocations, nil)
}

// InvalidateCache empties the query cache unconditionally, forcing every
// subsequent query to refetch. Called on explicit dashboard refresh.
func (s *Service) InvalidateCache() {
	s.cache.Clear()
}

// cachedQuery implements the check-cache, fetch-on-miss, populate pattern.
// A failed remote query propagates as Result{Success:false} and is never
// cached.
func (s *Service) cachedQuery(ctx context.Context, endpoint string, params map[string]string) Result {
	key := cache.GenerateKey(endpoint, params)
	if data, ok := s.cache.Get(key); ok {
		return Result{Success: true, Data: data}
	}

	data, err := s.querier.Query(ctx, endpoint, params)
	if err != nil {
		s.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("analytics query failed")
		return Result{Success: false, Error: err.Error()}
	}

	s.cache.Set(key, data)
	return Result{Success: true, Data: data}
}

func periodLocation(period, location string) map[string]string {
	params := map[string]string{"period": period}
	if location != "" {
		params["location"] = location
	}
	return params
}

// TrackSearch captures a search event and retains it in the local history
// window for pattern aggregation.
func (s *Service) TrackSearch(query, location string, resultCount int, usedCurrentLocation bool) string {
	id := s.record(telemetry.EventTypeSearch, telemetry.SearchPayload{
		Query:               query,
		Location:            location,
		ResultCount:         resultCount,
		UsedCurrentLocation: usedCurrentLocation,
	})
	if s.history != nil {
		s.history.Add(insights.Record{
			Query:               query,
			Location:            location,
			Timestamp:           time.Now().UTC(),
			UsedCurrentLocation: usedCurrentLocation,
		})
	}
	return id
}

// TrackPopularSearchClick captures a click on a popular-search suggestion.
func (s *Service) TrackPopularSearchClick(query string) string {
	return s.record(telemetry.EventTypePopularSearchClick, telemetry.ClickPayload{Query: query})
}

// TrackRecentSearchClick captures a click on a recent-search suggestion.
func (s *Service) TrackRecentSearchClick(query string) string {
	return s.record(telemetry.EventTypeRecentSearchClick, telemetry.ClickPayload{Query: query})
}

// TrackSpotInteraction captures an interaction with a parking spot result.
func (s *Service) TrackSpotInteraction(spotID, action string) string {
	return s.record(telemetry.EventTypeSpotInteraction, telemetry.SpotInteractionPayload{
		SpotID: spotID,
		Action: action,
	})
}

// TrackSearchPerformance captures timing and outcome of a search round-trip.
func (s *Service) TrackSearchPerformance(query string, duration time.Duration, success bool, errMsg string) string {
	return s.record(telemetry.EventTypeSearchPerformance, telemetry.SearchPerformancePayload{
		Query:      query,
		DurationMs: duration.Milliseconds(),
		Success:    success,
		Error:      errMsg,
	})
}

// record builds and buffers an event. Capture failures are logged and
// swallowed: telemetry must never break the calling interaction.
func (s *Service) record(typ telemetry.EventType, payload any) string {
	event, err := telemetry.NewEvent(typ, payload, s.session.SessionID(), s.session.UserID())
	if err != nil {
		s.logger.Warn().Err(err).Str("type", string(typ)).Msg("dropping malformed event")
		return ""
	}
	return s.buffer.Record(event)
}
