// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/openkerb/kerbside/internal/cache"
	"github.com/openkerb/kerbside/internal/history"
	"github.com/openkerb/kerbside/internal/session"
	"github.com/openkerb/kerbside/internal/telemetry"
	"github.com/openkerb/kerbside/internal/transport"
)

// fakeQuerier returns canned responses per endpoint and counts calls.
type fakeQuerier struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     map[string]int
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeQuerier) Query(_ context.Context, endpoint string, _ map[string]string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	return f.responses[endpoint], nil
}

func (f *fakeQuerier) callCount(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func newTestService(t *testing.T) (*Service, *fakeQuerier, *telemetry.Buffer, *history.Store) {
	t.Helper()
	querier := newFakeQuerier()
	buf := telemetry.NewBuffer(telemetry.DefaultConfig())
	hist := history.NewStore(history.DefaultMaxRecords)
	svc := NewService(querier, cache.New(5*time.Minute), buf, session.NewProvider(), hist, zerolog.Nop())
	return svc, querier, buf, hist
}

func TestCachedQueryPopulatesAndHits(t *testing.T) {
	svc, querier, _, _ := newTestService(t)
	querier.responses[transport.EndpointRevenue] = []byte(`{"total":100}`)

	first := svc.Revenue(context.Background(), "week", "")
	if !first.Success {
		t.Fatalf("Expected success, got error %s", first.Error)
	}
	if string(first.Data) != `{"total":100}` {
		t.Errorf("Unexpected data: %s", first.Data)
	}

	// Second call is served from cache without touching the network.
	second := svc.Revenue(context.Background(), "week", "")
	if !second.Success {
		t.Fatalf("Expected cached success, got error %s", second.Error)
	}
	if querier.callCount(transport.EndpointRevenue) != 1 {
		t.Errorf("Expected 1 network call, got %d", querier.callCount(transport.EndpointRevenue))
	}
}

func TestCachedQueryDistinctParamsMiss(t *testing.T) {
	svc, querier, _, _ := newTestService(t)
	querier.responses[transport.EndpointRevenue] = []byte(`{"total":100}`)

	svc.Revenue(context.Background(), "week", "")
	svc.Revenue(context.Background(), "month", "")
	svc.Revenue(context.Background(), "week", "downtown")

	if querier.callCount(transport.EndpointRevenue) != 3 {
		t.Errorf("Expected 3 network calls for distinct params, got %d", querier.callCount(transport.EndpointRevenue))
	}
}

func TestCachedQueryFailureNotCached(t *testing.T) {
	svc, querier, _, _ := newTestService(t)
	querier.errs[transport.EndpointUtilization] = telemetry.NewRetryableError("server error", nil, telemetry.ErrorCategoryServer)

	result := svc.Utilization(context.Background(), "week", "")
	if result.Success {
		t.Fatal("Expected failure result")
	}
	if result.Error == "" {
		t.Error("Expected error message in result")
	}

	// Recovery: the failure was not cached, so the next call refetches.
	querier.mu.Lock()
	delete(querier.errs, transport.EndpointUtilization)
	querier.responses[transport.EndpointUtilization] = []byte(`{"rate":0.8}`)
	querier.mu.Unlock()

	result = svc.Utilization(context.Background(), "week", "")
	if !result.Success {
		t.Fatalf("Expected success after recovery, got %s", result.Error)
	}
	if querier.callCount(transport.EndpointUtilization) != 2 {
		t.Errorf("Expected 2 network calls, got %d", querier.callCount(transport.EndpointUtilization))
	}
}

func TestPopularSearchesMissingRouteFallback(t *testing.T) {
	svc, querier, _, _ := newTestService(t)
	querier.errs[transport.EndpointPopularSearches] = telemetry.NewPermanentError(
		"endpoint not available", nil, telemetry.ErrorCategoryRouteMissing)

	result := svc.PopularSearches(context.Background(), "7d")
	if !result.Success {
		t.Fatal("Expected empty-trends fallback to report success")
	}

	var shape struct {
		Trends        []json.RawMessage `json:"trends"`
		TotalSearches int               `json:"totalSearches"`
	}
	if err := json.Unmarshal(result.Data, &shape); err != nil {
		t.Fatalf("Fallback shape invalid: %v", err)
	}
	if len(shape.Trends) != 0 || shape.TotalSearches != 0 {
		t.Errorf("Expected empty trends shape, got %s", result.Data)
	}
}

func TestPopularSearchesTransientFailureIsError(t *testing.T) {
	svc, querier, _, _ := newTestService(t)
	querier.errs[transport.EndpointPopularSearches] = telemetry.NewRetryableError(
		"server error", nil, telemetry.ErrorCategoryServer)

	result := svc.PopularSearches(context.Background(), "7d")
	if result.Success {
		t.Error("Transient failure should not be masked by the fallback")
	}
}

func TestInvalidateCacheForcesRefetch(t *testing.T) {
	svc, querier, _, _ := newTestService(t)
	querier.responses[transport.EndpointRealtime] = []byte(`{"active":4}`)

	svc.Realtime(context.Background())
	svc.InvalidateCache()
	svc.Realtime(context.Background())

	if querier.callCount(transport.EndpointRealtime) != 2 {
		t.Errorf("Expected refetch after invalidation, calls=%d", querier.callCount(transport.EndpointRealtime))
	}
}

func TestTrackSearchBuffersEventAndHistory(t *testing.T) {
	svc, _, buf, hist := newTestService(t)

	id := svc.TrackSearch("downtown garage", "Main St, Springfield", 5, false)
	if id == "" {
		t.Fatal("Expected an event ID")
	}
	if buf.Len() != 1 {
		t.Fatalf("Expected 1 buffered event, got %d", buf.Len())
	}

	events := buf.Drain()
	if events[0].Type != telemetry.EventTypeSearch {
		t.Errorf("Expected search event, got %s", events[0].Type)
	}
	if events[0].SessionID == "" {
		t.Error("Expected a session ID on the event")
	}

	var payload telemetry.SearchPayload
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if payload.Query != "downtown garage" || payload.ResultCount != 5 {
		t.Errorf("Unexpected payload: %+v", payload)
	}

	records, err := hist.Recent()
	if err != nil {
		t.Fatalf("History read failed: %v", err)
	}
	if len(records) != 1 || records[0].Query != "downtown garage" {
		t.Errorf("Expected search retained in history, got %+v", records)
	}
}

func TestTrackProducersSetEventTypes(t *testing.T) {
	svc, _, buf, _ := newTestService(t)

	svc.TrackPopularSearchClick("airport")
	svc.TrackRecentSearchClick("stadium")
	svc.TrackSpotInteraction("spot-42", "book")
	svc.TrackSearchPerformance("airport", 250*time.Millisecond, true, "")

	events := buf.Drain()
	want := []telemetry.EventType{
		telemetry.EventTypePopularSearchClick,
		telemetry.EventTypeRecentSearchClick,
		telemetry.EventTypeSpotInteraction,
		telemetry.EventTypeSearchPerformance,
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("Event %d: got type %s, want %s", i, events[i].Type, typ)
		}
	}

	var perf telemetry.SearchPerformancePayload
	if err := json.Unmarshal(events[3].Payload, &perf); err != nil {
		t.Fatalf("Unmarshal performance payload: %v", err)
	}
	if perf.DurationMs != 250 || !perf.Success {
		t.Errorf("Unexpected performance payload: %+v", perf)
	}
}

func TestEventsShareSessionID(t *testing.T) {
	svc, _, buf, _ := newTestService(t)

	svc.TrackPopularSearchClick("a")
	svc.TrackPopularSearchClick("b")

	events := buf.Drain()
	if events[0].SessionID != events[1].SessionID {
		t.Error("Expected all events in a run to share one session ID")
	}
}

func TestTransportClientSatisfiesQuerier(t *testing.T) {
	var _ Querier = (*transport.Client)(nil)
}
