// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventType identifies the kind of user action an Event records.
// The set is closed: the ingestion endpoint rejects unknown types.
type EventType string

const (
	// EventTypeSearch records a parking search submission.
	EventTypeSearch EventType = "search"
	// EventTypePopularSearchClick records a click on a popular-search suggestion.
	EventTypePopularSearchClick EventType = "popular_search_click"
	// EventTypeRecentSearchClick records a click on a recent-search suggestion.
	EventTypeRecentSearchClick EventType = "recent_search_click"
	// EventTypeSpotInteraction records an interaction with a parking spot result.
	EventTypeSpotInteraction EventType = "spot_interaction"
	// EventTypeSearchPerformance records timing and outcome of a search round-trip.
	EventTypeSearchPerformance EventType = "search_performance"
)

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeSearch, EventTypePopularSearchClick, EventTypeRecentSearchClick,
		EventTypeSpotInteraction, EventTypeSearchPerformance:
		return true
	}
	return false
}

// Event is one captured user action destined for telemetry ingestion.
//
// An Event is immutable once created: it is either delivered, discarded on a
// terminal error, or retained in the buffer for retry. Timestamps are
// monotonically non-decreasing within a session (the buffer clamps them on
// record); no ordering is guaranteed across sessions.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates an Event with a unique ID and capture timestamp. The
// user ID may be empty for anonymous actors. The payload is serialized once
// at capture time so later mutation of the source value cannot alter the
// event.
func NewEvent(typ EventType, payload any, sessionID, userID string) (Event, error) {
	e := Event{
		ID:        uuid.New().String(),
		Type:      typ,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, &FieldError{Field: "payload", Message: err.Error()}
		}
		e.Payload = raw
	}
	return e, e.Validate()
}

// Validate checks required fields and returns an error if validation fails.
func (e *Event) Validate() error {
	if e.ID == "" {
		return &FieldError{Field: "id", Message: "required"}
	}
	if !e.Type.Valid() {
		return &FieldError{Field: "type", Message: "unknown event type"}
	}
	if e.SessionID == "" {
		return &FieldError{Field: "sessionId", Message: "required"}
	}
	return nil
}

// SearchPayload carries the details of a search event.
type SearchPayload struct {
	Query               string `json:"query"`
	Location            string `json:"location,omitempty"`
	ResultCount         int    `json:"resultCount"`
	UsedCurrentLocation bool   `json:"usedCurrentLocation"`
}

// ClickPayload carries the details of a suggestion click event.
type ClickPayload struct {
	Query string `json:"query"`
}

// SpotInteractionPayload carries the details of a spot interaction event.
type SpotInteractionPayload struct {
	SpotID string `json:"spotId"`
	Action string `json:"action"` // view, select, book
}

// SearchPerformancePayload carries timing and outcome of a search round-trip.
type SearchPerformancePayload struct {
	Query      string `json:"query"`
	DurationMs int64  `json:"durationMs"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Batch is a snapshot group of Events submitted in one network call.
// Construction is atomic with respect to the buffer: events recorded after
// the snapshot belong to the next batch.
type Batch struct {
	BatchID   string    `json:"batchId"`
	Events    []Event   `json:"events"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBatch wraps a drained event snapshot into a transmission unit.
// Each flush attempt gets a fresh batch ID.
func NewBatch(events []Event, now time.Time) Batch {
	return Batch{
		BatchID:   uuid.New().String(),
		Events:    events,
		Timestamp: now,
	}
}

// FieldError represents a field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}
