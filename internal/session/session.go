// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package session supplies the stable per-session identity attached to
// every telemetry event.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Provider hands out a session identifier that is lazily created on first
// access and retained for the lifetime of the running client instance.
// It is never persisted: a new process is a new session.
//
// The user ID is optional and only present while the actor is authenticated.
type Provider struct {
	mu     sync.Mutex
	id     string
	userID string
}

// NewProvider creates a session identity provider. No identifier is
// allocated until the first SessionID call.
func NewProvider() *Provider {
	return &Provider{}
}

// SessionID returns the session identifier, creating it on first access.
func (p *Provider) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" {
		p.id = uuid.New().String()
	}
	return p.id
}

// SetUserID records the authenticated user, or clears it when empty.
func (p *Provider) SetUserID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = id
}

// UserID returns the authenticated user ID, or empty when anonymous.
func (p *Provider) UserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

// Reset discards the current identity so the next SessionID call allocates
// a fresh one. Used by tests and at explicit logout.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = ""
	p.userID = ""
}
