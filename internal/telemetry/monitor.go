// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import "sync"

// Monitor tracks online/offline connectivity state and gates dispatch.
//
// It is a passive observer: it never polls. The host environment delivers
// connectivity change notifications via SetOnline, and an offline-to-online
// transition pulses the Reconnect channel so the dispatcher can drain
// whatever accumulated while offline. Online-to-offline simply disables
// dispatch; queued events are retained.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	reconnect chan struct{}
}

// NewMonitor creates a connectivity monitor initialized from the host
// environment's current connectivity signal.
func NewMonitor(initialOnline bool) *Monitor {
	return &Monitor{
		online:    initialOnline,
		reconnect: make(chan struct{}, 1),
	}
}

// Online reports whether dispatch is currently permitted.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity change notification. Only the
// offline-to-online edge produces a reconnect pulse; repeated notifications
// in the same state are no-ops.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online && !wasOnline {
		select {
		case m.reconnect <- struct{}{}:
		default:
		}
	}
}

// Reconnect returns the channel pulsed on each offline-to-online transition.
func (m *Monitor) Reconnect() <-chan struct{} {
	return m.reconnect
}
