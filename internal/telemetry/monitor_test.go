// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import "testing"

func TestMonitorInitialState(t *testing.T) {
	if !NewMonitor(true).Online() {
		t.Error("Expected monitor to start online")
	}
	if NewMonitor(false).Online() {
		t.Error("Expected monitor to start offline")
	}
}

func TestMonitorReconnectPulseOnEdgeOnly(t *testing.T) {
	m := NewMonitor(true)

	// Online -> online is not a transition.
	m.SetOnline(true)
	select {
	case <-m.Reconnect():
		t.Fatal("Reconnect pulsed without an offline-to-online edge")
	default:
	}

	m.SetOnline(false)
	select {
	case <-m.Reconnect():
		t.Fatal("Reconnect pulsed on the online-to-offline edge")
	default:
	}

	m.SetOnline(true)
	select {
	case <-m.Reconnect():
	default:
		t.Fatal("Expected reconnect pulse on the offline-to-online edge")
	}
}

func TestMonitorReconnectCoalesces(t *testing.T) {
	m := NewMonitor(false)

	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(true)

	<-m.Reconnect()
	select {
	case <-m.Reconnect():
		t.Fatal("Expected reconnect pulses to coalesce into one pending signal")
	default:
	}
}
