// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSubmitter captures successfully submitted batches and returns a
// configurable error otherwise.
type fakeSubmitter struct {
	mu      sync.Mutex
	err     error
	batches chan Batch
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{batches: make(chan Batch, 16)}
}

func (f *fakeSubmitter) SubmitBatch(_ context.Context, batch Batch) error {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.batches <- batch
	return nil
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSubmitter) awaitBatch(t *testing.T) Batch {
	t.Helper()
	select {
	case batch := <-f.batches:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a batch")
		return Batch{}
	}
}

func newTestDispatcher(t *testing.T, cfg Config, online bool) (*Dispatcher, *Buffer, *Monitor, *fakeSubmitter) {
	t.Helper()
	buf := NewBuffer(cfg)
	mon := NewMonitor(online)
	sub := newFakeSubmitter()
	d, err := NewDispatcher(buf, mon, sub, cfg, NewManualClock(time.Now()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	return d, buf, mon, sub
}

func TestDispatcherFlushSuccess(t *testing.T) {
	d, buf, _, sub := newTestDispatcher(t, DefaultConfig(), true)

	buf.Record(testEvent(t, "garage"))
	buf.Record(testEvent(t, "street"))

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	batch := sub.awaitBatch(t)
	if len(batch.Events) != 2 {
		t.Errorf("Expected 2 events in batch, got %d", len(batch.Events))
	}
	if batch.BatchID == "" {
		t.Error("Expected a batch ID")
	}
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after success, got %d", buf.Len())
	}
}

func TestDispatcherFlushOfflineIsNoop(t *testing.T) {
	d, buf, _, sub := newTestDispatcher(t, DefaultConfig(), false)

	buf.Record(testEvent(t, "offline"))
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush while offline returned error: %v", err)
	}
	if buf.Len() != 1 {
		t.Errorf("Expected event retained while offline, buffer has %d", buf.Len())
	}
	select {
	case <-sub.batches:
		t.Error("No network call expected while offline")
	default:
	}
}

func TestDispatcherFlushEmptyIsNoop(t *testing.T) {
	d, _, _, sub := newTestDispatcher(t, DefaultConfig(), true)

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush of empty buffer returned error: %v", err)
	}
	select {
	case <-sub.batches:
		t.Error("No network call expected for an empty buffer")
	default:
	}
}

func TestDispatcherTransientFailureRequeues(t *testing.T) {
	d, buf, _, sub := newTestDispatcher(t, DefaultConfig(), true)
	sub.setErr(NewRetryableError("server error", nil, ErrorCategoryServer))

	first := testEvent(t, "first")
	second := testEvent(t, "second")
	buf.Record(first)
	buf.Record(second)

	if err := d.Flush(context.Background()); err == nil {
		t.Fatal("Expected transient error from flush")
	}
	if buf.Len() != 2 {
		t.Fatalf("Expected events requeued, buffer has %d", buf.Len())
	}

	// Retry succeeds with original order intact.
	sub.setErr(nil)
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Retry flush failed: %v", err)
	}
	batch := sub.awaitBatch(t)
	if batch.Events[0].ID != first.ID || batch.Events[1].ID != second.ID {
		t.Error("Requeued events lost their order")
	}
}

func TestDispatcherPermanentFailureDiscards(t *testing.T) {
	d, buf, _, sub := newTestDispatcher(t, DefaultConfig(), true)
	sub.setErr(NewPermanentError("endpoint not found", nil, ErrorCategoryRouteMissing))

	buf.Record(testEvent(t, "doomed"))

	if err := d.Flush(context.Background()); !IsPermanentError(err) {
		t.Fatalf("Expected permanent error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected events discarded on permanent failure, buffer has %d", buf.Len())
	}
}

func TestDispatcherUnclassifiedErrorTreatedAsTransient(t *testing.T) {
	d, buf, _, sub := newTestDispatcher(t, DefaultConfig(), true)
	sub.setErr(errors.New("something odd"))

	buf.Record(testEvent(t, "keep-me"))

	if err := d.Flush(context.Background()); err == nil {
		t.Fatal("Expected error from flush")
	}
	if buf.Len() != 1 {
		t.Errorf("Expected unclassified failure to requeue, buffer has %d", buf.Len())
	}
}

func TestDispatcherServeFlushesOnTimer(t *testing.T) {
	cfg := Config{BatchThreshold: 100, RetentionCap: 200, FlushInterval: 30 * time.Second}
	buf := NewBuffer(cfg)
	mon := NewMonitor(true)
	sub := newFakeSubmitter()
	clock := NewManualClock(time.Now())
	d, err := NewDispatcher(buf, mon, sub, cfg, clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	buf.Record(testEvent(t, "timed"))

	// Below the interval nothing fires, whenever the loop's ticker came up.
	clock.Advance(29 * time.Second)
	select {
	case <-sub.batches:
		t.Fatal("Flush fired before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	// Keep crossing the interval until the loop's ticker picks it up.
	deadline := time.After(2 * time.Second)
	for {
		clock.Advance(30 * time.Second)
		select {
		case batch := <-sub.batches:
			if len(batch.Events) != 1 {
				t.Errorf("Expected 1 event in timed batch, got %d", len(batch.Events))
			}
		case <-time.After(10 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("Timed out waiting for interval flush")
		}
		break
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Serve, got %v", err)
	}
}

func TestDispatcherServeFlushesOnThreshold(t *testing.T) {
	cfg := Config{BatchThreshold: 10, RetentionCap: 50, FlushInterval: time.Hour}
	buf := NewBuffer(cfg)
	mon := NewMonitor(true)
	sub := newFakeSubmitter()
	d, err := NewDispatcher(buf, mon, sub, cfg, NewManualClock(time.Now()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Serve(ctx) }()

	for i := 0; i < 10; i++ {
		buf.Record(testEvent(t, fmt.Sprintf("q-%d", i)))
	}

	batch := sub.awaitBatch(t)
	if len(batch.Events) != 10 {
		t.Errorf("Expected threshold batch of 10, got %d", len(batch.Events))
	}
}

// TestDispatcherOfflineRecoveryOrder walks the full connectivity round trip:
// a threshold flush while online, events held across an offline window, and
// a single ordered flush on reconnect.
func TestDispatcherOfflineRecoveryOrder(t *testing.T) {
	cfg := Config{BatchThreshold: 10, RetentionCap: 50, FlushInterval: time.Hour}
	buf := NewBuffer(cfg)
	mon := NewMonitor(true)
	sub := newFakeSubmitter()
	d, err := NewDispatcher(buf, mon, sub, cfg, NewManualClock(time.Now()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Serve(ctx) }()

	var recorded []string
	record := func(n int) {
		for i := 0; i < n; i++ {
			e := testEvent(t, fmt.Sprintf("q-%d", len(recorded)))
			recorded = append(recorded, e.ID)
			buf.Record(e)
		}
	}

	// Crossing the threshold flushes the first ten.
	record(10)
	batch := sub.awaitBatch(t)
	if len(batch.Events) != 10 {
		t.Fatalf("Expected threshold batch of 10, got %d", len(batch.Events))
	}
	for i, e := range batch.Events {
		if e.ID != recorded[i] {
			t.Fatalf("Threshold batch out of order at %d", i)
		}
	}

	// Two more sit below the threshold.
	record(2)
	if buf.Len() != 2 {
		t.Fatalf("Expected 2 buffered events, got %d", buf.Len())
	}

	// Offline: recording continues, nothing is sent.
	mon.SetOnline(false)
	record(3)
	if buf.Len() != 5 {
		t.Fatalf("Expected 5 buffered events while offline, got %d", buf.Len())
	}
	select {
	case <-sub.batches:
		t.Fatal("No batch expected while offline")
	case <-time.After(50 * time.Millisecond):
	}

	// Reconnect: everything accumulated goes out in one ordered batch.
	mon.SetOnline(true)
	batch = sub.awaitBatch(t)
	if len(batch.Events) != 5 {
		t.Fatalf("Expected reconnect batch of 5, got %d", len(batch.Events))
	}
	for i, e := range batch.Events {
		if e.ID != recorded[10+i] {
			t.Fatalf("Reconnect batch out of order at %d", i)
		}
	}
}

func TestDispatcherCloseFlushesPending(t *testing.T) {
	d, buf, _, sub := newTestDispatcher(t, DefaultConfig(), true)

	buf.Record(testEvent(t, "last-words"))
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	batch := sub.awaitBatch(t)
	if len(batch.Events) != 1 {
		t.Errorf("Expected final flush of 1 event, got %d", len(batch.Events))
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	cfg := DefaultConfig()
	buf := NewBuffer(cfg)
	mon := NewMonitor(true)
	sub := newFakeSubmitter()

	if _, err := NewDispatcher(nil, mon, sub, cfg, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for nil buffer")
	}
	if _, err := NewDispatcher(buf, nil, sub, cfg, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for nil monitor")
	}
	if _, err := NewDispatcher(buf, mon, nil, cfg, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for nil submitter")
	}
	if _, err := NewDispatcher(buf, mon, sub, Config{}, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid config")
	}
	if _, err := NewDispatcher(buf, mon, sub, cfg, nil, zerolog.Nop()); err != nil {
		t.Errorf("Expected nil clock to default, got error: %v", err)
	}
}
