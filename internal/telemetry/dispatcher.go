// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openkerb/kerbside/internal/metrics"
)

// Submitter delivers a batch to the remote ingestion endpoint.
//
// Implementations classify failures at the source: a *RetryableError means
// the batch may succeed on retry, a *PermanentError means it never will.
// Unclassified errors are treated as retryable.
type Submitter interface {
	SubmitBatch(ctx context.Context, batch Batch) error
}

// Dispatcher drains the event buffer into network batches.
//
// A flush is attempted (a) whenever the buffer crosses its capacity
// threshold, (b) on a fixed interval timer, and (c) immediately upon an
// offline-to-online transition. Flush is a no-op while offline or when the
// buffer is empty.
type Dispatcher struct {
	buffer    *Buffer
	monitor   *Monitor
	submitter Submitter
	clock     Clock
	cfg       Config
	logger    zerolog.Logger
}

// NewDispatcher creates a batch dispatcher over the given buffer and monitor.
// A nil clock defaults to the system clock.
func NewDispatcher(buf *Buffer, mon *Monitor, sub Submitter, cfg Config, clock Clock, logger zerolog.Logger) (*Dispatcher, error) {
	if buf == nil {
		return nil, errors.New("buffer cannot be nil")
	}
	if mon == nil {
		return nil, errors.New("monitor cannot be nil")
	}
	if sub == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatcher config: %w", err)
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Dispatcher{
		buffer:    buf,
		monitor:   mon,
		submitter: sub,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Flush takes the current buffer contents, wraps them into a batch, and
// submits them to the ingestion endpoint.
//
// Outcome policy:
//   - success: events are discarded.
//   - transient failure: events are requeued to the front of the buffer,
//     bounded by the retention cap.
//   - permanent failure: events are discarded with only a local log line;
//     retrying against a nonexistent endpoint would spin forever.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if !d.monitor.Online() {
		return nil
	}
	events := d.buffer.Drain()
	if len(events) == 0 {
		return nil
	}

	batch := NewBatch(events, d.clock.Now().UTC())
	err := d.submitter.SubmitBatch(ctx, batch)
	if err == nil {
		metrics.RecordBatch("success", len(events))
		d.logger.Debug().
			Str("batch_id", batch.BatchID).
			Int("events", len(events)).
			Msg("batch delivered")
		return nil
	}

	if IsPermanentError(err) {
		metrics.RecordBatch("permanent", len(events))
		metrics.RecordEventsDropped("permanent", len(events))
		d.logger.Warn().
			Err(err).
			Str("batch_id", batch.BatchID).
			Str("category", CategoryOf(err).String()).
			Int("events", len(events)).
			Msg("batch dropped after permanent delivery failure")
		return err
	}

	// Transient or unclassified: keep the events for the next opportunity.
	dropped := d.buffer.Requeue(events)
	metrics.RecordBatch("transient", len(events))
	d.logger.Debug().
		Err(err).
		Str("batch_id", batch.BatchID).
		Str("category", CategoryOf(err).String()).
		Int("events", len(events)).
		Int("dropped", dropped).
		Msg("batch requeued after transient delivery failure")
	return err
}

// Serve runs the dispatch loop until the context is canceled. It implements
// suture.Service so the pipeline supervisor owns its lifecycle.
func (d *Dispatcher) Serve(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			d.flushLogged(ctx)
		case <-d.buffer.Threshold():
			d.flushLogged(ctx)
		case <-d.monitor.Reconnect():
			d.flushLogged(ctx)
		}
	}
}

// Close performs one final best-effort flush. Called at explicit pipeline
// shutdown after the serve loop has stopped.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.Flush(ctx)
}

// flushLogged runs a flush where the triggering loop cannot return the error.
// Delivery failures are already logged and counted inside Flush.
func (d *Dispatcher) flushLogged(ctx context.Context) {
	_ = d.Flush(ctx)
}
