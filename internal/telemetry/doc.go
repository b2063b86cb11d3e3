// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

/*
Package telemetry implements the core event pipeline: capture, buffering,
and batched delivery of usage events to the remote ingestion endpoint.

# Data flow

Producers create immutable Events and Record them into the Buffer. The
Dispatcher drains the buffer into a Batch and submits it through a
Submitter implementation (see internal/transport). The Monitor gates
dispatch on connectivity and triggers an immediate flush on reconnect.

	producers -> Buffer -> Dispatcher -> Submitter -> POST /analytics/events

# Delivery semantics

Delivery is best-effort, at-least-once while within the retention cap:

  - Success: events are discarded from the buffer.
  - Transient failure (network error, 5xx, timeout): events are requeued to
    the front of the buffer so retry does not reorder telemetry relative to
    newly arriving events. The buffer never grows past the retention cap;
    oldest excess events are dropped silently.
  - Permanent failure (missing endpoint, rejected payload): events are
    discarded without retry.

The transient/permanent distinction is made by the transport layer from
explicit status signals and carried in tagged error types (RetryableError,
PermanentError), never by inspecting error message text.

# Ordering

Events flush in FIFO arrival order within a session. Batches may be
delivered out of real-time order relative to each other when a retry
requeues an older batch's events ahead of newer ones; the requeue-to-front
policy preserves event order at the cost of batch order.
*/
package telemetry
