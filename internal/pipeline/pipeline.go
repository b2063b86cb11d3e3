// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package pipeline assembles the telemetry and analytics components into a
// single explicitly constructed instance with one process-wide lifecycle:
// construct at startup, Serve under a supervisor, Destroy at shutdown with
// one final best-effort flush.
//
// Nothing in here is a package-level singleton. Call sites receive the
// Pipeline (or the specific component) by dependency passing, and the
// buffer and cache are mutated only through their documented operations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/openkerb/kerbside/internal/analytics"
	"github.com/openkerb/kerbside/internal/cache"
	"github.com/openkerb/kerbside/internal/config"
	"github.com/openkerb/kerbside/internal/history"
	"github.com/openkerb/kerbside/internal/insights"
	"github.com/openkerb/kerbside/internal/logging"
	"github.com/openkerb/kerbside/internal/session"
	"github.com/openkerb/kerbside/internal/telemetry"
	"github.com/openkerb/kerbside/internal/transport"
)

// Supervisor failure parameters, matching suture's documented defaults.
const (
	failureThreshold = 5.0
	failureDecay     = 30.0
	failureBackoff   = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Pipeline owns every component of the telemetry and analytics core.
type Pipeline struct {
	Session    *session.Provider
	Buffer     *telemetry.Buffer
	Monitor    *telemetry.Monitor
	Dispatcher *telemetry.Dispatcher
	Transport  *transport.Client
	Cache      *cache.Cache
	History    *history.Store
	Insights   *insights.Aggregator
	Analytics  *analytics.Service

	supervisor *suture.Supervisor
	logger     zerolog.Logger
	destroyed  bool
}

// Option customizes pipeline construction.
type Option func(*options)

type options struct {
	clock     telemetry.Clock
	submitter telemetry.Submitter
}

// WithClock substitutes the dispatcher's time source, letting tests drive
// virtual time.
func WithClock(clock telemetry.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithSubmitter substitutes the batch submitter, bypassing the HTTP
// transport. Used by tests.
func WithSubmitter(sub telemetry.Submitter) Option {
	return func(o *options) {
		o.submitter = sub
	}
}

// New constructs the full pipeline from configuration. The returned
// pipeline is inert until Serve is called; events recorded before then
// simply accumulate in the buffer.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.Logger()

	client, err := transport.NewClient(transport.Config{
		BaseURL:                 cfg.Transport.BaseURL,
		Timeout:                 cfg.Transport.Timeout,
		BreakerFailureThreshold: cfg.Transport.BreakerFailureThreshold,
		BreakerInterval:         60 * time.Second,
		BreakerTimeout:          cfg.Transport.BreakerTimeout,
		BreakerMaxRequests:      1,
		FlushRateLimit:          cfg.Transport.FlushRateLimit,
		FlushRateBurst:          cfg.Transport.FlushRateBurst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	submitter := o.submitter
	if submitter == nil {
		submitter = client
	}

	telemetryCfg := telemetry.Config{
		BatchThreshold: cfg.Telemetry.BatchThreshold,
		RetentionCap:   cfg.Telemetry.RetentionCap,
		FlushInterval:  cfg.Telemetry.FlushInterval,
	}

	buf := telemetry.NewBuffer(telemetryCfg)
	mon := telemetry.NewMonitor(cfg.Telemetry.StartOnline)
	disp, err := telemetry.NewDispatcher(buf, mon, submitter, telemetryCfg, o.clock, logger)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	sess := session.NewProvider()
	queryCache := cache.New(cfg.Cache.TTL)
	hist := history.NewStore(cfg.History.MaxRecords)

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	sup := suture.New("kerbside", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: failureThreshold,
		FailureDecay:     failureDecay,
		FailureBackoff:   failureBackoff,
		Timeout:          shutdownTimeout,
	})
	sup.Add(disp)

	return &Pipeline{
		Session:    sess,
		Buffer:     buf,
		Monitor:    mon,
		Dispatcher: disp,
		Transport:  client,
		Cache:      queryCache,
		History:    hist,
		Insights:   insights.NewAggregator(hist),
		Analytics:  analytics.NewService(client, queryCache, buf, sess, hist, logger),
		supervisor: sup,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Serve runs the supervised dispatch loop until ctx is canceled.
func (p *Pipeline) Serve(ctx context.Context) error {
	return p.supervisor.Serve(ctx)
}

// ServeBackground starts the supervisor in a background goroutine and
// returns the channel that receives its terminal error.
func (p *Pipeline) ServeBackground(ctx context.Context) <-chan error {
	return p.supervisor.ServeBackground(ctx)
}

// Destroy performs the explicit end-of-life sequence: one final
// best-effort flush of pending events and a cache clear. Safe to call
// once after the serve context is canceled; repeated calls are no-ops.
func (p *Pipeline) Destroy(ctx context.Context) error {
	if p.destroyed {
		return nil
	}
	p.destroyed = true

	err := p.Dispatcher.Close(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Int("pending", p.Buffer.Len()).Msg("final flush incomplete, discarding pending events")
	}
	p.Cache.Clear()
	p.logger.Info().Msg("pipeline destroyed")
	return err
}
