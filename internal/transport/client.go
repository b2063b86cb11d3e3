// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package transport implements the HTTP client for the remote analytics
// service. It is the single place where delivery failures are classified:
// every error leaving this package is a tagged telemetry.RetryableError or
// telemetry.PermanentError derived from explicit status signals, so no
// caller ever inspects error message text to decide retry eligibility.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/openkerb/kerbside/internal/metrics"
	"github.com/openkerb/kerbside/internal/telemetry"
)

// Analytics endpoint paths consumed by the pipeline.
const (
	EndpointEvents          = "/analytics/events"
	EndpointPopularSearches = "/analytics/popular-searches"
	EndpointSearchMetrics   = "/analytics/search-metrics"
	EndpointSearchInsights  = "/analytics/search-insights"
	EndpointRevenue         = "/analytics/revenue"
	EndpointUtilization     = "/analytics/utilization"
	EndpointPeakHours       = "/analytics/peak-hours"
	EndpointUserBehavior    = "/analytics/user-behavior"
	EndpointRealtime        = "/analytics/realtime"
	EndpointLocations       = "/analytics/locations"
)

const breakerName = "analytics-ingestion"

// Client talks to the remote analytics service.
//
// Batch submissions pass through a circuit breaker and a local rate limit;
// read queries are classified the same way but not gated, since a stale
// dashboard is preferable to a silently empty one.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[int]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates an analytics API client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("transport config: %w", err)
	}

	lg := logger.With().Str("component", "transport").Logger()

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, breakerStateValue(to))
			lg.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	var limiter *rate.Limiter
	if cfg.FlushRateLimit > 0 {
		burst := cfg.FlushRateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.FlushRateLimit), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[int](settings),
		limiter: limiter,
		logger:  lg,
	}, nil
}

// SubmitBatch delivers a batch to POST /analytics/events.
// Body shape: {"events": [...], "batchId": "...", "timestamp": "..."}.
func (c *Client) SubmitBatch(ctx context.Context, batch telemetry.Batch) error {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Debug().Str("batch_id", batch.BatchID).Msg("flush rate limit exceeded, deferring batch")
		return telemetry.NewRetryableError("flush rate limit exceeded", nil, telemetry.ErrorCategoryThrottled)
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return telemetry.NewPermanentError("encode batch", err, telemetry.ErrorCategoryValidation)
	}

	_, err = c.breaker.Execute(func() (int, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointEvents, bytes.NewReader(body))
		if reqErr != nil {
			return 0, telemetry.NewPermanentError("build request", reqErr, telemetry.ErrorCategoryValidation)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return 0, classifyTransportError(doErr)
		}
		defer resp.Body.Close()
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if err := classifyStatus(resp.StatusCode, EndpointEvents); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return telemetry.NewRetryableError("ingestion circuit open", err, telemetry.ErrorCategoryThrottled)
		}
		return err
	}
	return nil
}

// Query performs a GET against an analytics read endpoint with the given
// parameters and returns the raw response body. Errors carry the same
// retryable/permanent classification as submissions.
func (c *Client) Query(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	start := time.Now()

	u := c.baseURL + endpoint
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, telemetry.NewPermanentError("build request", err, telemetry.ErrorCategoryValidation)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		cerr := classifyTransportError(err)
		metrics.RecordQueryError(endpoint, telemetry.CategoryOf(cerr).String())
		return nil, cerr
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, endpoint); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		metrics.RecordQueryError(endpoint, telemetry.CategoryOf(err).String())
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		cerr := telemetry.NewRetryableError("read response", err, telemetry.ErrorCategoryConnection)
		metrics.RecordQueryError(endpoint, telemetry.CategoryOf(cerr).String())
		return nil, cerr
	}

	metrics.ObserveQueryDuration(endpoint, time.Since(start))
	return data, nil
}

// classifyTransportError tags errors raised before a response arrived.
// Timeouts and canceled contexts are transient; so are connection failures.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return telemetry.NewRetryableError("request timeout", err, telemetry.ErrorCategoryTimeout)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return telemetry.NewRetryableError("request timeout", err, telemetry.ErrorCategoryTimeout)
	}
	return telemetry.NewRetryableError("network unreachable", err, telemetry.ErrorCategoryConnection)
}

// classifyStatus maps an HTTP status to the tagged error taxonomy.
//
//	2xx            -> success
//	404, 501       -> permanent (endpoint does not exist / not implemented)
//	400, 422       -> permanent (payload rejected as invalid)
//	408, 429       -> transient (timeout / throttled)
//	5xx            -> transient (server-side failure)
//	other 4xx      -> permanent
func classifyStatus(status int, endpoint string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusNotImplemented:
		return telemetry.NewPermanentError(
			fmt.Sprintf("endpoint %s not available (status %d)", endpoint, status),
			nil, telemetry.ErrorCategoryRouteMissing)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return telemetry.NewPermanentError(
			fmt.Sprintf("request rejected (status %d)", status),
			nil, telemetry.ErrorCategoryValidation)
	case status == http.StatusRequestTimeout:
		return telemetry.NewRetryableError(
			fmt.Sprintf("server timeout (status %d)", status),
			nil, telemetry.ErrorCategoryTimeout)
	case status == http.StatusTooManyRequests:
		return telemetry.NewRetryableError(
			fmt.Sprintf("throttled (status %d)", status),
			nil, telemetry.ErrorCategoryThrottled)
	case status >= 500:
		return telemetry.NewRetryableError(
			fmt.Sprintf("server error (status %d)", status),
			nil, telemetry.ErrorCategoryServer)
	default:
		return telemetry.NewPermanentError(
			fmt.Sprintf("request failed (status %d)", status),
			nil, telemetry.ErrorCategoryValidation)
	}
}

// breakerStateValue maps gobreaker states to the gauge encoding
// 0=closed, 1=open, 2=half-open.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
