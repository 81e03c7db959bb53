// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// HTTPClient allows injecting test clients.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher retrieves the reference and returns its drift-checked tables.
type Fetcher interface {
	Fetch(ctx context.Context) (*RawCatalog, error)
}

// RawTable is one resource type's metrics table, not yet parsed.
type RawTable struct {
	ResourceType string

	// Source is the URL the table was read from.
	Source string

	Layout *Layout
	Rows   [][]*html.Node
}

// RawCatalog is the drift-checked output of a Fetcher.
type RawCatalog struct {
	// Mode names the fetcher that produced the catalog.
	Mode string

	// Pages is the number of pages retrieved.
	Pages int

	Tables []RawTable
}

// FetchConfig controls retrieval.
type FetchConfig struct {
	// Timeout bounds one attempt, including reading the body.
	Timeout time.Duration

	// MaxAttempts is the total number of attempts per page.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RequestsPerSecond paces all requests of a run. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	// Concurrency bounds parallel detail page fetches.
	Concurrency int

	UserAgent string

	// MaxBodyBytes caps a page body. A larger body fails the fetch.
	MaxBodyBytes int64
}

// DefaultFetchConfig returns conservative settings for learn.microsoft.com.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:           30 * time.Second,
		MaxAttempts:       4,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             1,
		Concurrency:       4,
		UserAgent:         "metricsync/1.0",
		MaxBodyBytes:      32 << 20,
	}
}

// NewHTTPClient returns an http.Client whose transport records a client
// span per request.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// getter performs paced, retried GETs.
type getter struct {
	client  HTTPClient
	config  FetchConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newGetter(client HTTPClient, config FetchConfig, logger *slog.Logger) *getter {
	if client == nil {
		client = NewHTTPClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultFetchConfig().MaxBodyBytes
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &getter{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// get downloads URL.
//
// # Description
//
// Network errors, 5xx and 429 responses are retried with exponential
// backoff until MaxAttempts is reached; any other non-2xx status fails at
// once. Each attempt waits for the shared rate limiter and runs under its
// own Timeout.
//
// # Outputs
//
//   - []byte: The response body
//   - error: *RetrievalError if the page could not be fetched
func (g *getter) get(ctx context.Context, URL string) ([]byte, error) {
	var (
		attempts   int
		lastStatus int
	)
	operation := func() ([]byte, error) {
		attempts++
		body, status, err := g.attempt(ctx, URL)
		if status != 0 {
			lastStatus = status
		}
		recordFetchAttempt(ctx, status, err == nil)
		if err == nil {
			return body, nil
		}
		var (
			se        *statusError
			permanent *backoff.PermanentError
		)
		if errors.As(err, &permanent) {
			return nil, err
		}
		if errors.As(err, &se) && !se.retryable() {
			return nil, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		g.logger.Warn("catalog fetch failed, retrying",
			slog.String("url", URL),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	policy := &backoff.ExponentialBackOff{
		InitialInterval:     g.config.InitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         g.config.MaxBackoff,
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = backoff.DefaultInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = backoff.DefaultMaxInterval
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(g.config.MaxAttempts)),
	)
	if err != nil {
		return nil, &RetrievalError{URL: URL, StatusCode: lastStatus, Attempts: attempts, Err: err}
	}
	return body, nil
}

// attempt performs one GET under the per-attempt timeout.
func (g *getter) attempt(ctx context.Context, URL string) ([]byte, int, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	attemptCtx := ctx
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, URL, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "text/html")
	if g.config.UserAgent != "" {
		req.Header.Set("User-Agent", g.config.UserAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.config.MaxBodyBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	// A truncated page still parses, so an oversized one must fail.
	if int64(len(body)) > g.config.MaxBodyBytes {
		return nil, resp.StatusCode, backoff.Permanent(&BodyTooLargeError{Limit: g.config.MaxBodyBytes})
	}
	return body, resp.StatusCode, nil
}
