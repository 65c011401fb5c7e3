// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
http.go - Shared REST transport

restClient builds vendor requests with a consistent configuration:
  - Authentication: per-vendor hook run on every attempt
  - Rate Limiting: shared x/time/rate limiter wait before each call
  - HTTP 429: retry with exponential backoff, honouring Retry-After
  - Errors: non-2xx responses become *ClientError with the vendor message
*/

package mediaclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/metrics"
)

const (
	maxRateLimitRetries = 5
	maxResponseBytes    = 16 << 20
)

// authFunc decorates an outgoing request with credentials.
type authFunc func(ctx context.Context, req *http.Request) error

// restClient is the HTTP plumbing shared by every adapter.
type restClient struct {
	vendor     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	auth       authFunc
	// retryBaseDelay is the first 429 backoff; later attempts double it.
	retryBaseDelay time.Duration
}

func newRESTClient(vendor, baseURL string, deps Deps, auth authFunc) *restClient {
	return &restClient{
		vendor:         vendor,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     deps.HTTPClient,
		limiter:        deps.Limiter,
		auth:           auth,
		retryBaseDelay: time.Second,
	}
}

// withBase returns a copy pointed at another base URL, sharing everything else.
func (c *restClient) withBase(baseURL string, auth authFunc) *restClient {
	cp := *c
	cp.baseURL = strings.TrimSuffix(baseURL, "/")
	if auth != nil {
		cp.auth = auth
	}
	return &cp
}

// requestConfig holds configuration for building HTTP requests
type requestConfig struct {
	op     string
	method string
	path   string
	query  url.Values
	// body is JSON encoded unless form is set.
	body    any
	form    url.Values
	headers map[string]string
	// okStatus lists accepted statuses; empty accepts any 2xx.
	okStatus []int
}

// do executes cfg and decodes a JSON response into result when non-nil.
func (c *restClient) do(ctx context.Context, cfg requestConfig, result any) error {
	body, _, err := c.doRaw(ctx, cfg)
	if err != nil {
		return err
	}
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return &ClientError{Vendor: c.vendor, Op: cfg.op, Message: "decode response", Err: err}
	}
	return nil
}

// get is a convenience wrapper for JSON GET requests.
func (c *restClient) get(ctx context.Context, op, path string, query url.Values, result any) error {
	return c.do(ctx, requestConfig{op: op, method: http.MethodGet, path: path, query: query}, result)
}

// send is a convenience wrapper for JSON requests with a body.
func (c *restClient) send(ctx context.Context, op, method, path string, body, result any) error {
	return c.do(ctx, requestConfig{op: op, method: method, path: path, body: body}, result)
}

// doRaw executes cfg and returns the response body.
func (c *restClient) doRaw(ctx context.Context, cfg requestConfig) ([]byte, http.Header, error) {
	req, err := c.buildRequest(ctx, cfg)
	if err != nil {
		return nil, nil, &ClientError{Vendor: c.vendor, Op: cfg.op, Message: "create request", Err: err}
	}

	start := time.Now()
	resp, err := c.doRequestWithRateLimit(req)
	if err != nil {
		metrics.RecordMediaRequest(c.vendor, cfg.method, 0, time.Since(start))
		return nil, nil, &ClientError{Vendor: c.vendor, Op: cfg.op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordMediaRequest(c.vendor, cfg.method, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, &ClientError{Vendor: c.vendor, Op: cfg.op, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if !statusAccepted(resp.StatusCode, cfg.okStatus) {
		return nil, resp.Header, &ClientError{
			Vendor:     c.vendor,
			Op:         cfg.op,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(c.vendor, body),
		}
	}
	return body, resp.Header, nil
}

func (c *restClient) buildRequest(ctx context.Context, cfg requestConfig) (*http.Request, error) {
	reqURL := c.baseURL + cfg.path
	if len(cfg.query) > 0 {
		reqURL += "?" + cfg.query.Encode()
	}

	var (
		body        io.Reader = http.NoBody
		contentType string
	)
	switch {
	case cfg.form != nil:
		body = strings.NewReader(cfg.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case cfg.body != nil:
		encoded, err := json.Marshal(cfg.body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	method := cfg.method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range cfg.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// doRequestWithRateLimit executes req with automatic retry on HTTP 429.
//
// Backoff doubles from retryBaseDelay (1s, 2s, 4s, 8s, 16s by default) unless
// the server sends Retry-After in seconds. The body is re-created from
// req.GetBody on every retry.
func (c *restClient) doRequestWithRateLimit(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		attemptReq := req
		if attempt > 0 {
			attemptReq = req.Clone(ctx)
			if req.GetBody != nil {
				b, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind body: %w", err)
				}
				attemptReq.Body = b
			}
		}
		if c.auth != nil {
			if err := c.auth(ctx, attemptReq); err != nil {
				return nil, fmt.Errorf("authenticate: %w", err)
			}
		}

		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		metrics.MediaRateLimited.WithLabelValues(c.vendor).Inc()

		if attempt == maxRateLimitRetries {
			return nil, fmt.Errorf("rate limit exceeded after %d retries", maxRateLimitRetries)
		}

		retryDelay := c.retryBaseDelay * (1 << attempt)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(strings.TrimSpace(ra)); err == nil && seconds >= 0 {
				retryDelay = time.Duration(seconds) * time.Second
			}
		}

		logging.Ctx(ctx).Warn().
			Str("vendor", c.vendor).
			Dur("retry_delay", retryDelay).
			Int("attempt", attempt+1).
			Int("max_retries", maxRateLimitRetries).
			Msg("Media server rate limited (HTTP 429), retrying")

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("unreachable code: retry loop should return or error")
}

func statusAccepted(code int, ok []int) bool {
	if len(ok) == 0 {
		return code >= 200 && code < 300
	}
	for _, s := range ok {
		if s == code {
			return true
		}
	}
	return false
}

// staticHeader returns an authFunc that sets one header.
func staticHeader(name, value string) authFunc {
	return func(_ context.Context, req *http.Request) error {
		req.Header.Set(name, value)
		return nil
	}
}

// bearer returns an authFunc for a fixed bearer token.
func bearer(token string) authFunc {
	return staticHeader("Authorization", "Bearer "+token)
}
