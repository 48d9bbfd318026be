// Package backend is the client of the call-center backend API: unit
// verification, CNES and municipio lookups, username availability, record
// listings and form submissions.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/form"
	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// Client calls the backend with per-client circuit breaking, retries for
// idempotent requests, trace propagation and metrics. It is safe for
// concurrent use.
type Client struct {
	cfg     config.BackendConfig
	baseURL string
	http    *http.Client
	breaker *CircuitBreaker
	creds   CredentialsProvider
	metrics *observability.Metrics
	logger  *zap.Logger
	forms   *form.Encoder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCredentials sets the provider of forwarded credentials.
func WithCredentials(p CredentialsProvider) Option {
	return func(c *Client) { c.creds = p }
}

// WithMetrics records request metrics and the breaker state.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for cfg.
func New(cfg config.BackendConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: base url %q must be absolute", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		creds:   RequestCredentials{FallbackCSRFToken: cfg.CSRFToken},
		logger:  zap.NewNop(),
		forms:   newFormEncoder(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker.OnStateChange(func(s BreakerState) {
		c.metrics.SetBackendCircuitBreakerState(float64(s))
		c.logger.Warn("backend circuit breaker state changed", zap.Stringer("state", s))
	})
	return c, nil
}

// Ping reports whether the backend is reachable and the breaker is not open.
func (c *Client) Ping(ctx context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return ErrCircuitOpen
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend: ping: status %d", resp.StatusCode)
	}
	return nil
}

// request is one logical backend call.
type request struct {
	operation   string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

// response is a backend answer that arrived, whatever its status.
type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, req request) (response, error) {
	ctx, span := observability.StartBackendSpan(ctx, req.operation, req.method)
	resp, err := c.executeWithRetry(ctx, req)
	observability.FinishBackendSpan(span, resp.status, err)
	return resp, err
}

// executeWithRetry wraps executeOnce with exponential backoff. Only GET
// requests are retried.
func (c *Client) executeWithRetry(ctx context.Context, req request) (response, error) {
	maxAttempts := 1
	if req.method == http.MethodGet && c.cfg.Retry.MaxAttempts > 1 {
		maxAttempts = c.cfg.Retry.MaxAttempts
	}

	var lastErr error
	var lastResp response
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.RecordBackendRetry(req.operation)
			select {
			case <-ctx.Done():
				return response{}, model.NewBackendTimeoutError()
			case <-time.After(calculateBackoff(c.cfg.Retry, attempt)):
			}
		}

		resp, err := c.executeOnce(ctx, req)
		if err != nil {
			lastErr = err
			if !isRetryableError(err) {
				return response{}, err
			}
			c.logger.Debug("backend: retrying after error",
				zap.String("operation", req.operation),
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Error(err),
			)
			continue
		}
		if isRetryableStatus(resp.status) && attempt < maxAttempts-1 {
			lastErr, lastResp = nil, resp
			c.logger.Debug("backend: retrying after status",
				zap.String("operation", req.operation),
				zap.Int("attempt", attempt+1),
				zap.Int("status", resp.status),
			)
			continue
		}
		return resp, nil
	}
	if lastErr != nil {
		return response{}, lastErr
	}
	return lastResp, nil
}

// executeOnce performs a single HTTP request behind the circuit breaker.
func (c *Client) executeOnce(ctx context.Context, req request) (response, error) {
	done, err := c.breaker.Allow()
	if err != nil {
		return response{}, fmt.Errorf("%w: %w", model.NewBackendUnavailableError(), err)
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		done(true)
		return response{}, fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if c.creds != nil {
		c.creds.Credentials(ctx).apply(httpReq.Header)
	}
	observability.InjectTraceHeaders(ctx, httpReq.Header)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordBackendRequest(req.operation, 0, time.Since(start))
		done(false)
		switch {
		case ctx.Err() != nil, isTimeout(err):
			return response{}, model.NewBackendTimeoutError()
		case isConnectionError(err):
			return response{}, model.NewBackendUnavailableError()
		}
		return response{}, fmt.Errorf("backend: %s: %w", req.operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.RecordBackendRequest(req.operation, resp.StatusCode, time.Since(start))
	if err != nil {
		done(false)
		return response{}, fmt.Errorf("backend: %s: read response: %w", req.operation, err)
	}
	done(resp.StatusCode < http.StatusInternalServerError)
	return response{status: resp.StatusCode, body: data}, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isRetryableError reports whether err is a transport failure worth another
// attempt. An open breaker is not.
func isRetryableError(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return model.HasCode(err, model.ErrBackendUnavailable)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isConnectionError reports failures to reach the backend, including a
// connection it closed before answering.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			return cfg.BackoffMax
		}
	}
	return delay
}
