package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"order-saga-client/internal/apierr"
	"order-saga-client/internal/config"
	"order-saga-client/internal/utils"
)

// Request headers
const (
	IdempotencyHeader = "Idempotency-Key"
	RequestIDHeader   = "X-Request-Id"
)

// TokenSource supplies bearer tokens for outgoing requests
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Client is the transport adapter for the order backend. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	metrics    *utils.Metrics
	logger     *utils.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithTokenSource adds an Authorization header to every request
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger
func WithLogger(l *utils.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *utils.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTransport replaces the HTTP round tripper, keeping the configured timeout
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.API.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.API.Timeout,
		},
		metrics: utils.NewMetrics(),
		logger:  utils.NewNopLogger(),
	}
	if cfg.API.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.API.RequestsPerSecond), max(cfg.API.Burst, 1))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metrics returns the client's metrics sink
func (c *Client) Metrics() *utils.Metrics {
	return c.metrics
}

// request describes one backend call. route is the metrics label.
type request struct {
	method string
	route  string
	path   string
	query  url.Values
	body   interface{}
	header http.Header
}

// Response is a successful (status < 400) backend response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// do executes a single HTTP request. A missing response yields
// *apierr.UnreachableError and a status >= 400 yields *apierr.ResponseError.
func (c *Client) do(ctx context.Context, r request) (*Response, error) {
	start := time.Now()
	resp, err := c.execute(ctx, r)
	c.metrics.RecordAPICall(r.route, err == nil, time.Since(start))
	if err != nil {
		c.logger.Warn("Request failed", map[string]interface{}{
			"route": r.route,
			"path":  r.path,
			"error": err.Error(),
		})
	}
	return resp, err
}

func (c *Client) execute(ctx context.Context, r request) (*Response, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var reqBody io.Reader
	if r.body != nil {
		jsonData, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if c.tokens != nil {
		token, err := c.tokens.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("Sending request", map[string]interface{}{
		"method":    r.method,
		"path":      r.path,
		"requestId": req.Header.Get(RequestIDHeader),
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, &apierr.UnreachableError{Path: r.path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierr.UnreachableError{Path: r.path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &apierr.ResponseError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       respBody,
			Path:       r.path,
		}
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// decode unmarshals a successful response body into target
func decode(resp *Response, target interface{}) error {
	if err := json.Unmarshal(resp.Body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
