// Package client provides the resilient dashboard API client: failure
// classification, bounded retry with backoff, per-attempt timeouts, token
// lifecycle, and a mock execution mode behind the same contract.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Ghostified/autoexpress-dashboard/pkg/auth"
	"github.com/Ghostified/autoexpress-dashboard/pkg/requestid"
	"github.com/Ghostified/autoexpress-dashboard/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for dashboard API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_api_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_api_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_api_errors_total",
		Help: "Total API errors by kind",
	}, []string{"kind"})

	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_api_retries_total",
		Help: "Total retry attempts by error kind",
	}, []string{"kind"})

	apiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// DefaultRequestTimeout bounds a single attempt.
const DefaultRequestTimeout = 30 * time.Second

// Config holds the client configuration.
type Config struct {
	// BaseURL is the backend address. Empty or MockBaseURL selects mock mode.
	BaseURL string

	// TenantID is sent on every request as the X-Tenant-ID header (REQUIRED).
	TenantID string

	// Mode forces the transport mode. Empty resolves it from the persisted
	// mock-mode flag and the base address.
	Mode TransportMode

	// Store is the durable key-value storage for client state (REQUIRED).
	Store storage.Store

	// Tokens is the token store. Built from Store when nil.
	Tokens *auth.TokenStore

	// Router answers requests in mock mode. Required when the mode resolves
	// to ModeMock.
	Router Router

	// HTTPClient is the underlying transport for live mode.
	HTTPClient *http.Client

	// RequestTimeout bounds a single attempt. Defaults to 30s.
	RequestTimeout time.Duration

	// Retry is the retry policy. Zero value uses DefaultRetryPolicy.
	Retry RetryPolicy
}

// DefaultConfig returns a safe default configuration for a live backend.
func DefaultConfig(baseURL, tenantID string, store storage.Store) Config {
	return Config{
		BaseURL:        baseURL,
		TenantID:       tenantID,
		Store:          store,
		RequestTimeout: DefaultRequestTimeout,
		Retry:          DefaultRetryPolicy(),
	}
}

// Client is the dashboard API client. A single instance is safe for
// concurrent use; its transport mode is fixed for the instance's lifetime.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tenantID   string
	mode       TransportMode
	router     Router
	store      storage.Store
	tokens     *auth.TokenStore
	classifier *ErrorClassifier
	retry      RetryPolicy
	ids        *requestid.Generator
	timeout    time.Duration
	logger     zerolog.Logger

	authMu       sync.Mutex
	authRequired []func()

	// sleep suspends between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new dashboard API client. The transport mode is resolved
// exactly once here and never re-queried mid-session.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	logger := log.With().Str("component", "api-client").Logger()

	tokens := cfg.Tokens
	if tokens == nil {
		var err error
		tokens, err = auth.NewTokenStore(ctx, cfg.Store, logger)
		if err != nil {
			return nil, fmt.Errorf("token store: %w", err)
		}
	}

	mode := resolveMode(ctx, cfg)
	if mode == ModeMock && cfg.Router == nil {
		return nil, fmt.Errorf("mock mode requires a router")
	}
	logger.Info().Str("mode", string(mode)).Msg("Transport mode resolved")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = DefaultRetryPolicy()
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tenantID:   cfg.TenantID,
		mode:       mode,
		router:     cfg.Router,
		store:      cfg.Store,
		tokens:     tokens,
		retry:      retry,
		ids:        requestid.NewGenerator(),
		timeout:    timeout,
		logger:     logger,
		sleep:      sleepCtx,
	}
	c.classifier = NewErrorClassifier(tokens, c.notifyAuthRequired, logger)

	return c, nil
}

// resolveMode picks the transport mode from, in order: explicit config, the
// persisted mock-mode flag, and the sentinel base address.
func resolveMode(ctx context.Context, cfg Config) TransportMode {
	if cfg.Mode != "" {
		return cfg.Mode
	}

	if flag, err := cfg.Store.Get(ctx, storage.KeyMockMode); err == nil && flag == "true" {
		return ModeMock
	}

	if cfg.BaseURL == "" || cfg.BaseURL == MockBaseURL {
		return ModeMock
	}

	return ModeLive
}

// Mode returns the resolved transport mode.
func (c *Client) Mode() TransportMode {
	return c.mode
}

// Tokens returns the token store owned by this client.
func (c *Client) Tokens() *auth.TokenStore {
	return c.tokens
}

// OnAuthRequired registers a callback fired whenever an attempt is
// classified as AUTH_ERROR. Callbacks are scoped to this instance.
func (c *Client) OnAuthRequired(fn func()) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.authRequired = append(c.authRequired, fn)
}

func (c *Client) notifyAuthRequired() {
	c.authMu.Lock()
	callbacks := append([]func(){}, c.authRequired...)
	c.authMu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Request executes a logical call: attempt, classify failures, retry per
// policy, and normalize the terminal result. Retries of the same logical
// call are strictly ordered; the returned error is always an *ErrorRecord.
func (c *Client) Request(ctx context.Context, d RequestDescriptor) (*ResponseEnvelope, error) {
	for {
		correlationID := c.ids.Next()

		env, rec := c.attempt(ctx, d, correlationID)
		if rec == nil {
			if d.Attempt > 0 {
				c.logger.Info().
					Str("correlation_id", correlationID).
					Str("endpoint", d.Endpoint).
					Int("attempt", d.Attempt).
					Msg("Request succeeded after retry")
			}
			return env, nil
		}

		if d.Retryable && c.retry.ShouldRetry(rec.Kind, d.Attempt) {
			delay := c.retry.DelayFor(d.Attempt + 1)

			apiRetriesTotal.WithLabelValues(string(rec.Kind)).Inc()
			apiRetryBackoffSeconds.WithLabelValues(string(rec.Kind)).Observe(delay.Seconds())

			c.logger.Warn().
				Str("correlation_id", rec.CorrelationID).
				Str("endpoint", d.Endpoint).
				Str("kind", string(rec.Kind)).
				Int("attempt", d.Attempt).
				Dur("backoff", delay).
				Msg("Retrying request after backoff")

			if err := c.sleep(ctx, delay); err != nil {
				c.logger.Warn().
					Str("correlation_id", rec.CorrelationID).
					Str("endpoint", d.Endpoint).
					Msg("Context cancelled during retry backoff")
				return nil, rec
			}

			d = d.nextAttempt()
			continue
		}

		if d.Retryable && d.Attempt >= c.retry.MaxRetries {
			apiRetryExhaustedTotal.WithLabelValues(string(rec.Kind)).Inc()
		}
		apiErrorsTotal.WithLabelValues(string(rec.Kind)).Inc()

		c.logger.Error().
			Str("correlation_id", rec.CorrelationID).
			Str("endpoint", d.Endpoint).
			Str("kind", string(rec.Kind)).
			Int("attempt", d.Attempt).
			Msg("Request failed terminally")

		return nil, rec
	}
}

// attempt executes exactly one attempt and normalizes its outcome.
func (c *Client) attempt(ctx context.Context, d RequestDescriptor, correlationID string) (*ResponseEnvelope, *ErrorRecord) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(d.Endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("correlation_id", correlationID).
		Str("method", d.Method).
		Str("endpoint", d.Endpoint).
		Int("attempt", d.Attempt).
		Msg("Executing request")

	if c.mode == ModeMock {
		return c.attemptMock(ctx, d, correlationID)
	}
	return c.attemptLive(ctx, d, correlationID)
}

// attemptMock delegates to the router. Mock responses are never classified
// as failures.
func (c *Client) attemptMock(ctx context.Context, d RequestDescriptor, correlationID string) (*ResponseEnvelope, *ErrorRecord) {
	env, err := c.router.Route(ctx, d.Method, d.Endpoint, d.Body)
	if err != nil {
		return nil, &ErrorRecord{
			Kind:          KindUnknownError,
			Message:       "mock route failed",
			CorrelationID: correlationID,
			Cause:         err,
		}
	}

	apiRequestsTotal.WithLabelValues(d.Endpoint, "mock").Inc()
	return env, nil
}

func (c *Client) attemptLive(ctx context.Context, d RequestDescriptor, correlationID string) (*ResponseEnvelope, *ErrorRecord) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if d.Body != nil {
		encoded, err := json.Marshal(d.Body)
		if err != nil {
			return nil, &ErrorRecord{
				Kind:          KindUnknownError,
				Message:       "request body encode failed",
				CorrelationID: correlationID,
				Cause:         err,
			}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(attemptCtx, d.Method, c.baseURL+d.Endpoint, bodyReader)
	if err != nil {
		return nil, &ErrorRecord{
			Kind:          KindUnknownError,
			Message:       "request build failed",
			CorrelationID: correlationID,
			Cause:         err,
		}
	}
	c.applyHeaders(req, d, correlationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := c.classifier.Classify(ctx, 0, err)
		apiRequestsTotal.WithLabelValues(d.Endpoint, "transport_error").Inc()
		return nil, &ErrorRecord{
			Kind:          kind,
			Message:       transportMessage(kind),
			CorrelationID: correlationID,
			Cause:         err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := c.classifier.Classify(ctx, 0, err)
		return nil, &ErrorRecord{
			Kind:          kind,
			Message:       "response body read failed",
			CorrelationID: correlationID,
			Cause:         err,
		}
	}

	apiRequestsTotal.WithLabelValues(d.Endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := c.classifier.Classify(ctx, resp.StatusCode, nil)
		return nil, &ErrorRecord{
			Kind:          kind,
			HTTPStatus:    resp.StatusCode,
			Message:       errorMessage(resp.StatusCode, body),
			CorrelationID: correlationID,
		}
	}

	env, decodeErr := decodeBody(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	if decodeErr != nil {
		kind := c.classifier.Classify(ctx, 0, decodeErr)
		return nil, &ErrorRecord{
			Kind:          kind,
			HTTPStatus:    resp.StatusCode,
			Message:       "response body decode failed",
			CorrelationID: correlationID,
			Cause:         decodeErr,
		}
	}

	return env, nil
}

// applyHeaders merges default headers under caller-supplied ones and
// attaches the bearer credential when a token is held.
func (c *Client) applyHeaders(req *http.Request, d RequestDescriptor, correlationID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)
	req.Header.Set("X-Correlation-ID", correlationID)

	if token, ok := c.tokens.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for key, value := range d.Headers {
		req.Header.Set(key, value)
	}
}

// decodeBody decodes a successful response per its declared content kind.
func decodeBody(status int, contentType string, body []byte) (*ResponseEnvelope, error) {
	switch {
	case strings.HasPrefix(contentType, "application/json"), contentType == "":
		if len(body) == 0 {
			body = []byte("{}")
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: invalid JSON", ErrParse)
		}
		return &ResponseEnvelope{Kind: ContentJSON, Status: status, JSON: body}, nil
	case strings.HasPrefix(contentType, "text/"):
		return &ResponseEnvelope{Kind: ContentText, Status: status, Text: string(body)}, nil
	default:
		return &ResponseEnvelope{Kind: ContentBinary, Status: status, Binary: body}, nil
	}
}

// apiErrorBody is the optional structured error body returned by the backend.
type apiErrorBody struct {
	Message string `json:"message"`
	Details string `json:"details"`
}

// errorMessage extracts a message from a structured error body, falling back
// to the status's default text.
func errorMessage(status int, body []byte) string {
	var parsed apiErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		if parsed.Details != "" {
			return parsed.Message + ": " + parsed.Details
		}
		return parsed.Message
	}
	return http.StatusText(status)
}

func transportMessage(kind ErrorKind) string {
	switch kind {
	case KindTimeout:
		return "request deadline exceeded"
	case KindNetworkError:
		return "network failure"
	default:
		return "request failed"
	}
}

// sleepCtx suspends for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get performs a retryable GET request.
func (c *Client) Get(ctx context.Context, endpoint string) (*ResponseEnvelope, error) {
	return c.Request(ctx, RequestDescriptor{
		Endpoint:  endpoint,
		Method:    http.MethodGet,
		Retryable: true,
	})
}

// Post performs a retryable POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (*ResponseEnvelope, error) {
	return c.Request(ctx, RequestDescriptor{
		Endpoint:  endpoint,
		Method:    http.MethodPost,
		Body:      body,
		Retryable: true,
	})
}

// Put performs a retryable PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body any) (*ResponseEnvelope, error) {
	return c.Request(ctx, RequestDescriptor{
		Endpoint:  endpoint,
		Method:    http.MethodPut,
		Body:      body,
		Retryable: true,
	})
}

// Patch performs a retryable PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, endpoint string, body any) (*ResponseEnvelope, error) {
	return c.Request(ctx, RequestDescriptor{
		Endpoint:  endpoint,
		Method:    http.MethodPatch,
		Body:      body,
		Retryable: true,
	})
}

// Delete performs a retryable DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string) (*ResponseEnvelope, error) {
	return c.Request(ctx, RequestDescriptor{
		Endpoint:  endpoint,
		Method:    http.MethodDelete,
		Retryable: true,
	})
}

