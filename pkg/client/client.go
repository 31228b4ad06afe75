// Package client provides the core Lizard HTTP client with throttling,
// retries, authentication and error handling.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/lizard-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Lizard client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lizard_requests_total",
		Help: "Total Lizard requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lizard_request_duration_seconds",
		Help:    "Lizard request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lizard_errors_total",
		Help: "Total Lizard errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public Lizard demo API.
const DefaultBaseURL = "https://demo.lizard.net/api/v3/"

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 throttling responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Response is a fully read successful response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Client is the Lizard HTTP client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	throttle   *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://demo.lizard.net/api/v3/".
	BaseURL string

	// User-Agent header sent with every request.
	UserAgent string

	// Timeout applies to each individual HTTP call, never to a whole download.
	Timeout time.Duration

	// Retry policy for 5xx and transport failures.
	Retry RetryConfig

	// Throttling
	RequestsPerSecond float64
	Burst             int

	// Redis optionally shares throttle state between processes.
	Redis *redis.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	throttle := ratelimit.DefaultConfig()
	return Config{
		BaseURL:           DefaultBaseURL,
		UserAgent:         userAgent,
		Timeout:           60 * time.Second,
		Retry:             DefaultRetryConfig(),
		RequestsPerSecond: throttle.RequestsPerSecond,
		Burst:             throttle.Burst,
	}
}

// New creates a new Lizard client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests per second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	logger := log.With().Str("component", "lizard-client").Logger()

	throttle := ratelimit.NewTracker(cfg.Redis, ratelimit.Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		DefaultRetryAfter: ratelimit.DefaultRetryAfter,
	}, log.With().Str("component", "ratelimit").Logger())

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  base,
		throttle: throttle,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Resolve turns a path relative to the base URL into an absolute URL.
// Absolute inputs are returned unchanged.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return ref, nil
	}
	return c.baseURL.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(u.Path, "/"),
		RawQuery: u.RawQuery,
	}).String(), nil
}

// Get fetches rawURL, retrying server and transport failures with backoff.
// A 4xx response yields *ClientRequestError, exhausted retries yield
// *TransientFetchError.
func (c *Client) Get(ctx context.Context, rawURL string, creds Credentials) (*Response, error) {
	if creds == nil {
		creds = NoAuth{}
	}
	endpoint := EndpointFromContext(ctx)
	requestID := RequestIDFromContext(ctx)

	logger := c.logger.With().
		Str("endpoint", endpoint).
		Str("url", rawURL).
		Logger()
	if requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var (
		result     *Response
		lastStatus int
		lastClass  ErrorClass
		attempts   int
	)

	retryErr := retryWithBackoff(ctx, c.config.Retry, logger, func(attempt int) (ErrorClass, error) {
		attempts = attempt

		if err := c.throttle.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")
		if requestID != "" {
			req.Header.Set("X-Request-ID", requestID)
		}
		creds.Apply(req)

		logger.Debug().
			Int("attempt", attempt).
			Msg("Executing Lizard request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			}
			lastStatus = 0
			lastClass = c.classifyError(nil, err)
			errorsTotal.WithLabelValues(string(lastClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			logger.Warn().Err(err).Int("attempt", attempt).Msg("HTTP request failed")
			return lastClass, &APIError{ErrorClass: lastClass, Message: "transport failure", Err: err}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if err := c.throttle.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update throttle state")
		}

		lastStatus = resp.StatusCode
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if readErr != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			}
			lastClass = ErrorClassNetwork
			errorsTotal.WithLabelValues(string(lastClass)).Inc()
			return lastClass, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: lastClass,
				Message:    "read response body",
				Err:        readErr,
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastClass = c.classifyError(resp, nil)
			errorsTotal.WithLabelValues(string(lastClass)).Inc()

			logger.Warn().
				Int("status", resp.StatusCode).
				Str("error_class", string(lastClass)).
				Int("attempt", attempt).
				Msg("Lizard request error")

			if shouldRetry(lastClass) {
				return lastClass, &APIError{
					StatusCode: resp.StatusCode,
					ErrorClass: lastClass,
					Message:    resp.Status,
				}
			}

			return lastClass, &ClientRequestError{
				URL:        rawURL,
				StatusCode: resp.StatusCode,
				Body:       body,
			}
		}

		result = &Response{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
			Attempts:   attempt,
		}
		return "", nil
	})

	if retryErr != nil {
		if errors.Is(retryErr, ErrRetryExhausted) {
			return nil, &TransientFetchError{
				URL:        rawURL,
				StatusCode: lastStatus,
				Attempts:   attempts,
				ErrorClass: lastClass,
				Err:        retryErr,
			}
		}
		return nil, retryErr
	}

	return result, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		// 4xx, and anything else that is not a success, is the caller's problem
		return ErrorClassClient
	}
}

// Throttle returns the request gate shared by all calls on this client.
func (c *Client) Throttle() *ratelimit.Tracker {
	return c.throttle
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
