package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testConfig returns a configuration with fast retries and no pacing.
func testConfig(baseURL string) Config {
	cfg := DefaultConfig("lizard-client-test/1.0")
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	cfg.RequestsPerSecond = 0
	cfg.Retry = RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	return cfg
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(testConfig(baseURL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "empty base url falls back to default", mutate: func(c *Config) { c.BaseURL = "" }},
		{
			name:     "empty user agent",
			mutate:   func(c *Config) { c.UserAgent = "" },
			errorMsg: "user-agent is required",
		},
		{
			name:     "relative base url",
			mutate:   func(c *Config) { c.BaseURL = "api/v3" },
			errorMsg: "base url must be absolute",
		},
		{
			name:     "zero timeout",
			mutate:   func(c *Config) { c.Timeout = 0 },
			errorMsg: "timeout must be > 0",
		},
		{
			name:     "no attempts",
			mutate:   func(c *Config) { c.Retry.MaxAttempts = 0 },
			errorMsg: "retry max attempts must be >= 1",
		},
		{
			name:     "negative pacing",
			mutate:   func(c *Config) { c.RequestsPerSecond = -1 },
			errorMsg: "requests per second must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("TestApp/1.0.0")
			tt.mutate(&cfg)

			c, err := New(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("New() unexpected error = %v", err)
				}
				if c == nil {
					t.Fatal("New() returned nil client")
				}
				return
			}
			if err == nil {
				t.Fatalf("New() expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("New() error = %q, want substring %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	c := newTestClient(t, "https://demo.lizard.net/api/v3")

	tests := []struct {
		ref  string
		want string
	}{
		{"timeseries/", "https://demo.lizard.net/api/v3/timeseries/"},
		{"/rasters/", "https://demo.lizard.net/api/v3/rasters/"},
		{"timeseries/?page=2", "https://demo.lizard.net/api/v3/timeseries/?page=2"},
		{"https://other.example/x/", "https://other.example/x/"},
	}
	for _, tt := range tests {
		got, err := c.Resolve(tt.ref)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.ref, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestGet_Success(t *testing.T) {
	var gotUA, gotAccept, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":0,"results":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	ctx := WithRequestID(context.Background(), "req-123")

	resp, err := c.Get(ctx, server.URL+"/timeseries/", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"count":0,"results":[]}` {
		t.Errorf("Body = %s", resp.Body)
	}
	if resp.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", resp.Attempts)
	}
	if gotUA != "lizard-client-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotRequestID != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", gotRequestID)
	}
}

func TestGet_AppliesCredentials(t *testing.T) {
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("username")
		gotPass = r.Header.Get("password")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Get(context.Background(), server.URL, HeaderAuth{Username: "jane", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotUser != "jane" || gotPass != "s3cret" {
		t.Errorf("credentials = %q/%q, want jane/s3cret", gotUser, gotPass)
	}
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not found."}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Get(context.Background(), server.URL+"/timeseries/nope/", nil)

	var reqErr *ClientRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Get() error = %v, want *ClientRequestError", err)
	}
	if reqErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", reqErr.StatusCode)
	}
	if !strings.Contains(string(reqErr.Body), "Not found.") {
		t.Errorf("Body = %s", reqErr.Body)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestGet_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", resp.Attempts)
	}
}

func TestGet_ServerErrorExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Get(context.Background(), server.URL+"/page3", nil)

	var fetchErr *TransientFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Get() error = %v, want *TransientFetchError", err)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) = false")
	}
	if fetchErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", fetchErr.StatusCode)
	}
	if fetchErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", fetchErr.Attempts)
	}
	if fetchErr.ErrorClass != ErrorClassServer {
		t.Errorf("ErrorClass = %s, want server", fetchErr.ErrorClass)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestGet_NetworkErrorExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c := newTestClient(t, addr)
	_, err := c.Get(context.Background(), addr, nil)

	var fetchErr *TransientFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Get() error = %v, want *TransientFetchError", err)
	}
	if fetchErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %s, want network", fetchErr.ErrorClass)
	}
	if fetchErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", fetchErr.StatusCode)
	}
}

func TestGet_TimeoutIsPerCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := c.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 (first call timed out)", resp.Attempts)
	}
}

func TestGet_CancelDuringBackoff(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry.InitialBackoff = 5 * time.Second
	cfg.Retry.MaxBackoff = 5 * time.Second
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Get(ctx, server.URL, nil)
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("Get() error = %v, want ErrContextCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Get() returned after %v, backoff was not interrupted", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestGet_ThrottleResponse(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.Get(context.Background(), server.URL, nil)
	var reqErr *ClientRequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Get() error = %v, want 429 ClientRequestError", err)
	}

	state, err := c.Throttle().GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.NeedsBlock() {
		t.Fatal("throttle state does not block after 429")
	}

	start := time.Now()
	if _, err := c.Get(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("second Get() waited %v, want the Retry-After back-off", elapsed)
	}
}

func TestClassifyError(t *testing.T) {
	c := newTestClient(t, "http://localhost")

	tests := []struct {
		name     string
		status   int
		err      error
		expected ErrorClass
	}{
		{"network error", 0, errors.New("connection reset"), ErrorClassNetwork},
		{"not found", 404, nil, ErrorClassClient},
		{"bad request", 400, nil, ErrorClassClient},
		{"throttled", 429, nil, ErrorClassRateLimit},
		{"internal error", 500, nil, ErrorClassServer},
		{"unavailable", 503, nil, ErrorClassServer},
		{"unexpected redirect", 302, nil, ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = &http.Response{StatusCode: tt.status}
			}
			if got := c.classifyError(resp, tt.err); got != tt.expected {
				t.Errorf("classifyError() = %s, want %s", got, tt.expected)
			}
		})
	}
}
