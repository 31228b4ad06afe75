// Package testutil provides testing utilities for the Lizard client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

type pageKey struct {
	path string
	page int
}

type failure struct {
	status    int
	remaining int // negative means forever
}

// MockLizard is a configurable mock Lizard API server for testing.
type MockLizard struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	pages    map[string][][]any
	failures map[pageKey]*failure
	pageHits map[pageKey]int

	// RelativeNext makes paged responses use path-only next links.
	RelativeNext bool

	// Tracking
	RequestCount      int
	Requests          []string
	LastRequestHeader http.Header
}

// NewMockLizard creates a new mock Lizard server.
func NewMockLizard() *MockLizard {
	mock := &MockLizard{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pages:    make(map[string][][]any),
		failures: make(map[pageKey]*failure),
		pageHits: make(map[pageKey]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, r.URL.RequestURI())
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		_, paged := mock.pages[r.URL.Path]
		mock.mu.Unlock()

		switch {
		case exists:
			handler(w, r)
		case paged:
			mock.pagedHandler(w, r)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Not found."}`))
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockLizard) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockLizard) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockLizard) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
	m.LastRequestHeader = nil
	m.pageHits = make(map[pageKey]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockLizard) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockLizard) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPages serves results at path as a paginated list, one slice per page.
// Pages are addressed with the "page" query parameter starting at 1.
func (m *MockLizard) SetPages(path string, pages ...[]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = pages
}

// FailPage makes page of path answer with status for the next times
// requests. A negative times fails forever.
func (m *MockLizard) FailPage(path string, page, status, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[pageKey{path, page}] = &failure{status: status, remaining: times}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockLizard) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequests returns the request URIs seen so far in order.
func (m *MockLizard) GetRequests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// PageHits returns how often a page of path was requested.
func (m *MockLizard) PageHits(path string, page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageHits[pageKey{path, page}]
}

func (m *MockLizard) pagedHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, `{"detail":"Invalid page."}`, http.StatusNotFound)
			return
		}
		page = n
	}

	key := pageKey{r.URL.Path, page}

	m.mu.Lock()
	m.pageHits[key]++
	pages := m.pages[r.URL.Path]
	if f, ok := m.failures[key]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		status := f.status
		m.mu.Unlock()
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"detail":"injected failure %d"}`, status)
		return
	}
	relative := m.RelativeNext
	m.mu.Unlock()

	if page > len(pages) && !(page == 1 && len(pages) == 0) {
		http.Error(w, `{"detail":"Invalid page."}`, http.StatusNotFound)
		return
	}

	total := 0
	for _, p := range pages {
		total += len(p)
	}

	results := []any{}
	if len(pages) > 0 {
		results = pages[page-1]
	}

	link := func(n int) any {
		if n < 1 || n > len(pages) {
			return nil
		}
		if relative {
			return fmt.Sprintf("%s?page=%d", r.URL.Path, n)
		}
		return fmt.Sprintf("%s%s?page=%d", m.server.URL, r.URL.Path, n)
	}

	body := map[string]any{
		"count":    total,
		"next":     link(page + 1),
		"previous": link(page - 1),
		"results":  results,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// Events builds n time series events one hour apart starting at offset
// hours after 2024-01-01T00:00:00Z.
func Events(n, offset int) []any {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make([]any, n)
	for i := range events {
		at := start.Add(time.Duration(offset+i) * time.Hour)
		events[i] = map[string]any{
			"time":  at.Format(time.RFC3339),
			"value": float64(offset+i) * 0.5,
			"flag":  nil,
		}
	}
	return events
}
