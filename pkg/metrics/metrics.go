// Package metrics exposes the Prometheus metrics of the Lizard client.
// All metrics are defined in their respective packages (client, pagination,
// parser, connector, checkpoint, ratelimit) to keep them next to the code
// that records them and to avoid circular dependencies.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the Lizard client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer serves the metrics registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Paths served by Router.
const (
	MetricsPath = "/metrics"
	HealthPath  = "/health"
)

// Router returns a handler serving MetricsPath and HealthPath.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler)

	r.Handle(MetricsPath, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return r
}

// Server serves Router on an address until its context ends.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Serve starts serving metrics on addr, e.g. ":9090". The server shuts down
// when ctx is cancelled or Shutdown is called.
func Serve(ctx context.Context, addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
	}

	logger := log.With().Str("component", "metrics").Logger()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server and waits for it to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - lizard_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - lizard_request_duration_seconds{endpoint} (Histogram): Request duration including retries
//   - lizard_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - lizard_retries_total{error_class} (Counter): Retry attempts by error class
//   - lizard_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - lizard_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Throttle Metrics (pkg/ratelimit):
//   - lizard_throttle_responses_total (Counter): HTTP 429 responses recorded
//   - lizard_throttle_waits_total (Counter): Requests delayed by a server requested back-off
//   - lizard_throttle_wait_seconds (Histogram): Time spent waiting before sending a request
//
// Pagination Metrics (pkg/pagination):
//   - lizard_pages_fetched_total{endpoint} (Counter): Pages fetched
//   - lizard_page_results{endpoint} (Histogram): Results per page
//   - lizard_pagination_cycles_total{endpoint} (Counter): Next links pointing to a visited page
//
// Parser Metrics (pkg/parser):
//   - lizard_records_parsed_total{kind} (Counter): Records decoded
//   - lizard_records_skipped_total{kind} (Counter): Malformed records skipped
//
// Download Metrics (pkg/connector):
//   - lizard_downloads_total{endpoint, result} (Counter): Downloads by result (success, error, cancelled, invalid)
//   - lizard_download_duration_seconds{endpoint} (Histogram): Whole download duration
//
// Checkpoint Metrics (pkg/checkpoint):
//   - lizard_checkpoint_operations_total{store, operation, result} (Counter): Store operations
//   - lizard_checkpoint_errors_total{store, operation} (Counter): Store errors
//
// Example Prometheus Queries:
//
//   # Skipped record ratio
//   sum(rate(lizard_records_skipped_total[5m])) /
//   (sum(rate(lizard_records_parsed_total[5m])) + sum(rate(lizard_records_skipped_total[5m])))
//
//   # Failed downloads
//   rate(lizard_downloads_total{result="error"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(lizard_request_duration_seconds_bucket[5m]))
//
//   # Server throttling
//   rate(lizard_throttle_responses_total[5m])
