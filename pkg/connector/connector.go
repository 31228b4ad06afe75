// Package connector downloads Lizard resources: it merges filters into a
// query, walks the paginated response and decodes every page into records.
package connector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/lizard-client/pkg/checkpoint"
	"github.com/Sternrassler/lizard-client/pkg/client"
	"github.com/Sternrassler/lizard-client/pkg/endpoint"
	"github.com/Sternrassler/lizard-client/pkg/pagination"
	"github.com/Sternrassler/lizard-client/pkg/parser"
	"github.com/Sternrassler/lizard-client/pkg/query"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for downloads.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lizard_downloads_total",
		Help: "Total downloads by endpoint and result",
	}, []string{"endpoint", "result"})

	downloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lizard_download_duration_seconds",
		Help:    "Download duration in seconds by endpoint",
		Buckets: []float64{0.5, 1, 5, 15, 60, 300, 1800},
	}, []string{"endpoint"})
)

// FormatKey and FormatJSON are sent with every first request.
const (
	FormatKey  = "format"
	FormatJSON = "json"
)

// Config holds the connector configuration.
type Config struct {
	// Credentials are applied to every request. Nil means anonymous.
	Credentials client.Credentials

	// Principal scopes checkpoints to a user, e.g. the user name.
	Principal string

	// Registry resolves endpoint names. Nil means endpoint.Default().
	Registry *endpoint.Registry

	// Checkpoints enables Resume. Nil disables checkpointing.
	Checkpoints checkpoint.Store

	Pagination pagination.Config

	// Async task polling
	AsyncPollInterval time.Duration
	AsyncPollGrowth   float64
	AsyncPollMax      time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Credentials:       client.NoAuth{},
		Pagination:        pagination.DefaultConfig(),
		AsyncPollInterval: 1 * time.Second,
		AsyncPollGrowth:   1.5,
		AsyncPollMax:      30 * time.Second,
	}
}

// Connector downloads resources through a shared client. It holds no
// per-download state and is safe for concurrent use.
type Connector struct {
	client  *client.Client
	fetcher *pagination.Fetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a connector.
func New(c *client.Client, cfg Config) (*Connector, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Credentials == nil {
		cfg.Credentials = client.NoAuth{}
	}
	if cfg.Registry == nil {
		cfg.Registry = endpoint.Default()
	}
	if cfg.AsyncPollInterval <= 0 {
		return nil, fmt.Errorf("async poll interval must be > 0 (got %s)", cfg.AsyncPollInterval)
	}
	if cfg.AsyncPollGrowth < 1 {
		return nil, fmt.Errorf("async poll growth must be >= 1 (got %v)", cfg.AsyncPollGrowth)
	}
	if cfg.AsyncPollMax < cfg.AsyncPollInterval {
		cfg.AsyncPollMax = cfg.AsyncPollInterval
	}

	return &Connector{
		client:  c,
		fetcher: pagination.NewFetcher(c, cfg.Pagination),
		config:  cfg,
		logger:  log.With().Str("component", "connector").Logger(),
	}, nil
}

// Registry returns the endpoint registry in use.
func (c *Connector) Registry() *endpoint.Registry {
	return c.config.Registry
}

// Result is a fully materialized download.
type Result struct {
	Endpoint  string
	RequestID string

	// Records in page-arrival order.
	Records []parser.Record

	// Count is the total the server reported on the first page.
	Count int

	Pages       int
	Skipped     int
	ParseErrors []*parser.RecordParseError

	// ResumedFrom is set when the download continued from a checkpoint.
	ResumedFrom *checkpoint.Checkpoint
}

// plan is a prepared download: everything known before the first request.
type plan struct {
	endpoint endpoint.Endpoint
	baseURL  string
	params   *query.Params
	key      checkpoint.Key
}

// prepare resolves the endpoint and merges descriptors without network activity.
func (c *Connector) prepare(name string, descriptors []query.Descriptor) (*plan, error) {
	ep, err := c.config.Registry.Get(name)
	if err != nil {
		return nil, err
	}

	params, err := query.Merge(ep.MergeOptions(), ep.WithDefaults(descriptors)...)
	if err != nil {
		return nil, err
	}
	if err := params.SetDefault(query.PageSizeKey, strconv.Itoa(ep.PageSize)); err != nil {
		return nil, err
	}
	if err := params.SetDefault(FormatKey, FormatJSON); err != nil {
		return nil, err
	}

	var id string
	if ep.Detail {
		id, _ = params.Del("uuid")
	}
	path, err := ep.ResourcePath(id)
	if err != nil {
		return nil, err
	}
	baseURL, err := c.client.Resolve(path)
	if err != nil {
		return nil, err
	}

	return &plan{
		endpoint: ep,
		baseURL:  baseURL,
		params:   params,
		key: checkpoint.Key{
			Endpoint:  ep.Name,
			Path:      path,
			Params:    params.Map(),
			Principal: c.config.Principal,
		},
	}, nil
}

// downloadContext tags ctx with the endpoint and a request id.
func downloadContext(ctx context.Context, name string) (context.Context, string) {
	ctx = client.WithEndpoint(ctx, name)
	id := client.RequestIDFromContext(ctx)
	if id == "" {
		id = uuid.New().String()
		ctx = client.WithRequestID(ctx, id)
	}
	return ctx, id
}

// Stream starts a lazy download. Filter and endpoint errors are returned
// before any request is made. Records are fetched page by page as the
// stream is consumed.
func (c *Connector) Stream(ctx context.Context, name string, descriptors ...query.Descriptor) (*Stream, error) {
	ctx, requestID := downloadContext(ctx, name)

	p, err := c.prepare(name, descriptors)
	if err != nil {
		downloadsTotal.WithLabelValues(name, "invalid").Inc()
		return nil, &DownloadError{Stage: StageQuery, Endpoint: name, RequestID: requestID, Err: err}
	}

	pager := c.fetcher.Fetch(ctx, p.baseURL, p.params, c.config.Credentials)
	return c.newStream(ctx, p, pager, requestID, nil), nil
}

// Download fetches every page and returns all records. On failure the
// returned *DownloadError carries the records delivered so far in Partial,
// and the same partial Result is returned alongside it.
func (c *Connector) Download(ctx context.Context, name string, descriptors ...query.Descriptor) (*Result, error) {
	s, err := c.Stream(ctx, name, descriptors...)
	if err != nil {
		return nil, err
	}
	return s.Collect()
}

// ResumeStream continues the download described by name and descriptors
// from its checkpoint.
func (c *Connector) ResumeStream(ctx context.Context, name string, descriptors ...query.Descriptor) (*Stream, error) {
	ctx, requestID := downloadContext(ctx, name)

	p, err := c.prepare(name, descriptors)
	if err != nil {
		return nil, &DownloadError{Stage: StageQuery, Endpoint: name, RequestID: requestID, Err: err}
	}

	if c.config.Checkpoints == nil {
		return nil, &DownloadError{Stage: StageCheckpoint, Endpoint: name, RequestID: requestID, Err: ErrCheckpointsDisabled}
	}

	cp, err := c.config.Checkpoints.Get(ctx, p.key)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrNoCheckpoint, err)
		}
		return nil, &DownloadError{Stage: StageCheckpoint, Endpoint: name, RequestID: requestID, Err: err}
	}

	c.logger.Info().
		Str("endpoint", name).
		Str("request_id", requestID).
		Str("url", cp.NextURL).
		Int("records", cp.Records).
		Msg("Resuming download from checkpoint")

	pager := c.fetcher.Resume(ctx, cp.NextURL, c.config.Credentials)
	return c.newStream(ctx, p, pager, requestID, cp), nil
}

// Resume is the eager form of ResumeStream. The result holds only the
// records fetched after the checkpoint.
func (c *Connector) Resume(ctx context.Context, name string, descriptors ...query.Descriptor) (*Result, error) {
	s, err := c.ResumeStream(ctx, name, descriptors...)
	if err != nil {
		return nil, err
	}
	return s.Collect()
}

// Params returns the query parameters the first request of a download
// would carry, without making any request.
func (c *Connector) Params(name string, descriptors ...query.Descriptor) (*query.Params, error) {
	p, err := c.prepare(name, descriptors)
	if err != nil {
		return nil, &DownloadError{Stage: StageQuery, Endpoint: name, Err: err}
	}
	return p.params, nil
}

// URL returns the first request URL of a download without making any request.
func (c *Connector) URL(name string, descriptors ...query.Descriptor) (string, error) {
	p, err := c.prepare(name, descriptors)
	if err != nil {
		return "", &DownloadError{Stage: StageQuery, Endpoint: name, Err: err}
	}
	return pagination.BuildURL(p.baseURL, p.params), nil
}
