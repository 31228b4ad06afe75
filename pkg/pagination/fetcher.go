package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/lizard-client/pkg/client"
	"github.com/Sternrassler/lizard-client/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lizard_pages_fetched_total",
		Help: "Total pages fetched by endpoint",
	}, []string{"endpoint"})

	pageResults = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lizard_page_results",
		Help:    "Number of raw results per page by endpoint",
		Buckets: []float64{0, 1, 10, 100, 1000, 10000},
	}, []string{"endpoint"})

	paginationCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lizard_pagination_cycles_total",
		Help: "Total paginations aborted because a next link was revisited",
	}, []string{"endpoint"})
)

// Errors returned by the pager.
var (
	// ErrPaginationCycle is returned when a next link points at a page that was already fetched.
	ErrPaginationCycle = errors.New("pagination cycle detected")

	// ErrPageLimit is returned when a pagination exceeds Config.MaxPages.
	ErrPageLimit = errors.New("page limit reached")
)

// CycleError carries the URL that closed the cycle.
type CycleError struct {
	URL  string
	Page int
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: page %d links back to %s", ErrPaginationCycle, e.Page, e.URL)
}

// Unwrap implements error unwrapping for errors.Is.
func (e *CycleError) Unwrap() error {
	return ErrPaginationCycle
}

// Getter performs a single GET with retries. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string, creds client.Credentials) (*client.Response, error)
}

// Config holds fetcher configuration.
type Config struct {
	// MaxPages stops a pagination after this many pages. Zero means no limit.
	MaxPages int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxPages: 0}
}

// Fetcher creates pagers over a shared Getter.
type Fetcher struct {
	getter Getter
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new fetcher.
func NewFetcher(getter Getter, config Config) *Fetcher {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	return &Fetcher{
		getter: getter,
		config: config,
		logger: log.With().Str("component", "pagination").Logger(),
	}
}

// Fetch starts a pagination at baseURL with params as the query of the first
// request. No request is made until Pager.Next is called.
func (f *Fetcher) Fetch(ctx context.Context, baseURL string, params *query.Params, creds client.Credentials) *Pager {
	return f.start(ctx, BuildURL(baseURL, params), creds)
}

// Resume continues a pagination at a next URL returned by an earlier pager.
func (f *Fetcher) Resume(ctx context.Context, nextURL string, creds client.Credentials) *Pager {
	return f.start(ctx, nextURL, creds)
}

func (f *Fetcher) start(ctx context.Context, firstURL string, creds client.Credentials) *Pager {
	endpoint := client.EndpointFromContext(ctx)
	return &Pager{
		fetcher:  f,
		ctx:      ctx,
		creds:    creds,
		endpoint: endpoint,
		nextURL:  firstURL,
		visited:  make(map[string]struct{}),
		logger:   f.logger.With().Str("endpoint", endpoint).Logger(),
	}
}

// BuildURL appends encoded params to baseURL, keeping any query it already has.
func BuildURL(baseURL string, params *query.Params) string {
	encoded := params.Encode()
	if encoded == "" {
		return baseURL
	}
	if strings.Contains(baseURL, "?") {
		if strings.HasSuffix(baseURL, "?") || strings.HasSuffix(baseURL, "&") {
			return baseURL + encoded
		}
		return baseURL + "&" + encoded
	}
	return baseURL + "?" + encoded
}

// Pager is a single-pass iterator over the pages of one pagination.
// It is not safe for concurrent use.
type Pager struct {
	fetcher  *Fetcher
	ctx      context.Context
	creds    client.Credentials
	endpoint string
	logger   zerolog.Logger

	nextURL string
	visited map[string]struct{}
	page    *Page
	pages   int
	err     error
	done    bool
}

// Next fetches the next page. It returns false when the pagination is
// complete or failed; Err distinguishes the two.
func (p *Pager) Next() bool {
	if p.done {
		return false
	}
	if p.nextURL == "" {
		p.finish(nil)
		return false
	}

	if err := p.ctx.Err(); err != nil {
		p.finish(fmt.Errorf("%w: %w", client.ErrContextCancelled, err))
		return false
	}

	if limit := p.fetcher.config.MaxPages; limit > 0 && p.pages >= limit {
		p.finish(fmt.Errorf("%w: %d pages", ErrPageLimit, limit))
		return false
	}

	current := p.nextURL
	key := normalizeURL(current)
	if _, seen := p.visited[key]; seen {
		paginationCyclesTotal.WithLabelValues(p.endpoint).Inc()
		p.finish(&CycleError{URL: current, Page: p.pages})
		return false
	}
	p.visited[key] = struct{}{}

	p.logger.Debug().
		Int("page", p.pages+1).
		Str("url", current).
		Msg("Fetching page")

	resp, err := p.fetcher.getter.Get(p.ctx, current, p.creds)
	if err != nil {
		p.finish(err)
		return false
	}

	page, err := DecodePage(current, resp.Body)
	if err != nil {
		p.finish(err)
		return false
	}

	next, err := resolveNext(current, page.Next)
	if err != nil {
		p.finish(err)
		return false
	}
	p.pages++
	p.page = page
	p.nextURL = next

	pagesFetchedTotal.WithLabelValues(p.endpoint).Inc()
	pageResults.WithLabelValues(p.endpoint).Observe(float64(len(page.Results)))

	return true
}

func (p *Pager) finish(err error) {
	p.done = true
	p.page = nil
	p.err = err
	if err != nil {
		p.logger.Warn().
			Err(err).
			Int("pages", p.pages).
			Msg("Pagination stopped")
		return
	}
	p.logger.Debug().
		Int("pages", p.pages).
		Msg("Pagination complete")
}

// Page returns the page fetched by the last successful call to Next.
func (p *Pager) Page() *Page {
	return p.page
}

// Err returns the error that stopped the pagination, if any.
func (p *Pager) Err() error {
	return p.err
}

// Pages returns the number of pages fetched so far.
func (p *Pager) Pages() int {
	return p.pages
}

// NextURL returns the URL the next call to Next would fetch. After a failure
// it is the URL of the page that failed, so a later Resume retries it.
func (p *Pager) NextURL() string {
	return p.nextURL
}

// resolveNext makes a next link absolute relative to the page it came from.
func resolveNext(current, next string) (string, error) {
	next = strings.TrimSpace(next)
	if next == "" {
		return "", nil
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next link %q: %w", next, err)
	}
	if ref.IsAbs() {
		return next, nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse page url %q: %w", current, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// normalizeURL gives equivalent URLs the same key for cycle detection.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String()
}
