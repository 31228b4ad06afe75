package pagination_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/lizard-client/internal/testutil"
	"github.com/Sternrassler/lizard-client/pkg/client"
	"github.com/Sternrassler/lizard-client/pkg/pagination"
	"github.com/Sternrassler/lizard-client/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, baseURL string) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig("pagination-test/1.0")
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 0
	cfg.Retry = client.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	c, err := client.New(cfg)
	require.NoError(t, err)
	return c
}

func collect(p *pagination.Pager) []*pagination.Page {
	var pages []*pagination.Page
	for p.Next() {
		pages = append(pages, p.Page())
	}
	return pages
}

func TestFetch_FollowsNextUntilEmpty(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(5, 0), testutil.Events(5, 5), testutil.Events(2, 10))

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	params := query.NewParams()
	require.NoError(t, params.Set("page_size", "5"))

	pager := fetcher.Fetch(context.Background(), mock.URL()+"/timeseries/", params, nil)
	pages := collect(pager)

	require.NoError(t, pager.Err())
	require.Len(t, pages, 3)
	assert.Len(t, pages[0].Results, 5)
	assert.Len(t, pages[1].Results, 5)
	assert.Len(t, pages[2].Results, 2)
	assert.Equal(t, 12, pages[0].Count)
	assert.Equal(t, 3, pager.Pages())
	assert.Empty(t, pager.NextURL())

	// first request carries the params, later ones follow next verbatim
	requests := mock.GetRequests()
	require.Len(t, requests, 3)
	assert.Equal(t, "/timeseries/?page_size=5", requests[0])
	assert.Equal(t, "/timeseries/?page=2", requests[1])
	assert.Equal(t, "/timeseries/?page=3", requests[2])
}

func TestFetch_NoRequestBeforeNext(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(1, 0))

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	_ = fetcher.Fetch(context.Background(), mock.URL()+"/timeseries/", nil, nil)

	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestFetch_RelativeNext(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.RelativeNext = true
	mock.SetPages("/rasters/", testutil.Events(2, 0), testutil.Events(2, 2))

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/rasters/", nil, nil)
	pages := collect(pager)

	require.NoError(t, pager.Err())
	require.Len(t, pages, 2)
	assert.Equal(t, mock.URL()+"/rasters/?page=2", pages[1].URL)
}

func TestFetch_EmptyResultSet(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/")

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/timeseries/", nil, nil)
	pages := collect(pager)

	require.NoError(t, pager.Err())
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].Results)
	assert.Equal(t, 0, pages[0].Count)
}

func TestFetch_CycleDetected(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetHandler("/loop/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"count":2,"next":"%s/loop/?page=1","results":[{"id":1}]}`, mock.URL())
	})

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/loop/?page=1", nil, nil)
	pages := collect(pager)

	require.Len(t, pages, 1, "the page that links to itself is still delivered")
	require.Error(t, pager.Err())
	assert.True(t, errors.Is(pager.Err(), pagination.ErrPaginationCycle))

	var cycleErr *pagination.CycleError
	require.ErrorAs(t, pager.Err(), &cycleErr)
	assert.Equal(t, mock.URL()+"/loop/?page=1", cycleErr.URL)
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestFetch_LongerCycleDetected(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetHandler("/a/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"next":"%s/b/","results":[]}`, mock.URL())
	})
	mock.SetHandler("/b/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"next":"%s/a/","results":[]}`, mock.URL())
	})

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/a/", nil, nil)
	pages := collect(pager)

	assert.Len(t, pages, 2)
	assert.ErrorIs(t, pager.Err(), pagination.ErrPaginationCycle)
}

func TestFetch_ClientErrorStops(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(3, 0), testutil.Events(3, 3))
	mock.FailPage("/timeseries/", 2, http.StatusForbidden, -1)

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/timeseries/", nil, nil)
	pages := collect(pager)

	require.Len(t, pages, 1)
	var reqErr *client.ClientRequestError
	require.ErrorAs(t, pager.Err(), &reqErr)
	assert.Equal(t, http.StatusForbidden, reqErr.StatusCode)
	assert.Equal(t, 1, mock.PageHits("/timeseries/", 2), "4xx must not be retried")
	assert.Nil(t, pager.Page())
	assert.Equal(t, mock.URL()+"/timeseries/?page=2", pager.NextURL())
}

func TestFetch_ServerErrorKeepsEarlierPages(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(5, 0), testutil.Events(5, 5), testutil.Events(5, 10))
	mock.FailPage("/timeseries/", 3, http.StatusServiceUnavailable, -1)

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/timeseries/", nil, nil)
	pages := collect(pager)

	require.Len(t, pages, 2)
	var fetchErr *client.TransientFetchError
	require.ErrorAs(t, pager.Err(), &fetchErr)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, 3, mock.PageHits("/timeseries/", 3))
}

func TestFetch_RecoversFromTransientFailure(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(2, 0), testutil.Events(2, 2))
	mock.FailPage("/timeseries/", 2, http.StatusBadGateway, 2)

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/timeseries/", nil, nil)
	pages := collect(pager)

	require.NoError(t, pager.Err())
	assert.Len(t, pages, 2)
	assert.Equal(t, 3, mock.PageHits("/timeseries/", 2))
}

func TestFetch_CancelBetweenPages(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(1, 0), testutil.Events(1, 1), testutil.Events(1, 2))

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Fetch(ctx, mock.URL()+"/timeseries/", nil, nil)

	require.True(t, pager.Next())
	cancel()
	assert.False(t, pager.Next())
	assert.ErrorIs(t, pager.Err(), client.ErrContextCancelled)
	assert.ErrorIs(t, pager.Err(), context.Canceled)
	assert.Equal(t, 1, mock.GetRequestCount())
	assert.False(t, pager.Next(), "a stopped pager stays stopped")
}

func TestFetch_PageLimit(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(1, 0), testutil.Events(1, 1), testutil.Events(1, 2))

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.Config{MaxPages: 2})
	pager := fetcher.Fetch(context.Background(), mock.URL()+"/timeseries/", nil, nil)
	pages := collect(pager)

	assert.Len(t, pages, 2)
	assert.ErrorIs(t, pager.Err(), pagination.ErrPageLimit)
}

func TestResume(t *testing.T) {
	mock := testutil.NewMockLizard()
	defer mock.Close()
	mock.SetPages("/timeseries/", testutil.Events(2, 0), testutil.Events(2, 2), testutil.Events(2, 4))

	fetcher := pagination.NewFetcher(newClient(t, mock.URL()), pagination.DefaultConfig())
	pager := fetcher.Resume(context.Background(), mock.URL()+"/timeseries/?page=2", nil)
	pages := collect(pager)

	require.NoError(t, pager.Err())
	assert.Len(t, pages, 2)
	assert.Equal(t, 0, mock.PageHits("/timeseries/", 1))
}

func TestBuildURL(t *testing.T) {
	params := query.NewParams()
	require.NoError(t, params.Set("b", "2"))
	require.NoError(t, params.Set("a", "1"))

	tests := []struct {
		base   string
		params *query.Params
		want   string
	}{
		{"https://x/ts/", params, "https://x/ts/?b=2&a=1"},
		{"https://x/ts/?format=json", params, "https://x/ts/?format=json&b=2&a=1"},
		{"https://x/ts/?", params, "https://x/ts/?b=2&a=1"},
		{"https://x/ts/", nil, "https://x/ts/"},
		{"https://x/ts/", query.NewParams(), "https://x/ts/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pagination.BuildURL(tt.base, tt.params))
	}
}
