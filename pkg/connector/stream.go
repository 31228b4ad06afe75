package connector

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/lizard-client/pkg/checkpoint"
	"github.com/Sternrassler/lizard-client/pkg/client"
	"github.com/Sternrassler/lizard-client/pkg/endpoint"
	"github.com/Sternrassler/lizard-client/pkg/pagination"
	"github.com/Sternrassler/lizard-client/pkg/parser"
	"github.com/rs/zerolog"
)

// Stream yields the records of a download one at a time. Pages are fetched
// only when the records of the previous page have been consumed, so a
// partially read stream never requests pages it does not need.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	ctx       context.Context
	conn      *Connector
	endpoint  endpoint.Endpoint
	key       checkpoint.Key
	pager     *pagination.Pager
	requestID string
	resumed   *checkpoint.Checkpoint
	logger    zerolog.Logger
	start     time.Time

	buf []parser.Record
	idx int
	cur parser.Record

	count       int
	pages       int
	parsed      int
	skipped     int
	parseErrors []*parser.RecordParseError

	done bool
	err  *DownloadError
}

func (c *Connector) newStream(ctx context.Context, p *plan, pager *pagination.Pager, requestID string, resumed *checkpoint.Checkpoint) *Stream {
	return &Stream{
		ctx:       ctx,
		conn:      c,
		endpoint:  p.endpoint,
		key:       p.key,
		pager:     pager,
		requestID: requestID,
		resumed:   resumed,
		logger: c.logger.With().
			Str("endpoint", p.endpoint.Name).
			Str("request_id", requestID).
			Logger(),
		start: time.Now(),
	}
}

// Next advances to the next record. It returns false when the download is
// complete or failed; check Err to tell the two apart.
func (s *Stream) Next() bool {
	for {
		if s.done {
			return false
		}
		if s.idx < len(s.buf) {
			s.cur = s.buf[s.idx]
			s.buf[s.idx] = nil
			s.idx++
			return true
		}
		s.cur = nil
		s.buf = nil

		if !s.pager.Next() {
			s.finish(s.pager.Err())
			return false
		}

		page := s.pager.Page()
		res, err := parser.Parse(page, s.endpoint.Kind)
		if err != nil {
			s.fail(StageParse, page.URL, err)
			return false
		}

		if s.pages == 0 {
			s.count = page.Count
		}
		s.pages++
		s.parsed += len(res.Records)
		s.skipped += res.Skipped
		s.parseErrors = append(s.parseErrors, res.Errors...)

		for _, perr := range res.Errors {
			s.logger.Warn().
				Err(perr.Err).
				Str("url", page.URL).
				Int("index", perr.Index).
				Str("field", perr.Field).
				Msg("Skipping malformed record")
		}

		s.buf = res.Records
		s.idx = 0
	}
}

// Record returns the current record.
func (s *Stream) Record() parser.Record {
	return s.cur
}

// Err returns the error that stopped the stream as a *DownloadError, or nil.
func (s *Stream) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}

// Count returns the total reported by the server on the first page.
func (s *Stream) Count() int { return s.count }

// Pages returns the number of pages fetched so far.
func (s *Stream) Pages() int { return s.pages }

// Skipped returns the number of malformed records dropped so far.
func (s *Stream) Skipped() int { return s.skipped }

// ParseErrors returns the errors of all skipped records so far.
func (s *Stream) ParseErrors() []*parser.RecordParseError { return s.parseErrors }

// RequestID returns the id sent as X-Request-ID with every request.
func (s *Stream) RequestID() string { return s.requestID }

// Endpoint returns the endpoint being downloaded.
func (s *Stream) Endpoint() endpoint.Endpoint { return s.endpoint }

// NextURL returns the URL of the next page to fetch. After a failure it is
// the URL that failed.
func (s *Stream) NextURL() string { return s.pager.NextURL() }

// ResumedFrom returns the checkpoint this stream continues, or nil.
func (s *Stream) ResumedFrom() *checkpoint.Checkpoint { return s.resumed }

// Collect drains the stream into a Result. On failure the partial Result is
// returned together with the error, and attached to it as Partial.
func (s *Stream) Collect() (*Result, error) {
	res := &Result{
		Endpoint:    s.endpoint.Name,
		RequestID:   s.requestID,
		ResumedFrom: s.resumed,
	}
	for s.Next() {
		res.Records = append(res.Records, s.Record())
	}
	res.Count = s.count
	res.Pages = s.pages
	res.Skipped = s.skipped
	res.ParseErrors = s.parseErrors

	if s.err != nil {
		s.err.Partial = res
		return res, s.err
	}
	return res, nil
}

func (s *Stream) finish(err error) {
	if err != nil {
		s.fail(StageFetch, s.pager.NextURL(), err)
		return
	}

	s.done = true
	downloadsTotal.WithLabelValues(s.endpoint.Name, "success").Inc()
	downloadDuration.WithLabelValues(s.endpoint.Name).Observe(time.Since(s.start).Seconds())

	if store := s.conn.config.Checkpoints; store != nil {
		if derr := store.Delete(context.WithoutCancel(s.ctx), s.key); derr != nil {
			s.logger.Warn().Err(derr).Msg("Failed to delete checkpoint")
		}
	}

	s.logger.Info().
		Int("pages", s.pages).
		Int("records", s.parsed).
		Int("skipped", s.skipped).
		Int("count", s.count).
		Dur("duration", time.Since(s.start)).
		Msg("Download complete")
}

func (s *Stream) fail(stage Stage, url string, err error) {
	s.done = true
	s.cur = nil
	s.err = &DownloadError{
		Stage:     stage,
		Endpoint:  s.endpoint.Name,
		URL:       url,
		RequestID: s.requestID,
		Err:       err,
	}

	result := "error"
	if errors.Is(err, client.ErrContextCancelled) {
		result = "cancelled"
	}
	downloadsTotal.WithLabelValues(s.endpoint.Name, result).Inc()
	downloadDuration.WithLabelValues(s.endpoint.Name).Observe(time.Since(s.start).Seconds())

	s.logger.Error().
		Err(err).
		Str("stage", string(stage)).
		Str("url", url).
		Int("pages", s.pages).
		Int("records", s.parsed).
		Msg("Download failed")

	var transient *client.TransientFetchError
	if errors.As(err, &transient) {
		s.saveCheckpoint(url, err)
	}
}

// saveCheckpoint records where an interrupted download can continue.
func (s *Stream) saveCheckpoint(nextURL string, cause error) {
	store := s.conn.config.Checkpoints
	if store == nil || nextURL == "" {
		return
	}

	cp := &checkpoint.Checkpoint{
		Endpoint:  s.endpoint.Name,
		NextURL:   nextURL,
		Pages:     s.pages,
		Records:   s.parsed,
		Skipped:   s.skipped,
		RequestID: s.requestID,
		LastError: cause.Error(),
	}
	if s.resumed != nil {
		cp.Pages += s.resumed.Pages
		cp.Records += s.resumed.Records
		cp.Skipped += s.resumed.Skipped
	}

	if err := store.Save(context.WithoutCancel(s.ctx), s.key, cp); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save checkpoint")
		return
	}
	s.logger.Info().
		Str("next_url", nextURL).
		Int("records", cp.Records).
		Msg("Checkpoint saved")
}
