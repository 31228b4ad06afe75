package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/lizard-client/pkg/client"
	"github.com/Sternrassler/lizard-client/pkg/pagination"
	"github.com/Sternrassler/lizard-client/pkg/query"
)

// Async request parameters and task states.
const (
	AsyncKey = "async"

	TaskPending = "PENDING"
	TaskStarted = "STARTED"
	TaskRetry   = "RETRY"
	TaskSuccess = "SUCCESS"
)

// task is the body of an async submission and of each poll.
type task struct {
	URL        string `json:"url"`
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
	ResultURL  string `json:"result_url"`
}

// DownloadAsync asks the server to prepare the result as a background task,
// polls the task until it finishes and then downloads its result through
// the normal paginated path.
func (c *Connector) DownloadAsync(ctx context.Context, name string, descriptors ...query.Descriptor) (*Result, error) {
	s, err := c.StreamAsync(ctx, name, descriptors...)
	if err != nil {
		return nil, err
	}
	return s.Collect()
}

// StreamAsync is the lazy form of DownloadAsync. It blocks until the task
// has finished.
func (c *Connector) StreamAsync(ctx context.Context, name string, descriptors ...query.Descriptor) (*Stream, error) {
	ctx, requestID := downloadContext(ctx, name)

	p, err := c.prepare(name, descriptors)
	if err != nil {
		downloadsTotal.WithLabelValues(name, "invalid").Inc()
		return nil, &DownloadError{Stage: StageQuery, Endpoint: name, RequestID: requestID, Err: err}
	}
	if err := p.params.Set(AsyncKey, "true"); err != nil {
		return nil, &DownloadError{Stage: StageQuery, Endpoint: name, RequestID: requestID, Err: err}
	}
	if err := p.params.Set(query.PageSizeKey, "0"); err != nil {
		return nil, &DownloadError{Stage: StageQuery, Endpoint: name, RequestID: requestID, Err: err}
	}
	p.key.Params = p.params.Map()

	logger := c.logger.With().
		Str("endpoint", name).
		Str("request_id", requestID).
		Logger()

	submitURL := pagination.BuildURL(p.baseURL, p.params)
	fail := func(url string, err error) (*Stream, error) {
		downloadsTotal.WithLabelValues(name, "error").Inc()
		return nil, &DownloadError{Stage: StageAsync, Endpoint: name, URL: url, RequestID: requestID, Err: err}
	}

	submitted, err := c.getTask(ctx, submitURL)
	if err != nil {
		return fail(submitURL, err)
	}
	if submitted.URL == "" {
		return fail(submitURL, fmt.Errorf("%w: missing task url", ErrInvalidTask))
	}

	logger.Info().
		Str("task_url", submitted.URL).
		Str("task_id", submitted.TaskID).
		Msg("Async task submitted")

	resultURL, err := c.waitForTask(ctx, submitted.URL)
	if err != nil {
		return fail(submitted.URL, err)
	}

	pager := c.fetcher.Resume(ctx, resultURL, c.config.Credentials)
	return c.newStream(ctx, p, pager, requestID, nil), nil
}

// waitForTask polls taskURL with a growing interval until the task ends and
// returns its result URL.
func (c *Connector) waitForTask(ctx context.Context, taskURL string) (string, error) {
	interval := c.config.AsyncPollInterval
	polls := 0

	for {
		t, err := c.getTask(ctx, taskURL)
		if err != nil {
			return "", err
		}
		polls++

		switch t.TaskStatus {
		case TaskSuccess:
			if t.ResultURL == "" {
				return "", fmt.Errorf("%w: missing result url", ErrInvalidTask)
			}
			c.logger.Info().
				Str("task_url", taskURL).
				Int("polls", polls).
				Msg("Async task finished")
			return c.client.Resolve(t.ResultURL)
		case TaskPending, TaskStarted, TaskRetry, "":
		default:
			return "", &TaskFailedError{TaskURL: taskURL, Status: t.TaskStatus}
		}

		c.logger.Debug().
			Str("task_url", taskURL).
			Str("status", t.TaskStatus).
			Dur("interval", interval).
			Msg("Async task not finished")

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: %w", client.ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * c.config.AsyncPollGrowth)
		if interval > c.config.AsyncPollMax {
			interval = c.config.AsyncPollMax
		}
	}
}

func (c *Connector) getTask(ctx context.Context, url string) (*task, error) {
	resp, err := c.client.Get(ctx, url, c.config.Credentials)
	if err != nil {
		return nil, err
	}
	var t task
	if err := json.Unmarshal(resp.Body, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return &t, nil
}
