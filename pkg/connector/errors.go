package connector

import (
	"errors"
	"fmt"
)

// Stage names the part of a download that failed.
type Stage string

const (
	// StageQuery covers endpoint lookup and filter merging; no request was made.
	StageQuery Stage = "query"

	// StageFetch covers HTTP requests and pagination.
	StageFetch Stage = "fetch"

	// StageParse covers record decoding.
	StageParse Stage = "parse"

	// StageAsync covers async task submission and polling.
	StageAsync Stage = "async"

	// StageCheckpoint covers loading a resume checkpoint.
	StageCheckpoint Stage = "checkpoint"
)

var (
	// ErrNoCheckpoint is returned by Resume when no checkpoint matches the request.
	ErrNoCheckpoint = errors.New("no checkpoint to resume")

	// ErrCheckpointsDisabled is returned by Resume without a checkpoint store.
	ErrCheckpointsDisabled = errors.New("checkpoints are disabled")

	// ErrInvalidTask is returned when an async task response lacks its URLs.
	ErrInvalidTask = errors.New("invalid async task response")
)

// DownloadError wraps the error that aborted a download together with what
// was delivered before it.
type DownloadError struct {
	Stage     Stage
	Endpoint  string
	URL       string
	RequestID string
	Err       error

	// Partial holds the records delivered before the failure. It is set by
	// the eager download functions and nil for streams.
	Partial *Result
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	msg := fmt.Sprintf("download %s failed at %s stage", e.Endpoint, e.Stage)
	if e.URL != "" {
		msg += fmt.Sprintf(" (url %s)", e.URL)
	}
	if e.Partial != nil && len(e.Partial.Records) > 0 {
		msg += fmt.Sprintf(" after %d records", len(e.Partial.Records))
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// TaskFailedError is returned when an async task ends in a status other
// than SUCCESS.
type TaskFailedError struct {
	TaskURL string
	Status  string
}

// Error implements the error interface.
func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("async task %s finished with status %q", e.TaskURL, e.Status)
}
