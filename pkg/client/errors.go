package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a request or backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// maxBodySnippet limits how much of a response body ends up in error messages.
const maxBodySnippet = 256

// APIError describes a single failed attempt against the Lizard API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lizard %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("lizard %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClientRequestError is returned for HTTP 4xx responses (and other
// non-success statuses outside the 5xx range). It is never retried.
type ClientRequestError struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *ClientRequestError) Error() string {
	body := string(e.Body)
	if len(body) > maxBodySnippet {
		body = body[:maxBodySnippet] + "..."
	}
	return fmt.Sprintf("lizard request rejected (status %d) for %s: %s", e.StatusCode, e.URL, body)
}

// TransientFetchError is returned after server errors or transport failures
// exhausted all retry attempts.
type TransientFetchError struct {
	URL string
	// StatusCode is the status of the last attempt, 0 for transport failures.
	StatusCode int
	Attempts   int
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("lizard request to %s failed after %d attempts (class %s, last status %d): %v",
		e.URL, e.Attempts, e.ErrorClass, e.StatusCode, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are caller errors, retrying cannot fix them
		return false
	case ErrorClassServer:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
