package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is one decoded response of a pagination.
type Page struct {
	URL string

	// Count is the total reported by the envelope, or len(Results) for bare
	// arrays and single objects.
	Count int

	Next     string
	Previous string

	// Results holds the undecoded records in server order.
	Results []json.RawMessage
}

// MalformedPageError is returned when a successful response body is not a
// usable page.
type MalformedPageError struct {
	URL    string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *MalformedPageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed page %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed page %s: %s", e.URL, e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MalformedPageError) Unwrap() error {
	return e.Err
}

type envelope struct {
	Count    *int              `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

// DecodePage normalises a response body into a Page. It accepts the paged
// envelope {count, next, previous, results}, a bare JSON array, or a single
// JSON object without "results".
func DecodePage(pageURL string, body []byte) (*Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &MalformedPageError{URL: pageURL, Reason: "empty body"}
	}

	switch trimmed[0] {
	case '[':
		var results []json.RawMessage
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, &MalformedPageError{URL: pageURL, Reason: "decode array", Err: err}
		}
		return &Page{URL: pageURL, Count: len(results), Results: results}, nil

	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, &MalformedPageError{URL: pageURL, Reason: "decode object", Err: err}
		}
		if _, ok := fields["results"]; !ok {
			return &Page{
				URL:     pageURL,
				Count:   1,
				Results: []json.RawMessage{json.RawMessage(trimmed)},
			}, nil
		}

		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, &MalformedPageError{URL: pageURL, Reason: "decode envelope", Err: err}
		}
		page := &Page{URL: pageURL, Results: env.Results}
		if page.Results == nil {
			page.Results = []json.RawMessage{}
		}
		page.Count = len(page.Results)
		if env.Count != nil {
			if *env.Count < 0 {
				return nil, &MalformedPageError{URL: pageURL, Reason: fmt.Sprintf("negative count %d", *env.Count)}
			}
			page.Count = *env.Count
		}
		if env.Next != nil {
			page.Next = *env.Next
		}
		if env.Previous != nil {
			page.Previous = *env.Previous
		}
		return page, nil

	default:
		return nil, &MalformedPageError{URL: pageURL, Reason: "body is not a JSON object or array"}
	}
}
