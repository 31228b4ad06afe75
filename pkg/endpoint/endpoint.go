// Package endpoint describes the Lizard resources a connector can download.
//
// Each Endpoint names a resource, its path below the API root, the record
// kind its pages decode to, a default page size and the filter keys that
// accumulate instead of overriding. A Registry holds the built-in Lizard v3
// resources and can be extended from YAML files.
package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/lizard-client/pkg/parser"
	"github.com/Sternrassler/lizard-client/pkg/query"
	"github.com/google/uuid"
)

// DefaultPageSize applies when an endpoint does not set one.
const DefaultPageSize = 1000

// DetailSuffix is appended to "<path><uuid>/" for detail endpoints.
const DetailSuffix = "data/"

var (
	// ErrUnknownEndpoint is returned for names missing from a registry.
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrInvalidEndpoint is returned for endpoint definitions that fail validation.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// Endpoint is the static configuration of one resource.
type Endpoint struct {
	Name        string              `yaml:"name" json:"name"`
	Path        string              `yaml:"path" json:"path"`
	Kind        parser.ResourceKind `yaml:"kind" json:"kind"`
	PageSize    int                 `yaml:"page_size,omitempty" json:"page_size,omitempty"`
	ListKeys    []string            `yaml:"list_keys,omitempty" json:"list_keys,omitempty"`
	Detail      bool                `yaml:"detail,omitempty" json:"detail,omitempty"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`

	// BBoxField and DatetimeField fill descriptors that leave their field empty.
	BBoxField     string `yaml:"bbox_field,omitempty" json:"bbox_field,omitempty"`
	DatetimeField string `yaml:"datetime_field,omitempty" json:"datetime_field,omitempty"`
}

// Validate checks the definition and fills defaults.
func (e *Endpoint) Validate() error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEndpoint)
	}
	e.Path = strings.TrimPrefix(strings.TrimSpace(e.Path), "/")
	if e.Path == "" {
		return fmt.Errorf("%w: %s: path is required", ErrInvalidEndpoint, e.Name)
	}
	if strings.ContainsAny(e.Path, "?#") {
		return fmt.Errorf("%w: %s: path must not carry a query", ErrInvalidEndpoint, e.Name)
	}
	if !strings.HasSuffix(e.Path, "/") {
		e.Path += "/"
	}
	if e.Kind == "" {
		e.Kind = parser.KindGeneric
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %s: %w: %q", ErrInvalidEndpoint, e.Name, parser.ErrUnknownKind, e.Kind)
	}
	if e.PageSize < 0 {
		return fmt.Errorf("%w: %s: page size must be >= 0 (got %d)", ErrInvalidEndpoint, e.Name, e.PageSize)
	}
	if e.PageSize == 0 {
		e.PageSize = DefaultPageSize
	}
	return nil
}

// MergeOptions returns the query merge options for this endpoint.
func (e Endpoint) MergeOptions() query.Options {
	return query.Options{ListKeys: e.ListKeys}
}

// ResourcePath returns the path of the resource below the API root. Detail
// endpoints require an id and resolve to "<path><id>/data/". UUIDs are
// written in canonical form; other ids may only hold letters, digits, '-'
// and '_', so they always stay a single path segment.
func (e Endpoint) ResourcePath(id string) (string, error) {
	if !e.Detail {
		return e.Path, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &query.InvalidFilterError{
			Index:  -1,
			Kind:   "uuid",
			Reason: fmt.Sprintf("endpoint %s requires a uuid", e.Name),
		}
	}
	if u, err := uuid.Parse(id); err == nil {
		id = u.String()
	} else if !validID(id) {
		return "", &query.InvalidFilterError{
			Index:  -1,
			Kind:   "uuid",
			Reason: fmt.Sprintf("endpoint %s: id %q is not a single path segment", e.Name, id),
		}
	}
	return e.Path + id + "/" + DetailSuffix, nil
}

func validID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// WithDefaults returns descriptors with empty bounding box and datetime
// field names set to this endpoint's defaults. The input is not modified.
func (e Endpoint) WithDefaults(descriptors []query.Descriptor) []query.Descriptor {
	out := make([]query.Descriptor, len(descriptors))
	for i, d := range descriptors {
		switch t := d.(type) {
		case query.BoundingBox:
			if t.FieldName == "" && e.BBoxField != "" {
				t.FieldName = e.BBoxField
			}
			out[i] = t
		case query.DatetimeRange:
			if t.FieldName == "" && e.DatetimeField != "" {
				t.FieldName = e.DatetimeField
			}
			out[i] = t
		default:
			out[i] = d
		}
	}
	return out
}
