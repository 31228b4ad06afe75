package parser

import (
	"encoding/json"
	"time"
)

// Record is one decoded unit of data. The set of implementations is closed:
// *Event, *TimeSeries, *Feature and *Generic.
type Record interface {
	Kind() ResourceKind

	// Get returns a top-level field by its flattened name.
	Get(key string) (any, bool)

	isRecord()
}

// Event is a single time series measurement.
type Event struct {
	Timestamp time.Time

	// Value is nil when the event carries no value or a null one.
	Value *float64

	// Fields holds the remaining attributes (flag, validation_code, min, max...).
	Fields map[string]any
}

// Kind implements Record.
func (*Event) Kind() ResourceKind { return KindTimeSeriesEvents }

// Get implements Record.
func (e *Event) Get(key string) (any, bool) {
	switch key {
	case "timestamp", "time":
		return e.Timestamp, true
	case "value":
		if e.Value == nil {
			return nil, true
		}
		return *e.Value, true
	}
	v, ok := e.Fields[key]
	return v, ok
}

func (*Event) isRecord() {}

// TimeSeries is a time series' flattened metadata and its events.
type TimeSeries struct {
	UUID     string
	Metadata map[string]any
	Events   []Event
}

// Kind implements Record.
func (*TimeSeries) Kind() ResourceKind { return KindTimeSeries }

// Get implements Record.
func (t *TimeSeries) Get(key string) (any, bool) {
	v, ok := t.Metadata[key]
	return v, ok
}

func (*TimeSeries) isRecord() {}

// Geometry is a GeoJSON geometry with undecoded coordinates.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

// Feature is a geometry with flattened properties.
type Feature struct {
	ID         any
	Geometry   Geometry
	Properties map[string]any
}

// Kind implements Record.
func (*Feature) Kind() ResourceKind { return KindRasterFeatures }

// Get implements Record.
func (f *Feature) Get(key string) (any, bool) {
	if key == "id" && f.ID != nil {
		return f.ID, true
	}
	v, ok := f.Properties[key]
	return v, ok
}

func (*Feature) isRecord() {}

// Generic is any JSON object flattened with "__" separators.
type Generic struct {
	Fields map[string]any
}

// Kind implements Record.
func (*Generic) Kind() ResourceKind { return KindGeneric }

// Get implements Record.
func (g *Generic) Get(key string) (any, bool) {
	v, ok := g.Fields[key]
	return v, ok
}

func (*Generic) isRecord() {}

// ListOnKey returns the value of key for every record that has it.
func ListOnKey(records []Record, key string) []any {
	out := make([]any, 0, len(records))
	for _, r := range records {
		if v, ok := r.Get(key); ok {
			out = append(out, v)
		}
	}
	return out
}

// UUIDs returns the identifiers of records from the named endpoint.
// Organisations are keyed by "unique_id", everything else by "uuid".
func UUIDs(records []Record, endpoint string) []any {
	key := "uuid"
	if endpoint == "organisations" {
		key = "unique_id"
	}
	return ListOnKey(records, key)
}
