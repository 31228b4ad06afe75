package parser

import (
	"encoding/json"
	"time"
)

// ToMap converts a record into plain maps, slices and scalars suitable for
// JSON or YAML encoding. Timestamps are rendered as RFC 3339 in UTC.
func ToMap(r Record) map[string]any {
	switch rec := r.(type) {
	case *Event:
		return eventMap(rec)
	case *TimeSeries:
		out := make(map[string]any, len(rec.Metadata)+2)
		for k, v := range rec.Metadata {
			out[k] = v
		}
		if rec.UUID != "" {
			out["uuid"] = rec.UUID
		}
		if len(rec.Events) > 0 {
			events := make([]any, len(rec.Events))
			for i := range rec.Events {
				events[i] = eventMap(&rec.Events[i])
			}
			out["events"] = events
		}
		return out
	case *Feature:
		geometry := map[string]any{"type": rec.Geometry.Type}
		if len(rec.Geometry.Coordinates) > 0 {
			var coords any
			if err := json.Unmarshal(rec.Geometry.Coordinates, &coords); err == nil {
				geometry["coordinates"] = coords
			}
		}
		out := map[string]any{
			"geometry":   geometry,
			"properties": rec.Properties,
		}
		if rec.ID != nil {
			out["id"] = rec.ID
		}
		return out
	case *Generic:
		out := make(map[string]any, len(rec.Fields))
		for k, v := range rec.Fields {
			out[k] = v
		}
		return out
	}
	return nil
}

func eventMap(e *Event) map[string]any {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	if e.Value != nil {
		out["value"] = *e.Value
	} else {
		out["value"] = nil
	}
	return out
}
