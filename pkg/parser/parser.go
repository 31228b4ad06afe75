package parser

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/lizard-client/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for record decoding.
var (
	recordsParsedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lizard_records_parsed_total",
		Help: "Total records decoded by resource kind",
	}, []string{"kind"})

	recordsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lizard_records_skipped_total",
		Help: "Total malformed records skipped by resource kind",
	}, []string{"kind"})
)

// Result is the outcome of decoding one page.
type Result struct {
	// Records in page order, malformed records omitted.
	Records []Record

	// Skipped is len(Errors).
	Skipped int
	Errors  []*RecordParseError
}

// Parse decodes every result of page as kind.
func Parse(page *pagination.Page, kind ResourceKind) (Result, error) {
	if page == nil {
		return ParseResults(nil, kind)
	}
	return ParseResults(page.Results, kind)
}

// ParseResults decodes raw records as kind. It only fails for an unknown
// kind; malformed records are reported in Result.Errors.
func ParseResults(raw []json.RawMessage, kind ResourceKind) (Result, error) {
	decode, err := decoderFor(kind)
	if err != nil {
		return Result{}, err
	}

	res := Result{Records: make([]Record, 0, len(raw))}
	for i, r := range raw {
		rec, err := decode(r)
		if err != nil {
			perr := &RecordParseError{Index: i, Kind: kind, Err: err}
			var fe *fieldError
			if errors.As(err, &fe) {
				perr.Field = fe.field
				perr.Err = fe.err
			}
			res.Errors = append(res.Errors, perr)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	res.Skipped = len(res.Errors)

	recordsParsedTotal.WithLabelValues(string(kind)).Add(float64(len(res.Records)))
	if res.Skipped > 0 {
		recordsSkippedTotal.WithLabelValues(string(kind)).Add(float64(res.Skipped))
	}
	return res, nil
}

type decoder func(json.RawMessage) (Record, error)

func decoderFor(kind ResourceKind) (decoder, error) {
	switch kind {
	case KindTimeSeriesEvents:
		return decodeEventRecord, nil
	case KindTimeSeries:
		return decodeTimeSeries, nil
	case KindRasterFeatures:
		return decodeFeature, nil
	case KindGeneric:
		return decodeGeneric, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

var timestampKeys = []string{"timestamp", "time", "datetime"}

func decodeEventRecord(raw json.RawMessage) (Record, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, err
	}
	ev, err := decodeEvent(v)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// decodeEvent accepts {"timestamp": ..., "value": ...} objects and
// [timestamp, value] pairs.
func decodeEvent(v any) (Event, error) {
	switch t := v.(type) {
	case map[string]any:
		var ev Event
		tsKey := ""
		for _, k := range timestampKeys {
			if _, ok := t[k]; ok {
				tsKey = k
				break
			}
		}
		if tsKey == "" {
			return Event{}, errField("timestamp", ErrMissingField)
		}
		ts, err := ParseTimestamp(t[tsKey])
		if err != nil {
			return Event{}, errField(tsKey, err)
		}
		ev.Timestamp = ts

		if raw, ok := t["value"]; ok {
			val, err := toFloat(raw)
			if err != nil {
				return Event{}, errField("value", err)
			}
			ev.Value = val
		}

		ev.Fields = make(map[string]any, len(t))
		for k, raw := range t {
			if k == tsKey || k == "value" {
				continue
			}
			ev.Fields[k] = coerce(raw)
		}
		return ev, nil

	case []any:
		if len(t) == 0 {
			return Event{}, errField("timestamp", ErrMissingField)
		}
		ts, err := ParseTimestamp(t[0])
		if err != nil {
			return Event{}, errField("[0]", err)
		}
		ev := Event{Timestamp: ts, Fields: map[string]any{}}
		if len(t) > 1 {
			val, err := toFloat(t[1])
			if err != nil {
				return Event{}, errField("[1]", err)
			}
			ev.Value = val
		}
		for i := 2; i < len(t); i++ {
			ev.Fields[fmt.Sprintf("%d", i)] = coerce(t[i])
		}
		return ev, nil
	}
	return Event{}, fmt.Errorf("%w: want event object or pair", ErrInvalidShape)
}

func decodeTimeSeries(raw json.RawMessage) (Record, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	ts := &TimeSeries{}
	for _, field := range EventListFields {
		list, ok := obj[field]
		if !ok {
			continue
		}
		delete(obj, field)
		items, isList := list.([]any)
		if list != nil && !isList {
			return nil, errField(field, fmt.Errorf("%w: want event list", ErrInvalidShape))
		}
		if len(items) == 0 {
			continue
		}
		ts.Events = make([]Event, 0, len(items))
		for i, item := range items {
			ev, err := decodeEvent(item)
			if err != nil {
				var fe *fieldError
				if errors.As(err, &fe) {
					return nil, errField(fmt.Sprintf("%s[%d].%s", field, i, fe.field), fe.err)
				}
				return nil, errField(fmt.Sprintf("%s[%d]", field, i), err)
			}
			ts.Events = append(ts.Events, ev)
		}
		break
	}

	ts.Metadata = Flatten(obj)
	if id, ok := ts.Metadata["uuid"].(string); ok {
		ts.UUID = id
	}
	return ts, nil
}

func decodeFeature(raw json.RawMessage) (Record, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	geomRaw, ok := obj["geometry"].(map[string]any)
	if !ok {
		return nil, errField("geometry", ErrMissingField)
	}
	geomType, ok := geomRaw["type"].(string)
	if !ok || geomType == "" {
		return nil, errField("geometry.type", ErrMissingField)
	}

	f := &Feature{Geometry: Geometry{Type: geomType}}
	if coords, ok := geomRaw["coordinates"]; ok && coords != nil {
		b, err := json.Marshal(coords)
		if err != nil {
			return nil, errField("geometry.coordinates", err)
		}
		f.Geometry.Coordinates = b
	}
	if id, ok := obj["id"]; ok {
		f.ID = normalize(id)
	}

	var props map[string]any
	if p, ok := obj["properties"].(map[string]any); ok {
		props = Flatten(p)
	} else {
		rest := make(map[string]any, len(obj))
		for k, v := range obj {
			switch k {
			case "geometry", "type", "id", "properties":
				continue
			}
			rest[k] = v
		}
		props = Flatten(rest)
	}
	for k, v := range props {
		if s, ok := v.(string); ok {
			props[k] = coerce(s)
		}
	}
	f.Properties = props
	return f, nil
}

func decodeGeneric(raw json.RawMessage) (Record, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return &Generic{Fields: Flatten(obj)}, nil
}
