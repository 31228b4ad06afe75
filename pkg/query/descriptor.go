// Package query turns typed filter descriptors into Lizard API query parameters.
//
// Descriptors are merged in order. Later descriptors override earlier ones on
// key collision, except for keys configured as list-valued, whose values are
// joined with a comma in the order they were seen.
package query

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default field names used when a descriptor leaves its field empty.
const (
	DefaultBBoxField     = "in_bbox"
	DefaultDatetimeField = "time"
	OrganisationKey      = "organisation__uuid"
	PageSizeKey          = "page_size"
)

// Descriptor is a typed query filter. The set of implementations is
// closed: BoundingBox, DatetimeRange, Organisation, Raw, DistanceToPoint,
// Search, Statistics, PageSize, FeatureInfo and Limits.
type Descriptor interface {
	// Kind returns a short name for logging and errors.
	Kind() string
	render() ([]pair, error)
}

type pair struct {
	key   string
	value string
}

// LatLon is a WGS84 coordinate.
type LatLon struct {
	Lat float64
	Lon float64
}

func (c LatLon) valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// BBoxFormat selects how a bounding box is rendered.
type BBoxFormat int

const (
	// BBoxWKT renders a well-known-text polygon (lon lat ordering).
	BBoxWKT BBoxFormat = iota
	// BBoxCorners renders "south,west,north,east".
	BBoxCorners
)

// BoundingBox filters on a spatial field.
type BoundingBox struct {
	SouthWest LatLon
	NorthEast LatLon
	// FieldName defaults to DefaultBBoxField.
	FieldName string
	Format    BBoxFormat
}

// Kind implements Descriptor.
func (BoundingBox) Kind() string { return "bbox" }

func (b BoundingBox) render() ([]pair, error) {
	if !b.SouthWest.valid() {
		return nil, invalid(b.Kind(), "south-west corner (%v, %v) out of range", b.SouthWest.Lat, b.SouthWest.Lon)
	}
	if !b.NorthEast.valid() {
		return nil, invalid(b.Kind(), "north-east corner (%v, %v) out of range", b.NorthEast.Lat, b.NorthEast.Lon)
	}
	field := b.FieldName
	if field == "" {
		field = DefaultBBoxField
	}
	switch b.Format {
	case BBoxCorners:
		return []pair{{field, commaify(b.SouthWest.Lat, b.SouthWest.Lon, b.NorthEast.Lat, b.NorthEast.Lon)}}, nil
	default:
		return []pair{{field, b.WKT()}}, nil
	}
}

// WKT returns the bounding box as a closed well-known-text polygon.
func (b BoundingBox) WKT() string {
	minLat, minLon := b.SouthWest.Lat, b.SouthWest.Lon
	maxLat, maxLon := b.NorthEast.Lat, b.NorthEast.Lon
	ring := [][2]float64{
		{minLon, minLat},
		{minLon, maxLat},
		{maxLon, maxLat},
		{maxLon, minLat},
		{minLon, minLat},
	}
	points := make([]string, len(ring))
	for i, p := range ring {
		points[i] = formatFloat(p[0]) + " " + formatFloat(p[1])
	}
	return "POLYGON ((" + strings.Join(points, ", ") + "))"
}

// DatetimeRange filters on <field>__gte and <field>__lte.
// A zero Start or End leaves that side open.
type DatetimeRange struct {
	Start time.Time
	End   time.Time
	// FieldName defaults to DefaultDatetimeField.
	FieldName string
}

// Kind implements Descriptor.
func (DatetimeRange) Kind() string { return "datetime_range" }

func (d DatetimeRange) render() ([]pair, error) {
	if d.Start.IsZero() && d.End.IsZero() {
		return nil, invalid(d.Kind(), "start and end are both empty")
	}
	if !d.Start.IsZero() && !d.End.IsZero() && d.Start.After(d.End) {
		return nil, invalid(d.Kind(), "start %s is after end %s", formatTime(d.Start), formatTime(d.End))
	}
	field := d.FieldName
	if field == "" {
		field = DefaultDatetimeField
	}
	var out []pair
	if !d.Start.IsZero() {
		out = append(out, pair{field + "__gte", formatTime(d.Start)})
	}
	if !d.End.IsZero() {
		out = append(out, pair{field + "__lte", formatTime(d.End)})
	}
	return out, nil
}

// Organisation filters on the owning organisation. Identifiers that parse as
// a UUID are sent in canonical lower-case hyphenated form, anything else is
// sent as given. Several organisations are sent as one comma separated value,
// OrganisationID first.
type Organisation struct {
	OrganisationID  string
	OrganisationIDs []string
}

// Kind implements Descriptor.
func (Organisation) Kind() string { return "organisation" }

func (o Organisation) render() ([]pair, error) {
	var raw []string
	if o.OrganisationID != "" || len(o.OrganisationIDs) == 0 {
		raw = append(raw, o.OrganisationID)
	}
	raw = append(raw, o.OrganisationIDs...)

	ids := make([]string, len(raw))
	for i, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, invalid(o.Kind(), "organisation id is empty")
		}
		if strings.Contains(id, ",") {
			return nil, invalid(o.Kind(), "organisation id %q contains a comma", id)
		}
		if u, err := uuid.Parse(id); err == nil {
			id = u.String()
		}
		ids[i] = id
	}
	return []pair{{OrganisationKey, strings.Join(ids, ListSeparator)}}, nil
}

// Raw copies its key/value pairs verbatim. Keys are emitted in sorted
// order so the result does not depend on map iteration.
type Raw map[string]string

// Kind implements Descriptor.
func (Raw) Kind() string { return "raw" }

func (r Raw) render() ([]pair, error) {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k == "" {
			return nil, invalid(r.Kind(), "%v", ErrEmptyKey)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]pair, len(keys))
	for i, k := range keys {
		out[i] = pair{k, r[k]}
	}
	return out, nil
}

// ParseRaw builds a Raw descriptor from a query string such as "?a=1&b=2".
func ParseRaw(s string) (Raw, error) {
	p, err := ParseParams(s)
	if err != nil {
		e := invalid(Raw(nil).Kind(), "cannot parse %q", s)
		e.Err = err
		return nil, e
	}
	return Raw(p.Map()), nil
}

// DistanceToPoint selects records within Distance meters of a point.
type DistanceToPoint struct {
	Distance float64
	Point    LatLon
}

// Kind implements Descriptor.
func (DistanceToPoint) Kind() string { return "distance" }

func (d DistanceToPoint) render() ([]pair, error) {
	if !d.Point.valid() {
		return nil, invalid(d.Kind(), "point (%v, %v) out of range", d.Point.Lat, d.Point.Lon)
	}
	if d.Distance < 0 || math.IsNaN(d.Distance) {
		return nil, invalid(d.Kind(), "distance must be >= 0")
	}
	return []pair{
		{"distance", formatFloat(d.Distance)},
		{"point", commaify(d.Point.Lon, d.Point.Lat)},
	}, nil
}

// Search is a free-text search.
type Search struct {
	Term string
}

// Kind implements Descriptor.
func (Search) Kind() string { return "search" }

func (s Search) render() ([]pair, error) {
	if strings.TrimSpace(s.Term) == "" {
		return nil, invalid(s.Kind(), "search term is empty")
	}
	return []pair{{"search", s.Term}}, nil
}

// Statistics requests aggregated statistics fields. "mean" expands to
// "count,sum", which the API combines server side.
type Statistics []string

// Kind implements Descriptor.
func (Statistics) Kind() string { return "statistics" }

func (s Statistics) render() ([]pair, error) {
	if len(s) == 0 {
		return nil, invalid(s.Kind(), "no statistics requested")
	}
	fields := make([]string, 0, len(s))
	for _, name := range s {
		switch name {
		case "":
			return nil, invalid(s.Kind(), "empty statistic name")
		case "mean":
			fields = append(fields, "count", "sum")
		default:
			fields = append(fields, name)
		}
	}
	return []pair{
		{"min_points", "1"},
		{"fields", strings.Join(fields, ",")},
	}, nil
}

// PageSize sets the number of results per page.
type PageSize int

// Kind implements Descriptor.
func (PageSize) Kind() string { return "page_size" }

func (p PageSize) render() ([]pair, error) {
	if p < 0 {
		return nil, invalid(p.Kind(), "page size %d is negative", int(p))
	}
	return []pair{{PageSizeKey, strconv.Itoa(int(p))}}, nil
}

// Raster query constants used by FeatureInfo and Limits.
const (
	FeatureInfoSRS = "EPSG:4326"
	LimitsSRS      = "epsg:4326"
	LimitsSize     = 16
)

// FeatureInfo requests the values of a raster layer at a single point as a
// curve.
type FeatureInfo struct {
	Point LatLon
	Layer string
}

// Kind implements Descriptor.
func (FeatureInfo) Kind() string { return "feature_info" }

func (f FeatureInfo) render() ([]pair, error) {
	if !f.Point.valid() {
		return nil, invalid(f.Kind(), "point (%v, %v) out of range", f.Point.Lat, f.Point.Lon)
	}
	if strings.TrimSpace(f.Layer) == "" {
		return nil, invalid(f.Kind(), "raster layer name is empty")
	}
	return []pair{
		{"agg", "curve"},
		{"geom", "POINT(" + formatFloat(f.Point.Lon) + " " + formatFloat(f.Point.Lat) + ")"},
		{"srs", FeatureInfoSRS},
		{"raster_names", f.Layer},
		{"count", "false"},
	}, nil
}

// Limits requests the minimum and maximum of a raster layer within a
// bounding box.
type Limits struct {
	Layer     string
	SouthWest LatLon
	NorthEast LatLon
}

// Kind implements Descriptor.
func (Limits) Kind() string { return "limits" }

func (l Limits) render() ([]pair, error) {
	if strings.TrimSpace(l.Layer) == "" {
		return nil, invalid(l.Kind(), "raster layer name is empty")
	}
	if !l.SouthWest.valid() || !l.NorthEast.valid() {
		return nil, invalid(l.Kind(), "bounding box (%v, %v)-(%v, %v) out of range",
			l.SouthWest.Lat, l.SouthWest.Lon, l.NorthEast.Lat, l.NorthEast.Lon)
	}
	box := BoundingBox{SouthWest: l.SouthWest, NorthEast: l.NorthEast}
	size := strconv.Itoa(LimitsSize)
	return []pair{
		{"request", "getlimits"},
		{"layers", l.Layer},
		{"bbox", box.WKT()},
		{"width", size},
		{"height", size},
		{"srs", LimitsSRS},
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func commaify(vals ...float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ",")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
