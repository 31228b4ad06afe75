// Package parser turns raw Lizard page results into typed records.
//
// Decoding is dispatched over a closed set of resource kinds. Each raw record
// is decoded independently: a malformed record is skipped and reported as a
// *RecordParseError, never failing the page.
package parser

import "fmt"

// ResourceKind selects the decoder for a resource's records.
type ResourceKind string

const (
	// KindTimeSeriesEvents decodes event lists such as timeseries/<uuid>/data/.
	KindTimeSeriesEvents ResourceKind = "timeseries_events"

	// KindTimeSeries decodes time series metadata with embedded events.
	KindTimeSeries ResourceKind = "timeseries"

	// KindRasterFeatures decodes geometry features.
	KindRasterFeatures ResourceKind = "raster_features"

	// KindGeneric decodes any JSON object into flattened fields.
	KindGeneric ResourceKind = "generic"
)

// Kinds lists every supported resource kind.
func Kinds() []ResourceKind {
	return []ResourceKind{KindTimeSeriesEvents, KindTimeSeries, KindRasterFeatures, KindGeneric}
}

// Valid reports whether k is a supported kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindTimeSeriesEvents, KindTimeSeries, KindRasterFeatures, KindGeneric:
		return true
	}
	return false
}

// ParseKind validates a kind name from configuration.
func ParseKind(s string) (ResourceKind, error) {
	k := ResourceKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}
