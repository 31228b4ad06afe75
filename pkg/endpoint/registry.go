package endpoint

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Sternrassler/lizard-client/pkg/parser"
)

// Registry maps resource names to endpoints. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// NewRegistry creates a registry holding eps.
func NewRegistry(eps ...Endpoint) (*Registry, error) {
	r := &Registry{endpoints: make(map[string]Endpoint, len(eps))}
	for _, ep := range eps {
		if err := r.Register(ep); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a registry with the built-in Lizard v3 endpoints.
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(fmt.Sprintf("endpoint: invalid builtin registry: %v", err))
	}
	return r
}

// Builtin returns the Lizard v3 resources known without discovery.
func Builtin() []Endpoint {
	return []Endpoint{
		{
			Name:        "timeseries",
			Path:        "timeseries/",
			Kind:        parser.KindTimeSeries,
			ListKeys:    []string{"uuid__in", "fields"},
			BBoxField:   "geom_within",
			Description: "Time series metadata with embedded events",
		},
		{
			Name:          "timeseries_events",
			Path:          "timeseries/",
			Kind:          parser.KindTimeSeriesEvents,
			Detail:        true,
			ListKeys:      []string{"fields"},
			DatetimeField: "time",
			Description:   "Events of one time series (timeseries/<uuid>/data/)",
		},
		{
			Name:        "rasters",
			Path:        "rasters/",
			Kind:        parser.KindGeneric,
			ListKeys:    []string{"uuid__in"},
			Description: "Raster source metadata",
		},
		{
			Name:        "raster_data",
			Path:        "rasters/",
			Kind:        parser.KindRasterFeatures,
			Detail:      true,
			PageSize:    100,
			Description: "Raster values of one raster (rasters/<uuid>/data/)",
		},
		{
			Name:        "raster_aggregates",
			Path:        "raster-aggregates/",
			Kind:        parser.KindRasterFeatures,
			ListKeys:    []string{"fields"},
			Description: "Raster aggregations over a geometry",
		},
		{
			Name:        "locations",
			Path:        "locations/",
			Kind:        parser.KindGeneric,
			Description: "Measurement locations",
		},
		{
			Name:        "organisations",
			Path:        "organisations/",
			Kind:        parser.KindGeneric,
			Description: "Organisations",
		},
		{
			Name:        "opticalfibers",
			Path:        "opticalfibers/",
			Kind:        parser.KindGeneric,
			Description: "Optical fiber metadata",
		},
		{
			Name:        "opticalfibers_data",
			Path:        "opticalfibers/",
			Kind:        parser.KindTimeSeriesEvents,
			Detail:      true,
			Description: "Measurements of one optical fiber (opticalfibers/<uuid>/data/)",
		},
		{
			Name:        "measuringstations",
			Path:        "measuringstations/",
			Kind:        parser.KindGeneric,
			Description: "Measuring stations",
		},
		{
			Name:        "pumpstations",
			Path:        "pumpstations/",
			Kind:        parser.KindGeneric,
			Description: "Pump stations",
		},
	}
}

// Register adds ep, replacing any endpoint with the same name.
func (r *Registry) Register(ep Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.Name] = ep
	return nil
}

// Get returns the endpoint registered under name.
func (r *Registry) Get(name string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return ep, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all endpoints sorted by name.
func (r *Registry) List() []Endpoint {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Endpoint, 0, len(names))
	for _, name := range names {
		out = append(out, r.endpoints[name])
	}
	return out
}
