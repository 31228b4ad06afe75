package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/lizard-client/pkg/parser"
	"github.com/Sternrassler/lizard-client/pkg/query"
	"github.com/spf13/cobra"
)

// filterFlags are the query flags shared by download, resume and url.
type filterFlags struct {
	bbox         string
	bboxField    string
	start        string
	end          string
	timeField    string
	organisation []string
	filters      []string
	search       string
	pageSize     int
	uuid         string
	near         string
	distance     float64
	statistics   []string
	featureInfo  string
	limits       string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.bbox, "bbox", "", "bounding box as south,west,north,east")
	fl.StringVar(&f.bboxField, "bbox-field", "", "field the bounding box filters on (endpoint default)")
	fl.StringVar(&f.start, "start", "", "start of the datetime range (RFC3339, date or epoch ms)")
	fl.StringVar(&f.end, "end", "", "end of the datetime range (RFC3339, date or epoch ms)")
	fl.StringVar(&f.timeField, "time-field", "", "field the datetime range filters on (endpoint default)")
	fl.StringSliceVar(&f.organisation, "organisation", nil, "organisation uuid (repeatable or comma separated)")
	fl.StringArrayVar(&f.filters, "filter", nil, "raw filter key=value (repeatable)")
	fl.StringVar(&f.search, "search", "", "free text search")
	fl.IntVar(&f.pageSize, "page-size", 0, "results per page (endpoint default)")
	fl.StringVar(&f.uuid, "uuid", "", "resource uuid for detail endpoints")
	fl.StringVar(&f.near, "near", "", "point as lat,lon for a distance filter")
	fl.Float64Var(&f.distance, "distance", 0, "distance in meters around --near")
	fl.StringSliceVar(&f.statistics, "statistics", nil, "statistics to request (e.g. min,max,mean)")
	fl.StringVar(&f.featureInfo, "feature-info", "", "raster layer to sample at --near")
	fl.StringVar(&f.limits, "limits", "", "raster layer to request value limits for within --bbox")
}

// descriptors converts the flags into query descriptors in a fixed order.
func (f *filterFlags) descriptors() ([]query.Descriptor, error) {
	var out []query.Descriptor

	if f.limits != "" && f.bbox == "" {
		return nil, fmt.Errorf("--limits requires --bbox")
	}
	if f.featureInfo != "" && f.near == "" {
		return nil, fmt.Errorf("--feature-info requires --near")
	}

	if f.bbox != "" {
		vals, err := parseFloats(f.bbox, 4)
		if err != nil {
			return nil, fmt.Errorf("--bbox: %w", err)
		}
		sw := query.LatLon{Lat: vals[0], Lon: vals[1]}
		ne := query.LatLon{Lat: vals[2], Lon: vals[3]}
		if f.limits != "" {
			out = append(out, query.Limits{Layer: f.limits, SouthWest: sw, NorthEast: ne})
		} else {
			out = append(out, query.BoundingBox{SouthWest: sw, NorthEast: ne, FieldName: f.bboxField})
		}
	}

	if f.start != "" || f.end != "" {
		dr := query.DatetimeRange{FieldName: f.timeField}
		if f.start != "" {
			ts, err := parser.ParseTimestamp(f.start)
			if err != nil {
				return nil, fmt.Errorf("--start: %w", err)
			}
			dr.Start = ts
		}
		if f.end != "" {
			ts, err := parser.ParseTimestamp(f.end)
			if err != nil {
				return nil, fmt.Errorf("--end: %w", err)
			}
			dr.End = ts
		}
		out = append(out, dr)
	}

	if len(f.organisation) > 0 {
		out = append(out, query.Organisation{OrganisationIDs: f.organisation})
	}

	if f.near != "" {
		vals, err := parseFloats(f.near, 2)
		if err != nil {
			return nil, fmt.Errorf("--near: %w", err)
		}
		point := query.LatLon{Lat: vals[0], Lon: vals[1]}
		if f.featureInfo != "" {
			out = append(out, query.FeatureInfo{Point: point, Layer: f.featureInfo})
		} else {
			out = append(out, query.DistanceToPoint{Distance: f.distance, Point: point})
		}
	}

	if f.search != "" {
		out = append(out, query.Search{Term: f.search})
	}

	if len(f.statistics) > 0 {
		out = append(out, query.Statistics(f.statistics))
	}

	for _, kv := range f.filters {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--filter %q: want key=value", kv)
		}
		out = append(out, query.Raw{key: value})
	}

	if f.uuid != "" {
		out = append(out, query.Raw{"uuid": f.uuid})
	}

	if f.pageSize > 0 {
		out = append(out, query.PageSize(f.pageSize))
	}

	return out, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = f
	}
	return out, nil
}
