package query_test

import (
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/lizard-client/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_BoundingBox(t *testing.T) {
	t.Parallel()

	bbox := query.BoundingBox{
		SouthWest: query.LatLon{Lat: 52.0, Lon: 4.5},
		NorthEast: query.LatLon{Lat: 52.5, Lon: 5.25},
	}

	params, err := query.Merge(query.Options{}, bbox)
	require.NoError(t, err)
	require.Equal(t, 1, params.Len())

	got, ok := params.Get(query.DefaultBBoxField)
	require.True(t, ok)
	assert.Equal(t, "POLYGON ((4.5 52, 4.5 52.5, 5.25 52.5, 5.25 52, 4.5 52))", got)

	again, err := query.Merge(query.Options{}, bbox)
	require.NoError(t, err)
	assert.Equal(t, params.Encode(), again.Encode())
}

func TestMerge_BoundingBoxCorners(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{}, query.BoundingBox{
		SouthWest: query.LatLon{Lat: -10, Lon: -20},
		NorthEast: query.LatLon{Lat: 10, Lon: 20.5},
		FieldName: "geom_within",
		Format:    query.BBoxCorners,
	})
	require.NoError(t, err)

	got, _ := params.Get("geom_within")
	assert.Equal(t, "-10,-20,10,20.5", got)
}

func TestMerge_BoundingBoxOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sw   query.LatLon
		ne   query.LatLon
	}{
		{"latitude above 90", query.LatLon{Lat: 0, Lon: 0}, query.LatLon{Lat: 90.1, Lon: 0}},
		{"latitude below -90", query.LatLon{Lat: -91, Lon: 0}, query.LatLon{Lat: 0, Lon: 0}},
		{"longitude above 180", query.LatLon{Lat: 0, Lon: 0}, query.LatLon{Lat: 0, Lon: 180.5}},
		{"longitude below -180", query.LatLon{Lat: 0, Lon: -181}, query.LatLon{Lat: 0, Lon: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := query.Merge(query.Options{}, query.BoundingBox{SouthWest: tt.sw, NorthEast: tt.ne})

			var ife *query.InvalidFilterError
			require.ErrorAs(t, err, &ife)
			assert.Equal(t, "bbox", ife.Kind)
			assert.Equal(t, 0, ife.Index)
		})
	}
}

func TestMerge_DatetimeRange(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))

	params, err := query.Merge(query.Options{}, query.DatetimeRange{Start: start, End: end})
	require.NoError(t, err)

	assert.Equal(t, []string{"time__gte", "time__lte"}, params.Keys())
	gte, _ := params.Get("time__gte")
	lte, _ := params.Get("time__lte")
	assert.Equal(t, "2024-01-01T00:00:00Z", gte)
	assert.Equal(t, "2024-02-01T11:30:00Z", lte)
}

func TestMerge_DatetimeRangeStartAfterEnd(t *testing.T) {
	t.Parallel()

	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, delta := range []time.Duration{time.Nanosecond, time.Second, time.Hour, 24 * 365 * time.Hour} {
		t.Run(delta.String(), func(t *testing.T) {
			t.Parallel()

			_, err := query.Merge(query.Options{}, query.DatetimeRange{
				Start:     base.Add(delta),
				End:       base,
				FieldName: "datetime",
			})

			var ife *query.InvalidFilterError
			require.ErrorAs(t, err, &ife)
			assert.Equal(t, "datetime_range", ife.Kind)
		})
	}
}

func TestMerge_DatetimeRangeOpenEnded(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{}, query.DatetimeRange{
		Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"time__gte"}, params.Keys())

	_, err = query.Merge(query.Options{}, query.DatetimeRange{})
	var ife *query.InvalidFilterError
	assert.ErrorAs(t, err, &ife)
}

func TestMerge_Organisation(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{}, query.Organisation{OrganisationID: " 61F5A464C35044C19BC7D4B42D7F58CB "})
	require.NoError(t, err)

	got, _ := params.Get(query.OrganisationKey)
	assert.Equal(t, "61f5a464-c350-44c1-9bc7-d4b42d7f58cb", got)

	params, err = query.Merge(query.Options{}, query.Organisation{OrganisationID: "nelen-schuurmans"})
	require.NoError(t, err)
	got, _ = params.Get(query.OrganisationKey)
	assert.Equal(t, "nelen-schuurmans", got)

	_, err = query.Merge(query.Options{}, query.Organisation{})
	var ife *query.InvalidFilterError
	assert.ErrorAs(t, err, &ife)
}

func TestMerge_LastDescriptorWins(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{},
		query.Raw{"name": "first", "code": "a"},
		query.Raw{"name": "second"},
		query.Raw{"name": "third"},
	)
	require.NoError(t, err)

	name, _ := params.Get("name")
	assert.Equal(t, "third", name)
	assert.Equal(t, []string{"code", "name"}, params.Keys())
}

func TestMerge_ListKeysAccumulate(t *testing.T) {
	t.Parallel()

	opts := query.Options{ListKeys: []string{query.OrganisationKey, "observation_type__in"}}
	params, err := query.Merge(opts,
		query.Organisation{OrganisationID: "org-a"},
		query.Raw{"observation_type__in": "1", "name": "x"},
		query.Organisation{OrganisationID: "org-b"},
		query.Raw{"observation_type__in": "7", "name": "y"},
	)
	require.NoError(t, err)

	orgs, _ := params.Get(query.OrganisationKey)
	types, _ := params.Get("observation_type__in")
	name, _ := params.Get("name")
	assert.Equal(t, "org-a,org-b", orgs)
	assert.Equal(t, "1,7", types)
	assert.Equal(t, "y", name, "keys not declared list-valued must override")
}

func TestMerge_UndeclaredKeyOverrides(t *testing.T) {
	t.Parallel()

	// organisation__uuid is only list-valued when the endpoint says so.
	params, err := query.Merge(query.Options{},
		query.Organisation{OrganisationID: "org-a"},
		query.Organisation{OrganisationID: "org-b"},
	)
	require.NoError(t, err)

	got, _ := params.Get(query.OrganisationKey)
	assert.Equal(t, "org-b", got)
}

func TestMerge_InvalidDescriptorPosition(t *testing.T) {
	t.Parallel()

	_, err := query.Merge(query.Options{},
		query.Raw{"a": "1"},
		query.Search{Term: "pump"},
		query.Raw{"": "oops"},
	)

	var ife *query.InvalidFilterError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, 2, ife.Index)
	assert.Equal(t, "raw", ife.Kind)

	_, err = query.Merge(query.Options{}, nil)
	require.ErrorAs(t, err, &ife)
}

func TestMerge_Supplementary(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{},
		query.DistanceToPoint{Distance: 250, Point: query.LatLon{Lat: 52.1, Lon: 5.2}},
		query.Search{Term: "gemaal"},
		query.Statistics{"min", "mean"},
		query.PageSize(500),
	)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"distance":   "250",
		"point":      "5.2,52.1",
		"search":     "gemaal",
		"min_points": "1",
		"fields":     "min,count,sum",
		"page_size":  "500",
	}, params.Map())

	_, err = query.Merge(query.Options{}, query.PageSize(-1))
	assert.Error(t, err)
	_, err = query.Merge(query.Options{}, query.Statistics{})
	assert.Error(t, err)
}

func TestMerge_OrganisationList(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{}, query.Organisation{
		OrganisationID:  "nelen-schuurmans",
		OrganisationIDs: []string{"61F5A464C35044C19BC7D4B42D7F58CB", " hhnk "},
	})
	require.NoError(t, err)
	got, _ := params.Get(query.OrganisationKey)
	assert.Equal(t, "nelen-schuurmans,61f5a464-c350-44c1-9bc7-d4b42d7f58cb,hhnk", got)

	params, err = query.Merge(query.Options{}, query.Organisation{OrganisationIDs: []string{"a", "b"}})
	require.NoError(t, err)
	got, _ = params.Get(query.OrganisationKey)
	assert.Equal(t, "a,b", got)

	invalid := []query.Organisation{
		{OrganisationIDs: []string{"a", ""}},
		{OrganisationIDs: []string{"a,b"}},
	}
	for _, o := range invalid {
		_, err := query.Merge(query.Options{}, o)
		var ife *query.InvalidFilterError
		assert.ErrorAs(t, err, &ife, "%v", o.OrganisationIDs)
	}
}

func TestMerge_FeatureInfo(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{}, query.FeatureInfo{
		Point: query.LatLon{Lat: 52.1, Lon: 5.2},
		Layer: "dem:nl",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"agg", "geom", "srs", "raster_names", "count"}, params.Keys())
	assert.Equal(t, map[string]string{
		"agg":          "curve",
		"geom":         "POINT(5.2 52.1)",
		"srs":          "EPSG:4326",
		"raster_names": "dem:nl",
		"count":        "false",
	}, params.Map())
	assert.Contains(t, params.Encode(), "geom=POINT%285.2+52.1%29")

	for _, fi := range []query.FeatureInfo{
		{Point: query.LatLon{Lat: 91, Lon: 5}, Layer: "dem:nl"},
		{Point: query.LatLon{Lat: 52, Lon: 5}, Layer: " "},
	} {
		_, err := query.Merge(query.Options{}, fi)
		var ife *query.InvalidFilterError
		require.ErrorAs(t, err, &ife)
		assert.Equal(t, "feature_info", ife.Kind)
	}
}

func TestMerge_Limits(t *testing.T) {
	t.Parallel()

	params, err := query.Merge(query.Options{}, query.Limits{
		Layer:     "dem:nl",
		SouthWest: query.LatLon{Lat: 52, Lon: 4.5},
		NorthEast: query.LatLon{Lat: 52.5, Lon: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"request": "getlimits",
		"layers":  "dem:nl",
		"bbox":    "POLYGON ((4.5 52, 4.5 52.5, 5 52.5, 5 52, 4.5 52))",
		"width":   "16",
		"height":  "16",
		"srs":     "epsg:4326",
	}, params.Map())

	for _, l := range []query.Limits{
		{Layer: "", NorthEast: query.LatLon{Lat: 1, Lon: 1}},
		{Layer: "dem:nl", SouthWest: query.LatLon{Lat: -100}},
	} {
		_, err := query.Merge(query.Options{}, l)
		var ife *query.InvalidFilterError
		require.ErrorAs(t, err, &ife)
		assert.Equal(t, "limits", ife.Kind)
	}
}

func TestMerge_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]query.Descriptor{
		{query.BoundingBox{SouthWest: query.LatLon{Lat: 51.9, Lon: 4.1}, NorthEast: query.LatLon{Lat: 52.3, Lon: 4.9}}},
		{query.Raw{"name__icontains": "a&b=c", "code": "ü ø/?"}, query.Organisation{OrganisationID: "o+1"}},
		{query.DatetimeRange{Start: time.Unix(0, 0), End: time.Unix(1700000000, 123000000)}, query.Search{Term: "100%"}},
	}

	for i, descriptors := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Parallel()

			params, err := query.Merge(query.Options{}, descriptors...)
			require.NoError(t, err)

			decoded, err := url.ParseQuery(params.Encode())
			require.NoError(t, err)
			got := map[string]string{}
			for k := range decoded {
				got[k] = decoded.Get(k)
			}
			assert.Equal(t, params.Map(), got)

			reparsed, err := query.ParseParams("?" + params.Encode())
			require.NoError(t, err)
			assert.Equal(t, params.Keys(), reparsed.Keys())
			assert.Equal(t, params.Map(), reparsed.Map())
		})
	}
}

func TestParseRaw(t *testing.T) {
	t.Parallel()

	raw, err := query.ParseRaw("?uuid=abc&page_size=10")
	require.NoError(t, err)
	assert.Equal(t, query.Raw{"uuid": "abc", "page_size": "10"}, raw)

	_, err = query.ParseRaw("a=%zz")
	var ife *query.InvalidFilterError
	require.ErrorAs(t, err, &ife)
	assert.True(t, errors.Unwrap(ife) != nil)
}
