package geo

import (
	"errors"
	"testing"

	"github.com/gigapi/gigaview/model"
	"github.com/mmcloughlin/geohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceRows struct {
	columns []string
	data    [][]any
	pos     int
	nexts   int
}

func (r *sliceRows) Columns() ([]string, error) { return r.columns, nil }

func (r *sliceRows) Next() bool {
	r.nexts++
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		*(dest[i].(*any)) = v
	}
	return nil
}

func (r *sliceRows) Err() error { return nil }

func mapRequest() *model.MapRequest {
	return &model.MapRequest{Lat: "lat", Lon: "lon", ID: "id"}
}

func TestIdenticalPointsCluster(t *testing.T) {
	rows := &sliceRows{
		columns: []string{"lat", "lon", "id", "temp"},
		data: [][]any{
			{1.0, 1.0, "a", 10.0},
			{1.0, 1.0, "b", nil},
			{1.0, 1.0, "c", 20.0},
		},
	}
	req := mapRequest()
	req.Measures = []string{"temp"}
	res, err := Aggregate(rows, req)
	require.NoError(t, err)
	require.Len(t, res.Points, 1)

	p := res.Points[0]
	assert.Equal(t, 3, p.Count)
	assert.Nil(t, p.ID)
	assert.Equal(t, geohash.EncodeWithPrecision(1, 1, 9), p.Geohash)
	lat, lon := geohash.DecodeCenter(p.Geohash)
	assert.Equal(t, lat, p.Lat)
	assert.Equal(t, lon, p.Lon)
	require.NotNil(t, p.Measures["temp"])
	assert.InDelta(t, 15.0, *p.Measures["temp"], 1e-9)
	assert.Equal(t, model.MapCounts{Rows: 3, Buckets: 1, Clusters: 1}, res.Counts)
}

func TestSinglePointKeepsCoordinates(t *testing.T) {
	rows := &sliceRows{
		columns: []string{"lat", "lon", "id", "temp", "kind"},
		data: [][]any{
			{37.9838, 23.7275, int64(7), nil, []byte("metar")},
			{-33.8688, 151.2093, int64(8), 3.5, nil},
		},
	}
	req := mapRequest()
	req.Measures = []string{"temp"}
	req.Dimensions = []string{"kind"}
	res, err := Aggregate(rows, req)
	require.NoError(t, err)
	require.Len(t, res.Points, 2)

	byID := map[any]model.ClusterPoint{}
	for _, p := range res.Points {
		assert.Equal(t, 1, p.Count)
		byID[p.ID] = p
	}
	athens := byID[int64(7)]
	assert.Equal(t, 37.9838, athens.Lat)
	assert.Equal(t, 23.7275, athens.Lon)
	assert.Nil(t, athens.Measures["temp"])
	assert.Equal(t, []string{"metar"}, athens.Dimensions["kind"])

	sydney := byID[int64(8)]
	require.NotNil(t, sydney.Measures["temp"])
	assert.Equal(t, 3.5, *sydney.Measures["temp"])
	assert.Equal(t, []string{}, sydney.Dimensions["kind"])

	assert.Equal(t, map[string]map[string]int{"kind": {"metar": 1}}, res.Facets)
	assert.True(t, res.Points[0].Geohash < res.Points[1].Geohash)
}

func TestClusterDimensionsAreDistinct(t *testing.T) {
	rows := &sliceRows{
		columns: []string{"lat", "lon", "kind"},
		data: [][]any{
			{10.0, 10.0, "b"},
			{10.0, 10.0, "a"},
			{10.0, 10.0, "b"},
		},
	}
	req := &model.MapRequest{Lat: "lat", Lon: "lon", Dimensions: []string{"kind"}}
	res, err := Aggregate(rows, req)
	require.NoError(t, err)
	require.Len(t, res.Points, 1)
	assert.Equal(t, []string{"a", "b"}, res.Points[0].Dimensions["kind"])
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, res.Facets["kind"])
}

func TestSeriesByGroup(t *testing.T) {
	rows := &sliceRows{
		columns: []string{"lat", "lon", "city", "temp"},
		data: [][]any{
			{1.0, 1.0, "B", 5.0},
			{2.0, 2.0, "A", 10.0},
			{3.0, 3.0, "A", int64(20)},
			{4.0, 4.0, "A", nil},
		},
	}
	for fn, expected := range map[string][]float64{
		"avg":   {15, 5},
		"sum":   {30, 5},
		"min":   {10, 5},
		"max":   {20, 5},
		"count": {2, 1},
	} {
		rows.pos = 0
		req := &model.MapRequest{Lat: "lat", Lon: "lon", Measure: "temp", Aggregation: fn}
		req.GroupBy = []string{"city"}
		res, err := Aggregate(rows, req)
		require.NoError(t, err, fn)
		assert.Equal(t, []model.GroupedStats{
			{Group: []string{"A"}, Value: expected[0]},
			{Group: []string{"B"}, Value: expected[1]},
		}, res.Series, fn)
	}
}

func TestUnknownAggregationFailsBeforeReading(t *testing.T) {
	rows := &sliceRows{columns: []string{"lat", "lon", "temp"}, data: [][]any{{1.0, 1.0, 2.0}}}
	req := &model.MapRequest{Lat: "lat", Lon: "lon", Measure: "temp", Aggregation: "median"}
	_, err := Aggregate(rows, req)
	assert.True(t, model.ErrIs(err, model.CompileErr))
	assert.Zero(t, rows.nexts)
}

func TestNullCoordinatesAreSkipped(t *testing.T) {
	rows := &sliceRows{
		columns: []string{"lat", "lon"},
		data:    [][]any{{nil, 1.0}, {1.0, "x"}, {95.0, 1.0}, {1.0, 1.0}},
	}
	res, err := Aggregate(rows, &model.MapRequest{Lat: "lat", Lon: "lon"})
	require.NoError(t, err)
	assert.Equal(t, model.MapCounts{Rows: 4, Skipped: 3, Buckets: 1}, res.Counts)
}

func TestMissingColumn(t *testing.T) {
	rows := &sliceRows{columns: []string{"lat"}}
	_, err := Aggregate(rows, &model.MapRequest{Lat: "lat", Lon: "lon"})
	assert.True(t, model.ErrIs(err, model.CompileErr))
}

func TestZeroRows(t *testing.T) {
	rows := &sliceRows{columns: []string{"lat", "lon", "x", "y"}}
	req := &model.MapRequest{Lat: "lat", Lon: "lon", Paired: []string{"x", "y"}}
	res, err := Aggregate(rows, req)
	require.NoError(t, err)
	assert.Empty(t, res.Points)
	assert.Empty(t, res.Series)
	assert.Equal(t, model.RectStats{}, res.RectStats)
}

func TestPrecisionOverride(t *testing.T) {
	rows := &sliceRows{
		columns: []string{"lat", "lon"},
		data:    [][]any{{10.0, 10.0}, {10.001, 10.001}},
	}
	res, err := Aggregator{Precision: 3}.Aggregate(rows, &model.MapRequest{Lat: "lat", Lon: "lon"})
	require.NoError(t, err)
	require.Len(t, res.Points, 1)
	assert.Len(t, res.Points[0].Geohash, 3)

	rows.pos = 0
	res, err = Aggregator{Precision: 3}.Aggregate(rows, &model.MapRequest{Lat: "lat", Lon: "lon", Precision: 9})
	require.NoError(t, err)
	assert.Len(t, res.Points, 2)
}
