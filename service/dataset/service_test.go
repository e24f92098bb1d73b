package dataset

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/gigapi/gigaview/config"
	"github.com/gigapi/gigaview/model"
	"github.com/gigapi/gigaview/service/cache"
	"github.com/gigapi/gigaview/service/db"
	"github.com/gigapi/gigaview/service/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weatherParquet(t *testing.T) []byte {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "city", Type: arrow.BinaryTypes.String},
		{Name: "temp", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"A", "A", "B"}, nil)
	b.Field(1).(*array.Float64Builder).AppendValues([]float64{10, 20, 5}, nil)
	record := b.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(schema, &buf,
		parquet.NewWriterProperties(parquet.WithMaxRowGroupLength(100)),
		pqarrow.NewArrowWriterProperties())
	require.NoError(t, err)
	require.NoError(t, writer.Write(record))
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

type fixture struct {
	svc     *Service
	fetches atomic.Int64
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir()}
	remote := map[string][]byte{"http://fixtures/weather.parquet": weatherParquet(t)}
	locator, err := cache.NewManager(cache.Options{
		Root:     filepath.Join(f.dir, "cache"),
		MaxBytes: 1 << 20,
		TTL:      time.Minute,
		TmpDir:   filepath.Join(f.dir, "tmp"),
	}, cache.FetcherFunc(func(ctx context.Context, rawURL string) (io.ReadCloser, error) {
		f.fetches.Add(1)
		return io.NopCloser(bytes.NewReader(remote[rawURL])), nil
	}))
	require.NoError(t, err)

	pool, err := db.ConnectDuckDB("", 4, nil)
	require.NoError(t, err)
	exec, err := executor.New(pool, executor.Options{Permits: 2})
	require.NoError(t, err)

	catalog, err := config.ParseCatalog([]byte(`
datasets:
  weather:
    source: http://fixtures/weather.parquet
    type: remote
`))
	require.NoError(t, err)

	t.Cleanup(func() {
		exec.Close()
		pool.Close()
		locator.Close()
	})
	f.svc = &Service{Locator: locator, Executor: exec, Catalog: catalog}
	return f
}

func (f *fixture) csv(t *testing.T, name string, lines ...string) *model.DataSource {
	t.Helper()
	file := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(file, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return &model.DataSource{Source: file, SourceType: model.SourceLocal}
}

func TestQueryLocalCSV(t *testing.T) {
	f := newFixture(t)
	limit, offset := 10, 0
	res, err := f.svc.Query(context.Background(), &model.DataRequest{
		DataSource: f.csv(t, "a.csv", "a,b", "1,x", "5,y", "9,z"),
		Columns:    []string{"a", "b"},
		Filters:    []model.Filter{&model.EqualsFilter{Column: "a", Value: int64(5), Type: model.FieldInt}},
		Limit:      &limit,
		Offset:     &offset,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TotalItems)
	assert.Equal(t, 1, res.QuerySize)
	b, _ := res.Data[0].Get("b")
	assert.Equal(t, "y", b)
}

func TestQueryRemoteCatalogDataset(t *testing.T) {
	f := newFixture(t)
	req := &model.DataRequest{
		Dataset:      "weather",
		GroupBy:      []string{"city"},
		Aggregations: []model.Aggregation{{Column: "temp", Function: model.AggAvg}},
	}
	for i := 0; i < 2; i++ {
		res, err := f.svc.Query(context.Background(), req)
		require.NoError(t, err)
		groups := map[any]any{}
		for _, row := range res.Data {
			city, _ := row.Get("city")
			avg, _ := row.Get("avg_temp")
			groups[city] = avg
		}
		assert.Equal(t, map[any]any{"A": 15.0, "B": 5.0}, groups)
	}
	assert.Equal(t, int64(1), f.fetches.Load(), "second query is served from the cache")
}

func TestQueryUnknownDataset(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Query(context.Background(), &model.DataRequest{Dataset: "nope"})
	assert.True(t, model.ErrIs(err, model.CompileErr))
}

func TestMapClustersWithinRect(t *testing.T) {
	f := newFixture(t)
	src := f.csv(t, "points.csv",
		"lat,lon,station,temp,city,kind",
		"1.0,1.0,s1,10,A,metar",
		"1.0,1.0,s2,20,A,synop",
		"5.0,5.0,s3,30,B,metar",
		"60.0,60.0,s4,99,C,metar",
	)
	req := &model.MapRequest{
		DataRequest: model.DataRequest{DataSource: src, GroupBy: []string{"city"}},
		Rect:        &model.Rectangle{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10},
		Lat:         "lat",
		Lon:         "lon",
		ID:          "station",
		Measures:    []string{"temp"},
		Measure:     "temp",
		Aggregation: "max",
		Dimensions:  []string{"kind"},
	}
	res, err := f.svc.Map(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Points, 2)
	byCount := map[int]model.ClusterPoint{}
	for _, p := range res.Points {
		byCount[p.Count] = p
	}
	cluster := byCount[2]
	assert.Nil(t, cluster.ID)
	require.NotNil(t, cluster.Measures["temp"])
	assert.Equal(t, 15.0, *cluster.Measures["temp"])
	assert.Equal(t, []string{"metar", "synop"}, cluster.Dimensions["kind"])

	single := byCount[1]
	assert.Equal(t, "s3", single.ID)
	assert.Equal(t, 5.0, single.Lat)

	assert.Equal(t, []model.GroupedStats{
		{Group: []string{"A"}, Value: 20},
		{Group: []string{"B"}, Value: 30},
	}, res.Series)
	assert.Equal(t, model.MapCounts{Rows: 3, Buckets: 2, Clusters: 1}, res.Counts)
	assert.Equal(t, map[string]int{"metar": 2, "synop": 1}, res.Facets["kind"])
}

func TestMapPairedStats(t *testing.T) {
	f := newFixture(t)
	src := f.csv(t, "paired.csv",
		"lat,lon,x,y",
		"1.0,1.0,1,2",
		"2.0,2.0,2,4",
		"3.0,3.0,3,6",
		"4.0,4.0,,8",
	)
	res, err := f.svc.Map(context.Background(), &model.MapRequest{
		DataRequest: model.DataRequest{DataSource: src},
		Lat:         "lat",
		Lon:         "lon",
		Paired:      []string{"x", "y"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RectStats.Count)
	require.NotNil(t, res.RectStats.Correlation)
	assert.InDelta(t, 1.0, *res.RectStats.Correlation, 1e-9)
}

func TestMapRejectsUnknownAggregation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Map(context.Background(), &model.MapRequest{
		DataRequest: model.DataRequest{Dataset: "weather"},
		Lat:         "lat",
		Lon:         "lon",
		Measure:     "temp",
		Aggregation: "median",
	})
	assert.True(t, model.ErrIs(err, model.CompileErr))
	assert.Zero(t, f.fetches.Load())
}
