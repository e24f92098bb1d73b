package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gigapi/gigaview/model"
	"github.com/gigapi/gigaview/service/db"
	"github.com/gigapi/gigaview/service/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(file, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return file
}

func newExecutor(t *testing.T, opts Options) *Executor {
	t.Helper()
	pool, err := db.ConnectDuckDB("", 4, nil)
	require.NoError(t, err)
	e, err := New(pool, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Close()
		pool.Close()
	})
	return e
}

func intPtr(i int) *int { return &i }

func TestExecuteEqualsFilter(t *testing.T) {
	file := writeCSV(t, "a,b", "4,x", "5,y", "6,z")
	e := newExecutor(t, Options{})
	req := &model.DataRequest{
		Columns: []string{"a", "b"},
		Filters: []model.Filter{&model.EqualsFilter{Column: "a", Value: 5, Type: model.FieldInt}},
		Limit:   intPtr(10),
		Offset:  intPtr(0),
	}
	q, err := query.Build(req, file, query.CSV)
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), q).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TotalItems)
	assert.Equal(t, 1, res.QuerySize)
	require.Len(t, res.Data, 1)
	assert.Equal(t, []string{"a", "b"}, res.Data[0].Columns())
	assert.Equal(t, []any{int64(5), "y"}, res.Data[0].Values())
	assert.Equal(t, []model.Column{{Name: "a", Type: model.TypeBigint}, {Name: "b", Type: model.TypeString}}, res.Columns)
}

func TestExecuteGroupedAverage(t *testing.T) {
	file := writeCSV(t, "city,temp", "A,10", "A,20", "B,5")
	e := newExecutor(t, Options{})
	req := &model.DataRequest{
		GroupBy:      []string{"city"},
		Aggregations: []model.Aggregation{{Column: "temp", Function: model.AggAvg}},
	}
	q, err := query.Build(req, file, query.CSV)
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), q).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalItems)
	groups := map[string]any{}
	for _, row := range res.Data {
		city, _ := row.Get("city")
		avg, ok := row.Get("avg_temp")
		require.True(t, ok)
		groups[city.(string)] = avg
	}
	assert.Equal(t, map[string]any{"A": 15.0, "B": 5.0}, groups)
}

func TestExecutePaginationBound(t *testing.T) {
	lines := []string{"n"}
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprint(i))
	}
	file := writeCSV(t, lines...)
	e := newExecutor(t, Options{})

	for _, c := range []struct{ limit, offset, expected int }{
		{3, 0, 3},
		{3, 8, 2},
		{20, 5, 5},
		{0, 0, 0},
	} {
		q, err := query.Build(&model.DataRequest{Limit: intPtr(c.limit), Offset: intPtr(c.offset)}, file, query.CSV)
		require.NoError(t, err)
		res, err := e.Execute(context.Background(), q).Get()
		require.NoError(t, err)
		assert.Equal(t, int64(10), res.TotalItems)
		assert.Equal(t, c.expected, res.QuerySize, "limit %d offset %d", c.limit, c.offset)
	}
}

func TestExecuteEngineError(t *testing.T) {
	file := writeCSV(t, "a", "1")
	e := newExecutor(t, Options{})
	q, err := query.Build(&model.DataRequest{Columns: []string{"missing"}}, file, query.CSV)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), q).Get()
	assert.True(t, model.ErrIs(err, model.EngineErr), err)

	// the permit came back
	release, err := e.gate.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestExecutePermitTimeout(t *testing.T) {
	file := writeCSV(t, "a", "1")
	e := newExecutor(t, Options{Permits: 1, PermitTimeout: 50 * time.Millisecond})
	q, err := query.Build(&model.DataRequest{}, file, query.CSV)
	require.NoError(t, err)

	release, err := e.gate.Acquire(context.Background())
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), q).Get()
	assert.True(t, model.ErrIs(err, model.OverloadErr), err)

	release()
	res, err := e.Execute(context.Background(), q).Get()
	require.NoError(t, err)
	assert.Equal(t, 1, res.QuerySize)
}

func TestQueueFullIsOverload(t *testing.T) {
	e := newExecutor(t, Options{Permits: 1, Workers: 1, QueueDepth: 1})
	block := make(chan struct{})
	noop := task{run: func() {}, fail: func(error) {}}
	require.NoError(t, e.submit(task{run: func() { <-block }, fail: func(error) {}}))

	assert.Eventually(t, func() bool {
		return model.ErrIs(e.submit(noop), model.OverloadErr)
	}, time.Second, time.Millisecond)
	close(block)
}

func TestStream(t *testing.T) {
	file := writeCSV(t, "a", "1", "2", "3")
	e := newExecutor(t, Options{})
	sql, err := query.Compile(&model.DataRequest{}, file, query.CSV)
	require.NoError(t, err)

	sum, err := Stream(e, context.Background(), sql, func(rows model.RowScanner) (int64, error) {
		var total int64
		for rows.Next() {
			var v int64
			if err := rows.Scan(&v); err != nil {
				return 0, err
			}
			total += v
		}
		return total, rows.Err()
	}).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(6), sum)

	_, err = Stream(e, context.Background(), sql, func(rows model.RowScanner) (int64, error) {
		return 0, model.NewCompileErr("bad aggregation", nil)
	}).Get()
	assert.True(t, model.ErrIs(err, model.CompileErr))
}

func TestFreshExecutorAcceptsWork(t *testing.T) {
	file := writeCSV(t, "a", "1", "2")
	q, err := query.Build(&model.DataRequest{}, file, query.CSV)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		e := newExecutor(t, Options{})
		res, err := e.Execute(context.Background(), q).Get()
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, 2, res.QuerySize)
	}

	e := newExecutor(t, Options{})
	for i := 0; i < 100; i++ {
		_, err := e.Execute(context.Background(), q).Get()
		require.NoError(t, err, "sequential %d", i)
	}

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := e.Execute(context.Background(), q).Get()
			return err
		})
	}
	require.NoError(t, g.Wait())
}

func TestStreamPanicFailsPromise(t *testing.T) {
	file := writeCSV(t, "a", "1")
	e := newExecutor(t, Options{Permits: 1})
	sql, err := query.Compile(&model.DataRequest{}, file, query.CSV)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = Stream(e, ctx, sql, func(model.RowScanner) (int, error) {
		panic("broken aggregator")
	}).GetContext(ctx)
	require.Error(t, err)
	assert.True(t, model.ErrIs(err, model.EngineErr), err)

	// the single permit came back
	res, err := e.Execute(ctx, query.Query{SQL: sql}).GetContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.QuerySize)
}

func TestExecuteSerializesWithOnePermit(t *testing.T) {
	file := writeCSV(t, "a", "1")
	e := newExecutor(t, Options{Permits: 1, PermitTimeout: 5 * time.Second})
	sql, err := query.Compile(&model.DataRequest{}, file, query.CSV)
	require.NoError(t, err)

	started := make(chan struct{})
	unblock := make(chan struct{})
	first := Stream(e, context.Background(), sql, func(rows model.RowScanner) (int, error) {
		close(started)
		<-unblock
		n := 0
		for rows.Next() {
			n++
		}
		return n, rows.Err()
	})
	<-started

	second := e.Execute(context.Background(), query.Query{SQL: sql})
	time.Sleep(100 * time.Millisecond)
	assert.False(t, second.Resolved(), "second request waits for the permit")

	close(unblock)
	n, err := first.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	res, err := second.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, res.QuerySize)
}

func TestGateSerializesHolders(t *testing.T) {
	gate := NewGate(1, time.Second)
	const hold = 100 * time.Millisecond
	start := time.Now()
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			release, err := gate.Acquire(context.Background())
			if err != nil {
				return err
			}
			defer release()
			time.Sleep(hold)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.GreaterOrEqual(t, time.Since(start), 2*hold-10*time.Millisecond)
}

func TestGateReleasesOnce(t *testing.T) {
	gate := NewGate(1, 20*time.Millisecond)
	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()

	first, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	defer first()
	_, err = gate.Acquire(context.Background())
	assert.True(t, model.ErrIs(err, model.OverloadErr))
}

func TestGateCanceledContext(t *testing.T) {
	gate := NewGate(1, time.Second)
	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gate.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, model.ErrIs(err, model.OverloadErr))
}

func TestColumnType(t *testing.T) {
	cases := map[string]model.ColumnType{
		"VARCHAR":                  model.TypeString,
		"INTEGER":                  model.TypeInteger,
		"BIGINT":                   model.TypeBigint,
		"DOUBLE":                   model.TypeDouble,
		"DECIMAL(18,3)":            model.TypeDecimal,
		"BOOLEAN":                  model.TypeBoolean,
		"DATE":                     model.TypeDate,
		"TIMESTAMP":                model.TypeTimestamp,
		"TIMESTAMP WITH TIME ZONE": model.TypeTimestamp,
		"TIME":                     model.TypeTime,
		"LIST":                     model.TypeUnknown,
	}
	for name, expected := range cases {
		assert.Equal(t, expected, columnType(name), name)
	}
}
