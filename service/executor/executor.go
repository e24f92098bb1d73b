package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gigapi/gigaview/metrics"
	"github.com/gigapi/gigaview/model"
	"github.com/gigapi/gigaview/service/query"
	"github.com/gigapi/gigaview/utils/logger"
	"github.com/gigapi/gigaview/utils/promise"
	"github.com/panjf2000/ants/v2"
)

// ConnPool hands out engine connections. *sql.DB satisfies it.
type ConnPool interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

type Options struct {
	Permits       int64
	PermitTimeout time.Duration
	Workers       int
	// QueueDepth is the number of tasks allowed to wait for a busy worker.
	// Zero means a task is only accepted when a worker can take it.
	QueueDepth int
}

func (o Options) withDefaults() Options {
	if o.Permits < 1 {
		o.Permits = 4
	}
	if o.PermitTimeout == 0 {
		o.PermitTimeout = 10 * time.Second
	}
	if o.Workers < 1 {
		o.Workers = int(o.Permits)
	}
	if o.QueueDepth < 0 {
		o.QueueDepth = 0
	}
	return o
}

type task struct {
	run  func()
	fail func(error)
}

// Executor runs compiled queries on a fixed worker pool behind a permit gate.
type Executor struct {
	conns   ConnPool
	gate    *Gate
	workers *ants.Pool
	queue   chan task
	// inflight counts accepted tasks that have not finished, bounded by
	// capacity (workers plus queue depth).
	inflight atomic.Int64
	capacity int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	log    *slog.Logger
}

func New(conns ConnPool, opts Options) (*Executor, error) {
	opts = opts.withDefaults()
	log := logger.With("executor")
	workers, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(p any) {
		log.Error("engine task panicked", "panic", p)
	}))
	if err != nil {
		return nil, err
	}
	e := &Executor{
		conns:   conns,
		gate:    NewGate(opts.Permits, opts.PermitTimeout),
		workers: workers,
		queue:    make(chan task, opts.Workers+opts.QueueDepth),
		capacity: int64(opts.Workers + opts.QueueDepth),
		log:      log,
	}
	e.wg.Add(1)
	go e.dispatch()
	return e, nil
}

// dispatch feeds queued tasks to the pool, blocking while all workers are busy.
func (e *Executor) dispatch() {
	defer e.wg.Done()
	for t := range e.queue {
		metrics.QueueLength.Dec()
		run := t.run
		err := e.workers.Submit(func() {
			defer e.inflight.Add(-1)
			run()
		})
		if err != nil {
			e.inflight.Add(-1)
			t.fail(model.NewOverloadErr("worker pool unavailable", err))
		}
	}
}

// submit never blocks: once workers and queue are all taken it is an
// overload. The channel holds capacity tasks, so the send cannot block.
func (e *Executor) submit(t task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return model.NewOverloadErr("executor is closed", nil)
	}
	if e.inflight.Add(1) > e.capacity {
		e.inflight.Add(-1)
		metrics.OverloadTotal.WithLabelValues("queue_full").Inc()
		return model.NewOverloadErr("engine task queue is full", nil)
	}
	e.queue <- t
	metrics.QueueLength.Inc()
	return nil
}

// schedule acquires a permit for ctx, then hands work to the pool. The permit
// is held until work returns, whatever the outcome.
func schedule[T any](e *Executor, ctx context.Context, kind string, work func(conn *sql.Conn) (T, error)) *promise.Promise[T] {
	p := promise.New[T]()
	var zero T
	done := func(res T, err error, start time.Time) {
		metrics.QueriesTotal.WithLabelValues(kind, status(err)).Inc()
		if !start.IsZero() {
			metrics.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}
		p.Done(res, err)
	}
	go func() {
		release, err := e.gate.Acquire(ctx)
		if err != nil {
			done(zero, err, time.Time{})
			return
		}
		err = e.submit(task{
			run: func() {
				defer release()
				start := time.Now()
				defer func() {
					if r := recover(); r != nil {
						e.log.Error("engine task panicked", "kind", kind, "panic", r)
						done(zero, model.NewEngineErr("engine task panicked", fmt.Errorf("%v", r)), start)
					}
				}()
				conn, err := e.conn(ctx)
				if err != nil {
					done(zero, err, start)
					return
				}
				defer conn.Close()
				res, err := work(conn)
				done(res, err, start)
			},
			fail: func(err error) {
				release()
				done(zero, err, time.Time{})
			},
		})
		if err != nil {
			release()
			done(zero, err, time.Time{})
		}
	}()
	return p
}

func (e *Executor) conn(ctx context.Context) (*sql.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := e.conns.Conn(ctx)
	if err != nil {
		return nil, model.NewEngineErr("failed to get engine connection", err)
	}
	return conn, nil
}

// Execute runs the count query and then the page query on one connection.
// Either both succeed or the promise fails; rows are never partial.
func (e *Executor) Execute(ctx context.Context, q query.Query) *promise.Promise[*model.TabularResponse] {
	return schedule(e, ctx, "tabular", func(conn *sql.Conn) (*model.TabularResponse, error) {
		var total int64
		if q.CountSQL != "" {
			if err := conn.QueryRowContext(ctx, q.CountSQL).Scan(&total); err != nil {
				return nil, model.NewEngineErr("count query failed", err)
			}
		}
		rows, err := conn.QueryContext(ctx, q.SQL)
		if err != nil {
			return nil, model.NewEngineErr("query failed", err)
		}
		defer rows.Close()
		res, err := convertRows(rows)
		if err != nil {
			return nil, model.NewEngineErr("failed to read query results", err)
		}
		if q.CountSQL == "" {
			total = int64(res.QuerySize)
		}
		res.TotalItems = total
		return res, nil
	})
}

// Stream runs one query and hands its rows to fn inside the permit.
func Stream[T any](e *Executor, ctx context.Context, stmt string, fn func(model.RowScanner) (T, error)) *promise.Promise[T] {
	return schedule(e, ctx, "stream", func(conn *sql.Conn) (T, error) {
		var zero T
		rows, err := conn.QueryContext(ctx, stmt)
		if err != nil {
			return zero, model.NewEngineErr("query failed", err)
		}
		defer rows.Close()
		res, err := fn(rows)
		if err != nil {
			if model.ErrCode(err) == "" {
				err = model.NewEngineErr("failed to read query results", err)
			}
			return zero, err
		}
		return res, nil
	})
}

// Close stops accepting work, waits for queued tasks to be handed to the pool
// and releases the pool.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()
	e.wg.Wait()
	if err := e.workers.ReleaseTimeout(30 * time.Second); err != nil {
		e.log.Warn("worker pool did not drain", "error", err)
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case model.ErrIs(err, model.OverloadErr):
		return "overload"
	case model.ErrIs(err, model.EngineErr):
		return "engine_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
