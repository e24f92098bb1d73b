package executor

import (
	"context"
	"sync"
	"time"

	"github.com/gigapi/gigaview/metrics"
	"github.com/gigapi/gigaview/model"
	"golang.org/x/sync/semaphore"
)

// Gate bounds how many requests use the engine at once.
type Gate struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewGate(permits int64, timeout time.Duration) *Gate {
	if permits < 1 {
		permits = 1
	}
	return &Gate{
		sem:     semaphore.NewWeighted(permits),
		timeout: timeout,
	}
}

// Acquire waits at most the gate timeout for a permit. The returned release
// func is safe to call more than once; only the first call releases.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var err error
	if g.timeout <= 0 {
		if !g.sem.TryAcquire(1) {
			err = context.DeadlineExceeded
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
		err = g.sem.Acquire(waitCtx, 1)
		cancel()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.OverloadTotal.WithLabelValues("permit_timeout").Inc()
		return nil, model.NewOverloadErr("engine busy, no permit available", err)
	}
	metrics.PermitsInUse.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.sem.Release(1)
			metrics.PermitsInUse.Dec()
		})
	}, nil
}
