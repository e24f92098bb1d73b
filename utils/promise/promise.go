package promise

import (
	"context"
	"sync"
)

// Promise is a one-shot result slot. Done resolves it once; later calls are
// ignored.
type Promise[T any] struct {
	once sync.Once
	done chan struct{}
	err  error
	res  T
}

func New[T any]() *Promise[T] {
	return &Promise[T]{
		done: make(chan struct{}),
	}
}

func Fulfilled[T any](err error, res T) *Promise[T] {
	p := New[T]()
	p.Done(res, err)
	return p
}

// Get blocks until the promise is resolved.
func (p *Promise[T]) Get() (T, error) {
	<-p.done
	return p.res, p.err
}

// GetContext stops waiting when ctx is done. The promise itself keeps
// running and resolves on its own.
func (p *Promise[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		var res T
		return res, ctx.Err()
	}
}

// Resolved reports whether Done was called.
func (p *Promise[T]) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Promise[T]) Done(res T, err error) {
	p.once.Do(func() {
		p.res = res
		p.err = err
		close(p.done)
	})
}
