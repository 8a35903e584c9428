package cqrs

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Executor runs asynchronous dispatches.
type Executor interface {
	Submit(task func())
}

// ExecutorFunc is a function adapter for Executor.
type ExecutorFunc func(task func())

// Submit implements Executor.
func (f ExecutorFunc) Submit(task func()) { f(task) }

// GoExecutor starts a goroutine per task.
type GoExecutor struct{}

// Submit implements Executor.
func (GoExecutor) Submit(task func()) { go task() }

// PoolExecutor runs at most a fixed number of tasks at once. Submit never
// blocks: tasks beyond the limit wait for a free slot on goroutines of
// their own. A task may therefore submit further tasks, but a task that
// waits for the Future of a task queued behind it deadlocks once every
// slot is held by such waiters.
type PoolExecutor struct {
	group errgroup.Group
	slots *semaphore.Weighted // nil means no limit
}

// NewPoolExecutor returns a PoolExecutor running up to limit tasks
// concurrently. A limit of zero or less means no limit.
func NewPoolExecutor(limit int) *PoolExecutor {
	p := &PoolExecutor{}
	if limit > 0 {
		p.slots = semaphore.NewWeighted(int64(limit))
	}
	return p
}

// Submit implements Executor.
func (p *PoolExecutor) Submit(task func()) {
	p.group.Go(func() error {
		if p.slots != nil {
			// Acquire with a background context only fails on a weight
			// above the limit.
			_ = p.slots.Acquire(context.Background(), 1)
			defer p.slots.Release(1)
		}
		task()
		return nil
	})
}

// Wait blocks until every submitted task has finished.
func (p *PoolExecutor) Wait() {
	_ = p.group.Wait()
}

// Future is the pending result of an asynchronous dispatch.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx is done. Giving up on
// ctx does not stop the dispatch.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// runAsync submits fn to e and completes the returned future with its
// result. A panic in fn completes the future with an *InvocationError.
func runAsync[T any](e Executor, name string, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	e.Submit(func() {
		var (
			v   T
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				v, err = zero, &InvocationError{Handler: name, Err: fmt.Errorf("panic: %v", r)}
			}
			f.complete(v, err)
		}()
		v, err = fn()
	})
	return f
}
