package service

import "context"

// Future is the eventual result of an asynchronous call. It resolves exactly
// once. Abandoning a Future does not cancel the call; cancel the ctx given to
// Async for that.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Async runs fn in its own goroutine
func Async[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a Future that is already complete
func Resolved[T any](val T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: val, err: err}
	close(f.done)
	return f
}

// Done is closed when the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the result. If ctx ends first, Await returns ctx.Err() and
// the call keeps running; Await may be called again later.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
