package recommend

import (
	"context"
	"sync"
)

// lazy runs fn at most once, on the first call to get, and hands the same
// result to every caller. fn runs on the context given to newLazy so that one
// caller giving up does not cancel the fetch for the others.
type lazy[T any] struct {
	ctx  context.Context
	fn   func(context.Context) (T, error)
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newLazy[T any](ctx context.Context, fn func(context.Context) (T, error)) *lazy[T] {
	return &lazy[T]{ctx: ctx, fn: fn, done: make(chan struct{})}
}

// get starts the fetch if needed and waits for it or for ctx.
func (l *lazy[T]) get(ctx context.Context) (T, error) {
	l.once.Do(func() {
		go func() {
			defer close(l.done)
			l.val, l.err = l.fn(l.ctx)
		}()
	})

	select {
	case <-l.done:
		return l.val, l.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
