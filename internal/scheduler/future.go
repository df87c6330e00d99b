package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
)

// Future holds the eventual result of a task submitted to an Executor.
type Future[T any] struct {
	mu        sync.Mutex
	completed bool
	value     T
	err       error
	done      chan struct{}
	callbacks []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Submit runs fn on the executor and returns its Future. If the executor
// refuses the task, the Future completes immediately with that error.
func Submit[T any](e *Executor, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	err := e.enqueue(job{
		run: func(ctx context.Context) {
			defer func() {
				if r := recover(); r != nil {
					var zero T
					f.complete(zero, &PanicError{Value: r})
					panic(r)
				}
			}()
			v, err := fn(ctx)
			f.complete(v, err)
		},
		abort: func(err error) {
			var zero T
			f.complete(zero, err)
		},
	})
	if err != nil {
		var zero T
		f.complete(zero, err)
	}
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
}

// Then resumes fn on the given loop once the Future completes. Continuations
// are posted in completion order, which may differ from submission order.
// If the loop has stopped, fn is dropped.
func (f *Future[T]) Then(loop Poster, fn func(T, error)) {
	resume := func(v T, err error) {
		loop.Post(func() { fn(v, err) })
	}

	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, resume)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()

	resume(v, err)
}

// Await blocks until the Future completes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the Future has a result.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// PanicError reports a task that panicked instead of returning.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "task panicked"
}

// Token is a liveness flag shared between an owner and the work it spawned.
// Work holding a Token must check Alive before touching the owner's state.
type Token struct {
	alive atomic.Bool
}

func NewToken() *Token {
	t := &Token{}
	t.alive.Store(true)
	return t
}

func (t *Token) Alive() bool {
	return t.alive.Load()
}

// Revoke marks the owner as gone. It is safe to call more than once.
func (t *Token) Revoke() {
	t.alive.Store(false)
}
