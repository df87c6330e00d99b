package scheduler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrLoopStopped is returned when work is posted to a loop that has exited.
var ErrLoopStopped = errors.New("ui loop stopped")

// Poster accepts work for later execution on a single goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Loop is the UI execution context: a single goroutine running posted funcs in
// FIFO order. The queue is unbounded so posting from inside the loop never blocks.
type Loop struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		logger: logger.Named("ui"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn. It reports false if the loop has already stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits until it has run.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrLoopStopped
	}

	select {
	case <-ran:
		return nil
	case <-l.done:
		// The loop may have run fn right before exiting.
		select {
		case <-ran:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted work until ctx is cancelled. Work still queued when ctx
// is cancelled is drained before Run returns; later posts are rejected.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		if batch := l.take(); len(batch) > 0 {
			for _, fn := range batch {
				l.runSafely(fn)
			}
			continue
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()

			for _, fn := range rest {
				l.runSafely(fn)
			}
			l.logger.Debug("UI loop stopped", zap.Int("drained", len(rest)))
			return
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch
}

func (l *Loop) runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered panic on UI loop", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
