package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrExecutorShutdown is returned for work submitted after Shutdown.
	ErrExecutorShutdown = errors.New("executor is shut down")
	// ErrTaskAborted is reported to tasks dropped from the queue by ShutdownNow.
	ErrTaskAborted = errors.New("task aborted before it started")
)

type job struct {
	run   func(ctx context.Context)
	abort func(err error)
}

// ExecutorStats is a point-in-time snapshot of executor counters.
type ExecutorStats struct {
	Submitted int  `json:"submitted"`
	Completed int  `json:"completed"`
	Aborted   int  `json:"aborted"`
	Queued    int  `json:"queued"`
	Running   bool `json:"running"`
	Shutdown  bool `json:"shutdown"`
}

// Executor runs submitted tasks on one background goroutine, one at a time,
// in submission order.
type Executor struct {
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	queue     []job
	shutdown  bool
	running   bool
	submitted int
	completed int
	aborted   int

	wake chan struct{}
	done chan struct{}
}

func NewExecutor(logger *zap.Logger) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		logger: logger.Named("executor"),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go e.work()

	return e
}

// Execute enqueues fn. The context passed to fn is cancelled by ShutdownNow.
func (e *Executor) Execute(fn func(ctx context.Context)) error {
	return e.enqueue(job{run: fn})
}

func (e *Executor) enqueue(j job) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return ErrExecutorShutdown
	}
	e.queue = append(e.queue, j)
	e.submitted++
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Executor) work() {
	defer close(e.done)

	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			if e.shutdown {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.wake
			continue
		}
		j := e.queue[0]
		e.queue = e.queue[1:]
		e.running = true
		e.mu.Unlock()

		e.runSafely(j)

		e.mu.Lock()
		e.running = false
		e.completed++
		e.mu.Unlock()
	}
}

func (e *Executor) runSafely(j job) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered panic in background task", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	j.run(e.ctx)
}

// Shutdown stops accepting work. Queued tasks still run.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.shutdown = true
	e.mu.Unlock()

	// Wake an idle worker so it can observe shutdown.
	select {
	case e.wake <- struct{}{}:
	default:
	}
	e.logger.Debug("Executor shutdown requested")
}

// AwaitTermination waits up to timeout for the worker to finish after Shutdown.
func (e *Executor) AwaitTermination(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.done:
		return true
	case <-timer.C:
		return false
	}
}

// ShutdownNow cancels the running task's context and aborts everything still
// queued. It returns the number of aborted tasks.
func (e *Executor) ShutdownNow() int {
	e.mu.Lock()
	e.shutdown = true
	pending := e.queue
	e.queue = nil
	e.aborted += len(pending)
	e.mu.Unlock()

	e.cancel()
	select {
	case e.wake <- struct{}{}:
	default:
	}

	for _, j := range pending {
		if j.abort != nil {
			j.abort(ErrTaskAborted)
		}
	}

	e.logger.Info("Executor forced to stop", zap.Int("aborted", len(pending)))
	return len(pending)
}

func (e *Executor) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

func (e *Executor) Stats() ExecutorStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return ExecutorStats{
		Submitted: e.submitted,
		Completed: e.completed,
		Aborted:   e.aborted,
		Queued:    len(e.queue),
		Running:   e.running,
		Shutdown:  e.shutdown,
	}
}
