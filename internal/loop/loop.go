package loop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dshills/codeintel/internal/logging"
)

// ErrStopped is returned by Run when the loop was stopped explicitly.
var ErrStopped = errors.New("loop stopped")

// Task is a unit of work executed on the loop.
type Task func()

// Loop is an unbounded FIFO of tasks executed one at a time.
//
// Post is safe for concurrent use. Run and Drain must not be called
// concurrently with each other; the goroutine running them is "the core
// thread" for as long as they execute.
type Loop struct {
	mu      sync.Mutex
	pending []Task
	wake    chan struct{}

	stopped  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	executed atomic.Uint64
	panics   atomic.Uint64

	logger *logging.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(l *logging.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// New creates a new loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post enqueues a task. It never blocks, including when called from a task
// already running on the loop. Returns false if the loop has been stopped.
func (l *Loop) Post(task Task) bool {
	if task == nil {
		return false
	}
	if l.stopped.Load() {
		return false
	}

	l.mu.Lock()
	l.pending = append(l.pending, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts a task and blocks until it has run. It must not be called from
// the loop goroutine. Returns false if the loop stopped before the task ran.
func (l *Loop) Call(ctx context.Context, task Task) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		task()
		close(ran)
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run drives the loop until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrStopped
		case <-l.wake:
		}
	}
}

// Drain executes queued tasks, including tasks posted while draining, until
// the queue is empty. Returns the number of tasks executed.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, task := range batch {
			l.execute(task)
			n++
		}
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Stop stops the loop. Queued tasks are discarded and further posts fail.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.stopped.Store(true)
		close(l.done)
		l.mu.Lock()
		l.pending = nil
		l.mu.Unlock()
	})
}

// Stats returns the number of executed and panicked tasks.
func (l *Loop) Stats() (executed, panicked uint64) {
	return l.executed.Load(), l.panics.Load()
}

// execute runs a single task, recovering panics so that one misbehaving
// callback cannot take the core down.
func (l *Loop) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.WithField("stack", string(debug.Stack())).Error("task panicked: %v", r)
		}
	}()
	l.executed.Add(1)
	task()
}
