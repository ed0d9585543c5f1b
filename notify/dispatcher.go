/*
dispatcher.go - Background task queue and notification fan-out

PURPOSE:
  Runs work detached from the HTTP request that triggered it. Services hand
  notifications and announcement fan-outs to the dispatcher and return
  immediately; delivery failures are logged and counted, never surfaced to
  the caller.

MODEL:
  - Bounded channel of tasks drained by a fixed pool of workers
  - Each task is retried with exponential backoff up to Retries times
  - Submit never blocks: a full queue drops the task and logs an error
  - Close stops intake and waits for queued tasks to finish

SEE ALSO:
  - sinks.go: where notifications end up
  - chit/store.go: Notifier and TaskQueue interfaces
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

var (
	ErrQueueFull = errors.New("notification queue is full")
	ErrClosed    = errors.New("dispatcher is closed")
)

// Sink receives delivered notifications.
type Sink interface {
	Deliver(ctx context.Context, notes []chit.Notification) error
}

// Options tunes the worker pool.
type Options struct {
	Workers   int
	QueueSize int
	Retries   int
	Backoff   time.Duration

	// OnResult, if set, is called once per task with its final error.
	OnResult func(task string, err error)
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.QueueSize < 1 {
		o.QueueSize = 100
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	return o
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Dispatcher implements chit.Notifier and chit.TaskQueue.
type Dispatcher struct {
	opts  Options
	sinks []Sink
	tasks chan task

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ chit.Notifier  = (*Dispatcher)(nil)
	_ chit.TaskQueue = (*Dispatcher)(nil)
)

// NewDispatcher creates a dispatcher delivering to sinks. Call Start to run it.
func NewDispatcher(opts Options, sinks ...Sink) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		opts:  opts,
		sinks: sinks,
		tasks: make(chan task, opts.QueueSize),
	}
}

// Start launches the workers. Cancelling ctx aborts pending retries.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	slog.Info("notification dispatcher started", "workers", d.opts.Workers, "queue_size", d.opts.QueueSize)
}

// Close stops accepting tasks and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
}

// Submit enqueues fn. It returns ErrQueueFull instead of blocking.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.tasks <- task{name: name, fn: fn}:
		return nil
	default:
		slog.Error("task dropped", "task", name, "error", ErrQueueFull)
		if d.opts.OnResult != nil {
			d.opts.OnResult(name, ErrQueueFull)
		}
		return ErrQueueFull
	}
}

// Notify queues delivery of notes to every sink.
func (d *Dispatcher) Notify(_ context.Context, notes ...chit.Notification) {
	if len(notes) == 0 {
		return
	}
	batch := append([]chit.Notification(nil), notes...)
	_ = d.Submit("deliver-notifications", func(ctx context.Context) error {
		return d.deliver(ctx, batch)
	})
}

func (d *Dispatcher) deliver(ctx context.Context, notes []chit.Notification) error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, notes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// WORKERS
// =============================================================================

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for t := range d.tasks {
		err := d.run(ctx, t)
		if err != nil {
			slog.Error("task failed", "task", t.name, "attempts", d.opts.Retries+1, "error", err)
		}
		if d.opts.OnResult != nil {
			d.opts.OnResult(t.name, err)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, t task) (err error) {
	backoff := d.opts.Backoff
	for attempt := 0; ; attempt++ {
		err = d.attempt(ctx, t)
		if err == nil || attempt >= d.opts.Retries {
			return err
		}
		slog.Warn("task attempt failed, retrying", "task", t.name, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// attempt runs one try and turns a panic into an error.
func (d *Dispatcher) attempt(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{task: t.name, value: r}
		}
	}()
	return t.fn(ctx)
}

type panicError struct {
	task  string
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.task, e.value)
}
