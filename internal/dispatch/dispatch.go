// Package dispatch runs fire-and-forget side effects on a bounded worker pool.
//
// Submit never blocks: when the queue is full the task is dropped and logged.
// Each task gets its own deadline and runs detached from the request context,
// so a finished request does not cancel its audit or broadcast work.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"retailpos/backend/internal/metrics"
)

var (
	ErrQueueFull = errors.New("dispatch: queue is full")
	ErrClosed    = errors.New("dispatch: dispatcher is closed")
)

type Task func(ctx context.Context) error

type job struct {
	kind string
	ctx  context.Context
	fn   Task
}

type Options struct {
	Workers int
	Queue   int
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Dispatcher struct {
	jobs    chan job
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = opts.Workers * 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		jobs:    make(chan job, opts.Queue),
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues fn under kind. ctx only contributes values; its cancellation is ignored.
func (d *Dispatcher) Submit(ctx context.Context, kind string, fn Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.record(kind, "dropped")
		return ErrClosed
	}

	select {
	case d.jobs <- job{kind: kind, ctx: context.WithoutCancel(ctx), fn: fn}:
		return nil
	default:
		d.record(kind, "dropped")
		d.logger.Warn("side effect dropped, queue full", slog.String("kind", kind))
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued tasks, or until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.record(j.kind, "panic")
			d.logger.Error("side effect panicked", slog.String("kind", j.kind), slog.Any("panic", r))
		}
	}()

	if err := j.fn(ctx); err != nil {
		d.record(j.kind, "error")
		d.logger.Warn("side effect failed", slog.String("kind", j.kind), slog.Any("error", err))
		return
	}
	d.record(j.kind, "ok")
}

func (d *Dispatcher) record(kind, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.SideEffects.WithLabelValues(kind, result).Inc()
}
