// Package workerpool provides a bounded-concurrency, bounded-queue executor
// for fire-and-forget asynchronous tasks. The pool is the back-pressure
// boundary of the pipeline: Submit never blocks, so a slow sink (a stuck
// subscriber, a slow database) shows up as dropped tasks instead of memory
// growth or lost poll ticks.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/monitoring"
)

// Task is a unit of work. The context carries the per-task deadline; tasks
// performing blocking I/O must honor it.
type Task func(ctx context.Context)

// Config holds pool configuration.
type Config struct {
	// Concurrency is the number of worker goroutines. Must be >= 1.
	Concurrency int
	// QueueSize is the pending-task bound. Must be >= 1. A submit against a
	// full queue drops the submitted task (newest-drop).
	QueueSize int
	// Timeout bounds each task's execution. Zero disables the bound.
	Timeout time.Duration
	// Name identifies the pool in logs and metrics.
	Name string
}

// Pool executes submitted tasks on a fixed set of workers.
type Pool struct {
	cfg    Config
	logger zerolog.Logger

	queue   chan Task // nil Task is the poison sentinel
	wg      sync.WaitGroup
	running atomic.Bool
	dropped atomic.Int64
}

func New(cfg Config, logger zerolog.Logger) *Pool {
	return &Pool{
		cfg:    cfg,
		logger: logger.With().Str("pool", cfg.Name).Logger(),
		queue:  make(chan Task, cfg.QueueSize),
	}
}

// Start spawns the worker goroutines and marks the pool running.
func (p *Pool) Start() {
	p.running.Store(true)
	p.logger.Info().
		Int("concurrency", p.cfg.Concurrency).
		Int("queue_size", p.cfg.QueueSize).
		Dur("timeout", p.cfg.Timeout).
		Msg("Worker pool started")

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
}

// Submit enqueues a task for asynchronous execution. It never blocks: if the
// pool is not running the task is discarded with a warning, and if the queue
// is full the task is dropped (newest-drop) with a warning. The producer is
// never suspended.
func (p *Pool) Submit(task Task) {
	if !p.running.Load() {
		p.logger.Warn().Msg("Pool is not running, task discarded")
		return
	}

	select {
	case p.queue <- task:
		monitoring.SetPoolQueueDepth(p.cfg.Name, len(p.queue))
	default:
		p.dropped.Add(1)
		monitoring.IncrementPoolDropped(p.cfg.Name)
		p.logger.Warn().Msg("Task queue is full, task dropped")
	}
}

// Stop marks the pool not-running, enqueues one poison sentinel per worker
// and waits for all workers to exit. Tasks already queued ahead of the
// sentinels are drained to completion, subject to the per-task timeout.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.queue <- nil
	}
	p.wg.Wait()
	p.logger.Info().Int64("dropped_tasks", p.dropped.Load()).Msg("Worker pool stopped")
}

// Dropped returns the number of tasks dropped because the queue was full.
func (p *Pool) Dropped() int64 {
	return p.dropped.Load()
}

// QueueDepth returns the current number of pending tasks.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	p.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range p.queue {
		if task == nil {
			p.logger.Debug().Int("worker_id", id).Msg("Worker got stop signal")
			return
		}
		p.runTask(id, task)
	}
}

// runTask executes one task under the configured timeout. A task that
// overruns its deadline is abandoned: its context is cancelled, the timeout
// is logged and the worker moves on. A panicking task is logged with its
// stack. The worker never exits on task failure.
func (p *Pool) runTask(id int, task Task) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if p.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Int("worker_id", id).
					Interface("panic_value", r).
					Str("stack_trace", string(debug.Stack())).
					Msg("Task panicked")
			}
		}()
		task(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		monitoring.IncrementPoolTimeout(p.cfg.Name)
		p.logger.Error().
			Int("worker_id", id).
			Dur("timeout", p.cfg.Timeout).
			Msg("Task timed out")
	}
	monitoring.SetPoolQueueDepth(p.cfg.Name, len(p.queue))
}
