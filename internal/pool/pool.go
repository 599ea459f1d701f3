// Package pool provides the bounded-concurrency executor that runs
// highlight jobs off the request-handling path.
//
// At most MaxWorkers tasks execute concurrently; submissions beyond that
// are held in a FIFO queue and admitted as slots free up. There is no
// priority scheme. Workers are spawned on demand and exit after an idle
// period, so executing capacity grows and shrinks with load while staying
// bounded by the configured maximum.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prismd/prismd/internal/logging"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is one unit of cancellable work. Exactly one of Run, Expire, or
// Abort is invoked for every admitted task.
type Task interface {
	// Run executes the task to completion. It must not panic; tasks own
	// their panic recovery.
	Run()
	// Deadline is the wall-clock instant after which the task must not
	// start. Zero means no deadline.
	Deadline() time.Time
	// Expire is invoked instead of Run when the deadline passed while the
	// task was still queued. The task never occupies highlighting time.
	Expire()
	// Abort is invoked when the pool shuts down before the task ran.
	Abort()
}

// Config parameterizes a Pool.
type Config struct {
	// MaxWorkers bounds concurrently executing tasks.
	MaxWorkers int
	// QueueDepth is the FIFO queue capacity; Submit blocks once it fills.
	QueueDepth int
	// IdleTimeout is how long a worker waits for work before exiting.
	IdleTimeout time.Duration
	Logger      logging.Logger
}

// Pool is a bounded worker pool with FIFO admission.
type Pool struct {
	maxWorkers  int
	idleTimeout time.Duration
	log         logging.Logger

	tasks   chan Task
	quit    chan struct{}
	closed  atomic.Bool
	workers atomic.Int32
	wg      sync.WaitGroup
}

// New creates a pool. No workers run until the first Submit.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.MaxWorkers * 8
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Pool{
		maxWorkers:  cfg.MaxWorkers,
		idleTimeout: cfg.IdleTimeout,
		log:         log.WithComponent("pool"),
		tasks:       make(chan Task, cfg.QueueDepth),
		quit:        make(chan struct{}),
	}
}

// Submit enqueues a task FIFO. It blocks while the queue is full and
// returns ctx's error if the caller gives up, or ErrPoolClosed after
// Close. A nil return guarantees the task will reach a terminal state.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- t:
	default:
		// Queue full: block, but stay responsive to caller cancellation
		// and shutdown.
		select {
		case p.tasks <- t:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.quit:
			return ErrPoolClosed
		}
	}

	// Close may have drained the queue between the closed check and the
	// enqueue, with every worker already gone. Drain again so the task
	// cannot be stranded; it still reaches a terminal state either way.
	if p.closed.Load() {
		p.drain()
		return nil
	}

	p.maybeSpawn()
	return nil
}

// maybeSpawn starts a worker when there is queued work and headroom.
// A lost race just leaves the task for an existing worker.
func (p *Pool) maybeSpawn() {
	for {
		cur := p.workers.Load()
		if int(cur) >= p.maxWorkers {
			return
		}
		if cur > 0 && len(p.tasks) == 0 {
			return
		}
		if p.workers.CompareAndSwap(cur, cur+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *Pool) worker() {
	defer func() {
		p.workers.Add(-1)
		p.wg.Done()
	}()

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-p.quit:
			return
		case t := <-p.tasks:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			p.dispatch(t)
			idle.Reset(p.idleTimeout)
		case <-idle.C:
			return
		}
	}
}

// dispatch runs one task, expiring it instead when its deadline already
// passed in the queue.
func (p *Pool) dispatch(t Task) {
	defer func() {
		// Tasks recover their own panics; this guard keeps a misbehaving
		// task from killing the worker loop anyway.
		if r := recover(); r != nil {
			p.log.Error(context.Background(), nil, "task panic escaped job boundary", "panic", r)
		}
	}()

	if d := t.Deadline(); !d.IsZero() && time.Now().After(d) {
		t.Expire()
		return
	}
	t.Run()
}

// Workers reports the number of live workers.
func (p *Pool) Workers() int {
	return int(p.workers.Load())
}

// QueueLen reports the number of queued, not yet admitted tasks.
func (p *Pool) QueueLen() int {
	return len(p.tasks)
}

// Close stops accepting submissions, waits for running tasks, and aborts
// anything still queued. Safe to call more than once.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.quit)
	p.wg.Wait()
	p.drain()
}

// drain aborts everything still queued.
func (p *Pool) drain() {
	for {
		select {
		case t := <-p.tasks:
			t.Abort()
		default:
			return
		}
	}
}
