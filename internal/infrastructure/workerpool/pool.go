// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package workerpool provides the bounded worker pool used for fire-and-forget
// indexing writes. A saturated pool blocks the submitter instead of dropping work.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// ErrPoolClosed is returned by Submit once Shutdown has started
var ErrPoolClosed = errors.New("worker pool is shut down")

// Config sizes the pool
type Config struct {
	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
	KeepAlive     time.Duration
	NamePattern   string
}

// DefaultConfig sizes the pool from the CPU count: 2*CPU+1 core workers,
// twice that at most, a 1000 task queue and a 10 minute keep-alive.
func DefaultConfig() Config {
	core := 2*runtime.NumCPU() + 1
	return Config{
		CoreWorkers:   core,
		MaxWorkers:    core * 2,
		QueueCapacity: constants.PoolQueueCapacity,
		KeepAlive:     constants.PoolKeepAlive,
		NamePattern:   constants.PoolNamePattern,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CoreWorkers <= 0 {
		c.CoreWorkers = def.CoreWorkers
	}
	if c.MaxWorkers < c.CoreWorkers {
		c.MaxWorkers = c.CoreWorkers
	}
	if c.QueueCapacity < 0 {
		c.QueueCapacity = 0
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.NamePattern == "" {
		c.NamePattern = def.NamePattern
	}
	return c
}

// Pool is a bounded pool of core workers plus overflow workers that are
// started when the queue is full and retire after KeepAlive of idleness.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	tasks    chan contracts.Task
	overflow *semaphore.Weighted

	// stopping is closed first so blocked submitters give up; quit is closed
	// once no submitter can still be sending, telling workers to drain and exit.
	mu       sync.RWMutex
	closed   bool
	stopping chan struct{}
	quit     chan struct{}
	stopOnce sync.Once

	runCtx    context.Context
	cancelRun context.CancelFunc
	workerWG  sync.WaitGroup

	nextID    atomic.Int64
	live      atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	blocked   atomic.Int64
	panics    atomic.Int64
}

// New starts the core workers and returns the pool
func New(cfg Config, logger *slog.Logger) *Pool {
	cfg = cfg.withDefaults()
	runCtx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:       cfg,
		logger:    logging.WithComponent(logger, constants.ComponentPool),
		tasks:     make(chan contracts.Task, cfg.QueueCapacity),
		stopping:  make(chan struct{}),
		quit:      make(chan struct{}),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	if extra := cfg.MaxWorkers - cfg.CoreWorkers; extra > 0 {
		p.overflow = semaphore.NewWeighted(int64(extra))
	}

	for i := 0; i < cfg.CoreWorkers; i++ {
		p.startWorker(nil, false)
	}

	p.logger.Info("Worker pool started",
		"core_workers", cfg.CoreWorkers,
		"max_workers", cfg.MaxWorkers,
		"queue_capacity", cfg.QueueCapacity,
		"keep_alive", cfg.KeepAlive)
	return p
}

// Submit hands task to the pool. It blocks while every worker is busy and the
// queue is full, and fails only when the pool shuts down or ctx ends first.
func (p *Pool) Submit(ctx context.Context, task contracts.Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case <-p.stopping:
		return ErrPoolClosed
	default:
	}

	select {
	case p.tasks <- task:
		p.accepted()
		return nil
	default:
	}

	if p.overflow != nil && p.overflow.TryAcquire(1) {
		p.accepted()
		p.startWorker(task, true)
		return nil
	}

	p.blocked.Add(1)
	poolBlockedSubmits.Add(1)
	tasksBlocked.Inc()
	logging.FromContext(ctx, p.logger).Debug("Worker pool saturated, submitter waiting",
		"queue_length", len(p.tasks),
		"live_workers", p.live.Load())

	select {
	case p.tasks <- task:
		p.accepted()
		return nil
	case <-p.stopping:
		return ErrPoolClosed
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", constants.ErrSubmitTask, ctx.Err())
	}
}

func (p *Pool) accepted() {
	p.submitted.Add(1)
	tasksSubmitted.Inc()
}

func (p *Pool) startWorker(first contracts.Task, overflow bool) {
	id := p.nextID.Add(1)
	name := fmt.Sprintf(p.cfg.NamePattern, id)

	p.workerWG.Add(1)
	p.live.Add(1)
	workersLive.Inc()

	go func() {
		defer func() {
			p.live.Add(-1)
			workersLive.Dec()
			if overflow {
				p.overflow.Release(1)
			}
			p.workerWG.Done()
		}()

		logger := p.logger.With("worker", name)
		if first != nil {
			p.run(logger, first)
		}
		if overflow {
			p.overflowLoop(logger)
			return
		}
		p.coreLoop(logger)
	}()
}

func (p *Pool) coreLoop(logger *slog.Logger) {
	for {
		select {
		case task := <-p.tasks:
			p.run(logger, task)
		case <-p.quit:
			p.drain(logger)
			return
		}
	}
}

func (p *Pool) overflowLoop(logger *slog.Logger) {
	idle := time.NewTimer(p.cfg.KeepAlive)
	defer idle.Stop()

	for {
		select {
		case task := <-p.tasks:
			p.run(logger, task)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.cfg.KeepAlive)
		case <-idle.C:
			logger.Debug("Overflow worker idle, retiring", "keep_alive", p.cfg.KeepAlive)
			return
		case <-p.quit:
			p.drain(logger)
			return
		}
	}
}

func (p *Pool) drain(logger *slog.Logger) {
	for {
		select {
		case task := <-p.tasks:
			p.run(logger, task)
		default:
			return
		}
	}
}

func (p *Pool) run(logger *slog.Logger, task contracts.Task) {
	defer func() {
		p.completed.Add(1)
		tasksCompleted.Inc()
		if r := recover(); r != nil {
			p.panics.Add(1)
			poolPanics.Add(1)
			logger.Error("Worker pool task panic recovered",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	task(p.runCtx)
}

// Shutdown stops accepting tasks, lets the workers finish the queue and waits
// for them. When ctx ends first the context passed to running tasks is
// cancelled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopping)

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.quit)
		p.logger.Info("Worker pool shutdown initiated", "queue_length", len(p.tasks))
	})

	done := make(chan struct{})
	go func() {
		p.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelRun()
		p.logger.Info("Worker pool shutdown completed",
			"tasks_completed", p.completed.Load(),
			"panics", p.panics.Load())
		return nil
	case <-ctx.Done():
		p.cancelRun()
		p.logger.Warn("Worker pool shutdown timed out", "queue_length", len(p.tasks))
		return fmt.Errorf("%s: %w", constants.ErrShutdownTimeout, ctx.Err())
	}
}

// HealthCheck fails once the pool is shut down
func (p *Pool) HealthCheck(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("%s: %w", constants.ErrHealthCheck, ErrPoolClosed)
	}
	return nil
}

// GetMetrics returns pool metrics for monitoring
func (p *Pool) GetMetrics() map[string]any {
	return map[string]any{
		"core_workers":      p.cfg.CoreWorkers,
		"max_workers":       p.cfg.MaxWorkers,
		"live_workers":      p.live.Load(),
		"queue_length":      len(p.tasks),
		"queue_capacity":    cap(p.tasks),
		"tasks_submitted":   p.submitted.Load(),
		"tasks_completed":   p.completed.Load(),
		"blocked_submits":   p.blocked.Load(),
		"panics":            p.panics.Load(),
		"total_block_waits": poolBlockedSubmits.Value(),
	}
}

// Config returns the effective configuration
func (p *Pool) Config() Config {
	return p.cfg
}
