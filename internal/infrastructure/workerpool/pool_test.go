// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	logger, _ := logging.TestLogger(t)
	p := New(cfg, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

// blockingTask returns a task that reports when it starts and waits for release
func blockingTask(started chan<- struct{}, release <-chan struct{}) func(context.Context) {
	return func(context.Context) {
		started <- struct{}{}
		<-release
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	core := 2*runtime.NumCPU() + 1

	assert.Equal(t, core, cfg.CoreWorkers)
	assert.Equal(t, 2*core, cfg.MaxWorkers)
	assert.Equal(t, 1000, cfg.QueueCapacity)
	assert.Equal(t, 10*time.Minute, cfg.KeepAlive)
	assert.Equal(t, "image-host-%d", cfg.NamePattern)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{CoreWorkers: 4, MaxWorkers: 2, QueueCapacity: -1}.withDefaults()
	assert.Equal(t, 4, cfg.CoreWorkers)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 0, cfg.QueueCapacity)
	assert.Equal(t, constants.PoolKeepAlive, cfg.KeepAlive)
}

func TestPool_RunsAllTasks(t *testing.T) {
	p := newTestPool(t, Config{CoreWorkers: 3, MaxWorkers: 6, QueueCapacity: 10})

	var wg sync.WaitGroup
	var count atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(50), count.Load())
	assert.Eventually(t, func() bool {
		return p.GetMetrics()["tasks_completed"].(int64) == 50
	}, time.Second, 5*time.Millisecond)
}

func TestPool_SubmitBlocksWhenSaturated(t *testing.T) {
	p := newTestPool(t, Config{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 1})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), blockingTask(started, release)))
	<-started

	// Fills the queue
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {}))

	returned := make(chan error, 1)
	go func() {
		returned <- p.Submit(context.Background(), func(context.Context) {})
	}()

	select {
	case err := <-returned:
		t.Fatalf("Submit returned while saturated: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Submit did not unblock after a worker freed up")
	}
	assert.GreaterOrEqual(t, p.GetMetrics()["blocked_submits"].(int64), int64(1))
}

func TestPool_BlockedSubmitHonoursContext(t *testing.T) {
	p := newTestPool(t, Config{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 0})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(context.Background(), blockingTask(started, release)))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Submit(ctx, func(context.Context) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), constants.ErrSubmitTask)
}

func TestPool_ShutdownReleasesBlockedSubmitter(t *testing.T) {
	p := newTestPool(t, Config{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 0})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), blockingTask(started, release)))
	<-started

	returned := make(chan error, 1)
	go func() {
		returned <- p.Submit(context.Background(), func(context.Context) {})
	}()
	require.Eventually(t, func() bool {
		return p.GetMetrics()["blocked_submits"].(int64) == 1
	}, time.Second, 5*time.Millisecond)

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownDone <- p.Shutdown(ctx)
	}()

	select {
	case err := <-returned:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Submit was not released by Shutdown")
	}

	close(release)
	select {
	case err := <-shutdownDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not complete")
	}
}

func TestPool_OverflowWorkerStartsAndRetires(t *testing.T) {
	p := newTestPool(t, Config{CoreWorkers: 1, MaxWorkers: 2, QueueCapacity: 0, KeepAlive: 20 * time.Millisecond})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), blockingTask(started, release)))
	<-started

	ran := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("second task did not run while the first worker was busy")
	}
	close(release)

	assert.Eventually(t, func() bool {
		return p.GetMetrics()["live_workers"].(int64) == 1
	}, time.Second, 5*time.Millisecond, "overflow worker should retire after keep-alive")
}

func TestPool_RecoversPanics(t *testing.T) {
	p := newTestPool(t, Config{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 4})

	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped working after a panic")
	}
	assert.Equal(t, int64(1), p.GetMetrics()["panics"])
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	logger, _ := logging.TestLogger(t)
	p := New(Config{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 10}, logger)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), blockingTask(started, release)))
	<-started

	var count atomic.Int64
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { count.Add(1) }))
	}

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownErr <- p.Shutdown(ctx)
	}()

	close(release)
	require.NoError(t, <-shutdownErr)
	assert.Equal(t, int64(5), count.Load())

	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Error(t, p.HealthCheck(context.Background()))
}

func TestPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	logger, _ := logging.TestLogger(t)
	p := New(Config{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 1}, logger)

	started := make(chan struct{}, 1)
	cancelled := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		started <- struct{}{}
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ErrShutdownTimeout)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running task was not cancelled")
	}
}

func TestPool_SubmitNilTask(t *testing.T) {
	p := newTestPool(t, Config{CoreWorkers: 1})
	assert.Error(t, p.Submit(context.Background(), nil))
}
