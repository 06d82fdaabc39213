// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package cleanup provides the background janitor that retries removal of
// objects orphaned by a failed delete, and the cache warm-up schedule.
package cleanup

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

var (
	janitorOverflows = expvar.NewInt("janitor_overflows")
	janitorGaveUp    = expvar.NewInt("janitor_gave_up")

	objectsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_janitor_objects_removed_total",
		Help: "Orphaned objects removed by the janitor.",
	})
	removalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_janitor_removal_failures_total",
		Help: "Janitor object removal attempts that failed.",
	})
)

// janitorItem is one queued removal together with the attempt it represents
type janitorItem struct {
	key     string
	attempt int
}

// Options tunes the janitor; zero values use the package defaults
type Options struct {
	QueueSize  int
	RetryDelay time.Duration
	MaxRetries int
}

// CleanupRepository removes objects whose delete failed, retrying with a
// growing delay until MaxRetries attempts have been made
type CleanupRepository struct {
	objects    contracts.ObjectStorage
	logger     *slog.Logger
	queue      chan janitorItem
	retryDelay time.Duration
	maxRetries int

	workerWG     sync.WaitGroup
	retryWG      sync.WaitGroup
	shutdown     chan struct{}
	shutdownOnce sync.Once
	isRunning    bool
	mu           sync.RWMutex

	processed int64
	removed   int64
	failures  int64
}

// NewCleanupRepository creates a new janitor over the object store
func NewCleanupRepository(objects contracts.ObjectStorage, logger *slog.Logger, opts Options) *CleanupRepository {
	if opts.QueueSize <= 0 {
		opts.QueueSize = constants.JanitorQueueSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = constants.JanitorRetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = constants.JanitorMaxRetries
	}

	return &CleanupRepository{
		objects:    objects,
		logger:     logging.WithComponent(logger, constants.ComponentJanitor),
		queue:      make(chan janitorItem, opts.QueueSize),
		retryDelay: opts.RetryDelay,
		maxRetries: opts.MaxRetries,
		shutdown:   make(chan struct{}),
	}
}

// CheckItem queues an object key for removal. Items beyond the queue
// capacity are dropped and counted as overflows.
func (j *CleanupRepository) CheckItem(objectKey string) {
	j.enqueue(janitorItem{key: objectKey, attempt: 1})
}

func (j *CleanupRepository) enqueue(item janitorItem) {
	if item.key == "" {
		j.logger.Debug("Skipping empty object key")
		return
	}

	select {
	case j.queue <- item:
		j.logger.Debug("Janitor item queued",
			"object_key", item.key,
			"attempt", item.attempt,
			"queue_length", len(j.queue))
	default:
		janitorOverflows.Add(1)
		j.logger.Warn("Janitor queue overflow, item dropped",
			"object_key", item.key,
			"queue_capacity", cap(j.queue),
			"total_overflows", janitorOverflows.Value())
	}
}

// StartItemLoop starts the single janitor worker
func (j *CleanupRepository) StartItemLoop(ctx context.Context) {
	j.mu.Lock()
	if j.isRunning {
		j.mu.Unlock()
		j.logger.Warn("Janitor already running, ignoring start request")
		return
	}
	j.isRunning = true
	j.mu.Unlock()

	j.logger.Info("Janitor started", "queue_capacity", cap(j.queue), "max_retries", j.maxRetries)

	j.workerWG.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				j.logger.Error("Janitor worker panic recovered", "panic", fmt.Sprintf("%v", r))
			}
			j.mu.Lock()
			j.isRunning = false
			j.mu.Unlock()
			j.workerWG.Done()
		}()

		for {
			select {
			case <-j.shutdown:
				j.logger.Info("Janitor shutdown signal received", "items_processed", j.processedCount())
				return
			case <-ctx.Done():
				j.logger.Info("Janitor context cancelled", "items_processed", j.processedCount(), "context_error", ctx.Err())
				return
			case item := <-j.queue:
				j.processItem(ctx, item)
			}
		}
	}()
}

// processItem attempts one removal and schedules a retry on failure
func (j *CleanupRepository) processItem(ctx context.Context, item janitorItem) {
	j.mu.Lock()
	j.processed++
	j.mu.Unlock()

	err := j.objects.RemoveObject(ctx, item.key)
	if err == nil {
		objectsRemoved.Inc()
		j.mu.Lock()
		j.removed++
		j.mu.Unlock()
		j.logger.Info("Orphaned object removed", "object_key", item.key, "attempt", item.attempt)
		return
	}

	removalFailures.Inc()
	j.mu.Lock()
	j.failures++
	j.mu.Unlock()

	if item.attempt >= j.maxRetries {
		janitorGaveUp.Add(1)
		j.logger.Error("Janitor giving up on object removal",
			"object_key", item.key,
			"attempts", item.attempt,
			"error", err.Error())
		return
	}

	j.logger.Warn("Object removal failed, scheduling retry",
		"object_key", item.key,
		"attempt", item.attempt,
		"error", err.Error())
	j.asyncRetry(ctx, janitorItem{key: item.key, attempt: item.attempt + 1})
}

// asyncRetry requeues item after a delay proportional to its attempt
func (j *CleanupRepository) asyncRetry(ctx context.Context, item janitorItem) {
	delay := time.Duration(item.attempt-1) * j.retryDelay

	j.retryWG.Add(1)
	go func() {
		defer j.retryWG.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			j.enqueue(item)
		case <-ctx.Done():
			j.logger.Info("Janitor retry cancelled due to context", "object_key", item.key)
		case <-j.shutdown:
			j.logger.Info("Janitor retry cancelled due to shutdown", "object_key", item.key)
		}
	}()
}

// Shutdown stops the worker and any pending retries; it is safe to call more than once
func (j *CleanupRepository) Shutdown() {
	j.shutdownOnce.Do(func() {
		j.logger.Info("Janitor shutdown initiated", "queue_length", len(j.queue))
		close(j.shutdown)
	})
	j.workerWG.Wait()
	j.retryWG.Wait()
}

func (j *CleanupRepository) processedCount() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.processed
}

// GetMetrics returns janitor metrics for monitoring
func (j *CleanupRepository) GetMetrics() map[string]any {
	j.mu.RLock()
	defer j.mu.RUnlock()

	queueLength := len(j.queue)
	utilization := float64(queueLength) / float64(cap(j.queue)) * 100

	return map[string]any{
		"queue_size":        cap(j.queue),
		"queue_length":      queueLength,
		"queue_utilization": utilization,
		"overflows":         janitorOverflows.Value(),
		"gave_up":           janitorGaveUp.Value(),
		"items_processed":   j.processed,
		"objects_removed":   j.removed,
		"removal_failures":  j.failures,
		"is_running":        j.isRunning,
		"health_status":     healthStatus(utilization, j.isRunning),
	}
}

// healthStatus grades the janitor by queue utilization and running state
func healthStatus(utilization float64, running bool) string {
	switch {
	case !running:
		return "stopped"
	case utilization > 90:
		return "critical"
	case utilization > 70:
		return "warning"
	default:
		return "healthy"
	}
}

// IsRunning returns whether the janitor is currently processing items
func (j *CleanupRepository) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isRunning
}
