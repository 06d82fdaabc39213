// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// HealthChecker is implemented by every external dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MetricsSource exposes component metrics in the detailed health report
type MetricsSource interface {
	GetMetrics() map[string]any
}

// Dependency is one checked component. A failing critical dependency makes
// the service unhealthy; any other failure only degrades it.
type Dependency struct {
	Name     string
	Checker  HealthChecker
	Critical bool
}

// HealthService coordinates health checks across all dependencies with inline caching
type HealthService struct {
	dependencies []Dependency
	metrics      map[string]MetricsSource
	timeout      time.Duration
	logger       *slog.Logger

	mu            sync.RWMutex
	cacheDuration time.Duration
	lastReadiness *cachedResult
	lastLiveness  *cachedResult
	lastHealth    *cachedResult
}

// HealthStatus represents the overall health status of the service
type HealthStatus struct {
	Status     string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time                 `json:"timestamp"`
	Duration   time.Duration             `json:"duration"`
	Checks     map[string]Check          `json:"checks"`
	ErrorCount int                       `json:"error_count,omitempty"`
	Metrics    map[string]map[string]any `json:"metrics,omitempty"`
}

// Check represents the health status of an individual component
type Check struct {
	Status    string        `json:"status"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type cachedResult struct {
	status    *HealthStatus
	timestamp time.Time
}

// NewHealthService creates a health service over dependencies; nil checkers are skipped
func NewHealthService(
	dependencies []Dependency,
	logger *slog.Logger,
	timeout time.Duration,
	cacheDuration time.Duration,
) *HealthService {
	deps := make([]Dependency, 0, len(dependencies))
	for _, dep := range dependencies {
		if dep.Checker != nil {
			deps = append(deps, dep)
		}
	}
	return &HealthService{
		dependencies:  deps,
		metrics:       make(map[string]MetricsSource),
		timeout:       timeout,
		cacheDuration: cacheDuration,
		logger:        logging.WithComponent(logger, constants.ComponentService),
	}
}

// WithMetrics adds a component's metrics to the detailed health report
func (s *HealthService) WithMetrics(name string, source MetricsSource) *HealthService {
	if source != nil {
		s.metrics[name] = source
	}
	return s
}

// CheckReadiness reports whether every dependency answers
func (s *HealthService) CheckReadiness(ctx context.Context) *HealthStatus {
	if cached := s.cached(&s.lastReadiness); cached != nil {
		return cached
	}

	status := s.performReadinessCheck(ctx)
	s.store(&s.lastReadiness, status)
	return status
}

// CheckLiveness only reports that the process is responsive
func (s *HealthService) CheckLiveness(_ context.Context) *HealthStatus {
	if cached := s.cached(&s.lastLiveness); cached != nil {
		return cached
	}

	now := time.Now()
	status := &HealthStatus{
		Status:    constants.StatusHealthy,
		Timestamp: now,
		Checks: map[string]Check{
			constants.ComponentService: {Status: constants.StatusHealthy, Timestamp: now},
		},
	}
	s.store(&s.lastLiveness, status)
	return status
}

// CheckHealth runs the readiness checks, accepts a degraded state and adds component metrics
func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	if cached := s.cached(&s.lastHealth); cached != nil {
		return cached
	}

	status := s.performReadinessCheck(ctx)
	if status.Status == constants.StatusDegraded {
		status.Status = constants.StatusHealthy
	}
	if len(s.metrics) > 0 {
		status.Metrics = make(map[string]map[string]any, len(s.metrics))
		for name, source := range s.metrics {
			status.Metrics[name] = source.GetMetrics()
		}
	}

	s.store(&s.lastHealth, status)
	return status
}

func (s *HealthService) cached(slot **cachedResult) *HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if *slot != nil && time.Since((*slot).timestamp) < s.cacheDuration {
		return (*slot).status
	}
	return nil
}

func (s *HealthService) store(slot **cachedResult, status *HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*slot = &cachedResult{status: status, timestamp: time.Now()}
}

// performReadinessCheck checks every dependency in parallel
func (s *HealthService) performReadinessCheck(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := &HealthStatus{
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(s.dependencies)),
	}

	var (
		mu             sync.Mutex
		criticalFailed bool
		g              errgroup.Group
	)
	for _, dep := range s.dependencies {
		g.Go(func() error {
			start := time.Now()
			err := dep.Checker.HealthCheck(ctx)
			check := Check{
				Status:    constants.StatusHealthy,
				Duration:  time.Since(start),
				Timestamp: start,
			}
			if err != nil {
				check.Status = constants.StatusUnhealthy
				check.Error = err.Error()
				s.logger.Warn("Dependency health check failed", "dependency", dep.Name, "error", err.Error())
			}

			mu.Lock()
			defer mu.Unlock()
			status.Checks[dep.Name] = check
			if err != nil {
				status.ErrorCount++
				criticalFailed = criticalFailed || dep.Critical
			}
			return nil
		})
	}
	_ = g.Wait()
	status.Duration = time.Since(status.Timestamp)

	switch {
	case status.ErrorCount == 0:
		status.Status = constants.StatusHealthy
	case criticalFailed || status.ErrorCount == len(s.dependencies):
		status.Status = constants.StatusUnhealthy
	default:
		status.Status = constants.StatusDegraded
	}
	return status
}

// ClearCache clears all cached health statuses
func (s *HealthService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastReadiness = nil
	s.lastLiveness = nil
	s.lastHealth = nil
}
