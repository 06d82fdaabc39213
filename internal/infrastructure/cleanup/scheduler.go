// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// CacheWarmer reloads the md5 cache from the search index
type CacheWarmer interface {
	WarmUpCache(ctx context.Context) error
}

// WarmUpScheduler runs the cache warm-up on a cron schedule
type WarmUpScheduler struct {
	cron    *cron.Cron
	warmer  CacheWarmer
	timeout time.Duration
	logger  *slog.Logger
}

// NewWarmUpScheduler registers warmer on schedule (standard cron or @every descriptors)
func NewWarmUpScheduler(schedule string, warmer CacheWarmer, timeout time.Duration, logger *slog.Logger) (*WarmUpScheduler, error) {
	s := &WarmUpScheduler{
		cron:    cron.New(),
		warmer:  warmer,
		timeout: timeout,
		logger:  logging.WithComponent(logger, constants.ComponentCache),
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid cache warm-up schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *WarmUpScheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, logger := logging.WithRequestID(ctx, s.logger)

	logger.Info("Scheduled cache warm-up starting")
	if err := s.warmer.WarmUpCache(ctx); err != nil {
		logger.Error("Scheduled cache warm-up failed", "error", err.Error())
		return
	}
	logger.Info("Scheduled cache warm-up completed")
}

// Start starts the schedule in its own goroutine
func (s *WarmUpScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cache warm-up scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops the schedule and waits for a running warm-up to finish or ctx to end
func (s *WarmUpScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Cache warm-up still running at shutdown")
	}
}
