// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tuituidan/image-host/internal/container"
	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/pkg/constants"
)

// runServe starts the HTTP API and background workers and blocks until ctx is cancelled
func runServe(ctx context.Context, flags *config.CLIConfig) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, flags)

	logger.Info("Configuration loaded",
		"port", cfg.Server.Port,
		"bind", cfg.Server.Bind,
		"search_engine", cfg.Search.Engine,
		"janitor", cfg.Janitor.Enabled,
		"simple_health", cfg.Server.SimpleHealth,
		"version", Version)

	c, err := container.NewContainer(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize container", "error", err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gracefulCloseWG := &sync.WaitGroup{}

	if err := c.HealthCheck(runCtx); err != nil {
		logger.Warn("Initial health check failed, starting in degraded mode", "error", err.Error())
	}

	if err := c.Start(runCtx, gracefulCloseWG); err != nil {
		logger.Error("Failed to start background services", "error", err.Error())
		shutdown(c, cfg, logger)
		return err
	}

	server := createHTTPServer(c, cfg)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	logger.Info("Image host started", "index", cfg.Search.Index, "bucket", cfg.Storage.Bucket)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err.Error())
		}
	}

	// stop accepting uploads before draining the pool
	httpCtx, httpCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err.Error())
	}

	cancel()
	waitDone := make(chan struct{})
	go func() {
		gracefulCloseWG.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		logger.Info("All background services completed gracefully")
	case <-time.After(constants.ShutdownTimeout):
		logger.Warn("Background services shutdown timeout reached")
	}

	shutdown(c, cfg, logger)
	logger.Info("Image host stopped")
	return nil
}

func shutdown(c *container.Container, cfg *config.AppConfig, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		logger.Error("Container shutdown error", "error", err.Error())
	}
}

// createHTTPServer creates the HTTP server for the API, health and metrics routes
func createHTTPServer(c *container.Container, cfg *config.AppConfig) *http.Server {
	return &http.Server{
		Addr:              serverAddr(cfg),
		Handler:           c.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// serverAddr turns the bind interface and port into a listen address; "*" binds every interface
func serverAddr(cfg *config.AppConfig) string {
	if cfg.Server.Bind == "*" || cfg.Server.Bind == "" {
		return fmt.Sprintf(":%d", cfg.Server.Port)
	}
	return fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
}
