// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package container wires the image host's dependencies together.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/domain/services"
	"github.com/tuituidan/image-host/internal/infrastructure/auth"
	"github.com/tuituidan/image-host/internal/infrastructure/cache"
	"github.com/tuituidan/image-host/internal/infrastructure/cleanup"
	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/internal/infrastructure/messaging"
	"github.com/tuituidan/image-host/internal/infrastructure/objectstore"
	"github.com/tuituidan/image-host/internal/infrastructure/storage"
	"github.com/tuituidan/image-host/internal/infrastructure/workerpool"
	"github.com/tuituidan/image-host/internal/presentation/handlers"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// Container holds all dependencies
type Container struct {
	Config *config.AppConfig
	Logger *slog.Logger

	// Infrastructure
	NATSConnection *nats.Conn

	// Repositories
	SearchRepository    contracts.SearchRepository
	ObjectStorage       contracts.ObjectStorage
	MessagingRepository *messaging.MessagingRepository
	AuthRepository      *auth.AuthRepository
	CleanupRepository   *cleanup.CleanupRepository

	// Runtime
	Pool            *workerpool.Pool
	FileCache       *cache.FileCache
	WarmUpScheduler *cleanup.WarmUpScheduler

	// Services
	FileService   *services.FileService
	HealthService *services.HealthService

	// Handlers
	FileHandler         *handlers.FileHandler
	HealthHandler       *handlers.HealthHandler
	IndexRequestHandler *handlers.IndexRequestHandler

	shutdownOnce sync.Once
}

// NewContainer builds every component from cfg. Only NATS is dialed here;
// the search engine and object store are first contacted by Start.
func NewContainer(logger *slog.Logger, cfg *config.AppConfig) (*Container, error) {
	if logger == nil {
		logger = logging.NewLogger()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: logging.WithComponent(logger, constants.ComponentContainer),
	}

	if err := c.initializeRepositories(logger); err != nil {
		c.closeRepositories()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}
	if err := c.initializeServices(logger); err != nil {
		c.closeRepositories()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	c.initializeHandlers(logger)

	c.Logger.Info("Container initialized",
		"search_engine", cfg.Search.Engine,
		"index", cfg.Search.Index,
		"bucket", cfg.Storage.Bucket,
		"nats", cfg.NATS.Enabled,
		"jwt", cfg.JWT.Enabled,
		"janitor", cfg.Janitor.Enabled)
	return c, nil
}

// initializeRepositories initializes the repository layer
func (c *Container) initializeRepositories(logger *slog.Logger) error {
	search, err := storage.NewSearchRepository(c.Config.Search, logger)
	if err != nil {
		return err
	}
	c.SearchRepository = search

	minioClient, err := objectstore.NewMinioClient(c.Config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create object storage client: %w", err)
	}
	c.ObjectStorage = objectstore.NewMinioRepository(minioClient, c.Config.Storage, logger)

	if c.Config.NATS.Enabled {
		conn, err := messaging.Connect(
			c.Config.NATS.URL,
			c.Config.NATS.MaxReconnects,
			c.Config.NATS.ReconnectWait,
			c.Config.NATS.ConnectionTimeout,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		c.NATSConnection = conn
		c.MessagingRepository = messaging.NewMessagingRepository(conn, logger, constants.ShutdownTimeout)
	}

	if c.Config.JWT.Enabled {
		authRepo, err := auth.NewAuthRepository(
			c.Config.JWT.Secret,
			c.Config.JWT.Issuer,
			c.Config.JWT.Audience,
			c.Config.JWT.ClockSkew,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create auth repository: %w", err)
		}
		c.AuthRepository = authRepo
	}

	if c.Config.Janitor.Enabled {
		c.CleanupRepository = cleanup.NewCleanupRepository(c.ObjectStorage, logger, cleanup.Options{
			RetryDelay: c.Config.Janitor.RetryDelay,
			MaxRetries: c.Config.Janitor.MaxRetries,
		})
	}
	return nil
}

// initializeServices initializes the service layer
func (c *Container) initializeServices(logger *slog.Logger) error {
	c.Pool = workerpool.New(workerpool.Config{
		CoreWorkers:   c.Config.Pool.CoreWorkers,
		MaxWorkers:    c.Config.Pool.MaxWorkers,
		QueueCapacity: c.Config.Pool.QueueCapacity,
		KeepAlive:     c.Config.Pool.KeepAlive,
	}, logger)
	c.FileCache = cache.NewFileCache(c.Config.Cache.Size, logger)

	c.FileService = services.NewFileService(
		c.SearchRepository,
		c.ObjectStorage,
		c.FileCache,
		c.Pool,
		c.Config.Search.Index,
		logger,
	).WithMaxUploadSize(c.Config.Server.MaxUploadSize)
	if c.CleanupRepository != nil {
		c.FileService.WithJanitor(c.CleanupRepository)
	}
	if c.MessagingRepository != nil {
		c.FileService.WithEventPublisher(c.MessagingRepository)
	}

	if c.Config.Cache.WarmSchedule != "" {
		scheduler, err := cleanup.NewWarmUpScheduler(c.Config.Cache.WarmSchedule, c.FileService, c.Config.Search.Timeout, logger)
		if err != nil {
			return err
		}
		c.WarmUpScheduler = scheduler
	}

	deps := []services.Dependency{
		{Name: constants.ComponentSearch, Checker: c.SearchRepository, Critical: true},
		{Name: constants.ComponentObjectStore, Checker: c.ObjectStorage, Critical: true},
		{Name: constants.ComponentPool, Checker: c.Pool, Critical: true},
	}
	if c.MessagingRepository != nil {
		deps = append(deps, services.Dependency{Name: constants.ComponentNATS, Checker: c.MessagingRepository})
	}
	if c.AuthRepository != nil {
		deps = append(deps, services.Dependency{Name: constants.ComponentAuth, Checker: c.AuthRepository, Critical: true})
	}
	c.HealthService = services.NewHealthService(deps, logger, constants.HealthCheckTimeout, constants.CacheDuration).
		WithMetrics(constants.ComponentPool, c.Pool).
		WithMetrics(constants.ComponentCache, c.FileCache)
	if c.CleanupRepository != nil {
		c.HealthService.WithMetrics(constants.ComponentJanitor, c.CleanupRepository)
	}
	if c.MessagingRepository != nil {
		c.HealthService.WithMetrics(constants.ComponentNATS, c.MessagingRepository)
	}
	if c.AuthRepository != nil {
		c.HealthService.WithMetrics(constants.ComponentAuth, c.AuthRepository)
	}
	return nil
}

// initializeHandlers initializes the presentation layer
func (c *Container) initializeHandlers(logger *slog.Logger) {
	c.FileHandler = handlers.NewFileHandler(c.FileService, c.Config.Server.MaxUploadSize, logger)
	c.HealthHandler = handlers.NewHealthHandler(c.HealthService, c.Config.Server.SimpleHealth)
	c.IndexRequestHandler = handlers.NewIndexRequestHandler(c.FileService, logger)
}

// Handler returns the HTTP API with health, metrics and file routes
func (c *Container) Handler() http.Handler {
	mux := http.NewServeMux()
	c.HealthHandler.RegisterRoutes(mux)
	mux.Handle("GET "+constants.MetricsPath, promhttp.Handler())

	var protect func(http.Handler) http.Handler
	if c.AuthRepository != nil {
		protect = c.AuthRepository.Middleware
	}
	c.FileHandler.RegisterRoutes(mux, protect)

	return handlers.Instrument(c.Logger, mux)
}

// Start prepares the bucket and index, warms the cache and starts the
// background workers. Background goroutines are tracked by wg.
func (c *Container) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := c.Prepare(ctx); err != nil {
		return err
	}

	warmCtx, logger := logging.WithRequestID(ctx, c.Logger)
	if err := c.FileService.WarmUpCache(warmCtx); err != nil {
		logger.Warn("Startup cache warm-up failed, continuing with an empty cache", "error", err.Error())
	}

	if c.CleanupRepository != nil {
		c.CleanupRepository.StartItemLoop(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			c.CleanupRepository.Shutdown()
		}()
	}

	if c.WarmUpScheduler != nil {
		c.WarmUpScheduler.Start()
	}

	if c.MessagingRepository != nil {
		if err := c.MessagingRepository.QueueSubscribeWithReply(ctx,
			c.Config.NATS.IndexRequestSubject,
			c.Config.NATS.Queue,
			c.IndexRequestHandler,
		); err != nil {
			return fmt.Errorf("failed to subscribe to index requests: %w", err)
		}
		c.Logger.Info("Index request subscription ready",
			"subject", c.Config.NATS.IndexRequestSubject,
			"queue", c.Config.NATS.Queue)
	}
	return nil
}

// Prepare makes sure the bucket and the index exist
func (c *Container) Prepare(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.ObjectStorage.EnsureBucket(gctx); err != nil {
			return fmt.Errorf("%s: %w", constants.ComponentObjectStore, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.FileService.EnsureIndex(gctx); err != nil {
			return fmt.Errorf("%s: %w", constants.ComponentSearch, err)
		}
		return nil
	})
	return g.Wait()
}

// HealthCheck checks every dependency concurrently and joins the failures
func (c *Container) HealthCheck(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	check := func(name string, checker services.HealthChecker) {
		g.Go(func() error {
			if err := checker.HealthCheck(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s health check failed: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}

	check(constants.ComponentSearch, c.SearchRepository)
	check(constants.ComponentObjectStore, c.ObjectStorage)
	if c.MessagingRepository != nil {
		check(constants.ComponentNATS, c.MessagingRepository)
	}
	if c.AuthRepository != nil {
		check(constants.ComponentAuth, c.AuthRepository)
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Shutdown stops the schedule, drains the worker pool and closes the
// repositories. It is safe to call more than once.
func (c *Container) Shutdown(ctx context.Context) error {
	var err error
	c.shutdownOnce.Do(func() {
		c.Logger.Info("Closing container resources...")

		if c.WarmUpScheduler != nil {
			c.WarmUpScheduler.Stop(ctx)
		}
		if c.Pool != nil {
			if poolErr := c.Pool.Shutdown(ctx); poolErr != nil {
				err = fmt.Errorf("worker pool shutdown: %w", poolErr)
			}
		}
		if c.CleanupRepository != nil {
			c.CleanupRepository.Shutdown()
		}
		c.closeRepositories()

		c.Logger.Info("Container resources closed")
	})
	return err
}

func (c *Container) closeRepositories() {
	if c.MessagingRepository != nil {
		if err := c.MessagingRepository.Close(); err != nil {
			c.Logger.Error("Error closing messaging repository", "error", err.Error())
		}
	} else if c.NATSConnection != nil {
		c.NATSConnection.Close()
	}
	if closer, ok := c.SearchRepository.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.Logger.Error("Error closing search repository", "error", err.Error())
		}
	}
}
