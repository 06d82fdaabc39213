// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/env"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Server  ServerConfig  `json:"server" koanf:"server"`
	Search  SearchConfig  `json:"search" koanf:"search"`
	Storage StorageConfig `json:"storage" koanf:"storage"`
	NATS    NATSConfig    `json:"nats" koanf:"nats"`
	JWT     JWTConfig     `json:"jwt" koanf:"jwt"`
	Pool    PoolConfig    `json:"pool" koanf:"pool"`
	Cache   CacheConfig   `json:"cache" koanf:"cache"`
	Janitor JanitorConfig `json:"janitor" koanf:"janitor"`
	Logging LoggingConfig `json:"logging" koanf:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `json:"port" koanf:"port"`
	Bind            string        `json:"bind" koanf:"bind"`
	ReadTimeout     time.Duration `json:"read_timeout" koanf:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" koanf:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" koanf:"shutdown_timeout"`
	MaxUploadSize   int64         `json:"max_upload_size" koanf:"max_upload_size"`
	SimpleHealth    bool          `json:"simple_health" koanf:"simple_health"`
}

// SearchConfig selects and configures the search engine
type SearchConfig struct {
	Engine   string        `json:"engine" koanf:"engine"`
	URL      string        `json:"url" koanf:"url"`
	Username string        `json:"username" koanf:"username"`
	Password string        `json:"-" koanf:"password"`
	Index    string        `json:"index" koanf:"index"`
	Timeout  time.Duration `json:"timeout" koanf:"timeout"`
	// BlevePath is the on-disk root for the embedded engine; empty keeps indexes in memory.
	BlevePath string `json:"bleve_path" koanf:"bleve_path"`
}

// StorageConfig contains object storage configuration
type StorageConfig struct {
	Endpoint  string `json:"endpoint" koanf:"endpoint"`
	AccessKey string `json:"access_key" koanf:"access_key"`
	SecretKey string `json:"-" koanf:"secret_key"`
	Bucket    string `json:"bucket" koanf:"bucket"`
	Region    string `json:"region" koanf:"region"`
	Secure    bool   `json:"secure" koanf:"secure"`
	// PublicURL, when set, is used as the base of object URLs instead of presigning.
	PublicURL     string        `json:"public_url" koanf:"public_url"`
	PresignExpiry time.Duration `json:"presign_expiry" koanf:"presign_expiry"`
}

// NATSConfig contains NATS configuration
type NATSConfig struct {
	Enabled             bool          `json:"enabled" koanf:"enabled"`
	URL                 string        `json:"url" koanf:"url"`
	MaxReconnects       int           `json:"max_reconnects" koanf:"max_reconnects"`
	ReconnectWait       time.Duration `json:"reconnect_wait" koanf:"reconnect_wait"`
	ConnectionTimeout   time.Duration `json:"connection_timeout" koanf:"connection_timeout"`
	IndexRequestSubject string        `json:"index_request_subject" koanf:"index_request_subject"`
	Queue               string        `json:"queue" koanf:"queue"`
}

// JWTConfig contains bearer token validation settings for mutating routes
type JWTConfig struct {
	Enabled   bool          `json:"enabled" koanf:"enabled"`
	Secret    string        `json:"-" koanf:"secret"`
	Issuer    string        `json:"issuer" koanf:"issuer"`
	Audience  []string      `json:"audience" koanf:"audience"`
	ClockSkew time.Duration `json:"clock_skew" koanf:"clock_skew"`
}

// PoolConfig sizes the indexing worker pool; zero values fall back to the pool defaults
type PoolConfig struct {
	CoreWorkers   int           `json:"core_workers" koanf:"core_workers"`
	MaxWorkers    int           `json:"max_workers" koanf:"max_workers"`
	QueueCapacity int           `json:"queue_capacity" koanf:"queue_capacity"`
	KeepAlive     time.Duration `json:"keep_alive" koanf:"keep_alive"`
}

// CacheConfig contains md5 cache configuration
type CacheConfig struct {
	Size         int    `json:"size" koanf:"size"`
	WarmSchedule string `json:"warm_schedule" koanf:"warm_schedule"`
}

// JanitorConfig contains janitor configuration
type JanitorConfig struct {
	Enabled    bool          `json:"enabled" koanf:"enabled"`
	RetryDelay time.Duration `json:"retry_delay" koanf:"retry_delay"`
	MaxRetries int           `json:"max_retries" koanf:"max_retries"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`
	Format string `json:"format" koanf:"format"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:            constants.DefaultPort,
			Bind:            constants.DefaultBindAddress,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadSize:   constants.MaxUploadSize,
		},
		Search: SearchConfig{
			Engine:  constants.EngineOpenSearch,
			URL:     "http://localhost:9200",
			Index:   constants.DefaultIndex,
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Endpoint:      "localhost:9000",
			Bucket:        constants.DefaultBucket,
			PresignExpiry: constants.DefaultPresignTTL,
		},
		NATS: NATSConfig{
			Enabled:             true,
			URL:                 "nats://localhost:4222",
			MaxReconnects:       10,
			ReconnectWait:       2 * time.Second,
			ConnectionTimeout:   10 * time.Second,
			IndexRequestSubject: constants.IndexRequestTopic,
			Queue:               constants.DefaultQueue,
		},
		JWT: JWTConfig{
			Issuer:    constants.ServiceName,
			Audience:  []string{constants.ServiceName},
			ClockSkew: 5 * time.Second,
		},
		Pool: PoolConfig{
			QueueCapacity: constants.PoolQueueCapacity,
			KeepAlive:     constants.PoolKeepAlive,
		},
		Cache: CacheConfig{
			Size:         constants.DefaultCacheSize,
			WarmSchedule: constants.DefaultWarmSchedule,
		},
		Janitor: JanitorConfig{
			Enabled:    true,
			RetryDelay: constants.JanitorRetryDelay,
			MaxRetries: constants.JanitorMaxRetries,
		},
		Logging: LoggingConfig{
			Level:  constants.DefaultLogLevel,
			Format: constants.DefaultLogFormat,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and the environment, in increasing order of precedence.
func LoadConfig(path string) (*AppConfig, error) {
	config := DefaultConfig()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
		if err := k.Unmarshal("", config); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	applyEnv(config)
	return config, nil
}

// applyEnv overrides values with the environment variables that are set
func applyEnv(c *AppConfig) {
	c.Server.Port = env.GetInt("PORT", c.Server.Port)
	c.Server.Bind = env.GetString("BIND", c.Server.Bind)
	c.Server.ReadTimeout = env.GetDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = env.GetDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = env.GetDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.SimpleHealth = env.GetBool("SIMPLE_HEALTH", c.Server.SimpleHealth)

	c.Search.Engine = env.GetString("SEARCH_ENGINE", c.Search.Engine)
	c.Search.URL = env.GetString("SEARCH_URL", c.Search.URL)
	c.Search.Username = env.GetString("SEARCH_USERNAME", c.Search.Username)
	c.Search.Password = env.GetString("SEARCH_PASSWORD", c.Search.Password)
	c.Search.Index = env.GetString("SEARCH_INDEX", c.Search.Index)
	c.Search.Timeout = env.GetDuration("SEARCH_TIMEOUT", c.Search.Timeout)
	c.Search.BlevePath = env.GetString("BLEVE_PATH", c.Search.BlevePath)

	c.Storage.Endpoint = env.GetString("MINIO_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = env.GetString("MINIO_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = env.GetString("MINIO_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Bucket = env.GetString("MINIO_BUCKET", c.Storage.Bucket)
	c.Storage.Region = env.GetString("MINIO_REGION", c.Storage.Region)
	c.Storage.Secure = env.GetBool("MINIO_SECURE", c.Storage.Secure)
	c.Storage.PublicURL = env.GetString("MINIO_PUBLIC_URL", c.Storage.PublicURL)
	c.Storage.PresignExpiry = env.GetDuration("MINIO_PRESIGN_EXPIRY", c.Storage.PresignExpiry)

	c.NATS.Enabled = env.GetBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = env.GetString("NATS_URL", c.NATS.URL)
	c.NATS.MaxReconnects = env.GetInt("NATS_MAX_RECONNECTS", c.NATS.MaxReconnects)
	c.NATS.ReconnectWait = env.GetDuration("NATS_RECONNECT_WAIT", c.NATS.ReconnectWait)
	c.NATS.ConnectionTimeout = env.GetDuration("NATS_CONNECTION_TIMEOUT", c.NATS.ConnectionTimeout)
	c.NATS.IndexRequestSubject = env.GetString("NATS_INDEX_REQUEST_SUBJECT", c.NATS.IndexRequestSubject)
	c.NATS.Queue = env.GetString("NATS_QUEUE", c.NATS.Queue)

	c.JWT.Enabled = env.GetBool("JWT_ENABLED", c.JWT.Enabled)
	c.JWT.Secret = env.GetString("JWT_SECRET", c.JWT.Secret)
	c.JWT.Issuer = env.GetString("JWT_ISSUER", c.JWT.Issuer)
	c.JWT.Audience = env.GetStringSlice("JWT_AUDIENCE", c.JWT.Audience)
	c.JWT.ClockSkew = env.GetDuration("JWT_CLOCK_SKEW", c.JWT.ClockSkew)

	c.Pool.CoreWorkers = env.GetInt("POOL_CORE_WORKERS", c.Pool.CoreWorkers)
	c.Pool.MaxWorkers = env.GetInt("POOL_MAX_WORKERS", c.Pool.MaxWorkers)
	c.Pool.QueueCapacity = env.GetInt("POOL_QUEUE_CAPACITY", c.Pool.QueueCapacity)
	c.Pool.KeepAlive = env.GetDuration("POOL_KEEP_ALIVE", c.Pool.KeepAlive)

	c.Cache.Size = env.GetInt("CACHE_SIZE", c.Cache.Size)
	c.Cache.WarmSchedule = env.GetString("CACHE_WARM_SCHEDULE", c.Cache.WarmSchedule)

	c.Janitor.Enabled = env.GetBool("JANITOR_ENABLED", c.Janitor.Enabled)
	c.Janitor.RetryDelay = env.GetDuration("JANITOR_RETRY_DELAY", c.Janitor.RetryDelay)
	c.Janitor.MaxRetries = env.GetInt("JANITOR_MAX_RETRIES", c.Janitor.MaxRetries)

	c.Logging.Level = env.GetString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = env.GetString("LOG_FORMAT", c.Logging.Format)
}

// ApplyCLI applies command line overrides, which take precedence over everything else
func (c *AppConfig) ApplyCLI(flags *CLIConfig) {
	if flags == nil {
		return
	}
	if flags.Port != 0 {
		c.Server.Port = flags.Port
	}
	if flags.Bind != "" {
		c.Server.Bind = flags.Bind
	}
	if flags.NoJanitor {
		c.Janitor.Enabled = false
	}
	if flags.SimpleHealth {
		c.Server.SimpleHealth = true
	}
	if flags.Debug {
		c.Logging.Level = "debug"
	}
}

// Validate validates the configuration
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("server max upload size must be positive"))
	}

	switch c.Search.Engine {
	case constants.EngineOpenSearch, constants.EngineElasticsearch:
		if c.Search.URL == "" {
			errs = append(errs, fmt.Errorf("search URL is required for engine %s", c.Search.Engine))
		} else if _, err := url.ParseRequestURI(c.Search.URL); err != nil {
			errs = append(errs, fmt.Errorf("invalid search URL: %w", err))
		}
	case constants.EngineBleve:
	default:
		errs = append(errs, fmt.Errorf("unknown search engine: %q", c.Search.Engine))
	}
	if c.Search.Index == "" {
		errs = append(errs, fmt.Errorf("search index is required"))
	}

	if c.Storage.Endpoint == "" {
		errs = append(errs, fmt.Errorf("object storage endpoint is required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, fmt.Errorf("object storage bucket is required"))
	}
	if c.Storage.PublicURL != "" {
		if _, err := url.ParseRequestURI(c.Storage.PublicURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid object storage public URL: %w", err))
		}
	} else if c.Storage.PresignExpiry <= 0 {
		errs = append(errs, fmt.Errorf("presign expiry must be positive when no public URL is set"))
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, fmt.Errorf("NATS URL is required"))
	}

	if c.JWT.Enabled {
		if c.JWT.Secret == "" {
			errs = append(errs, fmt.Errorf("JWT secret is required when JWT is enabled"))
		}
		if c.JWT.Issuer == "" {
			errs = append(errs, fmt.Errorf("JWT issuer is required"))
		}
		if len(c.JWT.Audience) == 0 {
			errs = append(errs, fmt.Errorf("JWT audience is required"))
		}
	}

	if c.Pool.CoreWorkers < 0 || c.Pool.MaxWorkers < 0 || c.Pool.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("pool sizes must not be negative"))
	}
	if c.Pool.CoreWorkers > 0 && c.Pool.MaxWorkers > 0 && c.Pool.MaxWorkers < c.Pool.CoreWorkers {
		errs = append(errs, fmt.Errorf("pool max workers (%d) must be >= core workers (%d)", c.Pool.MaxWorkers, c.Pool.CoreWorkers))
	}

	if c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive"))
	}

	if c.Janitor.Enabled && c.Janitor.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("janitor max retries must be positive"))
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.Logging.Level))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Logging.Format))
	}

	return errors.Join(errs...)
}
