// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

import "time"

// Service identity
const (
	ServiceName = "image-host"
	Component   = "file_service"
)

// Performance limits and timeouts
const (
	MaxUploadSize     = 32 * 1024 * 1024 // 32MB max multipart upload
	ShutdownTimeout   = 30 * time.Second // Max time for graceful shutdown
	JanitorRetryDelay = 1 * time.Second  // Delay before janitor retries an object removal
	JanitorQueueSize  = 50               // Janitor queue capacity
	JanitorMaxRetries = 3
)

// Worker pool sizing
const (
	PoolQueueCapacity = 1000
	PoolKeepAlive     = 10 * time.Minute
	PoolNamePattern   = "image-host-%d"
)

// Search defaults
const (
	DefaultIndex       = "image-host"
	DefaultPageSize    = 20
	MaxPageSize        = 100
	HighlightField     = "tags"
	HighlightPreTag    = `<span style="color:red">`
	HighlightPostTag   = `</span>`
	CreateDateField    = "create_date"
	ScrollKeepAlive    = time.Minute
	ScrollBatchSize    = 500
	ObjectKeyDateShape = "2006/01/02"
)

// Search engines
const (
	EngineOpenSearch    = "opensearch"
	EngineElasticsearch = "elasticsearch"
	EngineBleve         = "bleve"
)

// Default configuration values
const (
	DefaultPort         = 8080
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultBindAddress  = "*"
	DefaultBucket       = "image-host"
	DefaultCacheSize    = 100000
	DefaultPresignTTL   = 24 * time.Hour
	DefaultWarmSchedule = "@every 30m"
)
