// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

import "time"

// Health check statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health components (for detailed health reporting)
const (
	ComponentSearch      = "search"
	ComponentObjectStore = "objectstore"
	ComponentNATS        = "nats"
	ComponentAuth        = "auth"
	ComponentService     = "service"
	ComponentContainer   = "container"
	ComponentPool        = "workerpool"
	ComponentCache       = "file_cache"
	ComponentJanitor     = "janitor"
)

// Health endpoints
const (
	HealthPath    = "/health"
	ReadinessPath = "/readyz"
	LivenessPath  = "/livez"
	MetricsPath   = "/metrics"
)

// Health timeouts and caching
const (
	HealthCheckTimeout = 5 * time.Second
	CacheDuration      = 5 * time.Second
)
