// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package workerpool

import (
	"expvar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Process-wide counters exposed on /debug/vars
	poolBlockedSubmits = expvar.NewInt("workerpool_blocked_submits")
	poolPanics         = expvar.NewInt("workerpool_panics")

	tasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_pool_tasks_submitted_total",
		Help: "Tasks accepted by the background worker pool.",
	})
	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_pool_tasks_completed_total",
		Help: "Tasks finished by the background worker pool, including panicked ones.",
	})
	tasksBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_pool_submit_blocked_total",
		Help: "Submissions that had to wait because workers and queue were saturated.",
	})
	workersLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imagehost_pool_workers",
		Help: "Live workers in the background worker pool.",
	})
)
