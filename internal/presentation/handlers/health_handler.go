// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package handlers provides the HTTP and NATS handlers of the image host.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tuituidan/image-host/internal/domain/services"
	"github.com/tuituidan/image-host/pkg/constants"
)

// HealthChecks is implemented by services.HealthService
type HealthChecks interface {
	CheckLiveness(ctx context.Context) *services.HealthStatus
	CheckReadiness(ctx context.Context) *services.HealthStatus
	CheckHealth(ctx context.Context) *services.HealthStatus
}

// HealthHandler handles Kubernetes health check requests
type HealthHandler struct {
	health         HealthChecks
	simpleResponse bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(health HealthChecks, simpleResponse bool) *HealthHandler {
	return &HealthHandler{
		health:         health,
		simpleResponse: simpleResponse,
	}
}

// HandleLiveness handles Kubernetes liveness probe requests
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	status := h.health.CheckLiveness(r.Context())
	h.writeHealthResponse(w, status, http.StatusOK) // Liveness always returns 200
}

// HandleReadiness handles Kubernetes readiness probe requests
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status := h.health.CheckReadiness(r.Context())

	var statusCode int
	switch status.Status {
	case constants.StatusHealthy:
		statusCode = http.StatusOK
	case constants.StatusDegraded, constants.StatusUnhealthy:
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}

	h.writeHealthResponse(w, status, statusCode)
}

// HandleHealthCheck handles general health check requests
func (h *HealthHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.health.CheckHealth(r.Context())

	var statusCode int
	switch status.Status {
	case constants.StatusHealthy, constants.StatusDegraded:
		statusCode = http.StatusOK
	case constants.StatusUnhealthy:
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}

	h.writeHealthResponse(w, status, statusCode)
}

// writeHealthResponse writes the health status as JSON or simple response
func (h *HealthHandler) writeHealthResponse(w http.ResponseWriter, status *services.HealthStatus, statusCode int) {
	if h.simpleResponse {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(statusCode)
		if statusCode == http.StatusOK {
			fmt.Fprintf(w, "OK\n")
		} else {
			fmt.Fprintf(w, "UNHEALTHY\n")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterRoutes registers the health check routes
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+constants.LivenessPath, h.HandleLiveness)
	mux.HandleFunc("GET "+constants.ReadinessPath, h.HandleReadiness)
	mux.HandleFunc("GET "+constants.HealthPath, h.HandleHealthCheck)
}
