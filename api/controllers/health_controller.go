/*
 * @module api/controllers/health_controller
 * @description Liveness and readiness endpoints
 * @architecture MVC architecture - controller layer
 * @rules /health never touches dependencies; /ready pings the database
 * @dependencies net/http
 * @refs api/routes.go
 */

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthController health controller
type HealthController struct {
	ready   func(ctx context.Context) error
	version string
}

// NewHealthController ready checks the dependencies needed to serve requests
func NewHealthController(ready func(ctx context.Context) error, version string) *HealthController {
	return &HealthController{ready: ready, version: version}
}

// HealthResponse health response
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp" example:"2026-01-01T00:00:00Z"`
	Version   string    `json:"version" example:"1.0.0"`
	Service   string    `json:"service" example:"backoffice-service"`
	Error     string    `json:"error,omitempty"`
}

// Health liveness
// @Summary Liveness
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   c.version,
		Service:   "backoffice-service",
	})
}

// Ready readiness
// @Summary Readiness
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   c.version,
		Service:   "backoffice-service",
	}

	if c.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := c.ready(ctx); err != nil {
			resp.Status = "not_ready"
			resp.Error = err.Error()
			render.Status(r, http.StatusServiceUnavailable)
		}
	}
	render.JSON(w, r, resp)
}
