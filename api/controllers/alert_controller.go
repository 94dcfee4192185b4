/*
 * @module api/controllers/alert_controller
 * @description On-demand alert generation and alert listing
 * @architecture Layered architecture - controller layer
 * @dependencies service/alerting
 * @refs api/routes.go
 */

package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"backoffice-service/service/alerting"
	"backoffice-service/service/meta"
)

// AlertController alert controller
type AlertController struct {
	generator *alerting.Generator
}

// NewAlertController creates the controller
func NewAlertController(generator *alerting.Generator) *AlertController {
	return &AlertController{generator: generator}
}

// GenerateAlerts runs the deadline and stalled scans
// @Summary Generate alerts
// @Tags Alerts
// @Produce json
// @Success 200 {object} APIResponse{data=alerting.RunResult}
// @Router /alerts/generate [post]
func (c *AlertController) GenerateAlerts(w http.ResponseWriter, r *http.Request) {
	result, err := c.generator.Run(r.Context())
	if err != nil {
		respondError(w, r, "alert generation failed", err, nil)
		return
	}
	respond(w, r, SuccessResponse("alerts generated", result))
}

// ListAlerts alerts, newest first
// @Summary List alerts
// @Tags Alerts
// @Produce json
// @Param open query bool false "only unresolved alerts"
// @Param kind query string false "deadline or stalled"
// @Param limit query int false "max alerts, default 100"
// @Success 200 {object} APIResponse{data=[]models.Alert}
// @Router /alerts [get]
func (c *AlertController) ListAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := alerting.ListFilter{Kind: query.Get("kind")}

	if filter.Kind != "" && !meta.IsValidAlertKind(filter.Kind) {
		respond(w, r, BadRequestResponse(fmt.Sprintf("unknown alert kind %q", filter.Kind), nil))
		return
	}
	if raw := query.Get("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			respond(w, r, BadRequestResponse("open must be a boolean", err))
			return
		}
		filter.OpenOnly = open
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respond(w, r, BadRequestResponse("limit must be a non-negative integer", nil))
			return
		}
		filter.Limit = limit
	}

	alerts, err := c.generator.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, "failed to list alerts", err, nil)
		return
	}
	respond(w, r, SuccessResponse("ok", alerts))
}
