/*
 * @module api/controllers/sync_controller
 * @description Sync trigger, per-kind status badge and run history
 * @architecture Layered architecture - controller layer
 * @stateFlow HTTP request -> body validation -> SyncService.Trigger -> run counters
 * @rules a failed run still reports its run id; a kind that is already syncing answers 409
 * @dependencies service/sync_engine, github.com/go-playground/validator/v10
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/sync_engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// SyncController sync controller
type SyncController struct {
	syncService *sync_engine.SyncService
	validate    *validator.Validate
}

// NewSyncController creates the controller
func NewSyncController(syncService *sync_engine.SyncService) *SyncController {
	return &SyncController{
		syncService: syncService,
		validate:    validator.New(),
	}
}

// SyncTriggerRequest body of POST /sync/{kind}; omitted for full-table kinds
type SyncTriggerRequest struct {
	DateFrom string `json:"dateFrom" validate:"omitempty,datetime=02-01-2006" example:"01-01-2026"`
	DateTo   string `json:"dateTo" validate:"omitempty,datetime=02-01-2006" example:"31-01-2026"`
}

// SyncStatusResponse status badge of one kind
type SyncStatusResponse struct {
	EntityKind        string                 `json:"entityKind"`
	DisplayName       string                 `json:"displayName"`
	DateBounded       bool                   `json:"dateBounded"`
	LastSuccessfulRun *models.SyncRun        `json:"lastSuccessfulRun"`
	LastRun           *models.SyncKindStatus `json:"lastRun"`
}

// TriggerSync runs a sync of one kind to completion
// @Summary Trigger a sync
// @Tags Sync
// @Accept json
// @Produce json
// @Param kind path string true "entity kind"
// @Param body body SyncTriggerRequest false "date range, dd-mm-yyyy"
// @Success 200 {object} APIResponse{data=sync_engine.SyncResult}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Failure 500 {object} APIResponse{data=sync_engine.SyncResult}
// @Router /sync/{kind} [post]
func (c *SyncController) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req SyncTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respond(w, r, BadRequestResponse("invalid request body", err))
		return
	}
	if err := c.validate.Struct(req); err != nil {
		respond(w, r, BadRequestResponse("invalid date range, expected dd-mm-yyyy", err))
		return
	}

	result, err := c.syncService.Trigger(r.Context(), sync_engine.SyncRequest{
		Kind:        chi.URLParam(r, "kind"),
		DateFrom:    req.DateFrom,
		DateTo:      req.DateTo,
		TriggeredBy: triggeredBy(r),
	})
	if err != nil {
		var data interface{}
		if result != nil {
			data = result
		}
		respondError(w, r, "sync failed", err, data)
		return
	}
	respond(w, r, SuccessResponse("sync finished", result))
}

// GetSyncStatus last successful and last run of one kind
// @Summary Sync status badge
// @Tags Sync
// @Produce json
// @Param kind path string true "entity kind"
// @Success 200 {object} APIResponse{data=SyncStatusResponse}
// @Router /sync/{kind}/status [get]
func (c *SyncController) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	kind, ok := meta.ParseEntityKind(chi.URLParam(r, "kind"))
	if !ok {
		respond(w, r, BadRequestResponse(fmt.Sprintf("unknown entity kind %q", chi.URLParam(r, "kind")), nil))
		return
	}

	ledger := c.syncService.Ledger()
	lastSuccess, err := ledger.LastSuccessful(r.Context(), kind)
	if err != nil {
		respondError(w, r, "failed to load sync status", err, nil)
		return
	}
	lastRun, err := ledger.KindStatus(r.Context(), kind)
	if err != nil {
		respondError(w, r, "failed to load sync status", err, nil)
		return
	}

	respond(w, r, SuccessResponse("ok", SyncStatusResponse{
		EntityKind:        kind,
		DisplayName:       meta.EntityKindDisplayNames[kind],
		DateBounded:       meta.IsDateBoundedKind(kind),
		LastSuccessfulRun: lastSuccess,
		LastRun:           lastRun,
	}))
}

// ListSyncRuns run history, newest first
// @Summary Sync run history
// @Tags Sync
// @Produce json
// @Param kind query string false "entity kind"
// @Param limit query int false "max runs, default 20"
// @Success 200 {object} APIResponse{data=[]models.SyncRun}
// @Router /sync/runs [get]
func (c *SyncController) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	kind := ""
	if raw := r.URL.Query().Get("kind"); raw != "" {
		parsed, ok := meta.ParseEntityKind(raw)
		if !ok {
			respond(w, r, BadRequestResponse(fmt.Sprintf("unknown entity kind %q", raw), nil))
			return
		}
		kind = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respond(w, r, BadRequestResponse("limit must be a non-negative integer", nil))
			return
		}
		limit = parsed
	}

	runs, err := c.syncService.Ledger().List(r.Context(), kind, limit)
	if err != nil {
		respondError(w, r, "failed to list sync runs", err, nil)
		return
	}
	respond(w, r, SuccessResponse("ok", runs))
}

// GetSyncRun one run with its per-record errors
// @Summary Sync run detail
// @Tags Sync
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} APIResponse{data=models.SyncRun}
// @Failure 404 {object} APIResponse
// @Router /sync/runs/{id} [get]
func (c *SyncController) GetSyncRun(w http.ResponseWriter, r *http.Request) {
	run, err := c.syncService.Ledger().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to load sync run", err, nil)
		return
	}
	respond(w, r, SuccessResponse("ok", run))
}
