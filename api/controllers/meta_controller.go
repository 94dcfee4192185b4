package controllers

import (
	"net/http"

	"backoffice-service/service/meta"
)

type MetaController struct {
}

func NewMetaController() *MetaController {
	return &MetaController{}
}

// @Summary Entity kinds
// @Description Synced entity kinds and whether they take a date range
// @Tags Meta
// @Produce json
// @Success 200 {object} APIResponse{data=[]meta.MetaField}
// @Router /meta/entity-kinds [get]
func (c *MetaController) GetEntityKinds(w http.ResponseWriter, r *http.Request) {
	respond(w, r, SuccessResponse("ok", meta.EntityKinds))
}

// @Summary Sync run statuses
// @Tags Meta
// @Produce json
// @Success 200 {object} APIResponse{data=[]meta.MetaField}
// @Router /meta/sync-run-statuses [get]
func (c *MetaController) GetSyncRunStatuses(w http.ResponseWriter, r *http.Request) {
	respond(w, r, SuccessResponse("ok", meta.SyncRunStatuses))
}

// @Summary Alert kinds
// @Tags Meta
// @Produce json
// @Success 200 {object} APIResponse{data=[]meta.MetaField}
// @Router /meta/alert-kinds [get]
func (c *MetaController) GetAlertKinds(w http.ResponseWriter, r *http.Request) {
	respond(w, r, SuccessResponse("ok", meta.AlertKinds))
}
