/*
 * @module api/controllers/provider_controller
 * @description Provider duplicate groups and merges
 * @architecture Layered architecture - controller layer
 * @stateFlow GET duplicates -> operator picks keepId and resolutions -> POST merge
 * @rules a merge with unresolved conflicting fields answers 409 listing the values found
 * @dependencies service/dedup, github.com/go-playground/validator/v10
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"net/http"

	"backoffice-service/service/dedup"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ProviderController provider controller
type ProviderController struct {
	scanner  *dedup.Scanner
	merger   *dedup.Merger
	validate *validator.Validate
}

// NewProviderController creates the controller
func NewProviderController(scanner *dedup.Scanner, merger *dedup.Merger) *ProviderController {
	return &ProviderController{
		scanner:  scanner,
		merger:   merger,
		validate: validator.New(),
	}
}

// MergeRequest body of the merge endpoint
type MergeRequest struct {
	KeepID      string            `json:"keepId" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	Resolutions map[string]string `json:"resolutions,omitempty" validate:"omitempty,dive,keys,oneof=name fiscalId email phone,endkeys"`
}

// ListDuplicates current duplicate groups
// @Summary Duplicate providers
// @Tags Providers
// @Produce json
// @Success 200 {object} APIResponse{data=[]dedup.DuplicateGroup}
// @Router /providers/duplicates [get]
func (c *ProviderController) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := c.scanner.Scan(r.Context())
	if err != nil {
		respondError(w, r, "duplicate scan failed", err, nil)
		return
	}
	if groups == nil {
		groups = []dedup.DuplicateGroup{}
	}
	respond(w, r, SuccessResponse("ok", groups))
}

// MergeDuplicates merges one group into keepId
// @Summary Merge duplicate providers
// @Tags Providers
// @Accept json
// @Produce json
// @Param groupId path string true "duplicate group id"
// @Param body body MergeRequest true "provider to keep and field resolutions"
// @Success 200 {object} APIResponse{data=dedup.MergeResult}
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse{data=dedup.MergeConflict}
// @Router /providers/duplicates/{groupId}/merge [post]
func (c *ProviderController) MergeDuplicates(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, r, BadRequestResponse("invalid request body", err))
		return
	}
	if err := c.validate.Struct(req); err != nil {
		respondError(w, r, "invalid merge request", err, nil)
		return
	}

	result, err := c.merger.Merge(r.Context(), dedup.MergeRequest{
		GroupID:     chi.URLParam(r, "groupId"),
		KeepID:      req.KeepID,
		Resolutions: req.Resolutions,
		MergedBy:    triggeredBy(r),
	})
	if err != nil {
		respondError(w, r, "merge failed", err, nil)
		return
	}
	respond(w, r, SuccessResponse("providers merged", result))
}
