package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"backoffice-service/api/middleware"
	"backoffice-service/service/dedup"
	"backoffice-service/service/sync_engine"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// APIResponse response envelope; Status is 0 on success and the HTTP status otherwise
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"ok"`
	Data   interface{} `json:"data,omitempty"`
}

// SuccessResponse success envelope
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: 0, Msg: msg, Data: data}
}

// ErrorResponse error envelope; err is appended to msg
func ErrorResponse(status int, msg string, err error) *APIResponse {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &APIResponse{Status: status, Msg: msg}
}

// BadRequestResponse 400 envelope
func BadRequestResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusBadRequest, msg, err)
}

// InternalErrorResponse 500 envelope
func InternalErrorResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusInternalServerError, msg, err)
}

// respond writes resp with the HTTP status carried in its envelope
func respond(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// respondError maps service errors to HTTP statuses; data is attached when not nil
func respondError(w http.ResponseWriter, r *http.Request, msg string, err error, data interface{}) {
	resp := errorResponse(msg, err)
	if data != nil && resp.Data == nil {
		resp.Data = data
	}
	if resp.Status >= http.StatusInternalServerError {
		slog.Error(msg, "path", r.URL.Path, "error", err)
	}
	respond(w, r, resp)
}

func errorResponse(msg string, err error) *APIResponse {
	var validationErr *sync_engine.ValidationError
	var fieldErrs validator.ValidationErrors
	var conflict *dedup.MergeConflict
	var invalidResolution *dedup.InvalidResolutionError
	var authErr *middleware.AuthorizationError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &fieldErrs), errors.As(err, &invalidResolution):
		return BadRequestResponse(msg, err)
	case errors.As(err, &authErr):
		return ErrorResponse(authErr.Status, msg, err)
	case errors.Is(err, sync_engine.ErrSyncInProgress):
		return ErrorResponse(http.StatusConflict, msg, err)
	case errors.As(err, &conflict):
		resp := ErrorResponse(http.StatusConflict, msg, err)
		resp.Data = conflict
		return resp
	case errors.Is(err, sync_engine.ErrRunNotFound), errors.Is(err, dedup.ErrGroupNotFound):
		return ErrorResponse(http.StatusNotFound, msg, err)
	case errors.Is(err, dedup.ErrKeepNotInGroup):
		return BadRequestResponse(msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusGatewayTimeout, msg, err)
	default:
		return InternalErrorResponse(msg, err)
	}
}

// triggeredBy username of the authenticated caller
func triggeredBy(r *http.Request) string {
	if principal, ok := middleware.PrincipalFromContext(r.Context()); ok {
		return principal.Username
	}
	return ""
}
