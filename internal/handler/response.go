package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"guardian-recovery/internal/model"
	"guardian-recovery/internal/service"
	"guardian-recovery/pkg/apierror"
)

// StatusTooEarly reports an approval submitted before the recovery delay.
const StatusTooEarly = http.StatusTooEarly

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status, body := classifyError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func classifyError(err error) (int, *model.APIError) {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus, &model.APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details}
	}

	if errors.Is(err, service.ErrUnauthorized) {
		return http.StatusUnauthorized, &model.APIError{Code: "UNAUTHORIZED", Message: err.Error()}
	}

	body := &model.APIError{Kind: model.Kind(err), Message: err.Error()}
	switch {
	case errors.Is(err, model.ErrAuthorization):
		body.Code = "FORBIDDEN"
		return http.StatusForbidden, body
	case errors.Is(err, model.ErrValidation):
		body.Code = "BAD_REQUEST"
		return http.StatusBadRequest, body
	case errors.Is(err, model.ErrNotFound):
		body.Code = "NOT_FOUND"
		return http.StatusNotFound, body
	case errors.Is(err, model.ErrState):
		body.Code = "CONFLICT"
		return http.StatusConflict, body
	case errors.Is(err, model.ErrTimelock):
		body.Code = "TOO_EARLY"
		return StatusTooEarly, body
	}

	slog.Error("unhandled error in writeError", "error", err.Error())
	return http.StatusInternalServerError, &model.APIError{Code: "INTERNAL_ERROR", Message: "Unexpected server error"}
}
