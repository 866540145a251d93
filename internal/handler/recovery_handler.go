package handler

import (
	"net/http"

	"guardian-recovery/internal/model"
	"guardian-recovery/internal/service"
)

type RecoveryHandler struct {
	service *service.RecoveryService
}

func NewRecoveryHandler(service *service.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{service: service}
}

func (h *RecoveryHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.Status(), nil)
}

func (h *RecoveryHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var payload model.RecoveryTargetRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	target, err := model.ParseAddress(payload.NewSigner)
	if err != nil {
		writeError(w, err)
		return
	}

	status, err := h.service.InitiateRecovery(r.Context(), actorFromRequest(r), target)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, status, nil)
}

func (h *RecoveryHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var payload model.RecoveryTargetRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	target, err := model.ParseAddress(payload.NewSigner)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := h.service.ApproveRecovery(r.Context(), actorFromRequest(r), target)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, outcome, nil)
}

func (h *RecoveryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CancelRecovery(r.Context(), actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, status, nil)
}

func (h *RecoveryHandler) HasApproved(w http.ResponseWriter, r *http.Request) {
	identity, err := addressParam(r, "identity")
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"identity": identity,
		"approved": h.service.HasApproved(identity),
	}, nil)
}
