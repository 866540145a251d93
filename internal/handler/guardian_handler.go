package handler

import (
	"net/http"

	"guardian-recovery/internal/model"
	"guardian-recovery/internal/service"
)

type GuardianHandler struct {
	service *service.RecoveryService
}

func NewGuardianHandler(service *service.RecoveryService) *GuardianHandler {
	return &GuardianHandler{service: service}
}

func (h *GuardianHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.ListGuardians(), nil)
}

func (h *GuardianHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := addressParam(r, "identity")
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.service.GuardianInfo(identity), nil)
}

func (h *GuardianHandler) Add(w http.ResponseWriter, r *http.Request) {
	var payload model.AddGuardianRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	identity, err := model.ParseAddress(payload.Identity)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := h.service.AddGuardian(r.Context(), actorFromRequest(r), identity, payload.Weight)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, info, nil)
}

func (h *GuardianHandler) Remove(w http.ResponseWriter, r *http.Request) {
	identity, err := addressParam(r, "identity")
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := h.service.RemoveGuardian(r.Context(), actorFromRequest(r), identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, info, nil)
}

func (h *GuardianHandler) UpdateWeight(w http.ResponseWriter, r *http.Request) {
	identity, err := addressParam(r, "identity")
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.UpdateWeightRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	info, err := h.service.UpdateGuardianWeight(r.Context(), actorFromRequest(r), identity, payload.Weight)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, info, nil)
}
