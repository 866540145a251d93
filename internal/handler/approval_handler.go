package handler

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/model"
	"guardian-recovery/internal/service"
)

type ApprovalHandler struct {
	service *service.RevokeService
}

func NewApprovalHandler(service *service.RevokeService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Allowance reports the caller's allowance, or that of ?owner= when given.
func (h *ApprovalHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	owner, token, spender, err := h.pairQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := h.service.Allowance(r.Context(), owner, token, spender)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, data, nil)
}

func (h *ApprovalHandler) Revoked(w http.ResponseWriter, r *http.Request) {
	owner, token, spender, err := h.pairQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"owner":   owner,
		"token":   token,
		"spender": spender,
		"revoked": h.service.IsRevoked(owner, token, spender),
	}, nil)
}

func (h *ApprovalHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	token, spender, ok := h.decodePair(w, r)
	if !ok {
		return
	}

	result, err := h.service.RevokeApproval(r.Context(), actorFromRequest(r), token, spender)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *ApprovalHandler) BatchRevoke(w http.ResponseWriter, r *http.Request) {
	var payload model.BatchRevokeRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := parseAddresses(payload.Tokens)
	if err != nil {
		writeError(w, err)
		return
	}
	spenders, err := parseAddresses(payload.Spenders)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := h.service.BatchRevokeApprovals(r.Context(), actorFromRequest(r), tokens, spenders)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, data, nil)
}

func (h *ApprovalHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	token, spender, ok := h.decodePair(w, r)
	if !ok {
		return
	}

	marker, err := h.service.EmergencyRevoke(r.Context(), actorFromRequest(r), token, spender)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, marker, nil)
}

func (h *ApprovalHandler) decodePair(w http.ResponseWriter, r *http.Request) (token common.Address, spender common.Address, ok bool) {
	var payload model.RevokeRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return token, spender, false
	}

	parsed, err := parseAddresses([]string{payload.Token, payload.Spender})
	if err != nil {
		writeError(w, err)
		return token, spender, false
	}
	return parsed[0], parsed[1], true
}

func (h *ApprovalHandler) pairQuery(r *http.Request) (owner common.Address, token common.Address, spender common.Address, err error) {
	if strings.TrimSpace(r.URL.Query().Get("owner")) != "" {
		owner, err = addressQuery(r, "owner")
	} else {
		owner, err = callerFromRequest(r)
	}
	if err != nil {
		return owner, token, spender, err
	}

	if token, err = addressQuery(r, "token"); err != nil {
		return owner, token, spender, err
	}
	spender, err = addressQuery(r, "spender")
	return owner, token, spender, err
}
