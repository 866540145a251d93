package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"guardian-recovery/internal/middleware"
	"guardian-recovery/internal/model"
	"guardian-recovery/pkg/apierror"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", model.ErrInvalidRequestBody)
		}
		return fmt.Errorf("%w: %v", model.ErrInvalidRequestBody, err)
	}
	return nil
}

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r)}

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.Address = claims.Subject
	actor.Role = claims.Role
	return actor
}

func callerFromRequest(r *http.Request) (common.Address, error) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return common.Address{}, apierror.Unauthorized("authentication required")
	}
	return model.ParseAddress(claims.Subject)
}

// addressParam parses a required address from the URL path.
func addressParam(r *http.Request, name string) (common.Address, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return common.Address{}, apierror.BadRequest(name+" is required", name)
	}
	return model.ParseAddress(raw)
}

// addressQuery parses a required address from the query string.
func addressQuery(r *http.Request, name string) (common.Address, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return common.Address{}, apierror.BadRequest(name+" is required", name)
	}
	return model.ParseAddress(raw)
}

func parseAddresses(raw []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raw))
	for _, value := range raw {
		address, err := model.ParseAddress(value)
		if err != nil {
			return nil, err
		}
		out = append(out, address)
	}
	return out, nil
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
