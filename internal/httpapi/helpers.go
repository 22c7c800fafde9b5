package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/forum"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/moderation"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// handleDomainError maps service-layer sentinels onto status codes.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, moderation.ErrInvalidInput),
		errors.Is(err, roles.ErrInvalidInput),
		errors.Is(err, forum.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, moderation.ErrForbidden),
		errors.Is(err, forum.ErrSuspended):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, roles.ErrNotFound),
		errors.Is(err, faction.ErrNotFound),
		errors.Is(err, forum.ErrNotFound),
		errors.Is(err, privilege.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrConflict),
		errors.Is(err, roles.ErrConflict),
		errors.Is(err, faction.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}
