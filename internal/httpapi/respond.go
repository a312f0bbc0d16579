package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"kharcha/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed encoding response", "error", err)
	}
}

// writeError maps domain sentinels onto HTTP statuses. Anything unrecognized
// is a 500 with a generic body so storage details never leak to clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		status = http.StatusUnauthorized
		msg = err.Error()
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, core.ErrDeleteNotConfirmed):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCurrency),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidDate):
		status = http.StatusUnprocessableEntity
		msg = err.Error()
	case errors.Is(err, core.ErrSyncUnavailable):
		status = http.StatusServiceUnavailable
		msg = err.Error()
	default:
		slog.ErrorContext(r.Context(), "Unhandled request error", "error", err, "method", r.Method, "url", r.URL.Path)
	}

	writeJSON(w, status, errorBody{Error: msg})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
