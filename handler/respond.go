package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/billbatista/rateio/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

var errInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// serviceError maps ledger errors to status codes. Anything unexpected is logged and hidden
// behind a generic 500.
func serviceError(w http.ResponseWriter, err error, action string) {
	switch {
	case ledger.IsInvalidInput(err), errors.Is(err, errInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnknownParticipant):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ledger.ErrLedgerClosed), errors.Is(err, ledger.ErrLedgerOpen), errors.Is(err, ledger.ErrLedgerChanged):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrUnbalanced):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidDate
}
