package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/internal/auction"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrNoState):
		return http.StatusServiceUnavailable
	case errors.Is(err, auction.ErrUnknownStudent), errors.Is(err, auction.ErrUnknownVanguard):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrInvalidPrice), errors.Is(err, auction.ErrInvalidBackup):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrNotCurrentStudent),
		errors.Is(err, auction.ErrStudentUnavailable),
		errors.Is(err, auction.ErrInsufficientBudget),
		errors.Is(err, auction.ErrNotInQueue),
		errors.Is(err, auction.ErrCannotMoveCurrentStudent),
		errors.Is(err, auction.ErrStudentNotSold),
		errors.Is(err, auction.ErrStudentNotUnsold),
		errors.Is(err, auction.ErrNoActionToUndo),
		errors.Is(err, auction.ErrQueueEmpty):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
