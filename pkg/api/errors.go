package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto a status code. Client errors are returned
// verbatim; storage and upstream failures are logged and answered with a
// generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())
	switch {
	case errors.Is(err, types.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrAuth):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrSourceUnavailable):
		logger.Warn().Err(err).Msg("hazard source unavailable")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "hazard source unavailable"})
	default:
		logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
