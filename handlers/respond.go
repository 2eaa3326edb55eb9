package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"synapseAPI/services"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps service errors to HTTP statuses.
// ErrRequestNotFound is deliberately a 200: the counterparty already
// resolved the request, so from the caller's perspective the desired
// end state holds and nothing needs retrying.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var transient *services.TransientStoreError
	var atomic *services.AtomicTransitionError

	switch {
	case errors.Is(err, services.ErrRequestNotFound):
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "already_resolved"})
	case errors.Is(err, services.ErrAlreadyRequestedOrFriends):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrBlocked):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrEmptyComment):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrPostNotFound),
		errors.Is(err, services.ErrCommunityNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &transient):
		respondWithError(w, http.StatusServiceUnavailable, "store temporarily unavailable, safe to retry")
	case errors.As(err, &atomic):
		respondWithError(w, http.StatusInternalServerError, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
