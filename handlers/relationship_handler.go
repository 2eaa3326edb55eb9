package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"synapseAPI/middleware"
	"synapseAPI/services"
)

type RelationshipHandler struct {
	relationshipService *services.RelationshipService
}

func NewRelationshipHandler(relationshipService *services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{
		relationshipService: relationshipService,
	}
}

// GET /api/v1/users/{uid} - Get a user's profile
func (h *RelationshipHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	uid := mux.Vars(r)["uid"]
	acc, err := h.relationshipService.GetAccount(ctx, uid)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, acc)
}

// POST /api/v1/friends/requests - Send a friend request
func (h *RelationshipHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		ReceiverID string `json:"receiverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReceiverID == "" {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.relationshipService.SendRequest(ctx, userID, req.ReceiverID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// POST /api/v1/friends/requests/{requestId}/accept
func (h *RelationshipHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, h.relationshipService.AcceptRequest, "accepted")
}

// POST /api/v1/friends/requests/{requestId}/decline
func (h *RelationshipHandler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, h.relationshipService.DeclineRequest, "declined")
}

// DELETE /api/v1/friends/requests/{requestId} - Cancel a sent request
func (h *RelationshipHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, h.relationshipService.CancelRequest, "cancelled")
}

func (h *RelationshipHandler) resolveRequest(w http.ResponseWriter, r *http.Request, resolve func(context.Context, string, string) error, status string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	requestID := mux.Vars(r)["requestId"]
	if err := resolve(ctx, requestID, userID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": status})
}

// DELETE /api/v1/friends/{uid} - Unfriend
func (h *RelationshipHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	otherUID := mux.Vars(r)["uid"]
	if err := h.relationshipService.Unfriend(ctx, userID, otherUID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "unfriended"})
}

// POST /api/v1/users/{uid}/block
func (h *RelationshipHandler) Block(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	targetUID := mux.Vars(r)["uid"]
	if err := h.relationshipService.Block(ctx, userID, targetUID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

// DELETE /api/v1/users/{uid}/block
func (h *RelationshipHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	targetUID := mux.Vars(r)["uid"]
	if err := h.relationshipService.Unblock(ctx, userID, targetUID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

// GET /api/v1/friends/status/{uid} - Relationship status with another user
func (h *RelationshipHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	otherUID := mux.Vars(r)["uid"]
	status, err := h.relationshipService.StatusBetween(ctx, userID, otherUID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
