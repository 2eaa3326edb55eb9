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

type EngagementHandler struct {
	engagementService   *services.EngagementService
	relationshipService *services.RelationshipService
}

func NewEngagementHandler(engagementService *services.EngagementService, relationshipService *services.RelationshipService) *EngagementHandler {
	return &EngagementHandler{
		engagementService:   engagementService,
		relationshipService: relationshipService,
	}
}

// GET /api/v1/posts/{postId}
func (h *EngagementHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	postID := mux.Vars(r)["postId"]
	p, err := h.engagementService.GetPost(ctx, postID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

// POST /api/v1/posts/{postId}/like - Toggle the caller's like
func (h *EngagementHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	postID := mux.Vars(r)["postId"]
	liked, err := h.engagementService.ToggleLike(ctx, postID, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

// POST /api/v1/posts/{postId}/comments
func (h *EngagementHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acc, err := h.relationshipService.GetAccount(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	postID := mux.Vars(r)["postId"]
	c, err := h.engagementService.AddComment(ctx, postID, acc.Summary(), req.Text)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, c)
}

// GET /api/v1/posts/{postId}/comments
func (h *EngagementHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	postID := mux.Vars(r)["postId"]
	comments, err := h.engagementService.Comments(ctx, postID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, comments)
}
