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

type PostHandler struct {
	postService         *services.PostService
	relationshipService *services.RelationshipService
}

func NewPostHandler(postService *services.PostService, relationshipService *services.RelationshipService) *PostHandler {
	return &PostHandler{
		postService:         postService,
		relationshipService: relationshipService,
	}
}

// POST /api/v1/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		Content     string `json:"content"`
		Image       string `json:"image"`
		CommunityID string `json:"communityId"`
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

	p, err := h.postService.CreatePost(ctx, acc.Summary(), req.Content, req.Image, req.CommunityID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, p)
}

// GET /api/v1/posts?communityId= - Feed, optionally scoped to a community
func (h *PostHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	posts, err := h.postService.Feed(ctx, r.URL.Query().Get("communityId"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, posts)
}

// POST /api/v1/communities
func (h *PostHandler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Privacy     string `json:"privacy"`
		CoverURL    string `json:"coverURL"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := h.postService.CreateCommunity(ctx, userID, req.Name, req.Description, req.Privacy, req.CoverURL)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, c)
}

// GET /api/v1/communities
func (h *PostHandler) ListCommunities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	communities, err := h.postService.ListCommunities(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, communities)
}

// POST /api/v1/communities/{communityId}/join
func (h *PostHandler) JoinCommunity(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.postService.JoinCommunity, "joined")
}

// POST /api/v1/communities/{communityId}/leave
func (h *PostHandler) LeaveCommunity(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.postService.LeaveCommunity, "left")
}

func (h *PostHandler) membership(w http.ResponseWriter, r *http.Request, change func(context.Context, string, string) error, status string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	communityID := mux.Vars(r)["communityId"]
	if err := change(ctx, communityID, userID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": status})
}
