package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"synapseAPI/internal/store"
	"synapseAPI/internal/subscription"
	"synapseAPI/internal/types/account"
	"synapseAPI/internal/types/notification"
	"synapseAPI/internal/types/post"
)

// EngagementService owns likes and comments on posts. Every counter
// mutation is sent as a relative operation (increment plus set
// add/remove), never as an absolute value, so concurrent toggles from
// different users commute and the counters converge without
// read-modify-write checks.
type EngagementService struct {
	store         store.Store
	notifications *NotificationService
	registry      *subscription.Registry
}

func NewEngagementService(st store.Store, notifications *NotificationService, registry *subscription.Registry) *EngagementService {
	return &EngagementService{
		store:         st,
		notifications: notifications,
		registry:      registry,
	}
}

func (s *EngagementService) GetPost(ctx context.Context, postID string) (*post.Post, error) {
	doc, err := s.store.Get(ctx, store.CollectionPosts, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to get post %s: %w", postID, err)
	}
	return post.FromDocument(doc), nil
}

// ToggleLike flips the actor's like on the post based on the current
// server state and returns the new membership. Used by the HTTP
// facade; in-client optimistic toggling lives on PostSession.
func (s *EngagementService) ToggleLike(ctx context.Context, postID, actorUID string) (bool, error) {
	p, err := s.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}

	liked := p.LikedBy(actorUID)
	fields := likeFields(actorUID, !liked)
	if err := s.store.Write(ctx, store.CollectionPosts, postID, fields); err != nil {
		return liked, &TransientStoreError{Err: err}
	}
	return !liked, nil
}

// AddComment validates locally, appends the comment document, then
// bumps the post's denormalized comment counter as a separate relative
// operation. A counter failure after a successful create is tolerated:
// the count is a cache of the comment collection size, reconciled
// eventually, and never a reason to roll back a stored comment.
func (s *EngagementService) AddComment(ctx context.Context, postID string, author account.Summary, text string) (*post.Comment, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyComment
	}

	c := &post.Comment{
		PostID:    postID,
		Author:    author,
		Text:      trimmed,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.store.Create(ctx, store.CollectionComments, c.Fields())
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	c.ID = id

	if err := s.store.Write(ctx, store.CollectionPosts, postID, map[string]any{
		"comments": store.Inc(1),
	}); err != nil {
		log.Printf("AddComment: comment %s stored but counter increment failed, count will drift until reconciled: %v", id, err)
	}

	s.notifyCommented(ctx, postID, author)
	return c, nil
}

// Comments returns the stored comments for a post, oldest first.
func (s *EngagementService) Comments(ctx context.Context, postID string) ([]*post.Comment, error) {
	docs, err := s.store.Query(ctx, store.CollectionComments, []store.Predicate{
		store.Where("postId", "==", postID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query comments for %s: %w", postID, err)
	}
	out := make([]*post.Comment, 0, len(docs))
	for _, doc := range docs {
		out = append(out, post.CommentFromDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *EngagementService) notifyCommented(ctx context.Context, postID string, author account.Summary) {
	if s.notifications == nil {
		return
	}
	p, err := s.GetPost(ctx, postID)
	if err != nil || p.Author.UID == "" || p.Author.UID == author.UID {
		return
	}
	_, err = s.notifications.Create(ctx, &notification.Notification{
		RecipientUID: p.Author.UID,
		Sender:       author,
		Type:         notification.TypeComment,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		log.Printf("AddComment: failed to notify %s: %v", p.Author.UID, err)
	}
}

func likeFields(actorUID string, like bool) map[string]any {
	if like {
		return map[string]any{
			"likes":        store.Inc(1),
			"likedByUsers": store.Union(actorUID),
		}
	}
	return map[string]any{
		"likes":        store.Inc(-1),
		"likedByUsers": store.Remove(actorUID),
	}
}
