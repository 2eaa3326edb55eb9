package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"synapseAPI/internal/store"
	"synapseAPI/internal/subscription"
	"synapseAPI/internal/types/account"
	"synapseAPI/internal/types/community"
	"synapseAPI/internal/types/post"
)

var ErrCommunityNotFound = errors.New("community not found")

// PostService owns post and community lifecycle: creation, membership
// and feed queries. Engagement on existing posts lives on
// EngagementService; the split mirrors the write patterns, absolute
// creates here, relative counter mutations there.
type PostService struct {
	store    store.Store
	registry *subscription.Registry
}

func NewPostService(st store.Store, registry *subscription.Registry) *PostService {
	return &PostService{store: st, registry: registry}
}

// CreatePost stores a new post with all engagement counters seeded to
// their empty state so that every later mutation can be relative.
func (s *PostService) CreatePost(ctx context.Context, author account.Summary, content, image, communityID string) (*post.Post, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" && image == "" {
		return nil, fmt.Errorf("post must have content or an image")
	}

	p := &post.Post{
		Author:       author,
		Content:      trimmed,
		Image:        image,
		CommunityID:  communityID,
		Likes:        0,
		LikedByUsers: []string{},
		Comments:     0,
		Shares:       0,
		CreatedAt:    time.Now().UTC(),
	}
	id, err := s.store.Create(ctx, store.CollectionPosts, p.Fields())
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	p.ID = id
	return p, nil
}

func (s *PostService) GetCommunity(ctx context.Context, communityID string) (*community.Community, error) {
	doc, err := s.store.Get(ctx, store.CollectionCommunities, communityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCommunityNotFound
		}
		return nil, fmt.Errorf("failed to get community %s: %w", communityID, err)
	}
	return community.FromDocument(doc), nil
}

// CreateCommunity stores a new community with the creator as its only
// member.
func (s *PostService) CreateCommunity(ctx context.Context, creatorUID, name, description, privacy, coverURL string) (*community.Community, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("community name is required")
	}
	if privacy == "" {
		privacy = "public"
	}

	c := &community.Community{
		Name:        strings.TrimSpace(name),
		Description: description,
		Privacy:     privacy,
		CoverURL:    coverURL,
		Members:     []string{creatorUID},
		MemberCount: 1,
		CreatedBy:   creatorUID,
		CreatedAt:   time.Now().UTC(),
	}
	id, err := s.store.Create(ctx, store.CollectionCommunities, c.Fields())
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	c.ID = id
	return c, nil
}

// JoinCommunity adds the actor to the member set. Both the set add and
// the counter bump are relative so concurrent joins commute; joining
// twice is absorbed by set semantics but would double-count, so
// membership is checked first.
func (s *PostService) JoinCommunity(ctx context.Context, communityID, actorUID string) error {
	c, err := s.GetCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	for _, m := range c.Members {
		if m == actorUID {
			return nil
		}
	}

	err = s.store.Write(ctx, store.CollectionCommunities, communityID, map[string]any{
		"members":     store.Union(actorUID),
		"memberCount": store.Inc(1),
	})
	if err != nil {
		return &TransientStoreError{Err: err}
	}
	return nil
}

func (s *PostService) LeaveCommunity(ctx context.Context, communityID, actorUID string) error {
	c, err := s.GetCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	member := false
	for _, m := range c.Members {
		if m == actorUID {
			member = true
			break
		}
	}
	if !member {
		return nil
	}

	err = s.store.Write(ctx, store.CollectionCommunities, communityID, map[string]any{
		"members":     store.Remove(actorUID),
		"memberCount": store.Inc(-1),
	})
	if err != nil {
		return &TransientStoreError{Err: err}
	}
	return nil
}

// ListCommunities returns every community, newest first.
func (s *PostService) ListCommunities(ctx context.Context) ([]*community.Community, error) {
	docs, err := s.store.Query(ctx, store.CollectionCommunities, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query communities: %w", err)
	}
	out := make([]*community.Community, 0, len(docs))
	for _, doc := range docs {
		out = append(out, community.FromDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Feed returns the global feed (communityID == "") or a single
// community's posts, newest first.
func (s *PostService) Feed(ctx context.Context, communityID string) ([]*post.Post, error) {
	docs, err := s.store.Query(ctx, store.CollectionPosts, feedPredicates(communityID))
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	out := make([]*post.Post, 0, len(docs))
	for _, doc := range docs {
		out = append(out, post.FromDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FeedWatch streams the feed as it changes, sharing one store
// subscription per feed across consumers.
type FeedWatch struct {
	C         <-chan []*post.Post
	release   func()
	stop      chan struct{}
	closeOnce sync.Once
}

func (w *FeedWatch) Close() {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.release()
	})
}

func (s *PostService) WatchFeed(communityID string) (*FeedWatch, error) {
	key := subscription.Key{Type: "feed", ID: communityID}
	snaps, release, err := s.registry.Listen(key, func(ctx context.Context) (*store.Subscription, error) {
		return s.store.Subscribe(ctx, store.CollectionPosts, feedPredicates(communityID))
	})
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}

	out := make(chan []*post.Post, 1)
	w := &FeedWatch{C: out, release: release, stop: make(chan struct{})}
	go func() {
		defer close(out)
		for {
			select {
			case <-w.stop:
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				posts := make([]*post.Post, 0, len(snap.Docs))
				for _, doc := range snap.Docs {
					posts = append(posts, post.FromDocument(doc))
				}
				sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
				select {
				case out <- posts:
				case <-w.stop:
					return
				default:
					// Coalesce: replace the undrained feed with the newer one.
					select {
					case <-out:
					default:
					}
					out <- posts
				}
			}
		}
	}()
	return w, nil
}

func feedPredicates(communityID string) []store.Predicate {
	if communityID == "" {
		return nil
	}
	return []store.Predicate{store.Where("communityId", "==", communityID)}
}
