package services

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"synapseAPI/internal/reconcile"
	"synapseAPI/internal/store"
	"synapseAPI/internal/subscription"
	"synapseAPI/internal/types/account"
	"synapseAPI/internal/types/post"
)

// PostSession is one actor's live, optimistic view of a single post.
// Intents apply to the local view immediately, the matching relative
// operation goes to the store, and server snapshots merge through the
// reconciler so the actor's own in-flight changes never flicker back
// to a stale server value. Updates carries the effective view after
// every change, coalesced to the newest state.
//
// A session is a single logical actor: intents may be issued without
// waiting for earlier ones to settle, and the session serializes their
// optimistic application (last intent wins locally) without
// serializing the outgoing writes.
type PostSession struct {
	svc    *EngagementService
	postID string
	actor  account.Summary
	rec    *reconcile.Reconciler

	mu              sync.Mutex
	server          store.Document
	pendingComments []*post.Comment
	closed          bool

	updates chan post.Post
	release func()
	stop    chan struct{}
	once    sync.Once
}

// OpenPostSession loads the post and attaches to its live snapshot
// feed. Callers must Close the session to release the shared
// subscription.
func (s *EngagementService) OpenPostSession(ctx context.Context, postID string, actor account.Summary) (*PostSession, error) {
	doc, err := s.store.Get(ctx, store.CollectionPosts, postID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	sess := &PostSession{
		svc:     s,
		postID:  postID,
		actor:   actor,
		rec:     reconcile.New(),
		server:  doc,
		updates: make(chan post.Post, 1),
		stop:    make(chan struct{}),
	}
	// Seed the version floor so anything older than the load is stale.
	sess.rec.Merge(postID, doc.Version, doc.Fields)

	ch, release, err := s.registry.Listen(
		subscription.Key{Type: "posts", ID: postID},
		func(ctx context.Context) (*store.Subscription, error) {
			return s.store.Subscribe(ctx, store.CollectionPosts, []store.Predicate{
				store.Where(store.FieldID, "==", postID),
			})
		})
	if err != nil {
		return nil, err
	}
	sess.release = release

	go sess.pump(ch)
	return sess, nil
}

// Updates delivers the effective post view after every local or server
// change. Only the newest view is retained for a slow consumer.
func (sess *PostSession) Updates() <-chan post.Post { return sess.updates }

func (sess *PostSession) Close() {
	sess.once.Do(func() {
		close(sess.stop)
		sess.release()
	})
}

// View returns the current effective post: server state overlaid with
// the session's pending optimistic mutations.
func (sess *PostSession) View() post.Post {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return *sess.effectiveLocked()
}

// IsLiked reports the actor's effective like state.
func (sess *PostSession) IsLiked() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.effectiveLocked().LikedBy(sess.actor.UID)
}

// ToggleLike computes the target state from the effective local view,
// applies it optimistically, then sends the matching relative
// operation. On write failure every optimistic effect is reverted
// exactly and a retryable error is returned; the engine never retries
// by itself.
func (sess *PostSession) ToggleLike(ctx context.Context) error {
	sess.mu.Lock()
	target := !sess.effectiveLocked().LikedBy(sess.actor.UID)
	delta := int64(1)
	if !target {
		delta = -1
	}
	pm := sess.rec.ApplyOptimistic(reconcile.Mutation{
		EntityID: sess.postID,
		Field:    sess.membershipField(),
		Value:    target,
	})
	pl := sess.rec.ApplyOptimistic(reconcile.Mutation{
		EntityID: sess.postID,
		Field:    "likes",
		Value:    reconcile.Delta(delta),
	})
	sess.pushLocked()
	sess.mu.Unlock()

	err := sess.svc.store.Write(ctx, store.CollectionPosts, sess.postID, likeFields(sess.actor.UID, target))

	sess.mu.Lock()
	if err == nil {
		sess.confirmLikeLocked(target, delta)
		sess.rec.Resolve(pm, reconcile.OutcomeConfirmed)
		sess.rec.Resolve(pl, reconcile.OutcomeConfirmed)
	} else {
		sess.rec.Resolve(pm, reconcile.OutcomeFailed)
		sess.rec.Resolve(pl, reconcile.OutcomeFailed)
	}
	sess.pushLocked()
	sess.mu.Unlock()

	if err != nil {
		return &TransientStoreError{Err: err}
	}
	return nil
}

// AddComment clears the caller's input optimistically: the comment is
// visible in the session's list before the create is acknowledged. The
// counter increment is a separate relative operation whose failure is
// tolerated as transient drift.
func (sess *PostSession) AddComment(ctx context.Context, text string) (*post.Comment, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyComment
	}

	c := &post.Comment{
		ID:        "pending-" + uuid.NewString(),
		PostID:    sess.postID,
		Author:    sess.actor,
		Text:      trimmed,
		CreatedAt: time.Now().UTC(),
	}

	sess.mu.Lock()
	base := store.FieldInt(sess.server.Fields, "comments")
	sess.pendingComments = append(sess.pendingComments, c)
	pc := sess.rec.ApplyOptimistic(reconcile.Mutation{
		EntityID: sess.postID,
		Field:    "comments",
		Value:    reconcile.Delta(1),
	})
	sess.pushLocked()
	sess.mu.Unlock()

	id, err := sess.svc.store.Create(ctx, store.CollectionComments, c.Fields())

	sess.mu.Lock()
	sess.dropPendingCommentLocked(c)
	if err != nil {
		sess.rec.Resolve(pc, reconcile.OutcomeFailed)
		sess.pushLocked()
		sess.mu.Unlock()
		return nil, &TransientStoreError{Err: err}
	}
	c.ID = id
	sess.mu.Unlock()

	incErr := sess.svc.store.Write(ctx, store.CollectionPosts, sess.postID, map[string]any{
		"comments": store.Inc(1),
	})

	sess.mu.Lock()
	if incErr == nil {
		sess.confirmCommentsLocked(base)
		sess.rec.Resolve(pc, reconcile.OutcomeConfirmed)
	} else {
		sess.rec.Resolve(pc, reconcile.OutcomeFailed)
		log.Printf("PostSession: comment %s stored but counter increment failed, count will drift until reconciled: %v", id, incErr)
	}
	sess.pushLocked()
	sess.mu.Unlock()

	sess.svc.notifyCommented(ctx, sess.postID, sess.actor)
	return c, nil
}

// Comments merges the stored comments with any still-pending
// optimistic ones, oldest first.
func (sess *PostSession) Comments(ctx context.Context) ([]*post.Comment, error) {
	stored, err := sess.svc.Comments(ctx, sess.postID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append(stored, sess.pendingComments...), nil
}

func (sess *PostSession) membershipField() string {
	return "likedBy:" + sess.actor.UID
}

func (sess *PostSession) pump(ch <-chan store.Snapshot) {
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			for _, doc := range snap.Docs {
				if doc.ID == sess.postID {
					sess.applySnapshot(doc)
				}
			}
		case <-sess.stop:
			sess.mu.Lock()
			sess.closed = true
			sess.mu.Unlock()
			return
		}
	}
}

func (sess *PostSession) applySnapshot(doc store.Document) {
	// The merged map is discarded: Merge gates staleness and records the
	// version, while the effective view is always re-derived from the
	// authoritative fields plus whatever is still pending.
	if _, ok := sess.rec.Merge(doc.ID, doc.Version, doc.Fields); !ok {
		return
	}
	sess.mu.Lock()
	sess.server = store.Document{ID: doc.ID, Version: doc.Version, Fields: store.CopyFields(doc.Fields)}
	sess.pushLocked()
	sess.mu.Unlock()
}

func (sess *PostSession) effectiveLocked() *post.Post {
	fields := sess.rec.Overlay(sess.postID, sess.server.Fields)
	p := post.FromDocument(store.Document{ID: sess.postID, Version: sess.server.Version, Fields: fields})

	// Only the actor's own membership is suppressed while a like write
	// is in flight; other users' membership changes pass through from
	// the server untouched.
	if v, ok := fields[sess.membershipField()]; ok {
		want, _ := v.(bool)
		has := p.LikedBy(sess.actor.UID)
		if want && !has {
			p.LikedByUsers = append(p.LikedByUsers, sess.actor.UID)
		} else if !want && has {
			out := p.LikedByUsers[:0]
			for _, u := range p.LikedByUsers {
				if u != sess.actor.UID {
					out = append(out, u)
				}
			}
			p.LikedByUsers = out
		}
	}
	return p
}

// confirmLikeLocked folds a confirmed like write into the local
// authoritative copy so retiring the pending entry cannot flash the
// view back to the pre-write state while the confirming snapshot is
// still in transit. If a snapshot already reflects the write, the set
// membership says so and nothing is applied twice.
func (sess *PostSession) confirmLikeLocked(target bool, delta int64) {
	likedBy := store.FieldStrings(sess.server.Fields, "likedByUsers")
	has := false
	for _, u := range likedBy {
		if u == sess.actor.UID {
			has = true
		}
	}
	if target == has {
		return
	}
	if target {
		likedBy = append(likedBy, sess.actor.UID)
	} else {
		out := likedBy[:0]
		for _, u := range likedBy {
			if u != sess.actor.UID {
				out = append(out, u)
			}
		}
		likedBy = out
	}
	sess.server.Fields["likedByUsers"] = likedBy
	sess.server.Fields["likes"] = store.FieldInt(sess.server.Fields, "likes") + delta
}

// confirmCommentsLocked is the counter analogue: applied only when the
// server copy still shows the pre-increment value, otherwise the
// confirming snapshot has already landed.
func (sess *PostSession) confirmCommentsLocked(base int64) {
	if store.FieldInt(sess.server.Fields, "comments") == base {
		sess.server.Fields["comments"] = base + 1
	}
}

func (sess *PostSession) dropPendingCommentLocked(c *post.Comment) {
	out := sess.pendingComments[:0]
	for _, pc := range sess.pendingComments {
		if pc != c {
			out = append(out, pc)
		}
	}
	sess.pendingComments = out
}

func (sess *PostSession) pushLocked() {
	if sess.closed {
		return
	}
	view := *sess.effectiveLocked()
	select {
	case <-sess.updates:
	default:
	}
	select {
	case sess.updates <- view:
	default:
	}
}
