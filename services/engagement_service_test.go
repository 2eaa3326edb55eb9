package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"synapseAPI/internal/store"
	"synapseAPI/internal/types/account"
	"synapseAPI/internal/types/notification"
)

func TestToggleLike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "dana", "Dana")
	env.seedPost(t, "p1", account.Summary{UID: "author", DisplayName: "Author"}, 3, []string{"a", "b", "c"})

	liked, err := env.engagement.ToggleLike(ctx, "p1", "dana")
	if err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if !liked {
		t.Error("expected liked=true")
	}

	p, _ := env.engagement.GetPost(ctx, "p1")
	if p.Likes != 4 {
		t.Errorf("expected 4 likes, got %d", p.Likes)
	}
	if !p.LikedBy("dana") {
		t.Error("dana must be in likedByUsers")
	}

	liked, err = env.engagement.ToggleLike(ctx, "p1", "dana")
	if err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if liked {
		t.Error("expected liked=false after second toggle")
	}

	p, _ = env.engagement.GetPost(ctx, "p1")
	if p.Likes != 3 || p.LikedBy("dana") {
		t.Errorf("expected exact revert to 3 likes without dana, got %d %v", p.Likes, p.LikedByUsers)
	}
}

func TestConcurrentLikesCommute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPost(t, "p1", account.Summary{UID: "author"}, 0, []string{})

	const users = 8
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("user-%d", i)
			if _, err := env.engagement.ToggleLike(ctx, "p1", uid); err != nil {
				t.Errorf("ToggleLike %s failed: %v", uid, err)
			}
		}(i)
	}
	wg.Wait()

	p, _ := env.engagement.GetPost(ctx, "p1")
	if p.Likes != users {
		t.Errorf("expected %d likes, got %d", users, p.Likes)
	}
	if len(p.LikedByUsers) != users {
		t.Errorf("expected %d members, got %v", users, p.LikedByUsers)
	}
}

func TestAddComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "author", "Author")
	env.seedPost(t, "p1", account.Summary{UID: "author", DisplayName: "Author"}, 0, []string{})

	dana := account.Summary{UID: "dana", DisplayName: "Dana"}
	c, err := env.engagement.AddComment(ctx, "p1", dana, "  nice post  ")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if c.Text != "nice post" {
		t.Errorf("expected trimmed text, got %q", c.Text)
	}

	comments, err := env.engagement.Comments(ctx, "p1")
	if err != nil {
		t.Fatalf("Comments failed: %v", err)
	}
	if len(comments) != 1 || comments[0].ID != c.ID {
		t.Fatalf("expected the stored comment, got %+v", comments)
	}

	p, _ := env.engagement.GetPost(ctx, "p1")
	if p.Comments != 1 {
		t.Errorf("expected comment counter 1, got %d", p.Comments)
	}

	// The post author is notified about the comment.
	notifs, _ := env.notifications.List(ctx, "author", false)
	if len(notifs) != 1 || notifs[0].Type != notification.TypeComment {
		t.Errorf("expected one comment notification, got %+v", notifs)
	}
}

func TestAddCommentRejectsEmptyText(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "p1", account.Summary{UID: "author"}, 0, []string{})

	_, err := env.engagement.AddComment(context.Background(), "p1", account.Summary{UID: "dana"}, "   \n\t ")
	if !errors.Is(err, ErrEmptyComment) {
		t.Errorf("expected ErrEmptyComment, got %v", err)
	}
}

func TestAddCommentSurvivesCounterFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPost(t, "p1", account.Summary{UID: "author"}, 0, []string{})

	// Fail only the counter bump on the post, not the comment create.
	env.store.SetWriteHook(func(kind, collection, id string) error {
		if kind == "write" && collection == store.CollectionPosts {
			return errors.New("counter write lost")
		}
		return nil
	})
	defer env.store.SetWriteHook(nil)

	c, err := env.engagement.AddComment(ctx, "p1", account.Summary{UID: "dana"}, "still here")
	if err != nil {
		t.Fatalf("AddComment must tolerate counter failure: %v", err)
	}

	comments, _ := env.engagement.Comments(ctx, "p1")
	if len(comments) != 1 || comments[0].ID != c.ID {
		t.Fatalf("comment must persist despite counter drift, got %+v", comments)
	}

	// The counter drifts until a later write reconciles it.
	p, _ := env.engagement.GetPost(ctx, "p1")
	if p.Comments != 0 {
		t.Errorf("expected drifted counter 0, got %d", p.Comments)
	}
}

func TestAddCommentCreateFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "p1", account.Summary{UID: "author"}, 0, []string{})

	env.store.FailNextWrite(errors.New("network down"))
	_, err := env.engagement.AddComment(context.Background(), "p1", account.Summary{UID: "dana"}, "lost")

	var transient *TransientStoreError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientStoreError, got %v", err)
	}

	comments, _ := env.engagement.Comments(context.Background(), "p1")
	if len(comments) != 0 {
		t.Errorf("no comment may be stored on create failure, got %+v", comments)
	}
}
