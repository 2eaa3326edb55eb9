package services

import (
	"context"
	"testing"

	"synapseAPI/internal/types/account"
)

func TestCreatePostDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	author := account.Summary{UID: "alice", DisplayName: "Alice"}
	p, err := env.posts.CreatePost(ctx, author, "  hello world  ", "", "")
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected assigned id")
	}
	if p.Content != "hello world" {
		t.Errorf("expected trimmed content, got %q", p.Content)
	}
	if p.Likes != 0 || p.Comments != 0 || p.Shares != 0 || len(p.LikedByUsers) != 0 {
		t.Errorf("engagement counters must start empty: %+v", p)
	}

	stored, err := env.engagement.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if stored.Author.UID != "alice" {
		t.Errorf("expected denormalized author, got %+v", stored.Author)
	}
}

func TestCreatePostRequiresContent(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.posts.CreatePost(context.Background(), account.Summary{UID: "alice"}, "   ", "", ""); err == nil {
		t.Error("expected error for empty post")
	}
}

func TestCommunityMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.posts.CreateCommunity(ctx, "alice", "Gophers", "a place", "public", "")
	if err != nil {
		t.Fatalf("CreateCommunity failed: %v", err)
	}
	if c.MemberCount != 1 || len(c.Members) != 1 || c.Members[0] != "alice" {
		t.Fatalf("creator must be the first member: %+v", c)
	}

	if err := env.posts.JoinCommunity(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("JoinCommunity failed: %v", err)
	}
	// Joining again is a no-op and must not double-count.
	if err := env.posts.JoinCommunity(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("JoinCommunity failed: %v", err)
	}

	got, _ := env.posts.GetCommunity(ctx, c.ID)
	if got.MemberCount != 2 || len(got.Members) != 2 {
		t.Errorf("expected 2 members, got count=%d members=%v", got.MemberCount, got.Members)
	}

	if err := env.posts.LeaveCommunity(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("LeaveCommunity failed: %v", err)
	}
	if err := env.posts.LeaveCommunity(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("LeaveCommunity failed: %v", err)
	}

	got, _ = env.posts.GetCommunity(ctx, c.ID)
	if got.MemberCount != 1 || len(got.Members) != 1 {
		t.Errorf("expected 1 member after leave, got count=%d members=%v", got.MemberCount, got.Members)
	}
}

func TestFeedFiltersByCommunity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	author := account.Summary{UID: "alice"}
	if _, err := env.posts.CreatePost(ctx, author, "global", "", ""); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if _, err := env.posts.CreatePost(ctx, author, "in community", "", "c1"); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	all, err := env.posts.Feed(ctx, "")
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 posts in the global feed, got %d", len(all))
	}

	scoped, err := env.posts.Feed(ctx, "c1")
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Content != "in community" {
		t.Errorf("expected only the community post, got %+v", scoped)
	}
}

func TestWatchFeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w, err := env.posts.WatchFeed("c1")
	if err != nil {
		t.Fatalf("WatchFeed failed: %v", err)
	}
	defer w.Close()

	author := account.Summary{UID: "alice"}
	if _, err := env.posts.CreatePost(ctx, author, "first", "", "c1"); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	var seen int
	waitFor(t, func() bool {
		select {
		case posts, ok := <-w.C:
			if !ok {
				return false
			}
			seen = len(posts)
		default:
		}
		return seen == 1
	}, "feed snapshot with the new post")
}
