package services

import (
	"context"
	"testing"
	"time"

	"synapseAPI/internal/store"
	"synapseAPI/internal/subscription"
	"synapseAPI/internal/types/account"
)

type testEnv struct {
	store         *store.Memory
	registry      *subscription.Registry
	notifications *NotificationService
	relationships *RelationshipService
	engagement    *EngagementService
	posts         *PostService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := store.NewMemory()
	registry := subscription.NewRegistry()
	notifications := NewNotificationService(m)
	t.Cleanup(notifications.Stop)
	return &testEnv{
		store:         m,
		registry:      registry,
		notifications: notifications,
		relationships: NewRelationshipService(m, notifications, registry),
		engagement:    NewEngagementService(m, notifications, registry),
		posts:         NewPostService(m, registry),
	}
}

func (e *testEnv) seedAccount(t *testing.T, uid, name string) {
	t.Helper()
	acc := &account.Account{
		UID:          uid,
		DisplayName:  name,
		Handle:       "@" + uid,
		Friends:      []string{},
		BlockedUsers: []string{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.Write(context.Background(), store.CollectionUsers, uid, acc.Fields()); err != nil {
		t.Fatalf("failed to seed account %s: %v", uid, err)
	}
}

func (e *testEnv) seedPost(t *testing.T, id string, author account.Summary, likes int64, likedBy []string) {
	t.Helper()
	fields := map[string]any{
		"author":       account.SummaryFields(author),
		"content":      "test post",
		"likes":        likes,
		"likedByUsers": likedBy,
		"comments":     int64(0),
		"shares":       int64(0),
		"createdAt":    time.Now().UTC(),
	}
	if err := e.store.Write(context.Background(), store.CollectionPosts, id, fields); err != nil {
		t.Fatalf("failed to seed post %s: %v", id, err)
	}
}

// waitFor polls cond until it holds or the deadline passes. Snapshot
// delivery is asynchronous, so state-observing assertions go through
// here.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
