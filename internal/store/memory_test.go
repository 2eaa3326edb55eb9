package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWriteAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.Write(ctx, CollectionPosts, "p1", map[string]any{
		"content": "hello",
		"likes":   int64(0),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	doc, err := m.Get(ctx, CollectionPosts, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if FieldString(doc.Fields, "content") != "hello" {
		t.Errorf("expected content hello, got %v", doc.Fields["content"])
	}
	if doc.Version == 0 {
		t.Error("expected non-zero version after write")
	}

	_, err = m.Get(ctx, CollectionPosts, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRelativeWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Write(ctx, CollectionPosts, "p1", map[string]any{
		"likes":        int64(3),
		"likedByUsers": []string{"a", "b", "c"},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err := m.Write(ctx, CollectionPosts, "p1", map[string]any{
		"likes":        Inc(1),
		"likedByUsers": Union("d"),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	doc, _ := m.Get(ctx, CollectionPosts, "p1")
	if got := FieldInt(doc.Fields, "likes"); got != 4 {
		t.Errorf("expected 4 likes, got %d", got)
	}
	if got := FieldStrings(doc.Fields, "likedByUsers"); len(got) != 4 {
		t.Errorf("expected 4 members, got %v", got)
	}

	// Union is idempotent, Inc is not. The pair is only issued together.
	err = m.Write(ctx, CollectionPosts, "p1", map[string]any{
		"likedByUsers": Union("d"),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	doc, _ = m.Get(ctx, CollectionPosts, "p1")
	if got := FieldStrings(doc.Fields, "likedByUsers"); len(got) != 4 {
		t.Errorf("expected union to be idempotent, got %v", got)
	}

	err = m.Write(ctx, CollectionPosts, "p1", map[string]any{
		"likes":        Inc(-1),
		"likedByUsers": Remove("d"),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	doc, _ = m.Get(ctx, CollectionPosts, "p1")
	if got := FieldInt(doc.Fields, "likes"); got != 3 {
		t.Errorf("expected 3 likes, got %d", got)
	}
	if got := FieldStrings(doc.Fields, "likedByUsers"); len(got) != 3 {
		t.Errorf("expected 3 members, got %v", got)
	}
}

func TestWriteAtomicAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Write(ctx, CollectionUsers, "alice", map[string]any{"friends": []string{}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := m.Write(ctx, CollectionUsers, "bob", map[string]any{"friends": []string{}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// The request document does not exist, so the whole batch must fail
	// and neither friends set may change.
	err := m.WriteAtomic(ctx, []Op{
		DeleteExisting(CollectionFriendRequests, "gone"),
		AddToSet(CollectionUsers, "alice", "friends", "bob"),
		AddToSet(CollectionUsers, "bob", "friends", "alice"),
	})
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	alice, _ := m.Get(ctx, CollectionUsers, "alice")
	if got := FieldStrings(alice.Fields, "friends"); len(got) != 0 {
		t.Errorf("batch must not have applied, friends = %v", got)
	}
}

func TestWriteAtomicCommit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Write(ctx, CollectionUsers, "alice", map[string]any{"friends": []string{}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := m.Write(ctx, CollectionUsers, "bob", map[string]any{"friends": []string{}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := m.Write(ctx, CollectionFriendRequests, "r1", map[string]any{
		"senderId": "alice", "receiverId": "bob",
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err := m.WriteAtomic(ctx, []Op{
		DeleteExisting(CollectionFriendRequests, "r1"),
		AddToSet(CollectionUsers, "alice", "friends", "bob"),
		AddToSet(CollectionUsers, "bob", "friends", "alice"),
		SetFields(CollectionNotifications, "n1", map[string]any{"type": "friend_accept"}),
	})
	if err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}

	if _, err := m.Get(ctx, CollectionFriendRequests, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected request deleted, got %v", err)
	}
	alice, _ := m.Get(ctx, CollectionUsers, "alice")
	bob, _ := m.Get(ctx, CollectionUsers, "bob")
	if got := FieldStrings(alice.Fields, "friends"); len(got) != 1 || got[0] != "bob" {
		t.Errorf("alice friends = %v", got)
	}
	if got := FieldStrings(bob.Fields, "friends"); len(got) != 1 || got[0] != "alice" {
		t.Errorf("bob friends = %v", got)
	}
	if _, err := m.Get(ctx, CollectionNotifications, "n1"); err != nil {
		t.Errorf("expected notification created: %v", err)
	}

	// Replaying the delete must now fail: the request is the terminal marker.
	err = m.WriteAtomic(ctx, []Op{DeleteExisting(CollectionFriendRequests, "r1")})
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("expected ErrPreconditionFailed on replay, got %v", err)
	}
}

func TestQueryPredicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Write(ctx, CollectionFriendRequests, "r1", map[string]any{"senderId": "a", "receiverId": "b"})
	m.Write(ctx, CollectionFriendRequests, "r2", map[string]any{"senderId": "b", "receiverId": "a"})
	m.Write(ctx, CollectionFriendRequests, "r3", map[string]any{"senderId": "a", "receiverId": "c"})

	docs, err := m.Query(ctx, CollectionFriendRequests, []Predicate{
		Where("senderId", "==", "a"),
		Where("receiverId", "==", "b"),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "r1" {
		t.Errorf("expected [r1], got %v", docs)
	}

	docs, err = m.Query(ctx, CollectionFriendRequests, []Predicate{
		Where(FieldID, "==", "r3"),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "r3" {
		t.Errorf("expected [r3], got %v", docs)
	}
}

func TestSubscribeDeliversInCommitOrder(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Write(ctx, CollectionPosts, "p1", map[string]any{"likes": int64(0)})

	sub, err := m.Subscribe(ctx, CollectionPosts, []Predicate{Where(FieldID, "==", "p1")})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	first := recvSnapshot(t, sub.C)
	if len(first.Docs) != 1 {
		t.Fatalf("expected initial snapshot with p1, got %v", first.Docs)
	}

	for i := 1; i <= 3; i++ {
		if err := m.Write(ctx, CollectionPosts, "p1", map[string]any{"likes": Inc(1)}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	lastVersion := first.Version
	var lastLikes int64
	for i := 0; i < 3; i++ {
		snap := recvSnapshot(t, sub.C)
		if snap.Version <= lastVersion {
			t.Errorf("snapshot version went backwards: %d after %d", snap.Version, lastVersion)
		}
		lastVersion = snap.Version
		lastLikes = FieldInt(snap.Docs[0].Fields, "likes")
	}
	if lastLikes != 3 {
		t.Errorf("expected final likes 3, got %d", lastLikes)
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, CollectionPosts, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	recvSnapshot(t, sub.C)
	sub.Cancel()

	select {
	case _, ok := <-sub.C:
		if ok {
			// A snapshot may still be in flight; the close must follow.
			if _, ok := <-sub.C; ok {
				t.Error("channel still open after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}
}

func TestFailNextWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Write(ctx, CollectionPosts, "p1", map[string]any{"likes": int64(1)})

	boom := errors.New("boom")
	m.FailNextWrite(boom)
	err := m.Write(ctx, CollectionPosts, "p1", map[string]any{"likes": Inc(1)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	doc, _ := m.Get(ctx, CollectionPosts, "p1")
	if got := FieldInt(doc.Fields, "likes"); got != 1 {
		t.Errorf("failed write must not apply, likes = %d", got)
	}

	// One-shot: the next write goes through.
	if err := m.Write(ctx, CollectionPosts, "p1", map[string]any{"likes": Inc(1)}); err != nil {
		t.Fatalf("Write after injected failure failed: %v", err)
	}
}

func recvSnapshot(t *testing.T, c <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-c:
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}
