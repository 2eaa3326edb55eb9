package services

import (
	"context"
	"errors"
	"testing"

	"synapseAPI/internal/types/notification"
	"synapseAPI/internal/types/relationship"
)

func TestSendAndAcceptRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, err := env.relationships.SendRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if req.ID == "" || req.Status != relationship.StatusPending {
		t.Fatalf("unexpected request: %+v", req)
	}

	// The receiver gets a friend_request notification.
	bobNotifs, err := env.notifications.List(ctx, "bob", false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(bobNotifs) != 1 || bobNotifs[0].Type != notification.TypeFriendRequest {
		t.Fatalf("expected one friend_request notification, got %+v", bobNotifs)
	}

	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}

	// Friendship must be symmetric after accept.
	alice, err := env.relationships.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	bob, err := env.relationships.GetAccount(ctx, "bob")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !alice.IsFriend("bob") || !bob.IsFriend("alice") {
		t.Errorf("friendship not symmetric: alice=%v bob=%v", alice.Friends, bob.Friends)
	}

	// The sender gets the acceptance notification, written in the same
	// batch as the friendship.
	aliceNotifs, err := env.notifications.List(ctx, "alice", false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(aliceNotifs) != 1 || aliceNotifs[0].Type != notification.TypeFriendAccept {
		t.Fatalf("expected one friend_accept notification, got %+v", aliceNotifs)
	}

	status, err := env.relationships.StatusBetween(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StatusBetween failed: %v", err)
	}
	if status != relationship.StatusFriends {
		t.Errorf("expected friends, got %s", status)
	}
}

func TestSingleRequestPerPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	if _, err := env.relationships.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	// Same direction.
	if _, err := env.relationships.SendRequest(ctx, "alice", "bob"); !errors.Is(err, ErrAlreadyRequestedOrFriends) {
		t.Errorf("expected ErrAlreadyRequestedOrFriends, got %v", err)
	}
	// Reverse direction.
	if _, err := env.relationships.SendRequest(ctx, "bob", "alice"); !errors.Is(err, ErrAlreadyRequestedOrFriends) {
		t.Errorf("expected ErrAlreadyRequestedOrFriends for reverse direction, got %v", err)
	}
}

func TestSendRequestToSelf(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Alice")

	if _, err := env.relationships.SendRequest(context.Background(), "alice", "alice"); err == nil {
		t.Error("expected error for self-request")
	}
}

func TestSendRequestWhileFriends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, _ := env.relationships.SendRequest(ctx, "alice", "bob")
	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}

	if _, err := env.relationships.SendRequest(ctx, "alice", "bob"); !errors.Is(err, ErrAlreadyRequestedOrFriends) {
		t.Errorf("expected ErrAlreadyRequestedOrFriends while friends, got %v", err)
	}
}

func TestDoubleAcceptResolvesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, _ := env.relationships.SendRequest(ctx, "alice", "bob")

	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	// A second accept, e.g. from another device, loses the precondition
	// race and must surface as already resolved, not corrupt state.
	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound on second accept, got %v", err)
	}

	bob, _ := env.relationships.GetAccount(ctx, "bob")
	if len(bob.Friends) != 1 {
		t.Errorf("friends must not duplicate: %v", bob.Friends)
	}
}

func TestCancelAfterAccept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, _ := env.relationships.SendRequest(ctx, "alice", "bob")
	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}

	if err := env.relationships.CancelRequest(ctx, req.ID, "alice"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound when cancelling a resolved request, got %v", err)
	}

	// The accepted friendship survives the failed cancel.
	alice, _ := env.relationships.GetAccount(ctx, "alice")
	if !alice.IsFriend("bob") {
		t.Error("friendship must survive a late cancel")
	}
}

func TestDeclineRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, _ := env.relationships.SendRequest(ctx, "alice", "bob")

	// Only the receiver may decline.
	if err := env.relationships.DeclineRequest(ctx, req.ID, "alice"); err == nil {
		t.Error("expected role error when sender declines")
	}
	if err := env.relationships.DeclineRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("DeclineRequest failed: %v", err)
	}

	status, _ := env.relationships.StatusBetween(ctx, "alice", "bob")
	if status != relationship.StatusNone {
		t.Errorf("expected none after decline, got %s", status)
	}

	// Declining leaves both free to start over.
	if _, err := env.relationships.SendRequest(ctx, "bob", "alice"); err != nil {
		t.Errorf("fresh request after decline failed: %v", err)
	}
}

func TestUnfriendIsSymmetric(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, _ := env.relationships.SendRequest(ctx, "alice", "bob")
	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}

	if err := env.relationships.Unfriend(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Unfriend failed: %v", err)
	}

	alice, _ := env.relationships.GetAccount(ctx, "alice")
	bob, _ := env.relationships.GetAccount(ctx, "bob")
	if alice.IsFriend("bob") || bob.IsFriend("alice") {
		t.Errorf("unfriend must clear both sides: alice=%v bob=%v", alice.Friends, bob.Friends)
	}
}

func TestBlockSeversEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, _ := env.relationships.SendRequest(ctx, "alice", "bob")
	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}

	if err := env.relationships.Block(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	alice, _ := env.relationships.GetAccount(ctx, "alice")
	bob, _ := env.relationships.GetAccount(ctx, "bob")
	if alice.IsFriend("bob") || bob.IsFriend("alice") {
		t.Error("block must sever the friendship on both sides")
	}
	if !alice.HasBlocked("bob") {
		t.Error("block must be recorded")
	}

	// Neither side can start a new request while the block stands.
	if _, err := env.relationships.SendRequest(ctx, "bob", "alice"); !errors.Is(err, ErrBlocked) {
		t.Errorf("expected ErrBlocked, got %v", err)
	}
	if _, err := env.relationships.SendRequest(ctx, "alice", "bob"); !errors.Is(err, ErrBlocked) {
		t.Errorf("expected ErrBlocked, got %v", err)
	}

	if err := env.relationships.Unblock(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}
	if _, err := env.relationships.SendRequest(ctx, "bob", "alice"); err != nil {
		t.Errorf("request after unblock failed: %v", err)
	}
}

func TestBlockDeletesPendingRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	req, _ := env.relationships.SendRequest(ctx, "alice", "bob")

	if err := env.relationships.Block(ctx, "bob", "alice"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	// The pending request went away inside the block batch, so a later
	// accept must see it as resolved.
	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound after block, got %v", err)
	}
}

func TestWatchRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "alice", "Alice")
	env.seedAccount(t, "bob", "Bob")

	w, err := env.relationships.Watch("alice", "bob")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	expectStatus(t, w, relationship.StatusNone)

	req, err := env.relationships.SendRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	expectStatus(t, w, relationship.StatusPendingSent)

	if err := env.relationships.AcceptRequest(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}
	expectStatus(t, w, relationship.StatusFriends)

	if err := env.relationships.Unfriend(ctx, "bob", "alice"); err != nil {
		t.Fatalf("Unfriend failed: %v", err)
	}
	expectStatus(t, w, relationship.StatusNone)
}

func expectStatus(t *testing.T, w *RelationshipWatch, want relationship.Status) {
	t.Helper()
	// Intermediate statuses may be coalesced away; only the settled
	// value matters.
	var last relationship.Status
	waitFor(t, func() bool {
		select {
		case s, ok := <-w.C:
			if !ok {
				return false
			}
			last = s
		default:
		}
		return last == want
	}, string(want))
}
