package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"synapseAPI/internal/store"
	"synapseAPI/internal/subscription"
	"synapseAPI/internal/types/account"
	"synapseAPI/internal/types/notification"
	"synapseAPI/internal/types/relationship"
)

// RelationshipService owns the friendship state machine:
// Strangers -> RequestPending -> Friends, back to Strangers on
// cancel/decline/unfriend. Every transition that touches more than one
// record goes through a single atomic batch; a request document is the
// pending marker and its deletion is the terminal marker, so racing
// resolvers are decided by the store, never by client-side locking.
type RelationshipService struct {
	store         store.Store
	notifications *NotificationService
	registry      *subscription.Registry
}

func NewRelationshipService(st store.Store, notifications *NotificationService, registry *subscription.Registry) *RelationshipService {
	return &RelationshipService{
		store:         st,
		notifications: notifications,
		registry:      registry,
	}
}

func (s *RelationshipService) GetAccount(ctx context.Context, uid string) (*account.Account, error) {
	doc, err := s.store.Get(ctx, store.CollectionUsers, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", uid, err)
	}
	return account.FromDocument(doc), nil
}

// SendRequest creates a pending FriendRequest plus a best-effort
// notification. The uniqueness invariant (at most one request per pair,
// either direction) is enforced by checking both directions before
// writing; two parties sending at the exact same instant can still
// both pass the check. That narrow window is a known limitation.
func (s *RelationshipService) SendRequest(ctx context.Context, senderUID, receiverUID string) (*relationship.FriendRequest, error) {
	if senderUID == receiverUID {
		return nil, fmt.Errorf("cannot send a friend request to yourself")
	}

	sender, err := s.GetAccount(ctx, senderUID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.GetAccount(ctx, receiverUID)
	if err != nil {
		return nil, err
	}

	if sender.HasBlocked(receiverUID) || receiver.HasBlocked(senderUID) {
		return nil, ErrBlocked
	}
	if sender.IsFriend(receiverUID) || receiver.IsFriend(senderUID) {
		return nil, ErrAlreadyRequestedOrFriends
	}

	existing, err := s.pendingRequestBetween(ctx, senderUID, receiverUID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyRequestedOrFriends
	}

	req := &relationship.FriendRequest{
		SenderID:   senderUID,
		ReceiverID: receiverUID,
		Status:     relationship.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	id, err := s.store.Create(ctx, store.CollectionFriendRequests, req.Fields())
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	req.ID = id

	// Best-effort: losing the notification must not fail the request.
	s.notify(ctx, &notification.Notification{
		RecipientUID: receiverUID,
		Sender:       sender.Summary(),
		Type:         notification.TypeFriendRequest,
		CreatedAt:    time.Now().UTC(),
	})

	log.Printf("SendRequest: %s -> %s (request %s)", senderUID, receiverUID, id)
	return req, nil
}

// CancelRequest deletes a pending request on the sender's behalf.
// ErrRequestNotFound means the counterparty already resolved it.
func (s *RelationshipService) CancelRequest(ctx context.Context, requestID, actorUID string) error {
	return s.withdraw(ctx, requestID, actorUID, func(req *relationship.FriendRequest) bool {
		return req.SenderID == actorUID
	})
}

// DeclineRequest deletes a pending request on the receiver's behalf.
func (s *RelationshipService) DeclineRequest(ctx context.Context, requestID, actorUID string) error {
	return s.withdraw(ctx, requestID, actorUID, func(req *relationship.FriendRequest) bool {
		return req.ReceiverID == actorUID
	})
}

func (s *RelationshipService) withdraw(ctx context.Context, requestID, actorUID string, allowed func(*relationship.FriendRequest) bool) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !allowed(req) {
		return fmt.Errorf("request %s does not involve %s in that role", requestID, actorUID)
	}

	err = s.store.WriteAtomic(ctx, []store.Op{
		store.DeleteExisting(store.CollectionFriendRequests, requestID),
	})
	if errors.Is(err, store.ErrPreconditionFailed) {
		return ErrRequestNotFound
	}
	if err != nil {
		return &TransientStoreError{Err: err}
	}
	return nil
}

// AcceptRequest commits all four effects of an accept as one batch:
// delete the request, add each party to the other's friends set, and
// create the acceptance notification. Either all four are visible or
// none are. The delete carries an existence precondition, so when both
// parties accept concurrently exactly one commit wins and the loser
// observes ErrRequestNotFound.
func (s *RelationshipService) AcceptRequest(ctx context.Context, requestID, actorUID string) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != actorUID {
		return fmt.Errorf("request %s is not addressed to %s", requestID, actorUID)
	}

	receiver, err := s.GetAccount(ctx, req.ReceiverID)
	if err != nil {
		return err
	}

	accepted := &notification.Notification{
		RecipientUID: req.SenderID,
		Sender:       receiver.Summary(),
		Type:         notification.TypeFriendAccept,
		CreatedAt:    time.Now().UTC(),
	}
	notifID := uuid.NewString()

	err = s.store.WriteAtomic(ctx, []store.Op{
		store.DeleteExisting(store.CollectionFriendRequests, requestID),
		store.AddToSet(store.CollectionUsers, req.ReceiverID, "friends", req.SenderID),
		store.AddToSet(store.CollectionUsers, req.SenderID, "friends", req.ReceiverID),
		store.SetFields(store.CollectionNotifications, notifID, accepted.Fields()),
	})
	if errors.Is(err, store.ErrPreconditionFailed) {
		return ErrRequestNotFound
	}
	if err != nil {
		return &AtomicTransitionError{Op: "accept", Err: err}
	}

	accepted.ID = notifID
	s.notifications.PushOnly(accepted)
	log.Printf("AcceptRequest: %s and %s are now friends (request %s)", req.SenderID, req.ReceiverID, requestID)
	return nil
}

// Unfriend removes both sides of the friendship in one batch, the
// accept transition in reverse.
func (s *RelationshipService) Unfriend(ctx context.Context, actorUID, otherUID string) error {
	err := s.store.WriteAtomic(ctx, []store.Op{
		store.RemoveFromSet(store.CollectionUsers, actorUID, "friends", otherUID),
		store.RemoveFromSet(store.CollectionUsers, otherUID, "friends", actorUID),
	})
	if err != nil {
		return &AtomicTransitionError{Op: "unfriend", Err: err}
	}
	log.Printf("Unfriend: %s removed %s", actorUID, otherUID)
	return nil
}

// Block records the block and severs any existing relationship with
// the target in the same batch: friendship on both sides plus any
// pending request between the pair.
func (s *RelationshipService) Block(ctx context.Context, actorUID, targetUID string) error {
	ops := []store.Op{
		store.AddToSet(store.CollectionUsers, actorUID, "blockedUsers", targetUID),
		store.RemoveFromSet(store.CollectionUsers, actorUID, "friends", targetUID),
		store.RemoveFromSet(store.CollectionUsers, targetUID, "friends", actorUID),
	}
	req, err := s.pendingRequestBetween(ctx, actorUID, targetUID)
	if err != nil {
		return err
	}
	if req != nil {
		ops = append(ops, store.Delete(store.CollectionFriendRequests, req.ID))
	}
	if err := s.store.WriteAtomic(ctx, ops); err != nil {
		return &AtomicTransitionError{Op: "block", Err: err}
	}
	log.Printf("Block: %s blocked %s", actorUID, targetUID)
	return nil
}

func (s *RelationshipService) Unblock(ctx context.Context, actorUID, targetUID string) error {
	err := s.store.Write(ctx, store.CollectionUsers, actorUID, map[string]any{
		"blockedUsers": store.Remove(targetUID),
	})
	if err != nil {
		return &TransientStoreError{Err: err}
	}
	return nil
}

// StatusBetween reports the relationship as seen by actorUID.
func (s *RelationshipService) StatusBetween(ctx context.Context, actorUID, otherUID string) (relationship.Status, error) {
	actor, err := s.GetAccount(ctx, actorUID)
	if err != nil {
		return relationship.StatusNone, err
	}
	if actor.IsFriend(otherUID) {
		return relationship.StatusFriends, nil
	}
	req, err := s.pendingRequestBetween(ctx, actorUID, otherUID)
	if err != nil {
		return relationship.StatusNone, err
	}
	switch {
	case req == nil:
		return relationship.StatusNone, nil
	case req.SenderID == actorUID:
		return relationship.StatusPendingSent, nil
	default:
		return relationship.StatusPendingReceived, nil
	}
}

func (s *RelationshipService) getRequest(ctx context.Context, requestID string) (*relationship.FriendRequest, error) {
	doc, err := s.store.Get(ctx, store.CollectionFriendRequests, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request %s: %w", requestID, err)
	}
	return relationship.FromDocument(doc), nil
}

func (s *RelationshipService) pendingRequestBetween(ctx context.Context, a, b string) (*relationship.FriendRequest, error) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		docs, err := s.store.Query(ctx, store.CollectionFriendRequests, []store.Predicate{
			store.Where("senderId", "==", pair[0]),
			store.Where("receiverId", "==", pair[1]),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query requests: %w", err)
		}
		if len(docs) > 0 {
			return relationship.FromDocument(docs[0]), nil
		}
	}
	return nil, nil
}

func (s *RelationshipService) notify(ctx context.Context, n *notification.Notification) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Create(ctx, n); err != nil {
		log.Printf("RelationshipService: failed to create %s notification for %s: %v", n.Type, n.RecipientUID, err)
	}
}
