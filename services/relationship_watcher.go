package services

import (
	"context"
	"sync"

	"synapseAPI/internal/store"
	"synapseAPI/internal/subscription"
	"synapseAPI/internal/types/relationship"
)

// RelationshipWatch is a live view of the relationship between two
// accounts, fed by the same three subscriptions the original client
// holds per profile: requests sent by the actor, requests sent to the
// actor, and the actor's own friends set. Status changes arrive on C,
// coalesced to the newest value.
type RelationshipWatch struct {
	C <-chan relationship.Status

	stop      chan struct{}
	closeOnce sync.Once
	releases  []func()
}

func (w *RelationshipWatch) Close() {
	w.closeOnce.Do(func() {
		close(w.stop)
		for _, release := range w.releases {
			release()
		}
	})
}

// Watch opens a live relationship view. Subscriptions are shared
// through the registry, so many watches on the same pair cost one set
// of listeners.
func (s *RelationshipService) Watch(actorUID, otherUID string) (*RelationshipWatch, error) {
	sentCh, sentRelease, err := s.registry.Listen(
		subscription.Key{Type: "friend_requests", ID: "sent:" + actorUID + ":" + otherUID},
		func(ctx context.Context) (*store.Subscription, error) {
			return s.store.Subscribe(ctx, store.CollectionFriendRequests, []store.Predicate{
				store.Where("senderId", "==", actorUID),
				store.Where("receiverId", "==", otherUID),
			})
		})
	if err != nil {
		return nil, err
	}

	recvCh, recvRelease, err := s.registry.Listen(
		subscription.Key{Type: "friend_requests", ID: "sent:" + otherUID + ":" + actorUID},
		func(ctx context.Context) (*store.Subscription, error) {
			return s.store.Subscribe(ctx, store.CollectionFriendRequests, []store.Predicate{
				store.Where("senderId", "==", otherUID),
				store.Where("receiverId", "==", actorUID),
			})
		})
	if err != nil {
		sentRelease()
		return nil, err
	}

	selfCh, selfRelease, err := s.registry.Listen(
		subscription.Key{Type: "users", ID: actorUID},
		func(ctx context.Context) (*store.Subscription, error) {
			return s.store.Subscribe(ctx, store.CollectionUsers, []store.Predicate{
				store.Where(store.FieldID, "==", actorUID),
			})
		})
	if err != nil {
		sentRelease()
		recvRelease()
		return nil, err
	}

	out := make(chan relationship.Status, 1)
	w := &RelationshipWatch{
		C:        out,
		stop:     make(chan struct{}),
		releases: []func(){sentRelease, recvRelease, selfRelease},
	}

	go func() {
		defer close(out)
		var sentPending, recvPending, friends bool
		last := relationship.Status("")
		emit := func() {
			status := relationship.StatusNone
			switch {
			case friends:
				status = relationship.StatusFriends
			case sentPending:
				status = relationship.StatusPendingSent
			case recvPending:
				status = relationship.StatusPendingReceived
			}
			if status == last {
				return
			}
			last = status
			// Coalesce: the consumer only ever needs the newest status.
			select {
			case <-out:
			default:
			}
			out <- status
		}

		for {
			select {
			case snap, ok := <-sentCh:
				if !ok {
					return
				}
				sentPending = len(snap.Docs) > 0
			case snap, ok := <-recvCh:
				if !ok {
					return
				}
				recvPending = len(snap.Docs) > 0
			case snap, ok := <-selfCh:
				if !ok {
					return
				}
				friends = false
				for _, doc := range snap.Docs {
					for _, f := range store.FieldStrings(doc.Fields, "friends") {
						if f == otherUID {
							friends = true
						}
					}
				}
			case <-w.stop:
				return
			}
			emit()
		}
	}()
	return w, nil
}
