package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"synapseAPI/internal/store"
	"synapseAPI/internal/types/notification"
)

// NotificationService appends notification documents and pushes them
// to registered devices through the dispatcher. Notifications are
// best-effort from the engines' perspective: creating one never gates
// a relationship or engagement operation.
type NotificationService struct {
	store      store.Store
	dispatcher *NotificationDispatcher
}

func NewNotificationService(st store.Store) *NotificationService {
	service := &NotificationService{store: st}
	service.dispatcher = NewNotificationDispatcher(service)
	return service
}

// SetPushProvider injects the real FCM provider from main.go. Without
// one, notifications are stored but not pushed.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.dispatcher.SetPushProvider(provider)
}

func (s *NotificationService) Stop() {
	s.dispatcher.Stop()
}

// Create stores the notification and queues a push for it.
func (s *NotificationService) Create(ctx context.Context, n *notification.Notification) (*notification.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	id, err := s.store.Create(ctx, store.CollectionNotifications, n.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	n.ID = id
	s.dispatcher.Enqueue(n)
	return n, nil
}

// PushOnly queues a push for a notification whose document was already
// written elsewhere, e.g. inside an accept batch.
func (s *NotificationService) PushOnly(n *notification.Notification) {
	s.dispatcher.Enqueue(n)
}

func (s *NotificationService) List(ctx context.Context, recipientUID string, unreadOnly bool) ([]*notification.Notification, error) {
	preds := []store.Predicate{store.Where("recipientUid", "==", recipientUID)}
	if unreadOnly {
		preds = append(preds, store.Where("read", "==", false))
	}
	docs, err := s.store.Query(ctx, store.CollectionNotifications, preds)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	out := make([]*notification.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, notification.FromDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientUID string) (int, error) {
	docs, err := s.store.Query(ctx, store.CollectionNotifications, []store.Predicate{
		store.Where("recipientUid", "==", recipientUID),
		store.Where("read", "==", false),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return len(docs), nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, id, recipientUID string) error {
	doc, err := s.store.Get(ctx, store.CollectionNotifications, id)
	if err != nil {
		return fmt.Errorf("notification not found: %w", err)
	}
	if store.FieldString(doc.Fields, "recipientUid") != recipientUID {
		return fmt.Errorf("notification %s does not belong to %s", id, recipientUID)
	}
	return s.store.Write(ctx, store.CollectionNotifications, id, map[string]any{"read": true})
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, recipientUID string) error {
	unread, err := s.List(ctx, recipientUID, true)
	if err != nil {
		return err
	}
	for _, n := range unread {
		if err := s.store.Write(ctx, store.CollectionNotifications, n.ID, map[string]any{"read": true}); err != nil {
			return fmt.Errorf("failed to mark %s read: %w", n.ID, err)
		}
	}
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, id, recipientUID string) error {
	doc, err := s.store.Get(ctx, store.CollectionNotifications, id)
	if err != nil {
		return fmt.Errorf("notification not found: %w", err)
	}
	if store.FieldString(doc.Fields, "recipientUid") != recipientUID {
		return fmt.Errorf("notification %s does not belong to %s", id, recipientUID)
	}
	return s.store.WriteAtomic(ctx, []store.Op{
		store.Delete(store.CollectionNotifications, id),
	})
}

// RegisterDevice upserts a push token for the user, keyed by token so
// re-registration from the same device is idempotent.
func (s *NotificationService) RegisterDevice(ctx context.Context, uid, token, platform string) error {
	existing, err := s.store.Query(ctx, store.CollectionDeviceTokens, []store.Predicate{
		store.Where("token", "==", token),
	})
	if err != nil {
		return fmt.Errorf("failed to query device tokens: %w", err)
	}
	fields := map[string]any{"uid": uid, "token": token, "platform": platform}
	if len(existing) > 0 {
		return s.store.Write(ctx, store.CollectionDeviceTokens, existing[0].ID, fields)
	}
	_, err = s.store.Create(ctx, store.CollectionDeviceTokens, fields)
	return err
}

func (s *NotificationService) deviceTokens(ctx context.Context, uid string) ([]notification.DeviceToken, error) {
	docs, err := s.store.Query(ctx, store.CollectionDeviceTokens, []store.Predicate{
		store.Where("uid", "==", uid),
	})
	if err != nil {
		return nil, err
	}
	out := make([]notification.DeviceToken, 0, len(docs))
	for _, doc := range docs {
		out = append(out, *notification.DeviceTokenFromDocument(doc))
	}
	return out, nil
}
