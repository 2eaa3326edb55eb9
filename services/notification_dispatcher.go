package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"synapseAPI/internal/types/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationDispatcher fans stored notifications out to push
// channels on a small worker pool, so a slow push backend never blocks
// the engines that create notifications.
type NotificationDispatcher struct {
	service      *NotificationService
	pushProvider PushNotificationProvider
	mu           sync.RWMutex
	jobQueue     chan *notification.Notification
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

const dispatchWorkers = 5

func NewNotificationDispatcher(service *NotificationService) *NotificationDispatcher {
	d := &NotificationDispatcher{
		service:  service,
		jobQueue: make(chan *notification.Notification, 100),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < dispatchWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.mu.Lock()
	d.pushProvider = provider
	d.mu.Unlock()
}

// Enqueue never blocks; when the queue is full the push is dropped and
// the stored notification remains the source of truth.
func (d *NotificationDispatcher) Enqueue(n *notification.Notification) {
	select {
	case d.jobQueue <- n:
	default:
		log.Printf("Dispatcher: queue full, dropping push for %s", n.RecipientUID)
	}
}

func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	d.wg.Wait()
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.jobQueue:
			d.process(n)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) process(n *notification.Notification) {
	d.mu.RLock()
	provider := d.pushProvider
	d.mu.RUnlock()
	if provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := d.service.deviceTokens(ctx, n.RecipientUID)
	if err != nil {
		log.Printf("Dispatcher: failed to load tokens for %s: %v", n.RecipientUID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	title, body := renderPush(n)
	err = provider.SendPush(ctx, tokens, title, body, map[string]any{
		"type":           string(n.Type),
		"notificationId": n.ID,
		"senderUid":      n.Sender.UID,
	})
	if err != nil {
		log.Printf("Dispatcher: push to %s failed: %v", n.RecipientUID, err)
	}
}

func renderPush(n *notification.Notification) (title, body string) {
	name := n.Sender.DisplayName
	if name == "" {
		name = "Someone"
	}
	switch n.Type {
	case notification.TypeFriendRequest:
		return "New friend request", fmt.Sprintf("%s sent you a friend request", name)
	case notification.TypeFriendAccept:
		return "Friend request accepted", fmt.Sprintf("%s accepted your friend request", name)
	case notification.TypeComment:
		return "New comment", fmt.Sprintf("%s commented on your post", name)
	}
	return "Synapse", fmt.Sprintf("%s sent you a notification", name)
}
