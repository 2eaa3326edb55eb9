package relationship

import (
	"time"

	"synapseAPI/internal/store"
)

// FriendRequest only ever exists in the pending state; accept, cancel
// and decline all terminate it by deleting the document. At most one
// request document exists per unordered pair, in either direction.
type FriendRequest struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

const StatusPending = "pending"

// Status is the observable relationship between the viewing account
// and another account.
type Status string

const (
	StatusNone            Status = "none"
	StatusPendingSent     Status = "pending_sent"
	StatusPendingReceived Status = "pending_received"
	StatusFriends         Status = "friends"
)

func FromDocument(doc store.Document) *FriendRequest {
	return &FriendRequest{
		ID:         doc.ID,
		SenderID:   store.FieldString(doc.Fields, "senderId"),
		ReceiverID: store.FieldString(doc.Fields, "receiverId"),
		Status:     store.FieldString(doc.Fields, "status"),
		CreatedAt:  store.FieldTime(doc.Fields, "createdAt"),
	}
}

func (r *FriendRequest) Fields() map[string]any {
	return map[string]any{
		"senderId":   r.SenderID,
		"receiverId": r.ReceiverID,
		"status":     r.Status,
		"createdAt":  r.CreatedAt,
	}
}
