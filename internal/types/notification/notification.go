package notification

import (
	"time"

	"synapseAPI/internal/store"
	"synapseAPI/internal/types/account"
)

type Type string

const (
	TypeFriendRequest Type = "friend_request"
	TypeFriendAccept  Type = "friend_accept"
	TypeComment       Type = "comment"
)

// Notification documents are append-only from the engine's side; the
// read/delete lifecycle belongs to the notifications UI.
type Notification struct {
	ID           string          `json:"id"`
	RecipientUID string          `json:"recipientUid"`
	Sender       account.Summary `json:"sender"`
	Type         Type            `json:"type"`
	Read         bool            `json:"read"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type DeviceToken struct {
	ID       string `json:"id"`
	UID      string `json:"uid"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func FromDocument(doc store.Document) *Notification {
	return &Notification{
		ID:           doc.ID,
		RecipientUID: store.FieldString(doc.Fields, "recipientUid"),
		Sender:       account.SummaryFromFields(store.FieldMap(doc.Fields, "sender")),
		Type:         Type(store.FieldString(doc.Fields, "type")),
		Read:         store.FieldBool(doc.Fields, "read"),
		CreatedAt:    store.FieldTime(doc.Fields, "createdAt"),
	}
}

func (n *Notification) Fields() map[string]any {
	return map[string]any{
		"recipientUid": n.RecipientUID,
		"sender":       account.SummaryFields(n.Sender),
		"type":         string(n.Type),
		"read":         n.Read,
		"createdAt":    n.CreatedAt,
	}
}

func DeviceTokenFromDocument(doc store.Document) *DeviceToken {
	return &DeviceToken{
		ID:       doc.ID,
		UID:      store.FieldString(doc.Fields, "uid"),
		Token:    store.FieldString(doc.Fields, "token"),
		Platform: store.FieldString(doc.Fields, "platform"),
	}
}
