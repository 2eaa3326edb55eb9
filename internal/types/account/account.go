package account

import (
	"time"

	"synapseAPI/internal/store"
)

// Account is one user document. Friends is symmetric: a uid appears in
// this set iff this uid appears in that account's set, and only the
// relationship engine's atomic batches may change it.
type Account struct {
	UID          string    `json:"uid"`
	DisplayName  string    `json:"displayName"`
	Handle       string    `json:"handle"`
	PhotoURL     string    `json:"photoURL,omitempty"`
	Friends      []string  `json:"friends"`
	BlockedUsers []string  `json:"blockedUsers"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary is the denormalized author/sender shape embedded in posts,
// comments and notifications.
type Summary struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

func (a *Account) Summary() Summary {
	return Summary{
		UID:         a.UID,
		DisplayName: a.DisplayName,
		Handle:      a.Handle,
		PhotoURL:    a.PhotoURL,
	}
}

func (a *Account) IsFriend(uid string) bool {
	for _, f := range a.Friends {
		if f == uid {
			return true
		}
	}
	return false
}

func (a *Account) HasBlocked(uid string) bool {
	for _, b := range a.BlockedUsers {
		if b == uid {
			return true
		}
	}
	return false
}

func FromDocument(doc store.Document) *Account {
	return &Account{
		UID:          doc.ID,
		DisplayName:  store.FieldString(doc.Fields, "displayName"),
		Handle:       store.FieldString(doc.Fields, "handle"),
		PhotoURL:     store.FieldString(doc.Fields, "photoURL"),
		Friends:      store.FieldStrings(doc.Fields, "friends"),
		BlockedUsers: store.FieldStrings(doc.Fields, "blockedUsers"),
		CreatedAt:    store.FieldTime(doc.Fields, "createdAt"),
	}
}

func (a *Account) Fields() map[string]any {
	return map[string]any{
		"displayName":  a.DisplayName,
		"handle":       a.Handle,
		"photoURL":     a.PhotoURL,
		"friends":      a.Friends,
		"blockedUsers": a.BlockedUsers,
		"createdAt":    a.CreatedAt,
	}
}

func SummaryFields(s Summary) map[string]any {
	return map[string]any{
		"uid":         s.UID,
		"displayName": s.DisplayName,
		"handle":      s.Handle,
		"photoURL":    s.PhotoURL,
	}
}

func SummaryFromFields(fields map[string]any) Summary {
	return Summary{
		UID:         store.FieldString(fields, "uid"),
		DisplayName: store.FieldString(fields, "displayName"),
		Handle:      store.FieldString(fields, "handle"),
		PhotoURL:    store.FieldString(fields, "photoURL"),
	}
}
