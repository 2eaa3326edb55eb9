package community

import (
	"time"

	"synapseAPI/internal/store"
)

type Community struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Privacy     string    `json:"privacy"`
	CoverURL    string    `json:"coverURL,omitempty"`
	Members     []string  `json:"members"`
	MemberCount int64     `json:"memberCount"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func FromDocument(doc store.Document) *Community {
	return &Community{
		ID:          doc.ID,
		Name:        store.FieldString(doc.Fields, "name"),
		Description: store.FieldString(doc.Fields, "description"),
		Privacy:     store.FieldString(doc.Fields, "privacy"),
		CoverURL:    store.FieldString(doc.Fields, "coverURL"),
		Members:     store.FieldStrings(doc.Fields, "members"),
		MemberCount: store.FieldInt(doc.Fields, "memberCount"),
		CreatedBy:   store.FieldString(doc.Fields, "createdBy"),
		CreatedAt:   store.FieldTime(doc.Fields, "createdAt"),
	}
}

func (c *Community) Fields() map[string]any {
	return map[string]any{
		"name":        c.Name,
		"description": c.Description,
		"privacy":     c.Privacy,
		"coverURL":    c.CoverURL,
		"members":     c.Members,
		"memberCount": c.MemberCount,
		"createdBy":   c.CreatedBy,
		"createdAt":   c.CreatedAt,
	}
}
