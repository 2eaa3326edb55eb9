package post

import (
	"time"

	"synapseAPI/internal/store"
	"synapseAPI/internal/types/account"
)

// Post carries the two denormalized engagement counters. Likes equals
// len(LikedByUsers) at quiescence; Comments caches the size of the
// comments collection for this post. Both may drift transiently under
// concurrent writes and converge because every mutation is relative.
type Post struct {
	ID           string          `json:"id"`
	Author       account.Summary `json:"author"`
	Content      string          `json:"content"`
	Image        string          `json:"image,omitempty"`
	CommunityID  string          `json:"communityId,omitempty"`
	Likes        int64           `json:"likes"`
	LikedByUsers []string        `json:"likedByUsers"`
	Comments     int64           `json:"comments"`
	Shares       int64           `json:"shares"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type Comment struct {
	ID        string          `json:"id"`
	PostID    string          `json:"postId"`
	Author    account.Summary `json:"author"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (p *Post) LikedBy(uid string) bool {
	for _, u := range p.LikedByUsers {
		if u == uid {
			return true
		}
	}
	return false
}

func FromDocument(doc store.Document) *Post {
	return &Post{
		ID:           doc.ID,
		Author:       account.SummaryFromFields(store.FieldMap(doc.Fields, "author")),
		Content:      store.FieldString(doc.Fields, "content"),
		Image:        store.FieldString(doc.Fields, "image"),
		CommunityID:  store.FieldString(doc.Fields, "communityId"),
		Likes:        store.FieldInt(doc.Fields, "likes"),
		LikedByUsers: store.FieldStrings(doc.Fields, "likedByUsers"),
		Comments:     store.FieldInt(doc.Fields, "comments"),
		Shares:       store.FieldInt(doc.Fields, "shares"),
		CreatedAt:    store.FieldTime(doc.Fields, "createdAt"),
	}
}

func (p *Post) Fields() map[string]any {
	return map[string]any{
		"author":       account.SummaryFields(p.Author),
		"content":      p.Content,
		"image":        p.Image,
		"communityId":  p.CommunityID,
		"likes":        p.Likes,
		"likedByUsers": p.LikedByUsers,
		"comments":     p.Comments,
		"shares":       p.Shares,
		"createdAt":    p.CreatedAt,
	}
}

func CommentFromDocument(doc store.Document) *Comment {
	return &Comment{
		ID:        doc.ID,
		PostID:    store.FieldString(doc.Fields, "postId"),
		Author:    account.SummaryFromFields(store.FieldMap(doc.Fields, "author")),
		Text:      store.FieldString(doc.Fields, "text"),
		CreatedAt: store.FieldTime(doc.Fields, "createdAt"),
	}
}

func (c *Comment) Fields() map[string]any {
	return map[string]any{
		"postId":    c.PostID,
		"author":    account.SummaryFields(c.Author),
		"text":      c.Text,
		"createdAt": c.CreatedAt,
	}
}
