package models

import (
	"encoding/json"
	"time"
)

// Attachment is a file uploaded with a comment
type Attachment struct {
	ID        int64  `json:"id"`
	FileRef   string `json:"file"`
	MediaType string `json:"media_type"`
}

// Comment is one node of a discussion tree. Top-level comments have no ParentID.
// Replies is only populated for the comment being viewed in detail.
type Comment struct {
	ID          int64        `json:"id"`
	Author      User         `json:"user"`
	Text        string       `json:"text"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ParentID    *int64       `json:"reply"`
	Replies     []*Comment   `json:"replies,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// IsTopLevel reports whether the comment has no parent
func (c *Comment) IsTopLevel() bool {
	return c.ParentID == nil
}

// Clone returns a deep copy of the comment and its reply subtree
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	out := *c
	if c.ParentID != nil {
		p := *c.ParentID
		out.ParentID = &p
	}
	if c.Attachments != nil {
		out.Attachments = append([]Attachment(nil), c.Attachments...)
	}
	if c.Replies != nil {
		out.Replies = make([]*Comment, len(c.Replies))
		for i, r := range c.Replies {
			out.Replies[i] = r.Clone()
		}
	}
	return &out
}

// CommentPage is one page of the top-level listing
type CommentPage struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []*Comment `json:"results"`
}

// CommentPreview is the cached short form served by the preview list
type CommentPreview struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PreviewPage is one page of comment previews
type PreviewPage struct {
	Count    int              `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []CommentPreview `json:"results"`
}

// TextPreviewRequest
type TextPreviewRequest struct {
	Text           string `json:"text"`
	ChallengeToken string `json:"recaptcha_token"`
}

// TextPreview is the service's cleaned rendering of comment text
type TextPreview struct {
	Text string `json:"text"`
}

// Live channel message types
const (
	LiveMessageNewReply = "new_reply"
)

// LiveMessage is the envelope pushed over the live channel
type LiveMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Ordering keys accepted by the listing endpoint
const (
	OrderCreatedAt = "created_at"
	OrderUsername  = "user__username"
	OrderEmail     = "user__email"

	DefaultOrdering = "-" + OrderCreatedAt
)

// ValidOrdering reports whether key is a known ordering, optionally descending
func ValidOrdering(key string) bool {
	if len(key) > 0 && key[0] == '-' {
		key = key[1:]
	}
	switch key {
	case OrderCreatedAt, OrderUsername, OrderEmail:
		return true
	}
	return false
}
