// Package entity defines the core domain entities and validation logic for the relay.
// It contains the normalized upstream Post with its media attachments, the persisted
// SeenRecord marker, and domain-specific errors.
package entity

import (
	"strings"
	"time"
)

// PostType classifies an upstream post. Used for optional filtering before delivery.
type PostType string

const (
	PostTypePost   PostType = "post"
	PostTypeReply  PostType = "reply"
	PostTypeReblog PostType = "reblog"
)

// MediaKind is the kind of a media attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaGIF   MediaKind = "gif"
)

// ParseMediaKind maps an upstream attachment type to a MediaKind.
// Mastodon reports animated GIFs as "gifv". Unsupported kinds (audio, unknown)
// return false and are dropped by the fetchers.
func ParseMediaKind(raw string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "image":
		return MediaImage, true
	case "video":
		return MediaVideo, true
	case "gifv", "gif":
		return MediaGIF, true
	default:
		return "", false
	}
}

// Account identifies the author of a post.
type Account struct {
	Username    string
	DisplayName string
}

// Name returns the display name, falling back to the username.
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// MediaItem is one attachment of a post.
type MediaItem struct {
	URL        string    `json:"url"`
	Kind       MediaKind `json:"kind"`
	PreviewURL string    `json:"preview_url,omitempty"`
}

// BestURL returns the full-size URL, or the preview when the full one is missing.
func (m MediaItem) BestURL() string {
	if m.URL != "" {
		return m.URL
	}
	return m.PreviewURL
}

// Post represents one upstream item.
// ID is stable across fetches and never reused; two posts with the same ID are
// identical for delivery purposes.
type Post struct {
	ID        string
	CreatedAt time.Time
	Text      string
	Media     []MediaItem
	Type      PostType
	URL       string
	Account   Account
}

// SeenRecord marks a post as delivered. It is written once, after a successful
// send, and never updated. The snapshot fields are informational only.
type SeenRecord struct {
	PostID      string
	ProcessedAt time.Time

	Username      string
	DisplayName   string
	Content       string
	PostCreatedAt time.Time
	Media         []MediaItem
}

// NewSeenRecord builds the record written after post was delivered at processedAt.
func NewSeenRecord(post Post, processedAt time.Time) SeenRecord {
	return SeenRecord{
		PostID:        post.ID,
		ProcessedAt:   processedAt,
		Username:      post.Account.Username,
		DisplayName:   post.Account.DisplayName,
		Content:       post.Text,
		PostCreatedAt: post.CreatedAt,
		Media:         post.Media,
	}
}
