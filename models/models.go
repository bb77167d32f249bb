package models

import "time"

type Platform string

const (
	Twitter   Platform = "twitter"
	Instagram Platform = "instagram"
	LinkedIn  Platform = "linkedin"
	TikTok    Platform = "tiktok"
)

// AllPlatforms is the closed set of supported platforms. Adapter lookup
// happens through a static registry keyed by these values, never by
// inspecting free-form strings.
var AllPlatforms = []Platform{Twitter, Instagram, LinkedIn, TikTok}

func (p Platform) Valid() bool {
	switch p {
	case Twitter, Instagram, LinkedIn, TikTok:
		return true
	}
	return false
}

type PostStatus string

const (
	StatusDraft      PostStatus = "draft"
	StatusPending    PostStatus = "pending"
	StatusPublishing PostStatus = "publishing"
	StatusPublished  PostStatus = "published"
	StatusFailed     PostStatus = "failed"
)

// Editable reports whether user edits to content, media, or platforms are
// accepted in this status. Publishing posts are in flight and published
// posts are permanently immutable.
func (s PostStatus) Editable() bool {
	return s == StatusDraft || s == StatusPending
}

type Post struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Content         string              `json:"content"`
	MediaURLs       []string            `json:"media_urls"`
	Platforms       []Platform          `json:"platforms"`
	Status          PostStatus          `json:"status"`
	ScheduledAt     *time.Time          `json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time          `json:"published_at,omitempty"`
	PlatformPostIDs map[Platform]string `json:"platform_post_ids,omitempty"`
	ErrorMessages   map[Platform]string `json:"error_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ThreadPost is a child post in a thread. Children share the parent's
// lifecycle: their status mirrors the parent's transitions.
type ThreadPost struct {
	ID           string     `json:"id"`
	ParentPostID string     `json:"parent_post_id"`
	Sequence     int        `json:"sequence"`
	Content      string     `json:"content"`
	MediaURLs    []string   `json:"media_urls"`
	Status       PostStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SocialConnection is one connected external account. At most one row exists
// per (user, platform, remote account) — reconnecting updates in place.
type SocialConnection struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Platform        Platform   `json:"platform"`
	AccountID       string     `json:"account_id"`
	AccountName     string     `json:"account_name"`
	AccountUsername string     `json:"account_username,omitempty"`
	AccountImage    string     `json:"account_image,omitempty"`
	AccessToken     string     `json:"-"`
	RefreshToken    string     `json:"-"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	FollowersCount  int        `json:"followers_count"`
	FollowingCount  int        `json:"following_count"`
	PostsCount      int        `json:"posts_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PublishOutcome is the aggregate result of one dispatch of one post.
// PlatformPostIDs holds exactly the platforms whose adapter call succeeded;
// Errors holds every platform that failed or had no connected account.
// Overall success means at least one platform accepted the post.
type PublishOutcome struct {
	PostID          string              `json:"post_id"`
	Success         bool                `json:"success"`
	PlatformPostIDs map[Platform]string `json:"platform_post_ids"`
	Errors          map[Platform]string `json:"errors,omitempty"`
}

// DispatchReport summarizes one dispatch cycle.
type DispatchReport struct {
	Processed int                        `json:"processed"`
	Outcomes  map[string]*PublishOutcome `json:"results"`
}
