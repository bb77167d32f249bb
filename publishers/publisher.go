package publishers

import (
	"context"
	"fmt"

	"socialflow/models"

	"github.com/go-resty/resty/v2"
)

// PlatformPublisher publishes one piece of content to one connected account
// and returns the platform's remote post id. Implementations encapsulate the
// platform-specific wire protocol; callers treat every failure as data for
// the per-platform error map.
type PlatformPublisher interface {
	Publish(ctx context.Context, content string, mediaURLs []string, conn *models.SocialConnection) (string, error)
}

// PublishError is the failure of a single platform publish attempt. Message
// is human-readable and ends up in the post's per-platform error map.
type PublishError struct {
	Platform models.Platform
	Message  string
	Err      error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func publishErrorf(platform models.Platform, format string, args ...interface{}) *PublishError {
	return &PublishError{Platform: platform, Message: fmt.Sprintf(format, args...)}
}

func wrapPublishError(platform models.Platform, message string, err error) *PublishError {
	return &PublishError{Platform: platform, Message: message, Err: err}
}

// Registry maps each platform to its fixed publisher implementation. The set
// is closed: lookups happen by enum value, so an unknown platform can only
// come from corrupt data, never from a missing switch case.
type Registry map[models.Platform]PlatformPublisher

func NewRegistry(client *resty.Client) Registry {
	return Registry{
		models.Twitter:   NewTwitterPublisher(client),
		models.Instagram: NewInstagramPublisher(client),
		models.LinkedIn:  NewLinkedInPublisher(client),
		models.TikTok:    NewTikTokPublisher(client),
	}
}

func (r Registry) For(platform models.Platform) (PlatformPublisher, bool) {
	p, ok := r[platform]
	return p, ok
}
