package publishers

import (
	"context"
	"unicode/utf8"

	"socialflow/models"

	"github.com/go-resty/resty/v2"
)

const tiktokTitleLimit = 100

// TikTokPublisher publishes via the direct-post API with PULL_FROM_URL
// ingestion: TikTok fetches the video from its stable URL itself. Posts
// without a video fail fast before any network call.
type TikTokPublisher struct {
	client  *resty.Client
	apiBase string
}

func NewTikTokPublisher(client *resty.Client) *TikTokPublisher {
	return &TikTokPublisher{
		client:  client,
		apiBase: "https://open.tiktokapis.com",
	}
}

func (t *TikTokPublisher) Publish(ctx context.Context, content string, mediaURLs []string, conn *models.SocialConnection) (string, error) {
	if conn == nil || conn.AccessToken == "" {
		return "", publishErrorf(models.TikTok, "missing access token")
	}

	videoURL := findVideoURL(mediaURLs)
	if videoURL == "" {
		return "", publishErrorf(models.TikTok, "requires a video file")
	}

	title := truncateTitle(content, tiktokTitleLimit)

	body := map[string]interface{}{
		"source_info": map[string]string{
			"source": "PULL_FROM_URL",
			"url":    videoURL,
		},
		"title":         title,
		"privacy_level": "PUBLIC",
	}

	var result struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetBody(body).
		SetResult(&result).
		Post(t.apiBase + "/v2/post/publish/video/init/")
	if err != nil {
		return "", wrapPublishError(models.TikTok, "upload init failed", err)
	}
	if resp.IsError() {
		return "", publishErrorf(models.TikTok, "upload rejected: %s %s", resp.Status(), resp.String())
	}

	return result.Data.PublishID, nil
}

// truncateTitle caps the title at limit bytes without splitting a rune.
func truncateTitle(title string, limit int) string {
	if len(title) <= limit {
		return title
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut]
}
