package publishers

import (
	"bytes"
	"context"

	"socialflow/models"

	"github.com/go-resty/resty/v2"
)

// TwitterPublisher posts tweets through the v2 API. Media must be uploaded
// to the legacy upload host first; the returned media ids are attached to
// the tweet create call.
type TwitterPublisher struct {
	client     *resty.Client
	apiBase    string
	uploadBase string
}

func NewTwitterPublisher(client *resty.Client) *TwitterPublisher {
	return &TwitterPublisher{
		client:     client,
		apiBase:    "https://api.twitter.com",
		uploadBase: "https://upload.twitter.com",
	}
}

func (t *TwitterPublisher) Publish(ctx context.Context, content string, mediaURLs []string, conn *models.SocialConnection) (string, error) {
	if conn == nil || conn.AccessToken == "" {
		return "", publishErrorf(models.Twitter, "missing access token")
	}

	mediaIDs := make([]string, 0, len(mediaURLs))
	for _, url := range mediaURLs {
		mediaID, err := t.uploadMedia(ctx, conn.AccessToken, url)
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	body := map[string]interface{}{"text": content}
	if len(mediaIDs) > 0 {
		body["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetBody(body).
		SetResult(&result).
		Post(t.apiBase + "/2/tweets")
	if err != nil {
		return "", wrapPublishError(models.Twitter, "tweet request failed", err)
	}
	if resp.IsError() {
		return "", publishErrorf(models.Twitter, "tweet rejected: %s %s", resp.Status(), resp.String())
	}

	return result.Data.ID, nil
}

func (t *TwitterPublisher) uploadMedia(ctx context.Context, accessToken, mediaURL string) (string, error) {
	data, err := fetchMedia(ctx, t.client, mediaURL)
	if err != nil {
		return "", wrapPublishError(models.Twitter, "media fetch failed", err)
	}

	category := "tweet_image"
	if detectMediaKind(data) == "video" {
		category = "tweet_video"
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetFileReader("media", "media", bytes.NewReader(data)).
		SetFormData(map[string]string{"media_category": category}).
		SetResult(&result).
		Post(t.uploadBase + "/1.1/media/upload.json")
	if err != nil {
		return "", wrapPublishError(models.Twitter, "media upload failed", err)
	}
	if resp.IsError() {
		return "", publishErrorf(models.Twitter, "media rejected: %s", resp.Status())
	}

	return result.MediaIDString, nil
}
