package publishers

import (
	"context"
	"time"

	"socialflow/models"

	"github.com/go-resty/resty/v2"
)

// InstagramPublisher uses the Graph API's two-phase protocol: create a media
// container, wait for the platform to ingest the media, then publish the
// container. Ingestion is asynchronous, so readiness is polled with a hard
// bound rather than retried forever.
type InstagramPublisher struct {
	client       *resty.Client
	graphBase    string
	pollInterval time.Duration
	maxPolls     int
}

func NewInstagramPublisher(client *resty.Client) *InstagramPublisher {
	return &InstagramPublisher{
		client:       client,
		graphBase:    "https://graph.instagram.com",
		pollInterval: 3 * time.Second,
		maxPolls:     10,
	}
}

func (i *InstagramPublisher) Publish(ctx context.Context, content string, mediaURLs []string, conn *models.SocialConnection) (string, error) {
	if conn == nil || conn.AccessToken == "" {
		return "", publishErrorf(models.Instagram, "missing access token")
	}
	if conn.AccountID == "" {
		return "", publishErrorf(models.Instagram, "connection has no account id")
	}
	if len(mediaURLs) == 0 {
		return "", publishErrorf(models.Instagram, "requires at least one image or video")
	}

	containerID, err := i.createContainer(ctx, conn, content, mediaURLs[0])
	if err != nil {
		return "", err
	}

	if err := i.waitForContainer(ctx, conn.AccessToken, containerID); err != nil {
		return "", err
	}

	return i.publishContainer(ctx, conn, containerID)
}

func (i *InstagramPublisher) createContainer(ctx context.Context, conn *models.SocialConnection, caption, mediaURL string) (string, error) {
	params := map[string]string{
		"access_token": conn.AccessToken,
		"caption":      caption,
	}
	if isVideoURL(mediaURL) {
		params["media_type"] = "VIDEO"
		params["video_url"] = mediaURL
	} else {
		params["image_url"] = mediaURL
	}

	var result struct {
		ID string `json:"id"`
	}

	resp, err := i.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		Post(i.graphBase + "/v18.0/" + conn.AccountID + "/media")
	if err != nil {
		return "", wrapPublishError(models.Instagram, "container request failed", err)
	}
	if resp.IsError() {
		return "", publishErrorf(models.Instagram, "container rejected: %s %s", resp.Status(), resp.String())
	}

	return result.ID, nil
}

// waitForContainer polls the container status until it is finished. The wait
// is bounded: after maxPolls attempts the attempt fails like any other
// adapter error.
func (i *InstagramPublisher) waitForContainer(ctx context.Context, accessToken, containerID string) error {
	for attempt := 0; attempt < i.maxPolls; attempt++ {
		var result struct {
			StatusCode string `json:"status_code"`
		}

		resp, err := i.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"access_token": accessToken,
				"fields":       "status_code",
			}).
			SetResult(&result).
			Get(i.graphBase + "/v18.0/" + containerID)
		if err != nil {
			return wrapPublishError(models.Instagram, "container status check failed", err)
		}
		if resp.IsError() {
			return publishErrorf(models.Instagram, "container status check rejected: %s", resp.Status())
		}

		switch result.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return publishErrorf(models.Instagram, "media processing failed: %s", result.StatusCode)
		}

		select {
		case <-ctx.Done():
			return wrapPublishError(models.Instagram, "container wait cancelled", ctx.Err())
		case <-time.After(i.pollInterval):
		}
	}

	return publishErrorf(models.Instagram, "media container not ready after %d checks", i.maxPolls)
}

func (i *InstagramPublisher) publishContainer(ctx context.Context, conn *models.SocialConnection, containerID string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}

	resp, err := i.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"access_token": conn.AccessToken,
			"creation_id":  containerID,
		}).
		SetResult(&result).
		Post(i.graphBase + "/v18.0/" + conn.AccountID + "/media_publish")
	if err != nil {
		return "", wrapPublishError(models.Instagram, "publish request failed", err)
	}
	if resp.IsError() {
		return "", publishErrorf(models.Instagram, "publish rejected: %s %s", resp.Status(), resp.String())
	}

	return result.ID, nil
}
