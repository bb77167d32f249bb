package publishers

import (
	"context"

	"socialflow/models"

	"github.com/go-resty/resty/v2"
)

// LinkedInPublisher posts UGC shares. The author URN is resolved from the
// token's userinfo before building the share envelope.
type LinkedInPublisher struct {
	client  *resty.Client
	apiBase string
}

func NewLinkedInPublisher(client *resty.Client) *LinkedInPublisher {
	return &LinkedInPublisher{
		client:  client,
		apiBase: "https://api.linkedin.com",
	}
}

func (l *LinkedInPublisher) Publish(ctx context.Context, content string, mediaURLs []string, conn *models.SocialConnection) (string, error) {
	if conn == nil || conn.AccessToken == "" {
		return "", publishErrorf(models.LinkedIn, "missing access token")
	}

	author, err := l.resolveAuthorURN(ctx, conn)
	if err != nil {
		return "", err
	}

	shareMediaCategory := "NONE"
	if len(mediaURLs) > 0 {
		shareMediaCategory = "IMAGE"
	}

	body := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": content},
				"shareMediaCategory": shareMediaCategory,
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var result struct {
		ID string `json:"id"`
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetHeader("X-Restli-Protocol-Version", "2.0.0").
		SetBody(body).
		SetResult(&result).
		Post(l.apiBase + "/v2/ugcPosts")
	if err != nil {
		return "", wrapPublishError(models.LinkedIn, "share request failed", err)
	}
	if resp.IsError() {
		return "", publishErrorf(models.LinkedIn, "share rejected: %s %s", resp.Status(), resp.String())
	}

	if urn := resp.Header().Get("X-Restli-Id"); urn != "" {
		return urn, nil
	}
	return result.ID, nil
}

// resolveAuthorURN prefers the account id stored on the connection and falls
// back to a userinfo lookup for connections created before account ids were
// captured.
func (l *LinkedInPublisher) resolveAuthorURN(ctx context.Context, conn *models.SocialConnection) (string, error) {
	if conn.AccountID != "" {
		return "urn:li:person:" + conn.AccountID, nil
	}

	var userinfo struct {
		Sub string `json:"sub"`
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetResult(&userinfo).
		Get(l.apiBase + "/v2/userinfo")
	if err != nil {
		return "", wrapPublishError(models.LinkedIn, "userinfo lookup failed", err)
	}
	if resp.IsError() {
		return "", publishErrorf(models.LinkedIn, "userinfo rejected: %s", resp.Status())
	}
	if userinfo.Sub == "" {
		return "", publishErrorf(models.LinkedIn, "userinfo returned no member id")
	}

	return "urn:li:person:" + userinfo.Sub, nil
}
