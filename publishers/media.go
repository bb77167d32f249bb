package publishers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-resty/resty/v2"
	"github.com/h2non/filetype"
)

// videoURLPattern matches the video extensions the platforms accept via URL.
var videoURLPattern = regexp.MustCompile(`(?i)\.(mp4|mov|avi)(\?.*)?$`)

func isVideoURL(url string) bool {
	return videoURLPattern.MatchString(url)
}

func findVideoURL(mediaURLs []string) string {
	for _, url := range mediaURLs {
		if isVideoURL(url) {
			return url
		}
	}
	return ""
}

// fetchMedia downloads a media attachment from its stable URL. Media lives
// with an external storage collaborator; only the bytes matter here.
func fetchMedia(ctx context.Context, client *resty.Client, mediaURL string) ([]byte, error) {
	resp, err := client.R().SetContext(ctx).Get(mediaURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch media: %s", resp.Status())
	}
	return resp.Body(), nil
}

// detectMediaKind sniffs downloaded bytes and reports "image", "video", or ""
// when the content is neither.
func detectMediaKind(data []byte) string {
	if filetype.IsImage(data) {
		return "image"
	}
	if filetype.IsVideo(data) {
		return "video"
	}
	return ""
}
