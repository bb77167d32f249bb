package publishers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}

func TestIsVideoURL(t *testing.T) {
	assert.True(t, isVideoURL("https://cdn.example.com/clip.mp4"))
	assert.True(t, isVideoURL("https://cdn.example.com/clip.MOV"))
	assert.True(t, isVideoURL("https://cdn.example.com/clip.mp4?token=abc"))
	assert.False(t, isVideoURL("https://cdn.example.com/photo.png"))
	assert.False(t, isVideoURL("https://cdn.example.com/clip.mp4.png"))
}

func TestFindVideoURL(t *testing.T) {
	urls := []string{
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/b.mp4",
		"https://cdn.example.com/c.mov",
	}
	assert.Equal(t, "https://cdn.example.com/b.mp4", findVideoURL(urls))
	assert.Equal(t, "", findVideoURL([]string{"https://cdn.example.com/a.png"}))
	assert.Equal(t, "", findVideoURL(nil))
}

func TestDetectMediaKind(t *testing.T) {
	assert.Equal(t, "image", detectMediaKind(pngBytes))

	mp4 := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypmp42")...)
	assert.Equal(t, "video", detectMediaKind(mp4))

	assert.Equal(t, "", detectMediaKind([]byte("plain text")))
}
