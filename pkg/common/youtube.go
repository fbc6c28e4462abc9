package common

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// IsYouTubeURL checks if a URL points at YouTube or YouTube Music
func IsYouTubeURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// ExtractYouTubeVideoID returns the video ID of a YouTube URL, or "" when
// the URL is not a YouTube video
func ExtractYouTubeVideoID(youtubeURL string) string {
	if !IsYouTubeURL(youtubeURL) {
		return ""
	}
	id, err := youtube.ExtractVideoID(youtubeURL)
	if err != nil {
		return ""
	}
	return id
}

// GetYouTubeThumbnailURL generates a thumbnail URL from a video ID
func GetYouTubeThumbnailURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID)
}
