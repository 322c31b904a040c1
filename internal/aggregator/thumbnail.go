package aggregator

import (
	"fmt"
	"regexp"
)

// videoIDPatterns match the video hosting URL shapes contestants are linked with
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?youtube\.com/watch\?(?:[^#]*&)?v=([A-Za-z0-9_-]{11})(?:[&#]|$)`),
	regexp.MustCompile(`^(?:https?://)?youtu\.be/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube(?:-nocookie)?\.com/(?:embed|shorts|v|live)/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
}

// ThumbnailURL derives a preview image URL from a contestant's video URL.
// It returns "" when the URL is not a recognized video link.
func ThumbnailURL(videoURL string) string {
	id := extractVideoID(videoURL)
	if id == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", id)
}

func extractVideoID(videoURL string) string {
	if videoURL == "" {
		return ""
	}
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(videoURL); m != nil {
			return m[1]
		}
	}
	return ""
}
