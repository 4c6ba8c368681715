package model

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// FormatTimecode converts an offset in seconds to zero-padded HH:MM:SS.
// Fractional seconds are truncated; negative input is clamped to zero.
func FormatTimecode(totalSeconds float64) string {
	if totalSeconds < 0 || math.IsNaN(totalSeconds) {
		totalSeconds = 0
	}
	secs := int64(math.Floor(totalSeconds))
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// PlaylistID extracts the "list" query parameter from a playlist URL
func PlaylistID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(u.Query().Get("list"))
	return id, id != ""
}

// CanonicalPlaylistURL rewrites watch-page URLs that carry a list id into the
// playlist page form. The input is returned unchanged when no id can be found.
func CanonicalPlaylistURL(rawURL string) string {
	id, ok := PlaylistID(rawURL)
	if !ok {
		return rawURL
	}
	return "https://www.youtube.com/playlist?list=" + url.QueryEscape(id)
}
