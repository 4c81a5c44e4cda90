// Package validation checks YouTube identifier formats before they are
// sent to the API or persisted.
package validation

import "regexp"

var (
	videoIDRegex         = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	channelIDRegex       = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)
	uploadsPlaylistRegex = regexp.MustCompile(`^UU[a-zA-Z0-9_-]{22}$`)
)

// IsVideoID reports whether s is a well-formed YouTube video ID.
func IsVideoID(s string) bool {
	return videoIDRegex.MatchString(s)
}

// IsChannelID reports whether s is a well-formed YouTube channel ID.
func IsChannelID(s string) bool {
	return channelIDRegex.MatchString(s)
}

// IsUploadsPlaylistID reports whether s is a well-formed uploads playlist ID.
// Every channel's uploads playlist shares the channel ID's suffix under the
// UU prefix.
func IsUploadsPlaylistID(s string) bool {
	return uploadsPlaylistRegex.MatchString(s)
}
