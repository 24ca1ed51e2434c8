// Package classify decides what kind of YouTube link a user pasted and pulls
// external ids out of it. It does no network or storage access.
package classify

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned for input that is not a recognized channel or
// video link, or that lacks the id the link shape requires.
var ErrInvalidURL = errors.New("invalid url")

type Kind string

const (
	KindInvalid Kind = "invalid"
	KindChannel Kind = "channel"
	KindVideo   Kind = "video"
)

// ChannelShape tells the channel resolver how to obtain the external id.
type ChannelShape string

const (
	ChannelByID       ChannelShape = "id"
	ChannelByHandle   ChannelShape = "handle"
	ChannelByUsername ChannelShape = "username"
)

const (
	watchBase   = "https://www.youtube.com/watch?v="
	embedBase   = "https://www.youtube.com/embed/"
	channelBase = "https://www.youtube.com/channel/"
)

const hostPrefix = `^(https?://)?(www\.)?(youtube\.com|youtu\.?be)/`

// Checked in order; the first match wins.
var channelPatterns = []struct {
	shape   ChannelShape
	pattern *regexp.Regexp
	extract *regexp.Regexp
}{
	{ChannelByID, regexp.MustCompile(hostPrefix + `channel/`), regexp.MustCompile(`channel/([^/?#&]+)`)},
	{ChannelByHandle, regexp.MustCompile(hostPrefix + `@`), regexp.MustCompile(`@([^/?#&]+)`)},
	{ChannelByUsername, regexp.MustCompile(hostPrefix + `user/`), regexp.MustCompile(`user/([^/?#&]+)`)},
}

var (
	videoPattern   = regexp.MustCompile(hostPrefix + `watch\?v=`)
	videoIDPattern = regexp.MustCompile(`[?&]v=([^&#]+)`)
	embedIDPattern = regexp.MustCompile(`embed/([^/?&#]+)`)
)

// Classify maps every input to exactly one Kind.
func Classify(rawURL string) Kind {
	s := strings.TrimSpace(rawURL)
	for _, p := range channelPatterns {
		if p.pattern.MatchString(s) {
			return KindChannel
		}
	}
	if videoPattern.MatchString(s) {
		return KindVideo
	}
	return KindInvalid
}

// ChannelRef returns the shape of a channel link and the id, handle or
// username it carries.
func ChannelRef(rawURL string) (ChannelShape, string, error) {
	s := strings.TrimSpace(rawURL)
	for _, p := range channelPatterns {
		if !p.pattern.MatchString(s) {
			continue
		}
		m := p.extract.FindStringSubmatch(s)
		if len(m) != 2 || m[1] == "" {
			return "", "", ErrInvalidURL
		}
		return p.shape, m[1], nil
	}
	return "", "", ErrInvalidURL
}

// VideoID extracts the external video id from a watch link.
func VideoID(rawURL string) (string, error) {
	m := videoIDPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if len(m) != 2 || m[1] == "" {
		return "", ErrInvalidURL
	}
	return m[1], nil
}

// EmbedVideoID extracts the external video id from an embed link.
func EmbedVideoID(embedURL string) (string, error) {
	m := embedIDPattern.FindStringSubmatch(strings.TrimSpace(embedURL))
	if len(m) != 2 || m[1] == "" {
		return "", ErrInvalidURL
	}
	return m[1], nil
}

func WatchURL(videoID string) string     { return watchBase + videoID }
func EmbedURL(videoID string) string     { return embedBase + videoID }
func ChannelURL(channelID string) string { return channelBase + channelID }

// PlayerURL is the embed link with the JS player API enabled, which the
// page needs to observe play/pause events.
func PlayerURL(embedURL string) string {
	if strings.Contains(embedURL, "?") {
		return embedURL + "&enablejsapi=1"
	}
	return embedURL + "?enablejsapi=1"
}
