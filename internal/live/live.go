// Package live defines the canonical status and suggestion model shared by
// the platform adapters, the poller and the discovery aggregator.
package live

import (
	"context"
	"strings"
)

// Platform identifies a streaming platform.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformKick    Platform = "kick"
	PlatformYouTube Platform = "youtube"
)

// Platforms lists every known platform.
var Platforms = []Platform{PlatformTwitch, PlatformKick, PlatformYouTube}

// ParsePlatform normalizes a platform name. It reports false for unknown names.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformTwitch:
		return PlatformTwitch, true
	case PlatformKick:
		return PlatformKick, true
	case PlatformYouTube:
		return PlatformYouTube, true
	default:
		return "", false
	}
}

// SupportsStatus reports whether live status can be looked up for the platform.
func (p Platform) SupportsStatus() bool {
	return p == PlatformTwitch || p == PlatformKick
}

// NormalizeChannel returns the case-insensitive identity form of a channel name.
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

// Key builds the StatusMap key for a channel on a platform.
func Key(platform Platform, channel string) string {
	return string(platform) + ":" + NormalizeChannel(channel)
}

// ChannelRef is a (platform, channel) identity pair.
type ChannelRef struct {
	Channel  string   `json:"channel" yaml:"channel"`
	Platform Platform `json:"platform" yaml:"platform"`
}

// Key returns the identity key of the reference.
func (r ChannelRef) Key() string {
	return Key(r.Platform, r.Channel)
}

// LiveStatus is the normalized live state of one channel. The zero value means
// offline with no metrics.
type LiveStatus struct {
	IsLive      bool   `json:"isLive"`
	ViewerCount int    `json:"viewerCount,omitempty"`
	Title       string `json:"title,omitempty"`
	Category    string `json:"category,omitempty"`
}

// StatusMap maps Key(platform, channel) to a LiveStatus.
type StatusMap map[string]LiveStatus

// Clone returns a shallow copy of m. Clone of a nil map is an empty map.
func (m StatusMap) Clone() StatusMap {
	out := make(StatusMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Offline returns a map marking every channel as not live.
func Offline(platform Platform, channels []string) StatusMap {
	out := make(StatusMap, len(channels))
	for _, ch := range channels {
		out[Key(platform, ch)] = LiveStatus{}
	}
	return out
}

// SuggestedStream is one entry of the suggestion list.
type SuggestedStream struct {
	Channel     string   `json:"channel"`
	Platform    Platform `json:"platform"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	ViewerCount int      `json:"viewerCount"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
}

// Candidate is a discovered stream before ranking. ID is the source's stable
// identifier for the stream; Language is whatever tag the source reports.
type Candidate struct {
	Stream   SuggestedStream
	ID       string
	Language string
}

// StatusAdapter looks up live status for a batch of channels on one platform.
// QueryStatus never fails: on error every requested channel is reported offline.
type StatusAdapter interface {
	Platform() Platform
	QueryStatus(ctx context.Context, channels []string) StatusMap
}
