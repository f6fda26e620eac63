package live

import "time"

// Transition records a channel going live or offline between two polls.
type Transition struct {
	Platform    Platform `json:"platform"`              // Platform name: "twitch", "kick"
	Timestamp   string   `json:"timestamp"`             // Poll time in RFC3339 format (UTC)
	Channel     string   `json:"channel"`               // Lowercased channel name
	Event       string   `json:"event"`                 // "live" or "offline"
	Title       string   `json:"title,omitempty"`       // Stream title when going live
	Category    string   `json:"category,omitempty"`    // Category when going live
	ViewerCount int      `json:"viewer_count,omitempty"` // Viewers at the time of the poll
}

const (
	EventLive    = "live"
	EventOffline = "offline"
)

// Diff returns the transitions between two consecutive status maps. Channels
// that appear for the first time are reported only if they are live; channels
// that disappear are not reported.
func Diff(prev, next StatusMap, at time.Time) []Transition {
	var out []Transition
	ts := at.UTC().Format(time.RFC3339)
	for key, cur := range next {
		old, seen := prev[key]
		if seen && old.IsLive == cur.IsLive {
			continue
		}
		if !seen && !cur.IsLive {
			continue
		}
		platform, channel := SplitKey(key)
		t := Transition{
			Platform:  platform,
			Timestamp: ts,
			Channel:   channel,
			Event:     EventOffline,
		}
		if cur.IsLive {
			t.Event = EventLive
			t.Title = cur.Title
			t.Category = cur.Category
			t.ViewerCount = cur.ViewerCount
		}
		out = append(out, t)
	}
	return out
}

// SplitKey splits a StatusMap key into its platform and channel parts.
func SplitKey(key string) (Platform, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return Platform(key[:i]), key[i+1:]
		}
	}
	return "", key
}
