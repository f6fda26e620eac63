package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/metrics"
	"github.com/john/livewatch/internal/transport"
)

const (
	DefaultGQLURL = "https://gql.twitch.tv/gql"

	// DefaultClientID is the public client ID used by the Twitch website.
	// Twitch has no unauthenticated public API; this ID has been stable for years.
	DefaultClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
)

// Logins are alphanumeric plus underscore. Anything else is never
// interpolated into a query.
var loginPattern = regexp.MustCompile(`^[a-z0-9_]{1,25}$`)

// Client queries the Twitch GraphQL endpoint.
type Client struct {
	http     transport.Client
	gqlURL   string
	clientID string
}

// New creates a Twitch client. Empty gqlURL or clientID select the defaults.
func New(httpClient transport.Client, gqlURL, clientID string) *Client {
	if gqlURL == "" {
		gqlURL = DefaultGQLURL
	}
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &Client{
		http:     httpClient,
		gqlURL:   gqlURL,
		clientID: clientID,
	}
}

// Platform implements live.StatusAdapter.
func (c *Client) Platform() live.Platform {
	return live.PlatformTwitch
}

type gqlRequest struct {
	Query string `json:"query"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlGame struct {
	DisplayName string `json:"displayName"`
}

type statusResponse struct {
	Data map[string]*struct {
		Stream *struct {
			Title        string   `json:"title"`
			ViewersCount int      `json:"viewersCount"`
			Game         *gqlGame `json:"game"`
		} `json:"stream"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

// QueryStatus looks up all channels in a single aliased request. Any failure
// reports every requested channel offline.
func (c *Client) QueryStatus(ctx context.Context, channels []string) live.StatusMap {
	result, err := c.queryStatus(ctx, channels)
	if err != nil {
		metrics.IncrTwitchErrors()
		slog.Warn("twitch: status query failed", slog.Int("channels", len(channels)), slog.Any("error", err))
		return live.Offline(live.PlatformTwitch, channels)
	}
	return result
}

func (c *Client) queryStatus(ctx context.Context, channels []string) (live.StatusMap, error) {
	result := live.Offline(live.PlatformTwitch, channels)

	aliases := make(map[string]string, len(channels))
	var sb strings.Builder
	for i, ch := range channels {
		login := live.NormalizeChannel(ch)
		if !loginPattern.MatchString(login) {
			slog.Debug("twitch: skipping invalid login", slog.String("channel", ch))
			continue
		}
		alias := fmt.Sprintf("c%d", i)
		aliases[alias] = login
		fmt.Fprintf(&sb, "%s: user(login: %q) { stream { title viewersCount game { displayName } } }\n", alias, login)
	}
	if len(aliases) == 0 {
		return result, nil
	}

	metrics.IncrTwitchRequests()
	var resp statusResponse
	if err := transport.PostJSON(ctx, c.http, c.gqlURL, c.headers(), gqlRequest{Query: "{ " + sb.String() + "}"}, &resp); err != nil {
		return nil, fmt.Errorf("status query: %w", err)
	}
	if resp.Data == nil {
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("status query: %s", resp.Errors[0].Message)
		}
		return nil, fmt.Errorf("status query: response has no data")
	}

	for alias, login := range aliases {
		user := resp.Data[alias]
		if user == nil || user.Stream == nil {
			continue
		}
		status := live.LiveStatus{
			IsLive:      true,
			ViewerCount: user.Stream.ViewersCount,
			Title:       user.Stream.Title,
		}
		if user.Stream.Game != nil {
			status.Category = user.Stream.Game.DisplayName
		}
		result[live.Key(live.PlatformTwitch, login)] = status
	}

	return result, nil
}

type topResponse struct {
	Data *struct {
		Streams struct {
			Edges []struct {
				Node struct {
					ID              string   `json:"id"`
					Title           string   `json:"title"`
					ViewersCount    int      `json:"viewersCount"`
					PreviewImageURL string   `json:"previewImageURL"`
					Game            *gqlGame `json:"game"`
					Broadcaster     *struct {
						Login             string `json:"login"`
						DisplayName       string `json:"displayName"`
						BroadcastSettings *struct {
							Language string `json:"language"`
						} `json:"broadcastSettings"`
					} `json:"broadcaster"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"streams"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

// TopStreams returns one page of live streams ordered by viewer count, each
// tagged with the broadcaster's language setting.
func (c *Client) TopStreams(ctx context.Context, first int) ([]live.Candidate, error) {
	first = max(1, min(first, 100))
	query := fmt.Sprintf(`{ streams(first: %d, options: {sort: VIEWER_COUNT}) { edges { node { `+
		`id title viewersCount previewImageURL(width: 440, height: 248) game { displayName } `+
		`broadcaster { login displayName broadcastSettings { language } } } } } }`, first)

	metrics.IncrTwitchRequests()
	var resp topResponse
	if err := transport.PostJSON(ctx, c.http, c.gqlURL, c.headers(), gqlRequest{Query: query}, &resp); err != nil {
		metrics.IncrTwitchErrors()
		return nil, fmt.Errorf("top streams: %w", err)
	}
	if resp.Data == nil {
		metrics.IncrTwitchErrors()
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("top streams: %s", resp.Errors[0].Message)
		}
		return nil, fmt.Errorf("top streams: response has no data")
	}

	out := make([]live.Candidate, 0, len(resp.Data.Streams.Edges))
	for _, edge := range resp.Data.Streams.Edges {
		node := edge.Node
		if node.Broadcaster == nil || node.Broadcaster.Login == "" {
			continue
		}
		cand := live.Candidate{
			ID: node.ID,
			Stream: live.SuggestedStream{
				Channel:     node.Broadcaster.Login,
				Platform:    live.PlatformTwitch,
				Title:       node.Title,
				ViewerCount: node.ViewersCount,
				Thumbnail:   node.PreviewImageURL,
			},
		}
		if cand.ID == "" {
			cand.ID = node.Broadcaster.Login
		}
		if node.Game != nil {
			cand.Stream.Category = node.Game.DisplayName
		}
		if node.Broadcaster.BroadcastSettings != nil {
			cand.Language = node.Broadcaster.BroadcastSettings.Language
		}
		out = append(out, cand)
	}

	slog.Debug("twitch: top streams fetched", slog.Int("streams", len(out)))
	return out, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Client-Id":    c.clientID,
		"Content-Type": "application/json",
	}
}
