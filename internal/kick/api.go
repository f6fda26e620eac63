package kick

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/metrics"
	"github.com/john/livewatch/internal/transport"
)

const (
	DefaultAPIBaseURL  = "https://kick.com/api/v2/channels"
	DefaultFeaturedURL = "https://kick.com/stream/featured-livestreams"
)

// channelResponse is the subset of /api/v2/channels/{slug} we read.
type channelResponse struct {
	Slug       string      `json:"slug"`
	Livestream *livestream `json:"livestream"`
}

type livestream struct {
	ID           int        `json:"id"`
	Slug         string     `json:"slug"`
	SessionTitle string     `json:"session_title"`
	ViewerCount  int        `json:"viewer_count"`
	Language     string     `json:"language"`
	Categories   []category `json:"categories"`
	Thumbnail    *thumbnail `json:"thumbnail"`
	Channel      *struct {
		Slug string `json:"slug"`
		User *struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"channel"`
}

type category struct {
	Name string `json:"name"`
}

type thumbnail struct {
	Src string `json:"src"`
	URL string `json:"url"`
}

type featuredResponse struct {
	Data        []livestream `json:"data"`
	CurrentPage int          `json:"current_page"`
	LastPage    int          `json:"last_page"`
}

// Options configures a Client.
type Options struct {
	APIBaseURL        string
	FeaturedURL       string
	RequestsPerSecond float64 // 0 disables limiting
}

// Client talks to the public Kick web API.
type Client struct {
	http        transport.Client
	apiBaseURL  string
	featuredURL string
	limiter     *rate.Limiter
}

// New creates a Kick client.
func New(httpClient transport.Client, opts Options) *Client {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = DefaultAPIBaseURL
	}
	if opts.FeaturedURL == "" {
		opts.FeaturedURL = DefaultFeaturedURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(opts.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		http:        httpClient,
		apiBaseURL:  opts.APIBaseURL,
		featuredURL: opts.FeaturedURL,
		limiter:     limiter,
	}
}

// Platform implements live.StatusAdapter.
func (c *Client) Platform() live.Platform {
	return live.PlatformKick
}

// QueryStatus fetches every channel concurrently. A channel whose request
// fails is reported offline without affecting the others.
func (c *Client) QueryStatus(ctx context.Context, channels []string) live.StatusMap {
	result := live.Offline(live.PlatformKick, channels)
	if len(channels) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			status, err := c.fetchStatus(ctx, channel)
			if err != nil {
				metrics.IncrKickErrors()
				slog.Debug("kick: channel lookup failed", slog.String("channel", channel), slog.Any("error", err))
				return
			}
			mu.Lock()
			result[live.Key(live.PlatformKick, channel)] = status
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	return result
}

// fetchStatus looks up a single channel. A missing livestream object means offline.
func (c *Client) fetchStatus(ctx context.Context, channel string) (live.LiveStatus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return live.LiveStatus{}, fmt.Errorf("rate limit wait: %w", err)
	}

	metrics.IncrKickRequests()
	endpoint := fmt.Sprintf("%s/%s", c.apiBaseURL, url.PathEscape(live.NormalizeChannel(channel)))
	var info channelResponse
	if err := transport.GetJSON(ctx, c.http, endpoint, browserHeaders(), &info); err != nil {
		return live.LiveStatus{}, err
	}

	if info.Livestream == nil {
		return live.LiveStatus{}, nil
	}
	status := live.LiveStatus{
		IsLive:      true,
		ViewerCount: info.Livestream.ViewerCount,
		Title:       info.Livestream.SessionTitle,
	}
	if len(info.Livestream.Categories) > 0 {
		status.Category = info.Livestream.Categories[0].Name
	}
	return status, nil
}

// FeaturedPage fetches one page of featured livestreams for a Kick language
// code. Each candidate is identified by its channel slug and tagged with the
// language name Kick reports.
func (c *Client) FeaturedPage(ctx context.Context, language string, page int) ([]live.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.IncrKickErrors()
		return nil, fmt.Errorf("featured page %d: rate limit wait: %w", page, err)
	}

	metrics.IncrKickRequests()
	endpoint := fmt.Sprintf("%s/%s?page=%d", c.featuredURL, url.PathEscape(language), page)
	var resp featuredResponse
	if err := transport.GetJSON(ctx, c.http, endpoint, browserHeaders(), &resp); err != nil {
		metrics.IncrKickErrors()
		return nil, fmt.Errorf("featured page %d: %w", page, err)
	}

	out := make([]live.Candidate, 0, len(resp.Data))
	for _, ls := range resp.Data {
		slug := ""
		if ls.Channel != nil {
			slug = ls.Channel.Slug
		}
		if slug == "" {
			continue
		}
		cand := live.Candidate{
			ID:       slug,
			Language: ls.Language,
			Stream: live.SuggestedStream{
				Channel:     slug,
				Platform:    live.PlatformKick,
				Title:       ls.SessionTitle,
				ViewerCount: ls.ViewerCount,
			},
		}
		if len(ls.Categories) > 0 {
			cand.Stream.Category = ls.Categories[0].Name
		}
		if ls.Thumbnail != nil {
			cand.Stream.Thumbnail = ls.Thumbnail.Src
			if cand.Stream.Thumbnail == "" {
				cand.Stream.Thumbnail = ls.Thumbnail.URL
			}
		}
		out = append(out, cand)
	}

	slog.Debug("kick: featured page fetched",
		slog.String("language", language),
		slog.Int("page", page),
		slog.Int("streams", len(out)),
		slog.Int("last_page", resp.LastPage),
	)
	return out, nil
}

// browserHeaders returns the headers Kick expects from its own web client.
// Requests without them are routinely rejected by Cloudflare.
func browserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Accept":             "application/json",
		"Accept-Language":    "en-US,en;q=0.9",
		"Referer":            "https://kick.com/",
		"Origin":             "https://kick.com",
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-origin",
		"sec-ch-ua":          `"Chromium";v="131", "Not_A Brand";v="24", "Google Chrome";v="131"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
	}
}
