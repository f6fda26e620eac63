// Package discovery builds the suggested-streams list from the viewer-ranked
// directory of one platform and the featured feed of the other.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/john/livewatch/internal/language"
	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/metrics"
)

// TopSource returns one page of streams ranked by viewer count.
type TopSource interface {
	TopStreams(ctx context.Context, first int) ([]live.Candidate, error)
}

// FeaturedSource returns one page of a language-scoped featured feed.
type FeaturedSource interface {
	FeaturedPage(ctx context.Context, language string, page int) ([]live.Candidate, error)
}

// Config holds the ranking knobs.
type Config struct {
	Limit              int // entries kept per platform
	FeaturedPages      int
	MinLanguageMatches int // below this the language filter is discarded
	TopPageSize        int
}

// DefaultConfig returns the stock ranking parameters.
func DefaultConfig() Config {
	return Config{
		Limit:              8,
		FeaturedPages:      3,
		MinLanguageMatches: 4,
		TopPageSize:        30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.FeaturedPages <= 0 {
		c.FeaturedPages = d.FeaturedPages
	}
	if c.MinLanguageMatches < 0 {
		c.MinLanguageMatches = d.MinLanguageMatches
	}
	if c.TopPageSize <= 0 {
		c.TopPageSize = d.TopPageSize
	}
	return c
}

// Aggregator owns the published suggestion list.
type Aggregator struct {
	top      TopSource
	featured FeaturedSource
	cfg      Config

	loading atomic.Bool

	mu          sync.RWMutex
	language    string
	suggestions []live.SuggestedStream
	subs        []func([]live.SuggestedStream)
}

// New creates an aggregator. Either source may be nil, in which case that
// side of the interleave is always empty.
func New(top TopSource, featured FeaturedSource, cfg Config, lang string) *Aggregator {
	return &Aggregator{
		top:      top,
		featured: featured,
		cfg:      cfg.withDefaults(),
		language: language.Resolve(lang).Code,
	}
}

// SetLanguage changes the preferred language for subsequent refreshes.
func (a *Aggregator) SetLanguage(code string) {
	a.mu.Lock()
	a.language = language.Resolve(code).Code
	a.mu.Unlock()
}

// Language returns the preferred language code.
func (a *Aggregator) Language() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.language
}

// OnPublish registers fn to receive a copy of every published list.
func (a *Aggregator) OnPublish(fn func([]live.SuggestedStream)) {
	a.mu.Lock()
	a.subs = append(a.subs, fn)
	a.mu.Unlock()
}

// Seed publishes a list without fetching, e.g. one restored from a snapshot.
// Subscribers are not notified.
func (a *Aggregator) Seed(list []live.SuggestedStream) {
	a.mu.Lock()
	a.suggestions = clone(list)
	a.mu.Unlock()
}

// Refresh rebuilds the suggestion list. It reports false when a refresh was
// already in flight and this call did nothing. A failing source contributes
// an empty side; a cancelled refresh publishes nothing.
func (a *Aggregator) Refresh(ctx context.Context) bool {
	if !a.loading.CompareAndSwap(false, true) {
		metrics.IncrSuggestionSkipped()
		return false
	}
	defer a.loading.Store(false)

	metrics.IncrSuggestionRefreshes()
	start := time.Now()
	lang := language.Resolve(a.Language())

	var top, featured []live.SuggestedStream
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		top = a.fromTop(ctx, lang)
	}()
	go func() {
		defer wg.Done()
		featured = a.fromFeatured(ctx, lang)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		slog.Warn("discovery: refresh cancelled, keeping previous suggestions", slog.Any("error", err))
		return true
	}
	merged := Interleave(top, featured)
	a.publish(merged)

	slog.Info("discovery: suggestions refreshed",
		slog.String("language", lang.Code),
		slog.Int("twitch", len(top)),
		slog.Int("kick", len(featured)),
		slog.Duration("took", time.Since(start)),
	)
	return true
}

func (a *Aggregator) fromTop(ctx context.Context, lang language.Language) []live.SuggestedStream {
	if a.top == nil {
		return nil
	}
	candidates, err := a.top.TopStreams(ctx, a.cfg.TopPageSize)
	if err != nil {
		slog.Warn("discovery: top streams failed", slog.Any("error", err))
		return nil
	}
	ordered := PreferLanguage(candidates, lang.TwitchCode)
	return truncate(streams(ordered), a.cfg.Limit)
}

func (a *Aggregator) fromFeatured(ctx context.Context, lang language.Language) []live.SuggestedStream {
	if a.featured == nil {
		return nil
	}

	pages := make([][]live.Candidate, a.cfg.FeaturedPages)
	var wg sync.WaitGroup
	for i := range pages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := a.featured.FeaturedPage(ctx, lang.KickCode, i+1)
			if err != nil {
				slog.Warn("discovery: featured page failed",
					slog.Int("page", i+1),
					slog.Any("error", err),
				)
				return
			}
			pages[i] = page
		}()
	}
	wg.Wait()

	var all []live.Candidate
	for _, page := range pages {
		all = append(all, page...)
	}

	filtered := FilterWithFallback(Dedup(all), lang.KickName, a.cfg.MinLanguageMatches)
	list := streams(filtered)
	SortByViewers(list)
	return truncate(list, a.cfg.Limit)
}

func (a *Aggregator) publish(list []live.SuggestedStream) {
	a.mu.Lock()
	a.suggestions = list
	subs := make([]func([]live.SuggestedStream), len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, fn := range subs {
		fn(clone(list))
	}
}

// Suggestions returns a copy of the published list.
func (a *Aggregator) Suggestions() []live.SuggestedStream {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return clone(a.suggestions)
}

// IsLoading reports whether a refresh is in flight.
func (a *Aggregator) IsLoading() bool {
	return a.loading.Load()
}

func clone(list []live.SuggestedStream) []live.SuggestedStream {
	out := make([]live.SuggestedStream, len(list))
	copy(out, list)
	return out
}

func truncate(list []live.SuggestedStream, n int) []live.SuggestedStream {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func streams(candidates []live.Candidate) []live.SuggestedStream {
	out := make([]live.SuggestedStream, len(candidates))
	for i, c := range candidates {
		out[i] = c.Stream
	}
	return out
}
