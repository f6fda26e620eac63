package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/livewatch/internal/live"
)

func cand(id, lang string, viewers int, platform live.Platform) live.Candidate {
	return live.Candidate{
		ID:       id,
		Language: lang,
		Stream: live.SuggestedStream{
			Channel:     id,
			Platform:    platform,
			Title:       "title " + id,
			ViewerCount: viewers,
		},
	}
}

func names(list []live.SuggestedStream) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Channel
	}
	return out
}

type fakeTop struct {
	calls  atomic.Int32
	first  atomic.Int32
	result []live.Candidate
	err    error
	block  chan struct{}
	enter  chan struct{}
}

func (f *fakeTop) TopStreams(_ context.Context, first int) ([]live.Candidate, error) {
	f.calls.Add(1)
	f.first.Store(int32(first))
	if f.enter != nil {
		close(f.enter)
	}
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

type fakeFeatured struct {
	mu    sync.Mutex
	langs []string
	pages map[int][]live.Candidate
	fail  map[int]bool
}

func (f *fakeFeatured) FeaturedPage(_ context.Context, lang string, page int) ([]live.Candidate, error) {
	f.mu.Lock()
	f.langs = append(f.langs, lang)
	f.mu.Unlock()
	if f.fail[page] {
		return nil, errors.New("page failed")
	}
	return f.pages[page], nil
}

func TestInterleave(t *testing.T) {
	s := func(names ...string) []live.SuggestedStream {
		out := make([]live.SuggestedStream, len(names))
		for i, n := range names {
			out[i] = live.SuggestedStream{Channel: n}
		}
		return out
	}
	tests := []struct {
		name string
		a, b []live.SuggestedStream
		want []string
	}{
		{"a longer", s("a1", "a2", "a3"), s("b1", "b2"), []string{"a1", "b1", "a2", "b2", "a3"}},
		{"b longer", s("a1"), s("b1", "b2", "b3"), []string{"a1", "b1", "b2", "b3"}},
		{"a empty", nil, s("b1", "b2"), []string{"b1", "b2"}},
		{"both empty", nil, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Interleave(tt.a, tt.b)))
		})
	}
}

func TestDedupFirstWins(t *testing.T) {
	page1 := cand("dup", "English", 100, live.PlatformKick)
	page2 := cand("dup", "English", 999, live.PlatformKick)
	page2.Stream.Title = "later"

	got := Dedup([]live.Candidate{page1, cand("x", "English", 1, live.PlatformKick), page2})
	require.Len(t, got, 2)
	assert.Equal(t, 100, got[0].Stream.ViewerCount)
	assert.Equal(t, "title dup", got[0].Stream.Title)
}

func TestFilterWithFallback(t *testing.T) {
	build := func(matching, other int) []live.Candidate {
		var out []live.Candidate
		for i := range matching {
			out = append(out, cand(fmt.Sprintf("m%d", i), "Spanish", i, live.PlatformKick))
		}
		for i := range other {
			out = append(out, cand(fmt.Sprintf("o%d", i), "English", i, live.PlatformKick))
		}
		return out
	}

	assert.Len(t, FilterWithFallback(build(3, 10), "Spanish", 4), 13)
	assert.Len(t, FilterWithFallback(build(5, 10), "Spanish", 4), 5)
	assert.Len(t, FilterWithFallback(build(4, 10), "spanish", 4), 4)
	assert.Empty(t, FilterWithFallback(nil, "Spanish", 4))
}

func TestPreferLanguageKeepsAll(t *testing.T) {
	in := []live.Candidate{
		cand("a", "EN", 500, live.PlatformTwitch),
		cand("b", "PT", 400, live.PlatformTwitch),
		cand("c", "EN", 300, live.PlatformTwitch),
		cand("d", "PT", 200, live.PlatformTwitch),
	}
	got := PreferLanguage(in, "PT")
	assert.Equal(t, []string{"b", "d", "a", "c"}, names(streams(got)))

	got = PreferLanguage(in, "ZH")
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(streams(got)))
}

func TestSortByViewersStable(t *testing.T) {
	list := []live.SuggestedStream{
		{Channel: "low", ViewerCount: 1},
		{Channel: "tie1", ViewerCount: 50},
		{Channel: "high", ViewerCount: 100},
		{Channel: "tie2", ViewerCount: 50},
	}
	SortByViewers(list)
	assert.Equal(t, []string{"high", "tie1", "tie2", "low"}, names(list))
}

func TestRefreshMergesBothPlatforms(t *testing.T) {
	top := &fakeTop{result: []live.Candidate{
		cand("t_en", "EN", 9000, live.PlatformTwitch),
		cand("t_es1", "ES", 800, live.PlatformTwitch),
		cand("t_es2", "ES", 700, live.PlatformTwitch),
	}}
	featured := &fakeFeatured{pages: map[int][]live.Candidate{
		1: {
			cand("k1", "Spanish", 10, live.PlatformKick),
			cand("k2", "Spanish", 30, live.PlatformKick),
			cand("k_en", "English", 5000, live.PlatformKick),
		},
		2: {
			cand("k2", "Spanish", 99999, live.PlatformKick),
			cand("k3", "Spanish", 20, live.PlatformKick),
		},
		3: {
			cand("k4", "Spanish", 40, live.PlatformKick),
		},
	}}

	a := New(top, featured, DefaultConfig(), "es")
	var published [][]live.SuggestedStream
	a.OnPublish(func(l []live.SuggestedStream) { published = append(published, l) })

	require.True(t, a.Refresh(context.Background()))

	// twitch side: ES first then the rest; kick side: four Spanish matches,
	// k2 keeps its page-1 viewer count.
	assert.Equal(t,
		[]string{"t_es1", "k4", "t_es2", "k2", "t_en", "k3", "k1"},
		names(a.Suggestions()),
	)
	assert.Equal(t, int32(30), top.first.Load())
	assert.ElementsMatch(t, []string{"es", "es", "es"}, featured.langs)
	require.Len(t, published, 1)
	assert.Equal(t, a.Suggestions(), published[0])
	assert.False(t, a.IsLoading())
}

func TestRefreshFallsBackWhenFewMatches(t *testing.T) {
	var page1 []live.Candidate
	page1 = append(page1,
		cand("de1", "German", 1, live.PlatformKick),
		cand("de2", "German", 2, live.PlatformKick),
		cand("de3", "German", 3, live.PlatformKick),
	)
	for i := range 10 {
		page1 = append(page1, cand(fmt.Sprintf("en%d", i), "English", 100+i, live.PlatformKick))
	}
	featured := &fakeFeatured{pages: map[int][]live.Candidate{1: page1}}

	a := New(nil, featured, Config{Limit: 20, FeaturedPages: 3, MinLanguageMatches: 4}, "de")
	a.Refresh(context.Background())

	got := a.Suggestions()
	require.Len(t, got, 13)
	assert.Equal(t, "en9", got[0].Channel)
	assert.Equal(t, "de1", got[12].Channel)
}

func TestRefreshTruncatesToLimit(t *testing.T) {
	var top []live.Candidate
	for i := range 30 {
		top = append(top, cand(fmt.Sprintf("t%d", i), "EN", 1000-i, live.PlatformTwitch))
	}
	a := New(&fakeTop{result: top}, nil, DefaultConfig(), "en")
	a.Refresh(context.Background())
	assert.Len(t, a.Suggestions(), 8)
}

func TestRefreshToleratesFailures(t *testing.T) {
	top := &fakeTop{err: errors.New("gql down")}
	featured := &fakeFeatured{
		pages: map[int][]live.Candidate{2: {cand("k", "English", 5, live.PlatformKick)}},
		fail:  map[int]bool{1: true, 3: true},
	}
	a := New(top, featured, DefaultConfig(), "en")
	require.True(t, a.Refresh(context.Background()))
	assert.Equal(t, []string{"k"}, names(a.Suggestions()))

	featured.fail = map[int]bool{1: true, 2: true, 3: true}
	require.True(t, a.Refresh(context.Background()))
	assert.Empty(t, a.Suggestions())
}

func TestRefreshReentrantIsNoop(t *testing.T) {
	top := &fakeTop{enter: make(chan struct{}), block: make(chan struct{})}
	a := New(top, nil, DefaultConfig(), "en")

	done := make(chan bool)
	go func() { done <- a.Refresh(context.Background()) }()

	<-top.enter
	assert.True(t, a.IsLoading())
	assert.False(t, a.Refresh(context.Background()))

	close(top.block)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), top.calls.Load())
}

func TestCancelledRefreshKeepsPreviousList(t *testing.T) {
	top := &fakeTop{result: []live.Candidate{cand("t1", "en", 10, live.PlatformTwitch)}}
	a := New(top, nil, DefaultConfig(), "en")

	var published atomic.Int32
	a.OnPublish(func([]live.SuggestedStream) { published.Add(1) })
	require.True(t, a.Refresh(context.Background()))

	top.enter = make(chan struct{})
	top.block = make(chan struct{})
	top.result = nil
	top.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() { done <- a.Refresh(ctx) }()

	<-top.enter
	cancel()
	close(top.block)
	assert.True(t, <-done)

	assert.Equal(t, []string{"t1"}, names(a.Suggestions()))
	assert.Equal(t, int32(1), published.Load())
	assert.False(t, a.IsLoading())
}

func TestLanguageResolution(t *testing.T) {
	a := New(nil, nil, DefaultConfig(), "xx")
	assert.Equal(t, "en", a.Language())

	a.SetLanguage("PT")
	assert.Equal(t, "pt", a.Language())
}

func TestSeedAndCopy(t *testing.T) {
	a := New(nil, nil, DefaultConfig(), "en")
	a.Seed([]live.SuggestedStream{{Channel: "seeded"}})

	got := a.Suggestions()
	got[0].Channel = "mutated"
	assert.Equal(t, "seeded", a.Suggestions()[0].Channel)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 8, cfg.Limit)
	assert.Equal(t, 3, cfg.FeaturedPages)
	assert.Equal(t, 30, cfg.TopPageSize)
	assert.Equal(t, 0, cfg.MinLanguageMatches)
}
