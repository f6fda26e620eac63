package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/livewatch/internal/engine"
	"github.com/john/livewatch/internal/live"
)

func TestMemoryOnlyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, "", time.Minute)
	assert.False(t, s.Redis())

	_, ok := s.LoadSuggestions(ctx)
	assert.False(t, ok)

	s.SaveSuggestions(ctx, []live.SuggestedStream{{Channel: "xqc", Platform: live.PlatformKick, ViewerCount: 40000}})
	s.SaveStatuses(ctx, live.StatusMap{"twitch:alice": {IsLive: true, ViewerCount: 3}})

	list, ok := s.LoadSuggestions(ctx)
	require.True(t, ok)
	assert.Equal(t, "xqc", list[0].Channel)

	m, ok := s.LoadStatuses(ctx)
	require.True(t, ok)
	assert.True(t, m["twitch:alice"].IsLive)
	assert.NoError(t, s.Close())
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, "", time.Millisecond)
	s.SaveStatuses(ctx, live.StatusMap{"kick:bobby": {}})
	time.Sleep(5 * time.Millisecond)

	_, ok := s.LoadStatuses(ctx)
	assert.False(t, ok)
}

func TestInvalidRedisURLFallsBack(t *testing.T) {
	s := New(context.Background(), "not a url", time.Minute)
	assert.False(t, s.Redis())
}

func TestRecordSubscriber(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, "", time.Minute)
	rec := s.Record(ctx)

	rec(engine.Event{Type: engine.EventStatus, Statuses: live.StatusMap{"twitch:a": {IsLive: true}}})
	rec(engine.Event{Type: engine.EventSuggestions, Suggestions: []live.SuggestedStream{{Channel: "s"}}})

	m, ok := s.LoadStatuses(ctx)
	require.True(t, ok)
	assert.Len(t, m, 1)

	list, ok := s.LoadSuggestions(ctx)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(context.Background(), "", 0).ttl)
}
