package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/tracked"
)

type fakeService struct {
	statuses    live.StatusMap
	suggestions []live.SuggestedStream
	checks      atomic.Int32
	refreshes   atomic.Int32
	lastCtx     atomic.Value

	mu   sync.Mutex
	lang string
}

func (f *fakeService) Statuses() live.StatusMap { return f.statuses.Clone() }

func (f *fakeService) Status(channel string, platform live.Platform) (live.LiveStatus, bool) {
	if !platform.SupportsStatus() {
		return live.LiveStatus{}, false
	}
	s, ok := f.statuses[live.Key(platform, channel)]
	return s, ok
}

func (f *fakeService) Suggestions() []live.SuggestedStream { return f.suggestions }

func (f *fakeService) CheckAll(ctx context.Context) bool {
	f.checks.Add(1)
	f.lastCtx.Store(ctx)
	return true
}

func (f *fakeService) RefreshSuggestions(ctx context.Context) bool {
	f.refreshes.Add(1)
	f.lastCtx.Store(ctx)
	return false
}

func (f *fakeService) IsChecking() bool           { return false }
func (f *fakeService) IsLoadingSuggestions() bool { return true }

func (f *fakeService) Language() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lang
}

func (f *fakeService) SetLanguage(code string) {
	f.mu.Lock()
	f.lang = code
	f.mu.Unlock()
}

func newTestServer(t *testing.T) (*Server, *fakeService, *tracked.List, *httptest.Server) {
	t.Helper()
	svc := &fakeService{
		statuses: live.StatusMap{
			"twitch:alice": {IsLive: true, ViewerCount: 120, Title: "Chatting"},
			"kick:bobby":   {},
		},
		suggestions: []live.SuggestedStream{{Channel: "xqc", Platform: live.PlatformKick, ViewerCount: 50000}},
		lang:        "en",
	}
	favs := tracked.NewFavorites()
	s := New(":0", svc, map[string]*tracked.List{"favorites": favs})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, svc, favs, ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthAndMetrics(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "poll_cycles ")
}

func TestStatuses(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got statusResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.True(t, got.Statuses["twitch:alice"].IsLive)
	assert.False(t, got.Checking)
	assert.Contains(t, string(body), `"kick:bobby":{"isLive":false}`)
}

func TestChannelStatus(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	tests := []struct {
		path  string
		code  int
		known bool
		live  bool
	}{
		{"/api/status/twitch/Alice", http.StatusOK, true, true},
		{"/api/status/kick/bobby", http.StatusOK, true, false},
		{"/api/status/youtube/someone", http.StatusOK, false, false},
		{"/api/status/twitch/nobody", http.StatusOK, false, false},
		{"/api/status/myspace/tom", http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, ts.URL+tt.path, "")
			require.Equal(t, tt.code, resp.StatusCode)
			if tt.code != http.StatusOK {
				return
			}
			var got channelStatusResponse
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.known, got.Known)
			if tt.known {
				require.NotNil(t, got.Status)
				assert.Equal(t, tt.live, got.Status.IsLive)
			} else {
				assert.Nil(t, got.Status)
			}
		})
	}
}

func TestTriggers(t *testing.T) {
	_, svc, _, ts := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/check", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ran":true}`, string(body))
	assert.Equal(t, int32(1), svc.checks.Load())

	resp, body = do(t, http.MethodPost, ts.URL+"/api/suggestions/refresh", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ran":false}`, string(body))
	assert.Equal(t, int32(1), svc.refreshes.Load())

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/check", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTriggersOutliveRequest(t *testing.T) {
	_, svc, _, ts := newTestServer(t)

	for _, path := range []string{"/api/check", "/api/suggestions/refresh"} {
		do(t, http.MethodPost, ts.URL+path, "")
		ctx := svc.lastCtx.Load().(context.Context)
		// the request context is cancelled once the handler returns
		assert.NoError(t, ctx.Err(), path)
		assert.Nil(t, ctx.Done(), path)
	}
}

func TestSuggestions(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	_, body := do(t, http.MethodGet, ts.URL+"/api/suggestions", "")
	var got suggestionsResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Suggestions, 1)
	assert.Equal(t, "xqc", got.Suggestions[0].Channel)
	assert.True(t, got.Loading)
	assert.Equal(t, "en", got.Language)
}

func TestLanguage(t *testing.T) {
	_, svc, _, ts := newTestServer(t)

	resp, _ := do(t, http.MethodPut, ts.URL+"/api/language", `{"language":"pt"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pt", svc.Language())

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/language", `{"language":"klingon"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/language", `nope`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body := do(t, http.MethodGet, ts.URL+"/api/language", "")
	assert.JSONEq(t, `{"language":"pt"}`, string(body))
}

func TestTrackedEndpoints(t *testing.T) {
	_, _, favs, ts := newTestServer(t)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/tracked/favorites", `{"channel":"Alice","platform":"TWITCH"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, favs.Contains(live.ChannelRef{Channel: "alice", Platform: live.PlatformTwitch}))

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/tracked/favorites", `{"channel":"alice","platform":"twitch"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/tracked/favorites", `{"channel":" ","platform":"twitch"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/tracked/favorites", `{"channel":"x","platform":"myspace"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/tracked/pinned", `{"channel":"x","platform":"kick"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body := do(t, http.MethodGet, ts.URL+"/api/tracked/favorites", "")
	assert.JSONEq(t, `[{"channel":"Alice","platform":"twitch"}]`, string(body))

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/tracked/favorites/twitch/ALICE", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, favs.Len())

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/tracked/favorites/twitch/alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketBroadcast(t *testing.T) {
	s, _, _, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	s.Hub().Broadcast(map[string]string{"type": "status"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status"}`, string(msg))

	conn.Close()
	assert.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubClose(t *testing.T) {
	s, _, _, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	s.Hub().Close()
	assert.Zero(t, s.Hub().Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}
