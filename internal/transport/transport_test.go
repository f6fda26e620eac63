package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"slug":"xqc"}`))
	}))
	defer srv.Close()

	var out struct {
		Slug string `json:"slug"`
	}
	err := GetJSON(context.Background(), NewStandardClient(time.Second), srv.URL, map[string]string{"Accept": "application/json"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "xqc", out.Slug)
}

func TestPostJSONSetsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("Client-Id"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":"{ x }"}`, string(body))
		w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	var out struct {
		Data struct {
			OK bool `json:"ok"`
		} `json:"data"`
	}
	err := PostJSON(context.Background(), NewStandardClient(time.Second), srv.URL,
		map[string]string{"Client-Id": "abc"}, map[string]string{"query": "{ x }"}, &out)
	require.NoError(t, err)
	assert.True(t, out.Data.OK)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not here"))
	}))
	defer srv.Close()

	var out map[string]any
	err := GetJSON(context.Background(), NewStandardClient(time.Second), srv.URL, nil, &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Error(), "not here")
}

func TestDecodeShapeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>challenge</html>"))
	}))
	defer srv.Close()

	var out map[string]any
	err := GetJSON(context.Background(), NewStandardClient(time.Second), srv.URL, nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON decode failed")
}

func TestRetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := WithRetry(NewStandardClient(time.Second), 3).(*retryClient)
	c.initial = time.Millisecond
	c.maxWait = 5 * time.Millisecond

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryExhaustedReturnsLastStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := WithRetry(NewStandardClient(time.Second), 2).(*retryClient)
	c.initial = time.Millisecond
	c.maxWait = 5 * time.Millisecond

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetrySkipsNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	resp, err := WithRetry(NewStandardClient(time.Second), 3).Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 400, 403, 404} {
		assert.False(t, IsRetryableStatus(code), "code %d", code)
	}
}

func TestNewModes(t *testing.T) {
	c, err := New(Options{Mode: ModeStandard})
	require.NoError(t, err)
	assert.IsType(t, &StandardClient{}, c)

	c, err = New(Options{Mode: ModeStandard, MaxRetries: 2})
	require.NoError(t, err)
	assert.IsType(t, &retryClient{}, c)

	_, err = New(Options{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewBrowserClient(t *testing.T) {
	bc, err := NewBrowserClient(5 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, bc)
	assert.NotNil(t, bc.client)
}
