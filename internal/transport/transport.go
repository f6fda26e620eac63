// Package transport performs the outbound HTTP calls of the platform adapters.
//
// Two clients are available: a standard net/http client, and a browser client
// that presents a Chrome TLS fingerprint so that endpoints sitting behind
// Cloudflare bot protection (Kick) accept the request. New picks one based on
// the configured mode.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Mode selects the client implementation.
type Mode string

const (
	// ModeAuto uses the browser client when it can be created on this host,
	// the standard client otherwise.
	ModeAuto     Mode = "auto"
	ModeStandard Mode = "standard"
	ModeBrowser  Mode = "browser"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// Request describes one outbound call. Body is sent as-is when non-nil.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client executes requests. Implementations return an error only when no
// response was received; non-2xx responses are returned as-is.
type Client interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Options configures New.
type Options struct {
	Mode       Mode
	Timeout    time.Duration
	MaxRetries int
}

// New builds the client for opts.Mode wrapped with retry when MaxRetries > 0.
func New(opts Options) (Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	var base Client
	switch opts.Mode {
	case ModeStandard:
		base = NewStandardClient(opts.Timeout)
	case ModeBrowser:
		bc, err := NewBrowserClient(opts.Timeout)
		if err != nil {
			return nil, err
		}
		base = bc
	case ModeAuto, "":
		bc, err := NewBrowserClient(opts.Timeout)
		if err != nil {
			slog.Warn("transport: browser client unavailable, using standard client", slog.Any("error", err))
			base = NewStandardClient(opts.Timeout)
		} else {
			base = bc
		}
	default:
		return nil, fmt.Errorf("unknown transport mode %q", opts.Mode)
	}

	if opts.MaxRetries > 0 {
		return WithRetry(base, opts.MaxRetries), nil
	}
	return base, nil
}

// StatusError is returned by the JSON helpers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// GetJSON issues a GET and decodes a 2xx JSON body into out.
func GetJSON(ctx context.Context, c Client, url string, headers map[string]string, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: url, Headers: headers})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// PostJSON marshals payload, POSTs it and decodes a 2xx JSON body into out.
func PostJSON(ctx context.Context, c Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	h := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		h[k] = v
	}
	if _, ok := h["Content-Type"]; !ok {
		h["Content-Type"] = "application/json"
	}
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, URL: url, Headers: h, Body: body})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func decode(resp *Response, out any) error {
	if !resp.OK() {
		return &StatusError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	if err := json.NewDecoder(bytes.NewReader(resp.Body)).Decode(out); err != nil {
		return fmt.Errorf("JSON decode failed: %w (first bytes: %q)", err, snippet(resp.Body))
	}
	return nil
}

func snippet(b []byte) string {
	return string(b[:min(100, len(b))])
}
