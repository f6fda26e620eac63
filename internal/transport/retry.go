package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/john/livewatch/internal/metrics"
)

// retryClient retries transient failures of an inner client.
type retryClient struct {
	inner      Client
	maxRetries int
	initial    time.Duration
	maxWait    time.Duration
}

// WithRetry wraps c so that network errors and 429/5xx responses are retried
// up to maxRetries times with exponential backoff.
func WithRetry(c Client, maxRetries int) Client {
	return &retryClient{
		inner:      c,
		maxRetries: maxRetries,
		initial:    300 * time.Millisecond,
		maxWait:    3 * time.Second,
	}
}

func (c *retryClient) Do(ctx context.Context, req Request) (*Response, error) {
	attempt := 0
	operation := func() (*Response, error) {
		if attempt > 0 {
			metrics.IncrTransportRetries()
		}
		attempt++

		resp, err := c.inner.Do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if IsRetryableStatus(resp.StatusCode) {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.MaxInterval = c.maxWait

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		// Hand the last retryable response back so callers see the real status.
		var se *StatusError
		if errors.As(err, &se) {
			slog.Debug("transport: giving up", slog.String("url", req.URL), slog.Int("status", se.StatusCode))
			return &Response{StatusCode: se.StatusCode, Body: []byte(se.Body)}, nil
		}
		return nil, err
	}
	return resp, nil
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
