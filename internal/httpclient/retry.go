package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls when to retry after a response. Used by DoWithRetry.
type RetryPolicy struct {
	// Retry429: on 429 Too Many Requests, wait Retry-After (capped at Max429Wait) and retry once.
	Retry429   bool
	Max429Wait time.Duration
	// Retry5xx: on 5xx, wait Backoff5xx and retry once.
	Retry5xx   bool
	Backoff5xx time.Duration
}

// DefaultRetryPolicy retries 429 (cap 60s) and 5xx (1s backoff).
var DefaultRetryPolicy = RetryPolicy{
	Retry429:   true,
	Max429Wait: 60 * time.Second,
	Retry5xx:   true,
	Backoff5xx: 1 * time.Second,
}

// DoWithRetry performs req and on 429/5xx (when policy allows) waits and
// retries once. 4xx (except 429) are never retried. The request is also gated
// through the per-host limiter. Caller must close resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	if err := GlobalHostLimiter.Wait(ctx, req.URL.String()); err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	code := resp.StatusCode
	if code == http.StatusOK {
		return resp, nil
	}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return resp, nil
	}
	if code == http.StatusTooManyRequests && policy.Retry429 {
		drain(resp)
		wait := parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		return redo(ctx, client, req)
	}
	if code >= 500 && policy.Retry5xx {
		drain(resp)
		if err := sleep(ctx, policy.Backoff5xx); err != nil {
			return nil, err
		}
		return redo(ctx, client, req)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// redo re-issues req as a fresh request (the original body, if any, was
// already consumed).
func redo(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	req2, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		req2.Header[k] = v
	}
	return client.Do(req2)
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1 * time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > max {
			return max
		}
		return d
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 1 * time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if until > max {
		return max
	}
	return until
}
