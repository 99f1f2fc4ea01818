// Package transport is the HTTP client shared by the token and mailbox
// collaborators. It owns the retry policy for transient upstream failures.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 2
	defaultBaseRetryDelay = 500 * time.Millisecond

	// maxRetryAfter caps a server-requested wait.
	maxRetryAfter = 30 * time.Second

	// maxBodySize caps how much of a response body is buffered.
	maxBodySize = 4 << 20
)

// Options configures a Client. Zero values select the defaults; a negative
// MaxRetries disables retries.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	BaseRetryDelay time.Duration

	// HTTPClient overrides the underlying client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs HTTP requests with exponential backoff on network errors,
// HTTP 429 and 5xx responses.
type Client struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// New creates a Client from the given options.
func New(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseRetryDelay,
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	} else if opts.MaxRetries == 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseRetryDelay
	}
	return c
}

// HTTPClient returns the underlying *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do sends the request produced by build, rebuilding it for every attempt.
// A response is returned once the server answers with a non-retryable
// status or retries run out; the error is non-nil only when no response
// could be obtained at all.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	var (
		lastResp *Response
		lastErr  error
	)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.baseDelay, attempt-1)
			if lastResp != nil {
				delay = retryAfterDelay(lastResp.Header.Get("Retry-After"), c.baseDelay, attempt-1)
			}
			slog.Debug("retrying upstream request",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"delay", delay,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.doOnce(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request aborted: %w", ctx.Err())
			}
			lastResp, lastErr = nil, err
			continue
		}

		if !retryable(resp.StatusCode) {
			return resp, nil
		}
		lastResp, lastErr = resp, nil
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) doOnce(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// retryable reports whether a status code is worth another attempt.
func retryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// retryAfterDelay honours a Retry-After header given in seconds, up to
// maxRetryAfter, falling back to exponential backoff.
func retryAfterDelay(retryAfter string, base time.Duration, attempt int) time.Duration {
	if retryAfter == "" {
		return backoffDelay(base, attempt)
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err == nil && seconds > 0 {
		if seconds > int(maxRetryAfter/time.Second) {
			return maxRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}

	return backoffDelay(base, attempt)
}

// backoffDelay returns base * 2^attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
