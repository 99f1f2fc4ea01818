package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server, maxRetries int) *Client {
	return New(Options{
		HTTPClient:     srv.Client(),
		MaxRetries:     maxRetries,
		BaseRetryDelay: time.Millisecond,
	})
}

func getBuilder(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv, 2).Do(context.Background(), getBuilder(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK() {
		t.Errorf("OK: got false for status %d", resp.StatusCode)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body: got %q, want %q", resp.Body, "hello")
	}
}

func TestDo_RetryOn5xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv, 3).Do(context.Background(), getBuilder(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if calls.Load() != 3 {
		t.Errorf("call count: got %d, want 3 (2 failures + 1 success)", calls.Load())
	}
}

func TestDo_ReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv, 2).Do(context.Background(), getBuilder(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode: got %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	if calls.Load() != 3 {
		t.Errorf("call count: got %d, want 3", calls.Load())
	}
}

func TestDo_NoRetryOn4xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv, 3).Do(context.Background(), getBuilder(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OK() {
		t.Error("OK: got true for 401")
	}
	if calls.Load() != 1 {
		t.Errorf("call count: got %d, want 1", calls.Load())
	}
}

func TestDo_NegativeMaxRetriesDisablesRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv, -1).Do(context.Background(), getBuilder(srv.URL)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("call count: got %d, want 1", calls.Load())
	}
}

func TestDo_NetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	client := newTestClient(srv, 1)
	srv.Close()

	resp, err := client.Do(context.Background(), getBuilder(url))
	if err == nil {
		t.Fatalf("expected error for closed server, got response %+v", resp)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestClient(srv, 3).Do(ctx, getBuilder(srv.URL)); err == nil {
		t.Error("expected error for cancelled context, got nil")
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		statusCode int
		want       bool
	}{
		{statusCode: 200, want: false},
		{statusCode: 400, want: false},
		{statusCode: 401, want: false},
		{statusCode: 403, want: false},
		{statusCode: 429, want: true},
		{statusCode: 500, want: true},
		{statusCode: 502, want: true},
		{statusCode: 503, want: true},
	}

	for _, tt := range tests {
		if got := retryable(tt.statusCode); got != tt.want {
			t.Errorf("retryable(%d): got %v, want %v", tt.statusCode, got, tt.want)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 1 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
	}

	for _, tt := range tests {
		got := backoffDelay(time.Second, tt.attempt)
		if got != tt.want {
			t.Errorf("backoffDelay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryAfterDelay(t *testing.T) {
	t.Parallel()

	if got := retryAfterDelay("3", time.Second, 0); got != 3*time.Second {
		t.Errorf("numeric header: got %v, want %v", got, 3*time.Second)
	}
	if got := retryAfterDelay("", time.Second, 1); got != 2*time.Second {
		t.Errorf("missing header: got %v, want %v", got, 2*time.Second)
	}
	if got := retryAfterDelay("soon", time.Second, 0); got != time.Second {
		t.Errorf("unparseable header: got %v, want %v", got, time.Second)
	}
	if got := retryAfterDelay("3600", time.Second, 0); got != maxRetryAfter {
		t.Errorf("oversized header: got %v, want %v", got, maxRetryAfter)
	}
	if got := retryAfterDelay("99999999999999", time.Second, 0); got != maxRetryAfter {
		t.Errorf("overflowing header: got %v, want %v", got, maxRetryAfter)
	}
	if got := retryAfterDelay("30", time.Second, 0); got != 30*time.Second {
		t.Errorf("header at cap: got %v, want %v", got, 30*time.Second)
	}
}
