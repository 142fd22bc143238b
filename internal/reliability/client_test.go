package reliability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) (*Client, func(ctx context.Context) (*http.Request, error)) {
	c := NewClient("test", time.Second, nil)
	c.BackoffBase = time.Millisecond
	c.BackoffCap = 2 * time.Millisecond
	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	return c, build
}

func TestClientRetriesOnceOnRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, build := newTestClient(srv.URL)
	body, err := c.Do(context.Background(), build)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(body) != "ok" || calls.Load() != 2 {
		t.Fatalf("Do() = %q after %d calls, want ok after 2", body, calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, build := newTestClient(srv.URL)
	_, err := c.Do(context.Background(), build)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("Do() error = %v, want 401 StatusError", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestClientOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, build := newTestClient(srv.URL)
	c.Retries = 0
	for i := 0; i < 5; i++ {
		_, _ = c.Do(context.Background(), build)
	}
	_, err := c.Do(context.Background(), build)
	if !IsUnavailable(err) {
		t.Fatalf("Do() error = %v, want breaker open", err)
	}
	if calls.Load() != 5 {
		t.Fatalf("upstream calls = %d, want 5", calls.Load())
	}
}
