package lazy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHandleRetriesAfterFailure(t *testing.T) {
	var calls int
	h := New(func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("backend down")
		}
		return "ready", nil
	})

	if _, err := h.Get(context.Background()); err == nil {
		t.Fatalf("first Get() expected error")
	}
	if h.Ready() {
		t.Fatalf("failed init should not be cached")
	}
	got, err := h.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if got != "ready" || calls != 2 {
		t.Fatalf("Get() = %q after %d calls, want ready after 2", got, calls)
	}
	if _, err := h.Get(context.Background()); err != nil || calls != 2 {
		t.Fatalf("cached Get() err=%v calls=%d, want nil/2", err, calls)
	}
}

func TestHandleSerializesConcurrentInit(t *testing.T) {
	var calls atomic.Int32
	h := New(func(context.Context) (*int, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		v := 42
		return &v, nil
	})

	var wg sync.WaitGroup
	results := make([]*int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := h.Get(context.Background())
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("init calls = %d, want 1", calls.Load())
	}
	for i, v := range results {
		if v != results[0] {
			t.Fatalf("result %d = %p, want shared %p", i, v, results[0])
		}
	}
}

func TestHandleHonorsCanceledContext(t *testing.T) {
	var calls int
	h := New(func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Get() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("init calls = %d, want 0", calls)
	}
}

func TestHandleReset(t *testing.T) {
	var calls int
	h := New(func(context.Context) (int, error) {
		calls++
		return calls, nil
	})
	_, _ = h.Get(context.Background())
	h.Reset()
	got, _ := h.Get(context.Background())
	if got != 2 {
		t.Fatalf("Get() after Reset = %d, want 2", got)
	}
}
