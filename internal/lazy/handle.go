// Package lazy provides a process-owned handle that initializes its value on first use.
package lazy

import (
	"context"
	"sync"
	"sync/atomic"
)

// InitFunc builds the handle's value.
type InitFunc[T any] func(ctx context.Context) (T, error)

// Handle initializes a value on first Get and caches it. A failed
// initialization is not cached; the next Get retries from scratch.
// Initialization is serialized, steady-state reads take no lock.
type Handle[T any] struct {
	init  InitFunc[T]
	mu    sync.Mutex
	value atomic.Pointer[T]
}

func New[T any](init InitFunc[T]) *Handle[T] {
	return &Handle[T]{init: init}
}

// Get returns the initialized value, initializing it if needed.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	if v := h.value.Load(); v != nil {
		return *v, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if v := h.value.Load(); v != nil {
		return *v, nil
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	v, err := h.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	h.value.Store(&v)
	return v, nil
}

// Ready reports whether the value has been initialized.
func (h *Handle[T]) Ready() bool {
	return h.value.Load() != nil
}

// Reset drops the cached value so the next Get initializes again.
func (h *Handle[T]) Reset() {
	h.mu.Lock()
	h.value.Store(nil)
	h.mu.Unlock()
}
