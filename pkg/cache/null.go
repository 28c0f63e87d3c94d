package cache

import (
	"context"
	"time"
)

// NullBackend is a Backend that stores nothing and always misses. It keeps
// every call site free of presence checks when caching is disabled.
type NullBackend struct{}

// NewNullBackend creates a NullBackend.
func NewNullBackend() *NullBackend {
	return &NullBackend{}
}

// Get always returns ErrMiss.
func (*NullBackend) Get(context.Context, string) ([]byte, error) {
	return nil, ErrMiss
}

// Set discards the value.
func (*NullBackend) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// DeletePrefix is a no-op.
func (*NullBackend) DeletePrefix(context.Context, string) error {
	return nil
}
