package cache

import (
	"context"
	"time"
)

// BytesCache is the minimal cache surface the services need. Redis in
// production, map-backed fakes in tests.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Throttle coalesces repeated triggers: Allow reports whether an
// operation keyed by key may run now, given that one ran within the last
// window. It never cancels anything in flight, it only suppresses new
// starts.
type Throttle interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}
