package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Throttle suppresses repeated viewport loads: the first Allow within a
// window wins, later ones are told to skip. SET NX carries the window as
// the key TTL, so the gate reopens by itself. In-flight work is never
// aborted; this only stops new starts.
type Throttle struct {
	c *redis.Client
}

func NewThrottle(addr string) *Throttle {
	return &Throttle{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (t *Throttle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := t.c.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis throttle")
	}
	return ok, nil
}
