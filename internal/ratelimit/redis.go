package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Redis is a fixed window limiter shared by every gateway replica. Each window
// has its own counter key that expires shortly after the window closes.
type Redis struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

var _ Limiter = (*Redis)(nil)

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, prefix: "ratelimit", now: time.Now}
}

func (r *Redis) windowKey(key string, start time.Time) string {
	return fmt.Sprintf("%s:%s:%d", r.prefix, key, start.Unix())
}

func (r *Redis) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	now := r.now()
	start := now.Truncate(Window)
	k := r.windowKey(key, start)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, 2*Window)
		return nil
	})
	if err != nil {
		return Decision{}, errors.Wrap(err, "redis rate limit")
	}

	count := int(incr.Val())
	d := Decision{Limit: limit, ResetAt: start.Add(Window)}
	if count > limit {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = limit - count
	return d, nil
}
