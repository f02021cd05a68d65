package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts hits per fixed window. Each window gets its own counter
// key, so a counter whose EXPIRE was lost still stops applying once the window ends.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one hit for key and reports whether it is within limit for the
// current window. On an EXPIRE failure the decision is still returned with the error.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("rate limit %q: limit and window must be positive", key)
	}
	bucket := windowKey(key, r.now(), window)
	count, err := r.client.Incr(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", bucket, err)
	}
	allowed := count <= int64(limit)
	if count == 1 {
		if err := r.client.Expire(ctx, bucket, window); err != nil {
			return allowed, fmt.Errorf("expire %s: %w", bucket, err)
		}
	}
	return allowed, nil
}

func windowKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%d", key, now.Truncate(window).Unix())
}

// UserActionKey scopes a limit to one user and one API action.
func UserActionKey(userID, action string) string {
	return fmt.Sprintf("rate_limit:%s:%s", userID, action)
}
