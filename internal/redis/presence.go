package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:touch:"

// PresenceThrottle limits last-seen writes to one per interval per user.
type PresenceThrottle struct {
	client   *redis.Client
	interval time.Duration
}

// NewPresenceThrottle creates a PresenceThrottle. A non-positive interval means one minute.
func NewPresenceThrottle(client *redis.Client, interval time.Duration) *PresenceThrottle {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PresenceThrottle{client: client, interval: interval}
}

// Allow reports whether userID's last-seen timestamp should be written now.
// The first call in each interval wins (SET NX with TTL).
func (p *PresenceThrottle) Allow(ctx context.Context, userID uint) (bool, error) {
	key := presenceKeyPrefix + strconv.FormatUint(uint64(userID), 10)
	ok, err := p.client.SetNX(ctx, key, 1, p.interval).Result()
	if err != nil {
		return false, fmt.Errorf("presence throttle for user %d: %w", userID, err)
	}
	return ok, nil
}
