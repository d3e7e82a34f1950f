package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InterestClaimKey builds redis keys for interest-run critical sections.
func InterestClaimKey(tenantID, accountID int64, periodEnd time.Time) string {
	return fmt.Sprintf("interest:%d:%d:%s:claim", tenantID, accountID, periodEnd.Format("2006-01-02"))
}

// RunClaims hands out short-lived exclusive claims backed by redis SET NX.
// Claims are advisory: losing the race means another worker owns the unit
// of work, so the caller should skip it rather than fail.
type RunClaims struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunClaims constructs a claim store with the given claim lifetime.
func NewRunClaims(client *redis.Client, ttl time.Duration) *RunClaims {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RunClaims{client: client, ttl: ttl}
}

// Acquire attempts to take the claim. It returns false without error when
// the claim is already held.
func (c *RunClaims) Acquire(ctx context.Context, key string) (bool, error) {
	if c == nil || c.client == nil {
		// No redis configured: single-process deployments rely on the
		// database idempotency guard alone.
		return true, nil
	}
	ok, err := c.client.SetNX(ctx, key, "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("shared: acquire claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the claim early. Expiry handles the crash case.
func (c *RunClaims) Release(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, key).Err()
}
