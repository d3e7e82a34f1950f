package statement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes computed statements in Redis. Keys carry a per-account
// generation counter; posting to an account bumps its generation, which
// orphans every cached statement for that account without scanning keys.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func genKey(tenantID, accountID int64) string {
	return fmt.Sprintf("stmt:%d:%d:gen", tenantID, accountID)
}

func (c *Cache) generation(ctx context.Context, tenantID, accountID int64) int64 {
	gen, err := c.client.Get(ctx, genKey(tenantID, accountID)).Int64()
	if err != nil {
		return 0
	}
	return gen
}

func (c *Cache) key(ctx context.Context, q Query) string {
	gen := c.generation(ctx, q.TenantID, q.AccountID)
	return fmt.Sprintf("stmt:%d:%d:%d:%s:%s:%d",
		q.TenantID, q.AccountID, gen, q.From.Format("2006-01-02"), q.To.Format("2006-01-02"), q.Limit)
}

// Get returns a cached statement when present.
func (c *Cache) Get(ctx context.Context, q Query) (Statement, bool) {
	if c == nil || c.client == nil {
		return Statement{}, false
	}
	raw, err := c.client.Get(ctx, c.key(ctx, q)).Bytes()
	if err != nil {
		return Statement{}, false
	}
	var out Statement
	if err := json.Unmarshal(raw, &out); err != nil {
		return Statement{}, false
	}
	return out, true
}

// Put stores a computed statement. Failures are ignored; the cache is an
// optimization, never a source of truth.
func (c *Cache) Put(ctx context.Context, q Query, st Statement) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(ctx, q), raw, c.ttl).Err()
}

// InvalidateAccounts bumps the generation for every touched account. It
// satisfies the journal engine's CacheInvalidator port.
func (c *Cache) InvalidateAccounts(ctx context.Context, tenantID int64, accountIDs []int64) {
	if c == nil || c.client == nil {
		return
	}
	for _, id := range accountIDs {
		_ = c.client.Incr(ctx, genKey(tenantID, id)).Err()
	}
}
