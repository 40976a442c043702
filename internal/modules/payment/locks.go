// README: Redis-backed advisory lock and short-TTL result cache for intent initialization.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dishpatch/internal/types"
)

// Locks bounds the critical section around the single gateway call per order.
// The TTL caps staleness if a process dies while holding the lock.
type Locks struct {
	redis    *redis.Client
	lockTTL  time.Duration
	cacheTTL time.Duration
}

func NewLocks(redis *redis.Client, lockTTL, cacheTTL time.Duration) *Locks {
	return &Locks{redis: redis, lockTTL: lockTTL, cacheTTL: cacheTTL}
}

func lockKey(orderID types.ID) string {
	return fmt.Sprintf("payment:init:lock:%s", orderID)
}

func cacheKey(orderID types.ID) string {
	return fmt.Sprintf("payment:init:result:%s", orderID)
}

// Acquire takes the per-order init lock; false means another initialization
// is in flight.
func (l *Locks) Acquire(ctx context.Context, orderID types.ID) (bool, error) {
	return l.redis.SetNX(ctx, lockKey(orderID), "1", l.lockTTL).Result()
}

func (l *Locks) Release(ctx context.Context, orderID types.ID) {
	_ = l.redis.Del(ctx, lockKey(orderID)).Err()
}

// CacheResult stores a successful initialization so duplicate client retries
// within the window skip the gateway.
func (l *Locks) CacheResult(ctx context.Context, orderID types.ID, res IntentResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return l.redis.Set(ctx, cacheKey(orderID), raw, l.cacheTTL).Err()
}

func (l *Locks) CachedResult(ctx context.Context, orderID types.ID) (IntentResult, bool, error) {
	raw, err := l.redis.Get(ctx, cacheKey(orderID)).Bytes()
	if err == redis.Nil {
		return IntentResult{}, false, nil
	}
	if err != nil {
		return IntentResult{}, false, err
	}
	var res IntentResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return IntentResult{}, false, err
	}
	return res, true, nil
}

func (l *Locks) InvalidateCache(ctx context.Context, orderID types.ID) {
	_ = l.redis.Del(ctx, cacheKey(orderID)).Err()
}
