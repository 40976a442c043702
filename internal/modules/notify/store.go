// README: Notification store backed by Redis lists and GEO sets.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dishpatch/internal/types"
)

const (
	courierGeoKey    = "notify:couriers"
	pendingKeyPrefix = "notify:pending:%s:%s"
	// TTL for pending queues (undelivered notifications older than this are
	// not worth replaying).
	pendingTTL = 7 * 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func pendingKey(role types.Role, id types.ID) string {
	return fmt.Sprintf(pendingKeyPrefix, role, id)
}

// PushPending appends the event to the recipient's durable queue so offline
// actors see it when they reconnect.
func (s *Store) PushPending(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, pendingKey(e.Role, e.Recipient), raw)
	pipe.Expire(ctx, pendingKey(e.Role, e.Recipient), pendingTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// DrainPending returns and clears the recipient's queued events, newest first.
func (s *Store) DrainPending(ctx context.Context, role types.Role, id types.ID) ([]Event, error) {
	key := pendingKey(role, id)
	pipe := s.redis.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	raws := rangeCmd.Val()
	out := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// AddCourier registers a courier as available at the given position.
func (s *Store) AddCourier(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, courierGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *Store) RemoveCourier(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, courierGeoKey, string(id)).Err()
}

// NearbyCouriers returns available couriers within radiusKm, nearest first.
func (s *Store) NearbyCouriers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, courierGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
