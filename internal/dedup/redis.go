// Package dedup caches delivery-ID to event-ID mappings in Redis so
// webhook intake can answer repeat deliveries without touching the
// database. The database unique index stays the source of truth; this
// cache is only a fast path and every operation degrades to a miss.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	deliveryKeyPrefix  = "delivery:"
	defaultDeliveryTTL = 24 * time.Hour
)

// DeliveryCache remembers which deliveries were already recorded.
type DeliveryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeliveryCache creates a Redis-backed delivery cache.
func NewDeliveryCache(client *redis.Client, ttl time.Duration) *DeliveryCache {
	if ttl <= 0 {
		ttl = defaultDeliveryTTL
	}
	return &DeliveryCache{
		client: client,
		ttl:    ttl,
	}
}

// Remember stores the event ID recorded for a delivery.
func (c *DeliveryCache) Remember(ctx context.Context, deliveryID, eventID string) error {
	key := deliveryKeyPrefix + deliveryID
	if err := c.client.Set(ctx, key, eventID, c.ttl).Err(); err != nil {
		return fmt.Errorf("set key: %w", err)
	}
	return nil
}

// Lookup returns the event ID for a previously seen delivery, or ok=false
// on a miss.
func (c *DeliveryCache) Lookup(ctx context.Context, deliveryID string) (string, bool, error) {
	key := deliveryKeyPrefix + deliveryID
	eventID, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get key: %w", err)
	}
	return eventID, true, nil
}
