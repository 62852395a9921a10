package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupCache rejects repeat delivery of the same provider-supplied
// event id within a configurable window, using go-redis/v9's SetNX
// directly for the idempotency guard.
type DedupCache struct {
	redis  *redis.Client
	window time.Duration
}

// NewDedupCache creates a dedup cache with window as the retention of
// each seen-id marker.
func NewDedupCache(client *redis.Client, window time.Duration) *DedupCache {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &DedupCache{redis: client, window: window}
}

// Seen marks eventID as processed for workflowID, returning true if it
// was already seen (a duplicate, to be acked without further action per
// §4.3's Duplicate failure taxonomy entry).
func (d *DedupCache) Seen(ctx context.Context, workflowID, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	key := fmt.Sprintf("dispatcher:dedup:%s:%s", workflowID, eventID)
	ok, err := d.redis.SetNX(ctx, key, "1", d.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return !ok, nil
}
