package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)

// SnapshotCache keeps the last-known-good market snapshot as JSON so replicas
// and restarted processes can serve data without calling the provider.
//
// Key schema:
//
//	snapshot:markets - string, JSON encoded domain.Snapshot
type SnapshotCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. A non-positive ttl stores the
// snapshot without expiry.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl < 0 {
		ttl = 0
	}
	return &SnapshotCache{
		rdb: c.Underlying(),
		key: c.Key("snapshot:markets"),
		ttl: ttl,
	}
}

// SetSnapshot replaces the cached snapshot.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.CycleID, err)
	}
	if err := sc.rdb.Set(ctx, sc.key, data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.CycleID, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot, or domain.ErrNotFound when none is
// stored.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context) (domain.Snapshot, error) {
	data, err := sc.rdb.Get(ctx, sc.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
