package domain

import (
	"context"
	"time"
)

// SnapshotCache holds the last-known-good snapshot shared by all replicas.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context) (Snapshot, error)
}

// SessionCache maps browser session IDs to their current search term.
type SessionCache interface {
	Term(sessionID string) (string, error)
	SetTerm(sessionID, term string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub between replicas.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
