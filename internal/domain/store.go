package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SnapshotStore persists every successful fetch cycle for history queries.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, error)
	ListHistory(ctx context.Context, assetID string, opts ListOpts) ([]AssetPoint, error)
	// OldestBefore returns the earliest fetch time before the cutoff, or
	// ErrNotFound when no row qualifies.
	OldestBefore(ctx context.Context, before time.Time) (time.Time, error)
	ListBefore(ctx context.Context, before time.Time) ([]AssetPoint, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
