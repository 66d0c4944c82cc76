package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Asset is one cryptocurrency's market snapshot as returned by the market data
// provider. Values are immutable once fetched; a new fetch replaces the whole
// list rather than patching individual assets.
type Asset struct {
	ID            string              `json:"id"`
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	Image         string              `json:"image"`
	MarketCapRank *int                `json:"market_cap_rank"`
	CurrentPrice  decimal.Decimal     `json:"current_price"`
	MarketCap     decimal.Decimal     `json:"market_cap"`
	TotalVolume   decimal.Decimal     `json:"total_volume"`
	Change1h      decimal.NullDecimal `json:"price_change_percentage_1h"`
	Change24h     decimal.NullDecimal `json:"price_change_percentage_24h"`
	Change7d      decimal.NullDecimal `json:"price_change_percentage_7d"`
}

// Snapshot is the complete, ordered result of one successful fetch cycle.
type Snapshot struct {
	CycleID   string    `json:"cycle_id"`
	FetchedAt time.Time `json:"fetched_at"`
	Assets    []Asset   `json:"assets"`
}

// AssetPoint is a single persisted observation of an asset.
type AssetPoint struct {
	Asset
	CycleID   string    `json:"cycle_id"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SnapshotEvent is published on the signal bus after a replica applies a
// fresh snapshot so that other replicas can adopt it without refetching.
type SnapshotEvent struct {
	Instance string   `json:"instance"`
	Snapshot Snapshot `json:"snapshot"`
}

// MarketDataSource fetches the current listing for the tracked assets.
type MarketDataSource interface {
	GetMarkets(ctx context.Context) ([]Asset, error)
}
