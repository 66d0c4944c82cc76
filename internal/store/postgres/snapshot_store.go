package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// Numerics are exchanged as text so no precision is lost between NUMERIC and
// decimal.Decimal.
const snapshotSelectCols = `cycle_id, fetched_at, asset_id, symbol, name, image, market_cap_rank,
	current_price::text, market_cap::text, total_volume::text,
	change_1h::text, change_24h::text, change_7d::text`

const insertSnapshotRow = `
	INSERT INTO asset_snapshots (cycle_id, position, fetched_at, asset_id, symbol, name, image,
		market_cap_rank, current_price, market_cap, total_volume, change_1h, change_24h, change_7d)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric,
		$12::numeric, $13::numeric, $14::numeric)
	ON CONFLICT (cycle_id, position) DO NOTHING`

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// InsertSnapshot stores every asset of snap in one transaction. Re-inserting
// the same cycle is a no-op.
func (s *SnapshotStore) InsertSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if len(snap.Assets) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i, a := range snap.Assets {
		batch.Queue(insertSnapshotRow,
			snap.CycleID, i, snap.FetchedAt, a.ID, a.Symbol, a.Name, a.Image, a.MarketCapRank,
			a.CurrentPrice.String(), a.MarketCap.String(), a.TotalVolume.String(),
			nullDecimalText(a.Change1h), nullDecimalText(a.Change24h), nullDecimalText(a.Change7d),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.CycleID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit snapshot %s: %w", snap.CycleID, err)
	}
	return nil
}

// Latest returns the most recently stored snapshot in its original asset
// order, or domain.ErrNotFound when the table is empty.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM asset_snapshots
		WHERE cycle_id = (SELECT cycle_id FROM asset_snapshots ORDER BY fetched_at DESC LIMIT 1)
		ORDER BY position`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: latest snapshot: %w", err)
	}
	defer rows.Close()

	points, err := scanPointRows(rows)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: scan latest snapshot: %w", err)
	}
	if len(points) == 0 {
		return domain.Snapshot{}, domain.ErrNotFound
	}

	snap := domain.Snapshot{
		CycleID:   points[0].CycleID,
		FetchedAt: points[0].FetchedAt,
		Assets:    make([]domain.Asset, 0, len(points)),
	}
	for _, p := range points {
		snap.Assets = append(snap.Assets, p.Asset)
	}
	return snap, nil
}

// ListHistory returns observations of one asset, newest first, with optional
// time bounds and pagination.
func (s *SnapshotStore) ListHistory(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.AssetPoint, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM asset_snapshots WHERE asset_id = $1`
	args := []any{assetID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND fetched_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND fetched_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY fetched_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history %s: %w", assetID, err)
	}
	defer rows.Close()

	points, err := scanPointRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history %s: %w", assetID, err)
	}
	return points, nil
}

// OldestBefore returns the earliest fetch time before the cutoff.
func (s *SnapshotStore) OldestBefore(ctx context.Context, before time.Time) (time.Time, error) {
	var oldest *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT min(fetched_at) FROM asset_snapshots WHERE fetched_at < $1`, before,
	).Scan(&oldest)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: oldest snapshot before: %w", err)
	}
	if oldest == nil {
		return time.Time{}, fmt.Errorf("postgres: oldest snapshot before: %w", domain.ErrNotFound)
	}
	return oldest.UTC(), nil
}

// ListBefore returns every observation fetched before the cutoff, oldest
// first.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AssetPoint, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM asset_snapshots
		WHERE fetched_at < $1 ORDER BY fetched_at, position`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before: %w", err)
	}
	defer rows.Close()

	points, err := scanPointRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots before: %w", err)
	}
	return points, nil
}

// DeleteBefore removes observations fetched before the cutoff and returns
// the number of rows deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM asset_snapshots WHERE fetched_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// pointRow holds the raw column values of one asset_snapshots row.
type pointRow struct {
	cycleID, assetID, symbol, name, image string
	fetchedAt                             time.Time
	rank                                  *int32
	price, marketCap, volume              string
	change1h, change24h, change7d         *string
}

func (r pointRow) toPoint() (domain.AssetPoint, error) {
	p := domain.AssetPoint{
		CycleID:   r.cycleID,
		FetchedAt: r.fetchedAt,
		Asset: domain.Asset{
			ID:     r.assetID,
			Symbol: r.symbol,
			Name:   r.name,
			Image:  r.image,
		},
	}
	if r.rank != nil {
		rank := int(*r.rank)
		p.MarketCapRank = &rank
	}

	var err error
	if p.CurrentPrice, err = decimal.NewFromString(r.price); err != nil {
		return p, fmt.Errorf("parse current_price: %w", err)
	}
	if p.MarketCap, err = decimal.NewFromString(r.marketCap); err != nil {
		return p, fmt.Errorf("parse market_cap: %w", err)
	}
	if p.TotalVolume, err = decimal.NewFromString(r.volume); err != nil {
		return p, fmt.Errorf("parse total_volume: %w", err)
	}
	if p.Change1h, err = parseNullDecimal(r.change1h); err != nil {
		return p, fmt.Errorf("parse change_1h: %w", err)
	}
	if p.Change24h, err = parseNullDecimal(r.change24h); err != nil {
		return p, fmt.Errorf("parse change_24h: %w", err)
	}
	if p.Change7d, err = parseNullDecimal(r.change7d); err != nil {
		return p, fmt.Errorf("parse change_7d: %w", err)
	}
	return p, nil
}

func scanPointRows(rows pgx.Rows) ([]domain.AssetPoint, error) {
	var points []domain.AssetPoint
	for rows.Next() {
		var r pointRow
		if err := rows.Scan(
			&r.cycleID, &r.fetchedAt, &r.assetID, &r.symbol, &r.name, &r.image, &r.rank,
			&r.price, &r.marketCap, &r.volume,
			&r.change1h, &r.change24h, &r.change7d,
		); err != nil {
			return nil, err
		}
		p, err := r.toPoint()
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func nullDecimalText(nd decimal.NullDecimal) *string {
	if !nd.Valid {
		return nil
	}
	s := nd.Decimal.String()
	return &s
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
