package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// SnapshotFollower applies snapshots published by other replicas so every
// replica serves the same data without each calling the provider.
type SnapshotFollower struct {
	svc        Refresher
	bus        domain.SignalBus
	channel    string
	instanceID string
	logger     *slog.Logger
}

// NewSnapshotFollower creates a follower listening on channel. Events carrying
// instanceID are this replica's own and are skipped.
func NewSnapshotFollower(svc Refresher, bus domain.SignalBus, channel, instanceID string, logger *slog.Logger) *SnapshotFollower {
	return &SnapshotFollower{
		svc:        svc,
		bus:        bus,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger.With(slog.String("component", "snapshot_follower")),
	}
}

// Run consumes snapshot events until ctx is cancelled or the subscription
// closes.
func (f *SnapshotFollower) Run(ctx context.Context) error {
	msgs, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return fmt.Errorf("pipeline: subscribe %s: %w", f.channel, err)
	}
	f.logger.Info("following snapshots", slog.String("channel", f.channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			f.handle(ctx, payload)
		}
	}
}

func (f *SnapshotFollower) handle(ctx context.Context, payload []byte) {
	var ev domain.SnapshotEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		f.logger.WarnContext(ctx, "malformed snapshot event", slog.String("error", err.Error()))
		return
	}
	if ev.Instance == f.instanceID {
		return
	}
	if f.svc.Adopt(ctx, ev.Snapshot) {
		f.logger.DebugContext(ctx, "adopted peer snapshot",
			slog.String("from", ev.Instance),
			slog.String("cycle_id", ev.Snapshot.CycleID),
		)
	}
}
