package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// PollLockKey is the distributed lock that elects the fetching replica for
// one timer tick.
const PollLockKey = "poll:markets"

// Refresher runs fetch cycles and installs snapshots from elsewhere.
type Refresher interface {
	Refresh(ctx context.Context, trigger dashboard.Trigger) (dashboard.Report, error)
	Adopt(ctx context.Context, snap domain.Snapshot) bool
}

// PollerConfig configures a MarketPoller.
type PollerConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	// LockTTL bounds how long a replica holds the poll lock after winning a
	// tick. It must be shorter than Interval.
	LockTTL time.Duration
}

// MarketPoller drives the refresh cycle: one fetch at startup, one per timer
// tick, plus manual fetches requested through Trigger. Ticks never wait for
// an earlier fetch to finish; the dashboard state discards results that have
// been overtaken.
//
// With a LockManager configured only the replica holding PollLockKey fetches
// on a tick. The others adopt the shared snapshot from the cache.
type MarketPoller struct {
	svc    Refresher
	locks  domain.LockManager
	cache  domain.SnapshotCache
	cfg    PollerConfig
	manual chan struct{}
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewMarketPoller creates a MarketPoller. locks and cache may be nil in
// standalone mode.
func NewMarketPoller(svc Refresher, locks domain.LockManager, cache domain.SnapshotCache, cfg PollerConfig, logger *slog.Logger) *MarketPoller {
	return &MarketPoller{
		svc:    svc,
		locks:  locks,
		cache:  cache,
		cfg:    cfg,
		manual: make(chan struct{}, 1),
		logger: logger.With(slog.String("component", "market_poller")),
	}
}

// Trigger requests a manual fetch without waiting for it. Requests made
// while one is already queued are coalesced.
func (p *MarketPoller) Trigger() {
	select {
	case p.manual <- struct{}{}:
	default:
	}
}

// RunLoop fetches immediately and then on every tick until ctx is cancelled.
// In-flight fetches are waited for before it returns.
func (p *MarketPoller) RunLoop(ctx context.Context) error {
	defer p.wg.Wait()

	p.spawn(ctx, dashboard.TriggerStartup)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("market poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.spawn(ctx, dashboard.TriggerTimer)
		case <-p.manual:
			p.spawn(ctx, dashboard.TriggerManual)
		}
	}
}

func (p *MarketPoller) spawn(ctx context.Context, trigger dashboard.Trigger) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.poll(ctx, trigger)
	}()
}

// poll runs one cycle. Manual requests always fetch; startup and timer
// cycles go through the poll lock when one is configured.
func (p *MarketPoller) poll(ctx context.Context, trigger dashboard.Trigger) {
	var unlock func()
	if p.locks != nil && trigger != dashboard.TriggerManual {
		var err error
		unlock, err = p.locks.Acquire(ctx, PollLockKey, p.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			p.adoptShared(ctx)
			return
		case err != nil:
			// lock backend down; fetch anyway rather than going stale
			p.logger.WarnContext(ctx, "poll lock unavailable", slog.String("error", err.Error()))
		}
	}

	fetchCtx := ctx
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}

	_, err := p.svc.Refresh(fetchCtx, trigger)
	if err == nil || errors.Is(err, domain.ErrStaleResponse) {
		// The lock is left to expire so replicas ticking a moment later
		// still see it held.
		return
	}
	if unlock != nil {
		unlock()
	}
	p.logger.DebugContext(ctx, "poll cycle failed",
		slog.String("trigger", string(trigger)),
		slog.String("error", err.Error()),
	)
}

func (p *MarketPoller) adoptShared(ctx context.Context) {
	if p.cache == nil {
		return
	}
	snap, err := p.cache.GetSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.WarnContext(ctx, "shared snapshot read failed", slog.String("error", err.Error()))
		}
		return
	}
	if p.svc.Adopt(ctx, snap) {
		p.logger.DebugContext(ctx, "adopted shared snapshot", slog.String("cycle_id", snap.CycleID))
	}
}
