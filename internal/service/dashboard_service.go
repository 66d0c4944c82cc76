package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// Pub/sub channel names.
const (
	// ChannelSnapshots carries domain.SnapshotEvent between replicas.
	ChannelSnapshots = "ch:snapshots"
	// ChannelDashboard carries state updates to local WebSocket clients.
	ChannelDashboard = "ch:dashboard"
)

// Operator notification event types.
const (
	EventFetchFailed    = "fetch_failed"
	EventFetchRecovered = "fetch_recovered"
)

// Publisher delivers a payload on a named channel. Both the WebSocket hub
// and the Redis signal bus satisfy it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// EventNotifier forwards operator alerts.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// DashboardDeps collects the dependencies of a DashboardService. Only Source
// and Logger are required; nil infrastructure is skipped.
type DashboardDeps struct {
	Source     domain.MarketDataSource
	Cache      domain.SnapshotCache
	History    domain.SnapshotStore
	Bus        domain.SignalBus
	Local      Publisher
	Notifier   EventNotifier
	InstanceID string
	Logger     *slog.Logger
}

// DashboardService owns the dashboard state and runs fetch cycles against the
// market data source.
type DashboardService struct {
	source     domain.MarketDataSource
	cache      domain.SnapshotCache
	history    domain.SnapshotStore
	bus        domain.SignalBus
	local      Publisher
	notifier   EventNotifier
	instanceID string
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	state   dashboard.State
	failing bool
}

// NewDashboardService creates a DashboardService in the idle state.
func NewDashboardService(deps DashboardDeps) *DashboardService {
	id := deps.InstanceID
	if id == "" {
		id = uuid.NewString()
	}
	return &DashboardService{
		source:     deps.Source,
		cache:      deps.Cache,
		history:    deps.History,
		bus:        deps.Bus,
		local:      deps.Local,
		notifier:   deps.Notifier,
		instanceID: id,
		logger:     deps.Logger.With(slog.String("component", "dashboard_service")),
		now:        func() time.Time { return time.Now().UTC() },
		state:      dashboard.NewState(),
	}
}

// InstanceID identifies this replica on the signal bus.
func (s *DashboardService) InstanceID() string { return s.instanceID }

// Refresh runs one fetch cycle. On success the asset list is replaced and
// re-filtered; on failure the previous data is kept and the error banner is
// raised. A result overtaken by a newer fetch is dropped and the returned
// error wraps domain.ErrStaleResponse (or the fetch error of the stale call).
func (s *DashboardService) Refresh(ctx context.Context, trigger dashboard.Trigger) (dashboard.Report, error) {
	s.mu.Lock()
	gen := s.state.Begin(trigger)
	loading := s.state.Report(false)
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "fetch started",
		slog.Uint64("generation", gen),
		slog.String("trigger", string(trigger)),
	)
	s.publishLocal(ctx, loading)

	start := time.Now()
	assets, fetchErr := s.source.GetMarkets(ctx)
	if fetchErr != nil {
		return s.fail(ctx, gen, fetchErr)
	}

	at := s.now()
	s.mu.Lock()
	applyErr := s.state.Apply(gen, assets, at)
	recovered := applyErr == nil && s.failing
	if applyErr == nil {
		s.failing = false
	}
	report := s.state.Report(false)
	s.mu.Unlock()

	if applyErr != nil {
		s.logger.InfoContext(ctx, "discarded stale fetch result",
			slog.Uint64("generation", gen),
			slog.Uint64("latest", report.Generation),
		)
		return report, fmt.Errorf("dashboard_service: refresh: %w", applyErr)
	}

	s.logger.InfoContext(ctx, "fetch applied",
		slog.Uint64("generation", gen),
		slog.Int("assets", len(assets)),
		slog.Duration("took", time.Since(start)),
	)

	snap := domain.Snapshot{CycleID: uuid.NewString(), FetchedAt: at, Assets: assets}
	s.share(ctx, snap)
	s.publishLocal(ctx, report)

	if recovered {
		s.notify(ctx, EventFetchRecovered, "Market data recovered",
			fmt.Sprintf("Fetch succeeded again with %d assets.", len(assets)))
	}
	return report, nil
}

func (s *DashboardService) fail(ctx context.Context, gen uint64, fetchErr error) (dashboard.Report, error) {
	s.mu.Lock()
	stateErr := s.state.Fail(gen)
	firstFailure := stateErr == nil && !s.failing
	if stateErr == nil {
		s.failing = true
	}
	report := s.state.Report(false)
	s.mu.Unlock()

	if stateErr != nil {
		s.logger.InfoContext(ctx, "ignored failure of superseded fetch",
			slog.Uint64("generation", gen),
			slog.String("error", fetchErr.Error()),
		)
		return report, fmt.Errorf("dashboard_service: refresh: %w", fetchErr)
	}

	s.logger.ErrorContext(ctx, "fetch failed",
		slog.Uint64("generation", gen),
		slog.String("kind", errorKind(fetchErr)),
		slog.String("error", fetchErr.Error()),
	)
	s.publishLocal(ctx, report)

	if firstFailure {
		s.notify(ctx, EventFetchFailed, "Market data fetch failed", fetchErr.Error())
	}
	return report, fmt.Errorf("dashboard_service: refresh: %w", fetchErr)
}

// Adopt installs a snapshot produced by another replica when it is newer
// than the local data.
func (s *DashboardService) Adopt(ctx context.Context, snap domain.Snapshot) bool {
	s.mu.Lock()
	ok := s.state.Adopt(snap)
	report := s.state.Report(false)
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.logger.DebugContext(ctx, "adopted snapshot",
		slog.String("cycle_id", snap.CycleID),
		slog.Int("assets", len(snap.Assets)),
	)
	s.publishLocal(ctx, report)
	return true
}

// WarmStart seeds the state from the snapshot cache, falling back to the
// latest persisted snapshot. Missing data is not an error.
func (s *DashboardService) WarmStart(ctx context.Context) error {
	if s.cache != nil {
		snap, err := s.cache.GetSnapshot(ctx)
		switch {
		case err == nil:
			s.Adopt(ctx, snap)
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "snapshot cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.history != nil {
		snap, err := s.history.Latest(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("dashboard_service: warm start: %w", err)
		}
		s.Adopt(ctx, snap)
	}
	return nil
}

// State returns a copy of the shared state.
func (s *DashboardService) State() dashboard.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// View returns the shared state filtered by a caller's search term.
func (s *DashboardService) View(term string) dashboard.State {
	return s.State().WithTerm(term)
}

// Filter returns the current assets matching term.
func (s *DashboardService) Filter(term string) []domain.Asset {
	s.mu.RLock()
	full := s.state.Full
	s.mu.RUnlock()
	return dashboard.Filter(full, term)
}

// Asset returns one asset from the current data set.
func (s *DashboardService) Asset(id string) (domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.state.Full {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Asset{}, fmt.Errorf("dashboard_service: asset %q: %w", id, domain.ErrNotFound)
}

// History returns persisted observations of one asset.
func (s *DashboardService) History(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.AssetPoint, error) {
	if s.history == nil {
		return nil, fmt.Errorf("dashboard_service: history: %w", domain.ErrUnavailable)
	}
	points, err := s.history.ListHistory(ctx, assetID, opts)
	if err != nil {
		return nil, fmt.Errorf("dashboard_service: history %q: %w", assetID, err)
	}
	return points, nil
}

// Report summarises the current state.
func (s *DashboardService) Report(withAssets bool) dashboard.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Report(withAssets)
}

// share writes a fresh snapshot to the cache, the history store and the
// signal bus. Failures are logged and never fail the fetch cycle.
func (s *DashboardService) share(ctx context.Context, snap domain.Snapshot) {
	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "snapshot cache write failed",
				slog.String("cycle_id", snap.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.history != nil {
		if err := s.history.InsertSnapshot(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "snapshot history insert failed",
				slog.String("cycle_id", snap.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(domain.SnapshotEvent{Instance: s.instanceID, Snapshot: snap})
		if err != nil {
			s.logger.WarnContext(ctx, "marshal snapshot event failed", slog.String("error", err.Error()))
			return
		}
		if err := s.bus.Publish(ctx, ChannelSnapshots, payload); err != nil {
			s.logger.WarnContext(ctx, "snapshot publish failed",
				slog.String("cycle_id", snap.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}
}

const stateMessageType = "dashboard_state"

type stateMessage struct {
	Type    string           `json:"type"`
	Payload dashboard.Report `json:"payload"`
}

// StateMessage encodes the current state as the message pushed to browsers.
func (s *DashboardService) StateMessage() ([]byte, error) {
	return json.Marshal(stateMessage{Type: stateMessageType, Payload: s.Report(false)})
}

func (s *DashboardService) publishLocal(ctx context.Context, report dashboard.Report) {
	if s.local == nil {
		return
	}
	payload, err := json.Marshal(stateMessage{Type: stateMessageType, Payload: report})
	if err != nil {
		return
	}
	if err := s.local.Publish(ctx, ChannelDashboard, payload); err != nil {
		s.logger.WarnContext(ctx, "local publish failed", slog.String("error", err.Error()))
	}
}

func (s *DashboardService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
