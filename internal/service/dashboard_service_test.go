package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/domain"
	"github.com/alanyoungcy/cryptodash/internal/platform/coingecko"
)

type fetchFunc func(ctx context.Context) ([]domain.Asset, error)

func (f fetchFunc) GetMarkets(ctx context.Context) ([]domain.Asset, error) { return f(ctx) }

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type memSnapshotCache struct {
	snap   domain.Snapshot
	ok     bool
	setErr error
}

func (c *memSnapshotCache) SetSnapshot(_ context.Context, snap domain.Snapshot) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.snap, c.ok = snap, true
	return nil
}

func (c *memSnapshotCache) GetSnapshot(context.Context) (domain.Snapshot, error) {
	if !c.ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return c.snap, nil
}

type memHistory struct {
	inserted []domain.Snapshot
	latest   *domain.Snapshot
}

func (h *memHistory) InsertSnapshot(_ context.Context, snap domain.Snapshot) error {
	h.inserted = append(h.inserted, snap)
	return nil
}

func (h *memHistory) Latest(context.Context) (domain.Snapshot, error) {
	if h.latest == nil {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return *h.latest, nil
}

func (h *memHistory) ListHistory(_ context.Context, assetID string, _ domain.ListOpts) ([]domain.AssetPoint, error) {
	var out []domain.AssetPoint
	for _, s := range h.inserted {
		for _, a := range s.Assets {
			if a.ID == assetID {
				out = append(out, domain.AssetPoint{Asset: a, CycleID: s.CycleID, FetchedAt: s.FetchedAt})
			}
		}
	}
	return out, nil
}

func (h *memHistory) OldestBefore(context.Context, time.Time) (time.Time, error) {
	return time.Time{}, domain.ErrNotFound
}

func (h *memHistory) ListBefore(context.Context, time.Time) ([]domain.AssetPoint, error) {
	return nil, nil
}

func (h *memHistory) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func coins(ids ...string) []domain.Asset {
	out := make([]domain.Asset, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Asset{ID: id, Symbol: id[:3], Name: id})
	}
	return out
}

func staticSource(assets []domain.Asset) fetchFunc {
	return func(context.Context) ([]domain.Asset, error) { return assets, nil }
}

func TestRefreshSuccess(t *testing.T) {
	cache := &memSnapshotCache{}
	history := &memHistory{}
	bus := &recordingPublisher{}
	local := &recordingPublisher{}

	svc := NewDashboardService(DashboardDeps{
		Source:     staticSource(coins("bitcoin", "ethereum")),
		Cache:      cache,
		History:    history,
		Bus:        bus,
		Local:      local,
		InstanceID: "replica-a",
		Logger:     discardLogger(),
	})

	report, err := svc.Refresh(context.Background(), dashboard.TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, dashboard.StatusLoaded, report.Status)
	assert.Equal(t, 2, report.AssetCount)

	require.True(t, cache.ok)
	assert.Len(t, cache.snap.Assets, 2)
	assert.NotEmpty(t, cache.snap.CycleID)
	require.Len(t, history.inserted, 1)

	require.Len(t, bus.payloads, 1)
	assert.Equal(t, ChannelSnapshots, bus.channels[0])
	var ev domain.SnapshotEvent
	require.NoError(t, json.Unmarshal(bus.payloads[0], &ev))
	assert.Equal(t, "replica-a", ev.Instance)
	assert.Equal(t, cache.snap.CycleID, ev.Snapshot.CycleID)

	// loading and loaded pushes
	require.Len(t, local.payloads, 2)
	var msg stateMessage
	require.NoError(t, json.Unmarshal(local.payloads[1], &msg))
	assert.Equal(t, "dashboard_state", msg.Type)
	assert.Equal(t, dashboard.StatusLoaded, msg.Payload.Status)
}

func TestRefreshFailureKeepsData(t *testing.T) {
	var fail bool
	src := fetchFunc(func(context.Context) ([]domain.Asset, error) {
		if fail {
			return nil, domain.ErrTransport
		}
		return coins("bitcoin", "dogecoin"), nil
	})
	notifier := &recordingNotifier{}
	svc := NewDashboardService(DashboardDeps{Source: src, Notifier: notifier, Logger: discardLogger()})

	_, err := svc.Refresh(context.Background(), dashboard.TriggerStartup)
	require.NoError(t, err)
	before := svc.View("doge")

	fail = true
	report, err := svc.Refresh(context.Background(), dashboard.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, dashboard.StatusError, report.Status)
	assert.True(t, report.ErrorVisible)
	assert.False(t, report.RefreshDisabled)

	after := svc.View("doge")
	assert.Equal(t, before.Filtered, after.Filtered)
	assert.Equal(t, before.LastUpdated, after.LastUpdated)

	// a second failure does not notify again
	_, err = svc.Refresh(context.Background(), dashboard.TriggerTimer)
	assert.Error(t, err)

	fail = false
	_, err = svc.Refresh(context.Background(), dashboard.TriggerTimer)
	require.NoError(t, err)
	assert.False(t, svc.State().ErrorVisible)

	assert.Equal(t, []string{EventFetchFailed, EventFetchRecovered}, notifier.events)
}

func TestRefreshParseErrorHandledLikeTransport(t *testing.T) {
	svc := NewDashboardService(DashboardDeps{
		Source: fetchFunc(func(context.Context) ([]domain.Asset, error) {
			return nil, domain.ErrParse
		}),
		Logger: discardLogger(),
	})

	report, err := svc.Refresh(context.Background(), dashboard.TriggerStartup)
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.True(t, report.ErrorVisible)
	assert.Equal(t, dashboard.StatusError, report.Status)
}

func TestRefreshMalformedBodyKeepsData(t *testing.T) {
	for _, body := range []string{`null`, `[null]`, `[{}]`, `{"error":"x"}`} {
		t.Run(body, func(t *testing.T) {
			var malformed atomic.Bool
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if malformed.Load() {
					_, _ = w.Write([]byte(body))
					return
				}
				_, _ = w.Write([]byte(`[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":45000}]`))
			}))
			defer srv.Close()

			svc := NewDashboardService(DashboardDeps{
				Source: coingecko.NewClient(coingecko.Options{BaseURL: srv.URL}),
				Logger: discardLogger(),
			})

			report, err := svc.Refresh(context.Background(), dashboard.TriggerStartup)
			require.NoError(t, err)
			require.Equal(t, 1, report.AssetCount)
			before := svc.View("")

			malformed.Store(true)
			report, err = svc.Refresh(context.Background(), dashboard.TriggerTimer)
			assert.ErrorIs(t, err, domain.ErrParse)
			assert.Equal(t, dashboard.StatusError, report.Status)
			assert.True(t, report.ErrorVisible)
			assert.Equal(t, 1, report.AssetCount)
			assert.Equal(t, before.Filtered, svc.View("").Filtered)
		})
	}
}

func TestRefreshDiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex

	src := fetchFunc(func(ctx context.Context) ([]domain.Asset, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return coins("oldcoin"), nil
		}
		return coins("newcoin"), nil
	})
	svc := NewDashboardService(DashboardDeps{Source: src, Logger: discardLogger()})

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(context.Background(), dashboard.TriggerTimer)
		errCh <- err
	}()
	<-started

	_, err := svc.Refresh(context.Background(), dashboard.TriggerManual)
	require.NoError(t, err)

	close(release)
	assert.ErrorIs(t, <-errCh, domain.ErrStaleResponse)

	st := svc.State()
	require.Len(t, st.Full, 1)
	assert.Equal(t, "newcoin", st.Full[0].ID)
	assert.Equal(t, dashboard.StatusLoaded, st.Status)
}

func TestSideEffectFailuresDoNotFailRefresh(t *testing.T) {
	cache := &memSnapshotCache{setErr: errors.New("redis down")}
	svc := NewDashboardService(DashboardDeps{
		Source: staticSource(coins("bitcoin")),
		Cache:  cache,
		Logger: discardLogger(),
	})

	report, err := svc.Refresh(context.Background(), dashboard.TriggerTimer)
	require.NoError(t, err)
	assert.Equal(t, dashboard.StatusLoaded, report.Status)
}

func TestWarmStart(t *testing.T) {
	at := time.Now().Add(-time.Minute).UTC()

	t.Run("from cache", func(t *testing.T) {
		cache := &memSnapshotCache{snap: domain.Snapshot{CycleID: "c", FetchedAt: at, Assets: coins("bitcoin")}, ok: true}
		svc := NewDashboardService(DashboardDeps{Source: staticSource(nil), Cache: cache, Logger: discardLogger()})

		require.NoError(t, svc.WarmStart(context.Background()))
		assert.Len(t, svc.State().Full, 1)
		assert.Equal(t, dashboard.StatusLoaded, svc.State().Status)
	})

	t.Run("falls back to history", func(t *testing.T) {
		latest := domain.Snapshot{CycleID: "h", FetchedAt: at, Assets: coins("bitcoin", "ethereum")}
		svc := NewDashboardService(DashboardDeps{
			Source:  staticSource(nil),
			Cache:   &memSnapshotCache{},
			History: &memHistory{latest: &latest},
			Logger:  discardLogger(),
		})

		require.NoError(t, svc.WarmStart(context.Background()))
		assert.Len(t, svc.State().Full, 2)
	})

	t.Run("nothing stored", func(t *testing.T) {
		svc := NewDashboardService(DashboardDeps{Source: staticSource(nil), History: &memHistory{}, Logger: discardLogger()})
		require.NoError(t, svc.WarmStart(context.Background()))
		assert.Equal(t, dashboard.StatusIdle, svc.State().Status)
	})
}

func TestAssetAndHistory(t *testing.T) {
	history := &memHistory{}
	svc := NewDashboardService(DashboardDeps{
		Source:  staticSource(coins("bitcoin", "ethereum")),
		History: history,
		Logger:  discardLogger(),
	})
	_, err := svc.Refresh(context.Background(), dashboard.TriggerStartup)
	require.NoError(t, err)

	a, err := svc.Asset("ethereum")
	require.NoError(t, err)
	assert.Equal(t, "ethereum", a.ID)

	_, err = svc.Asset("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	points, err := svc.History(context.Background(), "bitcoin", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, points, 1)

	assert.Equal(t, []string{"ethereum"}, assetIDs(svc.Filter("ETH")))
}

func TestHistoryUnavailableWithoutStore(t *testing.T) {
	svc := NewDashboardService(DashboardDeps{Source: staticSource(nil), Logger: discardLogger()})
	_, err := svc.History(context.Background(), "bitcoin", domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func assetIDs(assets []domain.Asset) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.ID)
	}
	return out
}
