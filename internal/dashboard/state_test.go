package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

func TestStateLifecycle(t *testing.T) {
	s := NewState()
	assert.Equal(t, StatusIdle, s.Status)

	gen := s.Begin(TriggerStartup)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, StatusLoading, s.Status)
	assert.True(t, s.ShowLoading(), "nothing displayed yet")
	assert.False(t, s.RefreshDisabled)

	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	require.NoError(t, s.Apply(gen, sampleAssets(), at))
	assert.Equal(t, StatusLoaded, s.Status)
	assert.Equal(t, at, s.LastUpdated)
	assert.Len(t, s.Full, 6)
	assert.Equal(t, s.Full, s.Filtered)
	assert.Equal(t, gen, s.AppliedGeneration())

	gen = s.Begin(TriggerTimer)
	assert.Equal(t, StatusLoading, s.Status)
	assert.False(t, s.ShowLoading(), "timer refresh keeps the grid")
	require.NoError(t, s.Fail(gen))
	assert.Equal(t, StatusError, s.Status)
	assert.True(t, s.ErrorVisible)
}

func TestFailureKeepsData(t *testing.T) {
	s := NewState()
	s.SetTerm("coin")
	require.NoError(t, s.Apply(s.Begin(TriggerStartup), sampleAssets(), time.Now()))
	before := ids(s.Filtered)
	updated := s.LastUpdated

	require.NoError(t, s.Fail(s.Begin(TriggerManual)))

	assert.Equal(t, before, ids(s.Filtered))
	assert.Len(t, s.Full, 6)
	assert.Equal(t, updated, s.LastUpdated)
	assert.True(t, s.ErrorVisible)
	assert.False(t, s.RefreshDisabled)
}

func TestSuccessClearsError(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Fail(s.Begin(TriggerStartup)))
	assert.True(t, s.ErrorVisible)

	require.NoError(t, s.Apply(s.Begin(TriggerTimer), sampleAssets(), time.Now()))
	assert.False(t, s.ErrorVisible)
	assert.Equal(t, StatusLoaded, s.Status)
}

func TestRefreshReappliesTerm(t *testing.T) {
	s := NewState()
	s.SetTerm("  BIT ")
	assert.Equal(t, "bit", s.Term)

	require.NoError(t, s.Apply(s.Begin(TriggerTimer), sampleAssets(), time.Now()))
	assert.Equal(t, []string{"bitcoin", "bitcoin-cash"}, ids(s.Filtered))

	next := []domain.Asset{{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}, {ID: "solana", Symbol: "sol", Name: "Solana"}}
	require.NoError(t, s.Apply(s.Begin(TriggerTimer), next, time.Now()))
	assert.Equal(t, []string{"bitcoin"}, ids(s.Filtered))
}

func TestStaleResponseDiscarded(t *testing.T) {
	s := NewState()
	older := s.Begin(TriggerTimer)
	newer := s.Begin(TriggerManual)

	fresh := []domain.Asset{{ID: "ethereum", Symbol: "eth", Name: "Ethereum"}}
	freshAt := time.Now()
	require.NoError(t, s.Apply(newer, fresh, freshAt))
	assert.False(t, s.RefreshDisabled)

	err := s.Apply(older, sampleAssets(), freshAt.Add(time.Second))
	assert.ErrorIs(t, err, domain.ErrStaleResponse)
	assert.Equal(t, []string{"ethereum"}, ids(s.Full))
	assert.Equal(t, freshAt, s.LastUpdated)
	assert.Equal(t, StatusLoaded, s.Status)

	assert.ErrorIs(t, s.Fail(older), domain.ErrStaleResponse)
	assert.False(t, s.ErrorVisible)
}

func TestStaleCompletionKeepsLoading(t *testing.T) {
	s := NewState()
	older := s.Begin(TriggerTimer)
	newer := s.Begin(TriggerTimer)

	assert.ErrorIs(t, s.Apply(older, sampleAssets(), time.Now()), domain.ErrStaleResponse)
	assert.Equal(t, StatusLoading, s.Status)
	assert.Empty(t, s.Full)

	require.NoError(t, s.Fail(newer))
	assert.Equal(t, StatusError, s.Status)
}

func TestManualRefreshDisablesControl(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Apply(s.Begin(TriggerStartup), sampleAssets(), time.Now()))

	gen := s.Begin(TriggerManual)
	assert.True(t, s.RefreshDisabled)
	assert.True(t, s.ShowLoading(), "explicit refresh shows the placeholder")

	require.NoError(t, s.Apply(gen, sampleAssets(), time.Now()))
	assert.False(t, s.RefreshDisabled)
	assert.False(t, s.ShowLoading())
}

func TestAdopt(t *testing.T) {
	s := NewState()
	s.SetTerm("eth")
	base := time.Now()

	snap := domain.Snapshot{CycleID: "c1", FetchedAt: base, Assets: sampleAssets()}
	assert.True(t, s.Adopt(snap))
	assert.Equal(t, StatusLoaded, s.Status)
	assert.Equal(t, []string{"ethereum"}, ids(s.Filtered))

	// older or equal snapshots are ignored
	assert.False(t, s.Adopt(domain.Snapshot{FetchedAt: base, Assets: sampleAssets()[:1]}))
	assert.False(t, s.Adopt(domain.Snapshot{FetchedAt: base.Add(-time.Minute), Assets: sampleAssets()[:1]}))
	assert.False(t, s.Adopt(domain.Snapshot{FetchedAt: base.Add(time.Minute)}))
	assert.Len(t, s.Full, 6)

	s.Begin(TriggerTimer)
	assert.True(t, s.Adopt(domain.Snapshot{FetchedAt: base.Add(time.Minute), Assets: sampleAssets()[:2]}))
	assert.Equal(t, StatusLoading, s.Status)
}

func TestWithTermDoesNotMutate(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Apply(s.Begin(TriggerStartup), sampleAssets(), time.Now()))

	view := s.WithTerm("doge")
	assert.Equal(t, []string{"dogecoin"}, ids(view.Filtered))
	assert.Equal(t, "", s.Term)
	assert.Len(t, s.Filtered, 6)
}

func TestReport(t *testing.T) {
	s := NewState()
	r := s.Report(true)
	assert.Nil(t, r.LastUpdated)
	assert.Equal(t, StatusIdle, r.Status)

	at := time.Now()
	require.NoError(t, s.Apply(s.Begin(TriggerStartup), sampleAssets(), at))
	r = s.Report(false)
	require.NotNil(t, r.LastUpdated)
	assert.Equal(t, at, *r.LastUpdated)
	assert.Equal(t, 6, r.AssetCount)
	assert.Equal(t, uint64(1), r.Generation)
	assert.Nil(t, r.Assets)
	assert.Len(t, s.Report(true).Assets, 6)
}
