package dashboard

import (
	"time"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// Status is the externally visible phase of the refresh cycle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

// Trigger identifies what started a fetch.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerTimer   Trigger = "timer"
	TriggerManual  Trigger = "manual"
)

// State is the dashboard's application state. Filtered always equals
// Filter(Full, Term).
//
// Every fetch start is assigned a generation. Only the result of the most
// recently started fetch is applied; results of older generations are
// rejected with domain.ErrStaleResponse so a slow response can never
// overwrite newer data.
type State struct {
	Full            []domain.Asset
	Filtered        []domain.Asset
	Term            string
	LastUpdated     time.Time
	Status          Status
	ErrorVisible    bool
	RefreshDisabled bool

	issued  uint64 // latest generation started
	applied uint64 // generation of the data in Full
	manual  uint64 // generation of the outstanding manual refresh, 0 if none
}

// NewState returns an idle state with no data.
func NewState() State {
	return State{Status: StatusIdle}
}

// Generation returns the number of the most recently started fetch.
func (s *State) Generation() uint64 { return s.issued }

// AppliedGeneration returns the generation whose data is in Full. Adopted
// snapshots keep the previous value.
func (s *State) AppliedGeneration() uint64 { return s.applied }

// SetTerm normalises term and re-derives Filtered from Full.
func (s *State) SetTerm(term string) {
	s.Term = NormalizeTerm(term)
	s.Filtered = Filter(s.Full, s.Term)
}

// WithTerm returns a copy of s filtered by term, leaving s untouched.
func (s State) WithTerm(term string) State {
	s.SetTerm(term)
	return s
}

// Begin moves the state to Loading and returns the new fetch generation.
// A manual trigger disables the refresh control until that fetch settles.
func (s *State) Begin(trigger Trigger) uint64 {
	s.issued++
	s.Status = StatusLoading
	if trigger == TriggerManual {
		s.manual = s.issued
		s.RefreshDisabled = true
	}
	return s.issued
}

// Apply replaces the asset list with the result of fetch gen. It returns
// domain.ErrStaleResponse, leaving the data untouched, if a newer fetch has
// been started since.
func (s *State) Apply(gen uint64, assets []domain.Asset, at time.Time) error {
	s.settleManual(gen)
	if gen != s.issued {
		return domain.ErrStaleResponse
	}

	s.Full = assets
	s.Filtered = Filter(s.Full, s.Term)
	s.LastUpdated = at
	s.Status = StatusLoaded
	s.ErrorVisible = false
	s.applied = gen
	return nil
}

// Fail records a failed fetch. Data from earlier fetches is kept and the
// error banner becomes visible. A failure of a superseded fetch is ignored
// and reported as domain.ErrStaleResponse.
func (s *State) Fail(gen uint64) error {
	s.settleManual(gen)
	if gen != s.issued {
		return domain.ErrStaleResponse
	}

	s.Status = StatusError
	s.ErrorVisible = true
	return nil
}

// Adopt installs a snapshot fetched elsewhere (another replica or a warm
// start) if it is newer than the data currently held. It reports whether the
// snapshot was installed. An outstanding local fetch keeps the Loading status.
func (s *State) Adopt(snap domain.Snapshot) bool {
	if len(snap.Assets) == 0 || !snap.FetchedAt.After(s.LastUpdated) {
		return false
	}

	s.Full = snap.Assets
	s.Filtered = Filter(s.Full, s.Term)
	s.LastUpdated = snap.FetchedAt
	s.ErrorVisible = false
	if s.Status != StatusLoading {
		s.Status = StatusLoaded
	}
	return true
}

// ShowLoading reports whether the loading placeholder should be displayed:
// while loading and nothing has been displayed yet, or while a manual
// refresh is outstanding.
func (s *State) ShowLoading() bool {
	if s.Status != StatusLoading {
		return false
	}
	return s.LastUpdated.IsZero() || s.RefreshDisabled
}

func (s *State) settleManual(gen uint64) {
	if s.manual != 0 && gen >= s.manual {
		s.manual = 0
		s.RefreshDisabled = false
	}
}

// Report is the JSON view of State served by the status endpoint and pushed
// to WebSocket clients.
type Report struct {
	Status          Status         `json:"status"`
	Generation      uint64         `json:"generation"`
	LastUpdated     *time.Time     `json:"last_updated,omitempty"`
	ErrorVisible    bool           `json:"error_visible"`
	RefreshDisabled bool           `json:"refresh_disabled"`
	AssetCount      int            `json:"asset_count"`
	Assets          []domain.Asset `json:"assets,omitempty"`
}

// Report summarises s. Assets are included only when withAssets is set.
func (s *State) Report(withAssets bool) Report {
	r := Report{
		Status:          s.Status,
		Generation:      s.issued,
		ErrorVisible:    s.ErrorVisible,
		RefreshDisabled: s.RefreshDisabled,
		AssetCount:      len(s.Full),
	}
	if !s.LastUpdated.IsZero() {
		t := s.LastUpdated
		r.LastUpdated = &t
	}
	if withAssets {
		r.Assets = s.Full
	}
	return r
}
