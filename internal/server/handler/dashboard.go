package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// SessionCookie carries the browser session id.
const SessionCookie = "cryptodash_session"

// DashboardHandler serves the browser-facing page, grid fragment and refresh
// button. Each browser session keeps its own search term.
type DashboardHandler struct {
	svc        DashboardService
	renderer   *dashboard.Renderer
	sessions   domain.SessionCache
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(svc DashboardService, renderer *dashboard.Renderer, sessions domain.SessionCache, sessionTTL time.Duration, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		svc:        svc,
		renderer:   renderer,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     logger.With(slog.String("handler", "dashboard")),
	}
}

// Page renders the full dashboard for the caller's session. A q parameter
// replaces the session's search term.
// GET /
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	id := h.session(w, r)
	term := h.term(r.Context(), id)
	if r.URL.Query().Has("q") {
		term = h.setTerm(r.Context(), id, r.URL.Query().Get("q"))
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderPage(&buf, h.svc.View(term)); err != nil {
		h.logger.ErrorContext(r.Context(), "render page failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Grid stores q as the session's search term and renders the matching cards.
// GET /grid?q=
func (h *DashboardHandler) Grid(w http.ResponseWriter, r *http.Request) {
	id := h.session(w, r)
	term := h.setTerm(r.Context(), id, r.URL.Query().Get("q"))

	var buf bytes.Buffer
	if err := h.renderer.RenderGrid(&buf, h.svc.Filter(term)); err != nil {
		h.logger.ErrorContext(r.Context(), "render grid failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to render grid")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Refresh runs a manual fetch and returns the resulting status. A failed
// fetch still answers 200; the report carries the error flag the page shows.
// POST /refresh
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	// a closed tab must not turn into a failed fetch for everyone
	ctx := context.WithoutCancel(r.Context())

	report, err := h.svc.Refresh(ctx, dashboard.TriggerManual)
	if errors.Is(err, domain.ErrStaleResponse) {
		report = h.svc.Report(false)
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *DashboardHandler) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *DashboardHandler) term(ctx context.Context, id string) string {
	term, err := h.sessions.Term(id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "session lookup failed", slog.String("error", err.Error()))
		}
		return ""
	}
	return term
}

func (h *DashboardHandler) setTerm(ctx context.Context, id, raw string) string {
	term := dashboard.NormalizeTerm(raw)
	if err := h.sessions.SetTerm(id, term); err != nil {
		h.logger.WarnContext(ctx, "session update failed", slog.String("error", err.Error()))
	}
	return term
}
