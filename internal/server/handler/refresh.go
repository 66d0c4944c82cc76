package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// Trigger queues a background fetch.
type Trigger interface {
	Trigger()
}

// RefreshHandler serves the API's manual refresh.
type RefreshHandler struct {
	svc     DashboardService
	trigger Trigger
	logger  *slog.Logger
}

// NewRefreshHandler creates a RefreshHandler.
func NewRefreshHandler(svc DashboardService, trigger Trigger, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{svc: svc, trigger: trigger, logger: logger.With(slog.String("handler", "refresh"))}
}

type refreshResponse struct {
	Queued bool              `json:"queued"`
	Report *dashboard.Report `json:"report,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Refresh queues a manual fetch and answers 202. With wait=true it runs the
// fetch synchronously and returns the outcome: 200 on success, 502 when the
// provider failed, 409 when a newer fetch overtook it.
// POST /api/refresh?wait=true
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		h.trigger.Trigger()
		writeJSON(w, http.StatusAccepted, refreshResponse{Queued: true})
		return
	}

	report, err := h.svc.Refresh(context.WithoutCancel(r.Context()), dashboard.TriggerManual)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, refreshResponse{Report: &report})
	case errors.Is(err, domain.ErrStaleResponse):
		writeJSON(w, http.StatusConflict, refreshResponse{Report: &report, Error: "superseded by a newer refresh"})
	default:
		h.logger.WarnContext(r.Context(), "manual refresh failed", slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), refreshResponse{Report: &report, Error: "market data fetch failed"})
	}
}
