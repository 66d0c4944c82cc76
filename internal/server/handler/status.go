package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
)

// StatusHandler reports the refresh state machine and process metadata.
type StatusHandler struct {
	svc        DashboardService
	mode       string
	instanceID string
	startedAt  time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(svc DashboardService, mode, instanceID string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{svc: svc, mode: mode, instanceID: instanceID, startedAt: startedAt}
}

type statusResponse struct {
	dashboard.Report
	Mode          string `json:"mode"`
	Instance      string `json:"instance"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// GetStatus returns the status, generation and last update time.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Report:        h.svc.Report(false),
		Mode:          h.mode,
		Instance:      h.instanceID,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}
