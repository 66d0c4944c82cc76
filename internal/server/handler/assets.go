package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// AssetHandler serves the JSON asset endpoints.
type AssetHandler struct {
	svc    DashboardService
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(svc DashboardService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{svc: svc, logger: logger.With(slog.String("handler", "assets"))}
}

type listAssetsResponse struct {
	Term   string         `json:"term"`
	Count  int            `json:"count"`
	Assets []domain.Asset `json:"assets"`
}

// ListAssets returns the current assets matching q.
// GET /api/assets?q=
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	term := dashboard.NormalizeTerm(r.URL.Query().Get("q"))
	assets := h.svc.Filter(term)
	if assets == nil {
		assets = []domain.Asset{}
	}
	writeJSON(w, http.StatusOK, listAssetsResponse{Term: term, Count: len(assets), Assets: assets})
}

// GetAsset returns one asset from the current data set.
// GET /api/assets/{id}
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing asset id")
		return
	}

	asset, err := h.svc.Asset(id)
	if err != nil {
		writeError(w, statusFor(err), "asset not found")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type historyResponse struct {
	AssetID string              `json:"asset_id"`
	Points  []domain.AssetPoint `json:"points"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// GetHistory returns persisted observations of one asset, newest first.
// GET /api/assets/{id}/history?limit=&offset=&since=&until=
func (h *AssetHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.svc.History(r.Context(), id, opts)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "list history failed",
				slog.String("asset_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, "history unavailable")
		return
	}
	if points == nil {
		points = []domain.AssetPoint{}
	}
	writeJSON(w, http.StatusOK, historyResponse{AssetID: id, Points: points, Limit: opts.Limit, Offset: opts.Offset})
}
