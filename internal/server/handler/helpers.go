// Package handler implements the HTTP endpoints of the dashboard server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// DashboardService is what the handlers need from the service layer. It is
// declared here so the package does not depend on the concrete service.
type DashboardService interface {
	Refresh(ctx context.Context, trigger dashboard.Trigger) (dashboard.Report, error)
	View(term string) dashboard.State
	Filter(term string) []domain.Asset
	Asset(id string) (domain.Asset, error)
	History(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.AssetPoint, error)
	Report(withAssets bool) dashboard.Report
}

// writeJSON marshals v and writes it with the given status. A marshal
// failure becomes a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts reads limit, offset, since and until from the query string.
// limit defaults to 100 and is capped at 1000; since/until are RFC 3339.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: 100}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
		opts.Limit = min(n, 1000)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid offset %q", v)
		}
		opts.Offset = n
	}
	for key, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, fmt.Errorf("invalid %s %q: want RFC 3339", key, v)
		}
		*dst = &t
	}
	return opts, nil
}
