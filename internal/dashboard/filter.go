// Package dashboard holds the pure parts of the market dashboard: search
// filtering, number formatting, the refresh state machine and HTML rendering.
package dashboard

import (
	"strings"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// NormalizeTerm trims surrounding whitespace and lower-cases a search term.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Filter returns the assets whose name or symbol contains term,
// case-insensitively, in their original order. An empty or whitespace-only
// term returns assets unchanged.
func Filter(assets []domain.Asset, term string) []domain.Asset {
	term = NormalizeTerm(term)
	if term == "" {
		return assets
	}

	out := make([]domain.Asset, 0, len(assets))
	for _, a := range assets {
		if strings.Contains(strings.ToLower(a.Name), term) ||
			strings.Contains(strings.ToLower(a.Symbol), term) {
			out = append(out, a)
		}
	}
	return out
}
