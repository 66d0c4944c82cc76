package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// NoResultsMessage is the grid placeholder for an empty asset list.
const NoResultsMessage = "No cryptocurrencies found matching your search."

// Change is one labelled percentage cell of a card.
type Change struct {
	Label string
	Value string
	Class string
}

// Card is the display model of one asset.
type Card struct {
	ID        string
	Name      string
	Symbol    string
	Image     string
	Rank      string
	Price     string
	MarketCap string
	Changes   []Change
}

// NewCard formats a for display.
func NewCard(a domain.Asset) Card {
	return Card{
		ID:        a.ID,
		Name:      a.Name,
		Symbol:    a.Symbol,
		Image:     a.Image,
		Rank:      FormatRank(a.MarketCapRank),
		Price:     FormatPrice(a.CurrentPrice),
		MarketCap: FormatLargeNumber(a.MarketCap),
		Changes: []Change{
			{Label: "1H", Value: FormatPercentage(a.Change1h), Class: ChangeClass(a.Change1h)},
			{Label: "24H", Value: FormatPercentage(a.Change24h), Class: ChangeClass(a.Change24h)},
			{Label: "7D", Value: FormatPercentage(a.Change7d), Class: ChangeClass(a.Change7d)},
			{Label: "Volume 24H", Value: "$" + FormatLargeNumber(a.TotalVolume), Class: ClassNeutral},
		},
	}
}

type gridView struct {
	Cards     []Card
	NoResults string
}

type pageView struct {
	LastUpdated     string
	ErrorVisible    bool
	ShowLoading     bool
	RefreshDisabled bool
	Status          Status
	Term            string
	HasData         bool
	Grid            gridView
}

// Renderer produces the dashboard HTML from embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("dashboard: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// RenderGrid writes one card per asset, or only the no-results placeholder
// when assets is empty.
func (r *Renderer) RenderGrid(w io.Writer, assets []domain.Asset) error {
	if err := r.tmpl.ExecuteTemplate(w, "grid", newGridView(assets)); err != nil {
		return fmt.Errorf("dashboard: render grid: %w", err)
	}
	return nil
}

// RenderPage writes the full dashboard page for s, using s.Filtered for the
// grid.
func (r *Renderer) RenderPage(w io.Writer, s State) error {
	view := pageView{
		ErrorVisible:    s.ErrorVisible,
		ShowLoading:     s.ShowLoading(),
		RefreshDisabled: s.RefreshDisabled,
		Status:          s.Status,
		Term:            s.Term,
		HasData:         len(s.Full) > 0 || !s.LastUpdated.IsZero(),
		Grid:            newGridView(s.Filtered),
	}
	if !s.LastUpdated.IsZero() {
		view.LastUpdated = "Last updated: " + s.LastUpdated.Local().Format("3:04:05 PM")
	}
	if err := r.tmpl.ExecuteTemplate(w, "page", view); err != nil {
		return fmt.Errorf("dashboard: render page: %w", err)
	}
	return nil
}

func newGridView(assets []domain.Asset) gridView {
	if len(assets) == 0 {
		return gridView{NoResults: NoResultsMessage}
	}
	cards := make([]Card, 0, len(assets))
	for _, a := range assets {
		cards = append(cards, NewCard(a))
	}
	return gridView{Cards: cards}
}
