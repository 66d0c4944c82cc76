package coingecko

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// APIMarket is one element of the /coins/markets response. Only the fields
// the dashboard displays are decoded.
type APIMarket struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Image         string          `json:"image"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketCap     decimal.Decimal `json:"market_cap"`
	MarketCapRank *int            `json:"market_cap_rank"`
	TotalVolume   decimal.Decimal `json:"total_volume"`

	PriceChange24h decimal.NullDecimal `json:"price_change_percentage_24h"`

	// Populated when price_change_percentage=1h,24h,7d is requested.
	PriceChange1hInCurrency  decimal.NullDecimal `json:"price_change_percentage_1h_in_currency"`
	PriceChange24hInCurrency decimal.NullDecimal `json:"price_change_percentage_24h_in_currency"`
	PriceChange7dInCurrency  decimal.NullDecimal `json:"price_change_percentage_7d_in_currency"`

	// Some mirrors and older API versions emit the windows without the
	// _in_currency suffix.
	PriceChange1h decimal.NullDecimal `json:"price_change_percentage_1h"`
	PriceChange7d decimal.NullDecimal `json:"price_change_percentage_7d"`
}

// ToDomainAsset converts the API DTO into a domain.Asset.
func (m *APIMarket) ToDomainAsset() domain.Asset {
	return domain.Asset{
		ID:            m.ID,
		Symbol:        m.Symbol,
		Name:          m.Name,
		Image:         m.Image,
		MarketCapRank: m.MarketCapRank,
		CurrentPrice:  m.CurrentPrice,
		MarketCap:     m.MarketCap,
		TotalVolume:   m.TotalVolume,
		Change1h:      firstValid(m.PriceChange1hInCurrency, m.PriceChange1h),
		Change24h:     firstValid(m.PriceChange24hInCurrency, m.PriceChange24h),
		Change7d:      firstValid(m.PriceChange7dInCurrency, m.PriceChange7d),
	}
}

// validate rejects null elements and elements missing an identity field.
func (m *APIMarket) validate() error {
	switch {
	case m == nil:
		return errors.New("null market")
	case m.ID == "":
		return errors.New("missing id")
	case m.Name == "":
		return errors.New("missing name")
	case m.Symbol == "":
		return errors.New("missing symbol")
	}
	return nil
}

func firstValid(values ...decimal.NullDecimal) decimal.NullDecimal {
	for _, v := range values {
		if v.Valid {
			return v
		}
	}
	return decimal.NullDecimal{}
}
