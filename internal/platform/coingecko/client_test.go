package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

const marketsBody = `[
  {
    "id": "bitcoin",
    "symbol": "btc",
    "name": "Bitcoin",
    "image": "https://assets.coingecko.com/coins/images/1/large/bitcoin.png",
    "current_price": 45231.1,
    "market_cap": 885000000000,
    "market_cap_rank": 1,
    "total_volume": 21500000000,
    "price_change_percentage_24h": 1.5,
    "price_change_percentage_1h_in_currency": -0.12,
    "price_change_percentage_24h_in_currency": 1.49,
    "price_change_percentage_7d_in_currency": 4.2
  },
  {
    "id": "dogecoin",
    "symbol": "doge",
    "name": "Dogecoin",
    "image": "https://assets.coingecko.com/coins/images/5/large/dogecoin.png",
    "current_price": 0.081234,
    "market_cap": 11500000000,
    "market_cap_rank": null,
    "total_volume": 450000000,
    "price_change_percentage_24h": -3.456
  }
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetMarkets(t *testing.T) {
	var got *http.Request
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(marketsBody))
	})

	c := NewClient(Options{
		BaseURL:  srv.URL,
		APIKey:   "demo",
		AssetIDs: []string{"bitcoin", "dogecoin"},
	})

	assets, err := c.GetMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)

	require.NotNil(t, got)
	assert.Equal(t, "/coins/markets", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "usd", q.Get("vs_currency"))
	assert.Equal(t, "bitcoin,dogecoin", q.Get("ids"))
	assert.Equal(t, "market_cap_desc", q.Get("order"))
	assert.Equal(t, "50", q.Get("per_page"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "false", q.Get("sparkline"))
	assert.Equal(t, "1h,24h,7d", q.Get("price_change_percentage"))
	assert.Equal(t, "demo", got.Header.Get("x-cg-demo-api-key"))

	btc := assets[0]
	assert.Equal(t, "bitcoin", btc.ID)
	assert.Equal(t, "btc", btc.Symbol)
	assert.Equal(t, "Bitcoin", btc.Name)
	require.NotNil(t, btc.MarketCapRank)
	assert.Equal(t, 1, *btc.MarketCapRank)
	assert.Equal(t, "45231.1", btc.CurrentPrice.String())
	assert.True(t, btc.Change1h.Valid)
	assert.Equal(t, "-0.12", btc.Change1h.Decimal.String())
	assert.Equal(t, "1.49", btc.Change24h.Decimal.String())
	assert.Equal(t, "4.2", btc.Change7d.Decimal.String())

	doge := assets[1]
	assert.Nil(t, doge.MarketCapRank)
	assert.Equal(t, "0.081234", doge.CurrentPrice.String())
	assert.False(t, doge.Change1h.Valid)
	assert.False(t, doge.Change7d.Valid)
	// falls back to the plain 24h field
	require.True(t, doge.Change24h.Valid)
	assert.Equal(t, "-3.456", doge.Change24h.Decimal.String())
}

func TestGetMarketsOmitsKeyHeaderWithoutKey(t *testing.T) {
	var header string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("x-cg-demo-api-key")
		_, _ = w.Write([]byte(`[]`))
	})

	assets, err := NewClient(Options{BaseURL: srv.URL}).GetMarkets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, assets)
	assert.Empty(t, header)
}

func TestGetMarketsStatusError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})

	_, err := NewClient(Options{BaseURL: srv.URL}).GetMarkets(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.False(t, errors.Is(err, domain.ErrParse))
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestGetMarketsRateLimited(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := NewClient(Options{BaseURL: srv.URL}).GetMarkets(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestGetMarketsParseError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"error_code":1}}`))
	})

	_, err := NewClient(Options{BaseURL: srv.URL}).GetMarkets(context.Background())
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.NotErrorIs(t, err, domain.ErrTransport)
}

func TestGetMarketsTransportError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	})

	c := NewClient(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.GetMarkets(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestGetMarketsRejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "null body", body: `null`},
		{name: "object body", body: `{"id":"bitcoin","symbol":"btc","name":"Bitcoin"}`},
		{name: "null element", body: `[null]`},
		{name: "empty element", body: `[{}]`},
		{name: "missing name", body: `[{"id":"bitcoin","symbol":"btc"}]`},
		{name: "missing symbol", body: `[{"id":"bitcoin","name":"Bitcoin"}]`},
		{name: "one bad element among good", body: `[{"id":"bitcoin","symbol":"btc","name":"Bitcoin"},{}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			assets, err := NewClient(Options{BaseURL: srv.URL}).GetMarkets(context.Background())
			assert.ErrorIs(t, err, domain.ErrParse)
			assert.NotErrorIs(t, err, domain.ErrTransport)
			assert.Nil(t, assets)
		})
	}
}

func TestGetMarketsEmptyArrayIsSuccess(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	assets, err := NewClient(Options{BaseURL: srv.URL}).GetMarkets(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, assets)
	assert.Empty(t, assets)
}
