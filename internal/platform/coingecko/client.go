// Package coingecko is the REST client for the CoinGecko public market data
// API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

const (
	// DefaultBaseURL is the public (keyless or demo key) API root.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	headerDemoAPIKey = "x-cg-demo-api-key"
	maxErrorBody     = 256
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	VsCurrency string
	AssetIDs   []string
	PerPage    int
	Timeout    time.Duration
}

// Client fetches market listings for a fixed set of assets in a single
// batched request.
type Client struct {
	http   *resty.Client
	params map[string]string
}

// NewClient creates a CoinGecko client. Zero-valued options fall back to the
// public endpoint, USD quotes, 50 results per page and a 15 second timeout.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.VsCurrency == "" {
		opts.VsCurrency = "usd"
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		rc.SetHeader(headerDemoAPIKey, opts.APIKey)
	}

	return &Client{
		http: rc,
		params: map[string]string{
			"vs_currency":             opts.VsCurrency,
			"ids":                     strings.Join(opts.AssetIDs, ","),
			"order":                   "market_cap_desc",
			"per_page":                strconv.Itoa(opts.PerPage),
			"page":                    "1",
			"sparkline":               "false",
			"price_change_percentage": "1h,24h,7d",
		},
	}
}

// GetMarkets requests the configured assets ordered by market cap. Transport
// failures and non-2xx responses wrap domain.ErrTransport; a body that is not
// a JSON array of markets wraps domain.ErrParse.
func (c *Client) GetMarkets(ctx context.Context) ([]domain.Asset, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.params).
		Get("/coins/markets")
	if err != nil {
		return nil, fmt.Errorf("coingecko: get markets: %w: %w", domain.ErrTransport, err)
	}
	if err := checkHTTPStatus(resp.StatusCode(), resp.Body()); err != nil {
		return nil, fmt.Errorf("coingecko: get markets: %w", err)
	}

	var apiMarkets []*APIMarket
	if err := json.Unmarshal(resp.Body(), &apiMarkets); err != nil {
		return nil, fmt.Errorf("coingecko: decode markets: %w: %w", domain.ErrParse, err)
	}
	// A literal null decodes without error into a nil slice.
	if apiMarkets == nil {
		return nil, fmt.Errorf("coingecko: decode markets: %w: body is not an array", domain.ErrParse)
	}

	assets := make([]domain.Asset, 0, len(apiMarkets))
	for i, m := range apiMarkets {
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("coingecko: decode markets: %w: element %d: %w", domain.ErrParse, i, err)
		}
		assets = append(assets, m.ToDomainAsset())
	}
	return assets, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > maxErrorBody {
		bodyStr = bodyStr[:maxErrorBody] + "..."
	}
	if statusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: HTTP %d: %s", domain.ErrTransport, domain.ErrRateLimited, statusCode, bodyStr)
	}
	return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransport, statusCode, bodyStr)
}
