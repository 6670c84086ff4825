package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tickerhub/internal/application"
	"tickerhub/internal/application/port"
	"tickerhub/internal/domain"
	"tickerhub/internal/infrastructure/exchange"
)

const (
	Name       = "coingecko"
	DefaultURL = "https://api.coingecko.com/api/v3"
)

type coin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"`
}

// Details is the subset of /coins/{id} used by callers.
type Details struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description struct {
		En string `json:"en"`
	} `json:"description"`
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// SimplePrice is one entry of /simple/price.
type SimplePrice struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
}

// RESTClient is the CoinGecko public API client. The public API is heavily
// throttled so every call goes through the limiter.
type RESTClient struct {
	baseURL string
	rest    *exchange.RESTClient
}

func NewRESTClient(baseURL string, perSecond float64) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &RESTClient{
		baseURL: baseURL,
		rest:    exchange.NewRESTClient(10*time.Second, perSecond, 1),
	}
}

func (c *RESTClient) Name() string { return Name }

// Search returns coins matching query as BINANCE namespaced USD pairs, the
// form the watchlist subscribes with.
func (c *RESTClient) Search(ctx context.Context, query string) ([]port.SymbolMatch, error) {
	var resp struct {
		Coins []coin `json:"coins"`
	}
	if err := c.get(ctx, "/search", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}
	out := make([]port.SymbolMatch, 0, len(resp.Coins))
	for _, cn := range resp.Coins {
		if m, ok := c.match(cn); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Trending returns the coins trending in the last 24 hours.
func (c *RESTClient) Trending(ctx context.Context) ([]port.SymbolMatch, error) {
	var resp struct {
		Coins []struct {
			Item coin `json:"item"`
		} `json:"coins"`
	}
	if err := c.get(ctx, "/search/trending", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]port.SymbolMatch, 0, len(resp.Coins))
	for _, it := range resp.Coins {
		if m, ok := c.match(it.Item); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Details fetches /coins/{id}.
func (c *RESTClient) Details(ctx context.Context, id string) (*Details, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("coingecko: empty coin id")
	}
	q := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"community_data": {"false"},
		"developer_data": {"false"},
	}
	var d Details
	if err := c.get(ctx, "/coins/"+url.PathEscape(id), q, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Prices fetches USD prices and 24h change for coin ids.
func (c *RESTClient) Prices(ctx context.Context, ids []string) (map[string]SimplePrice, error) {
	if len(ids) == 0 {
		return map[string]SimplePrice{}, nil
	}
	q := url.Values{
		"ids":                 {strings.Join(ids, ",")},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
	}
	out := make(map[string]SimplePrice, len(ids))
	if err := c.get(ctx, "/simple/price", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) match(cn coin) (port.SymbolMatch, bool) {
	base := domain.NormalizeSymbol(cn.Symbol)
	if base == "" {
		return port.SymbolMatch{}, false
	}
	return port.SymbolMatch{
		Symbol:      domain.JoinSymbol(application.PrefixBinance, base+"-USD"),
		Description: cn.Name,
		Type:        "crypto",
		Source:      Name,
	}, true
}

func (c *RESTClient) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint, err := exchange.BuildQueryURL(c.baseURL, path, q)
	if err != nil {
		return err
	}
	if err := c.rest.GetJSON(ctx, endpoint, out); err != nil {
		return fmt.Errorf("coingecko %s: %w", path, err)
	}
	return nil
}

var _ port.MetadataLookup = (*RESTClient)(nil)
