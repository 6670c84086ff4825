package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tickerhub/internal/application"
	"tickerhub/internal/application/port"
	"tickerhub/internal/infrastructure/exchange"
)

const DefaultRESTURL = "https://finnhub.io/api/v1"

// Quote is the /quote response.
type Quote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Time          int64   `json:"t"`
}

// Profile is the /stock/profile2 response.
type Profile struct {
	Name      string  `json:"name"`
	Ticker    string  `json:"ticker"`
	Exchange  string  `json:"exchange"`
	Currency  string  `json:"currency"`
	Industry  string  `json:"finnhubIndustry"`
	MarketCap float64 `json:"marketCapitalization"`
	Logo      string  `json:"logo"`
	WebURL    string  `json:"weburl"`
}

type searchResp struct {
	Count  int `json:"count"`
	Result []struct {
		Description   string `json:"description"`
		DisplaySymbol string `json:"displaySymbol"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
	} `json:"result"`
}

// RESTClient is the Finnhub metadata client.
type RESTClient struct {
	baseURL string
	apiKey  string
	rest    *exchange.RESTClient
}

// NewRESTClient creates a Finnhub REST client. The free tier allows 30 calls per second.
func NewRESTClient(baseURL, apiKey string, perSecond float64) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &RESTClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		rest:    exchange.NewRESTClient(10*time.Second, perSecond, 1),
	}
}

func (c *RESTClient) Name() string { return application.UpstreamFinnhub }

// Search looks up symbols matching query.
func (c *RESTClient) Search(ctx context.Context, query string) ([]port.SymbolMatch, error) {
	var resp searchResp
	if err := c.get(ctx, "/search", url.Values{"q": {query}}, &resp); err != nil {
		return nil, err
	}
	out := make([]port.SymbolMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Symbol == "" {
			continue
		}
		out = append(out, port.SymbolMatch{
			Symbol:      r.Symbol,
			Description: r.Description,
			Type:        r.Type,
			Source:      c.Name(),
		})
	}
	return out, nil
}

// Quote fetches the latest quote for one symbol.
func (c *RESTClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var q Quote
	if err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Profile fetches the company profile for one symbol.
func (c *RESTClient) Profile(ctx context.Context, symbol string) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, "/stock/profile2", url.Values{"symbol": {symbol}}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *RESTClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("finnhub rest: api key missing: %w", exchange.ErrUnavailable)
	}
	q.Set("token", c.apiKey)
	endpoint, err := exchange.BuildQueryURL(c.baseURL, path, q)
	if err != nil {
		return err
	}
	if err := c.rest.GetJSON(ctx, endpoint, out); err != nil {
		return fmt.Errorf("finnhub %s: %w", path, err)
	}
	return nil
}

var _ port.MetadataLookup = (*RESTClient)(nil)
