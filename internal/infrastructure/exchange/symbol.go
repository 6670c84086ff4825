package exchange

import (
	"strings"

	"tickerhub/internal/domain"
)

// SymbolConverter translates between canonical and venue-native symbols.
type SymbolConverter interface {
	// ToCanonical rewrites a venue symbol into the canonical form.
	// e.g. BTCUSDT -> BINANCE:BTC-USD
	ToCanonical(venue string) (domain.Symbol, bool)

	// ToVenue rewrites a canonical symbol into the venue form.
	// e.g. BINANCE:BTC-USD -> BTCUSDT
	ToVenue(symbol domain.Symbol) (string, bool)
}

// knownQuotes are tried, longest first, when splitting a compact venue symbol.
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "TUSD", "BUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// CommonSymbolConverter handles venues that concatenate base and quote
// (BTCUSDT) while the canonical form is dashed and prefixed (BINANCE:BTC-USD).
type CommonSymbolConverter struct {
	prefix         string
	venueQuote     string
	canonicalQuote string
}

// NewCommonSymbolConverter creates a converter. venueQuote is rewritten to
// canonicalQuote in both directions, e.g. USDT <-> USD.
func NewCommonSymbolConverter(prefix, venueQuote, canonicalQuote string) *CommonSymbolConverter {
	return &CommonSymbolConverter{
		prefix:         domain.NormalizeSymbol(prefix),
		venueQuote:     domain.NormalizeSymbol(venueQuote),
		canonicalQuote: domain.NormalizeSymbol(canonicalQuote),
	}
}

// Prefix returns the canonical namespace this converter owns.
func (c *CommonSymbolConverter) Prefix() string { return c.prefix }

func (c *CommonSymbolConverter) ToCanonical(venue string) (domain.Symbol, bool) {
	sym := domain.NormalizeSymbol(venue)
	if sym == "" {
		return "", false
	}

	quotes := knownQuotes
	if c.venueQuote != "" {
		quotes = append([]string{c.venueQuote}, knownQuotes...)
	}
	for _, q := range quotes {
		if len(sym) <= len(q) || !strings.HasSuffix(sym, q) {
			continue
		}
		base := strings.TrimSuffix(sym, q)
		if q == c.venueQuote && c.canonicalQuote != "" {
			q = c.canonicalQuote
		}
		return domain.JoinSymbol(c.prefix, base+"-"+q), true
	}
	// unknown quote: keep the compact form under the prefix
	return domain.JoinSymbol(c.prefix, sym), true
}

func (c *CommonSymbolConverter) ToVenue(symbol domain.Symbol) (string, bool) {
	prefix, body := domain.SplitSymbol(domain.NormalizeSymbol(symbol))
	if prefix != c.prefix || body == "" {
		return "", false
	}

	i := strings.LastIndexByte(body, '-')
	if i < 0 {
		// already compact, e.g. BINANCE:BTCUSDT
		return body, true
	}
	base, quote := body[:i], body[i+1:]
	if base == "" || quote == "" {
		return "", false
	}
	if quote == c.canonicalQuote && c.venueQuote != "" {
		quote = c.venueQuote
	}
	return base + quote, true
}

// Canonicalize rewrites any spelling of a symbol in this namespace into the
// key its ticks are stored under, e.g. BINANCE:ETHBTC -> BINANCE:ETH-BTC.
func (c *CommonSymbolConverter) Canonicalize(symbol string) (domain.Symbol, bool) {
	venue, ok := c.ToVenue(symbol)
	if !ok {
		return "", false
	}
	return c.ToCanonical(venue)
}
