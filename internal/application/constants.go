package application

// Upstream identifiers
const (
	UpstreamBinance = "binance"
	UpstreamFinnhub = "finnhub"
)

// Canonical namespace prefixes
const (
	PrefixBinance = "BINANCE"
)
