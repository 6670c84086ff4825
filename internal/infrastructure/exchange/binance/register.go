package binance

import (
	"tickerhub/internal/application"
	"tickerhub/internal/infrastructure/exchange"
	"tickerhub/internal/infrastructure/pricefeed"
)

// init() registers the Binance protocol factory so wiring code never hardcodes venues
func init() {
	pricefeed.Register(application.UpstreamBinance, func(opts pricefeed.Options) exchange.Protocol {
		return NewTickerFeed(opts.WsURL)
	})
}
