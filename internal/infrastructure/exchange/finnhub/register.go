package finnhub

import (
	"tickerhub/internal/application"
	"tickerhub/internal/infrastructure/exchange"
	"tickerhub/internal/infrastructure/pricefeed"
)

func init() {
	pricefeed.Register(application.UpstreamFinnhub, func(opts pricefeed.Options) exchange.Protocol {
		return NewTradeFeed(opts.WsURL, opts.APIKey)
	})
}
