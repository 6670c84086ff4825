package websocket

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
	"tickerhub/internal/infrastructure/config"
	"tickerhub/internal/infrastructure/exchange"
	"tickerhub/internal/infrastructure/feed"
	"tickerhub/internal/infrastructure/pricefeed"

	// protocol registrations
	_ "tickerhub/internal/infrastructure/exchange/binance"
	_ "tickerhub/internal/infrastructure/exchange/finnhub"
)

// Manager builds feed connections for the configured upstreams. It is the
// port.ConnectionFactory handed to the Supervisor.
type Manager struct {
	feeds            map[string]config.FeedConfig
	sink             port.TickSink
	dialer           exchange.Dialer
	onDrop           func(upstream string)
	resubscribeDelay time.Duration
}

type ManagerOption func(*Manager)

func WithDialer(d exchange.Dialer) ManagerOption {
	return func(m *Manager) { m.dialer = d }
}

// WithDropHandler is called for every upstream frame that produced no tick.
func WithDropHandler(fn func(upstream string)) ManagerOption {
	return func(m *Manager) { m.onDrop = fn }
}

func WithResubscribeDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.resubscribeDelay = d }
}

// NewManager copies the feed table so later config edits never leak in.
func NewManager(feeds map[string]config.FeedConfig, sink port.TickSink, opts ...ManagerOption) *Manager {
	m := &Manager{
		feeds: make(map[string]config.FeedConfig, len(feeds)),
		sink:  sink,
	}
	for name, fc := range feeds {
		m.feeds[name] = fc
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Upstreams returns the enabled feeds that have a registered protocol.
func (m *Manager) Upstreams() []string {
	var out []string
	for name, fc := range m.feeds {
		if !fc.Enabled {
			continue
		}
		if _, ok := pricefeed.Get(name); !ok {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build creates a disconnected connection. A disabled or unconfigured feed
// still gets a connection: it validates as unavailable, never dials and keeps
// its subscriptions, so routing stays total.
func (m *Manager) Build(upstream string, listener port.StateListener) (port.FeedConnection, error) {
	factory, ok := pricefeed.Get(upstream)
	if !ok {
		return nil, fmt.Errorf("price feed factory not registered for upstream: %s", upstream)
	}

	fc := m.feeds[upstream]
	opts := pricefeed.Options{APIKey: fc.APIKey}
	if fc.Enabled {
		opts.WsURL = fc.WsURL
	}

	connOpts := []feed.Option{
		feed.WithStateListener(listener),
		feed.WithResubscribeDelay(m.resubscribeDelay),
	}
	if m.dialer != nil {
		connOpts = append(connOpts, feed.WithDialer(m.dialer))
	}
	if m.onDrop != nil {
		connOpts = append(connOpts, feed.WithDropHandler(m.onDrop))
	}

	conn := feed.NewConnection(factory(opts), m.sink, connOpts...)
	log.Info().Str("feed", upstream).Bool("available", conn.Available()).Msg("feed connection initialized")
	return conn, nil
}

var _ port.ConnectionFactory = (*Manager)(nil)
