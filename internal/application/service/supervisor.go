package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
)

// RetryConfig controls reconnect backoff.
type RetryConfig struct {
	MaxRetries   int           // consecutive failures before giving up, 0 = unlimited
	InitialDelay time.Duration // first backoff
	MaxDelay     time.Duration // backoff cap
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:   0,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// UpstreamStatus is the view of one connection exposed to consumers.
type UpstreamStatus struct {
	Name          string   `json:"name"`
	State         string   `json:"state"`
	Connected     bool     `json:"connected"`
	Available     bool     `json:"available"`
	Subscriptions []string `json:"subscriptions"`
}

type retryState struct {
	attempts int
	delay    time.Duration
	timer    *time.Timer
}

// Supervisor owns the feed connections, routes symbols to them and
// reconnects them with exponential backoff after transport failures.
//
// Connection methods are never called while mu is held: they report state
// changes synchronously through the listener, which takes mu.
type Supervisor struct {
	router   *Router
	factory  port.ConnectionFactory
	retry    RetryConfig
	observer port.StateListener

	mu      sync.Mutex
	ctx     context.Context
	gen     int
	conns   map[string]port.FeedConnection
	retries map[string]*retryState
	status  map[string]bool
}

type SupervisorOption func(*Supervisor)

func WithRetryConfig(cfg RetryConfig) SupervisorOption {
	return func(s *Supervisor) {
		if cfg.InitialDelay <= 0 {
			cfg.InitialDelay = DefaultRetryConfig.InitialDelay
		}
		if cfg.MaxDelay < cfg.InitialDelay {
			cfg.MaxDelay = cfg.InitialDelay
		}
		if cfg.MaxRetries < 0 {
			cfg.MaxRetries = 0
		}
		s.retry = cfg
	}
}

// WithStateObserver receives every state transition of every connection.
func WithStateObserver(l port.StateListener) SupervisorOption {
	return func(s *Supervisor) { s.observer = l }
}

func NewSupervisor(router *Router, factory port.ConnectionFactory, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		router:  router,
		factory: factory,
		retry:   DefaultRetryConfig,
		conns:   make(map[string]port.FeedConnection),
		retries: make(map[string]*retryState),
		status:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectAll subscribes every symbol on its owning connection and starts the
// connections that are needed. Cancelling ctx tears the connections down.
func (s *Supervisor) ConnectAll(ctx context.Context, symbols []string) {
	parts := s.router.Partition(symbols)
	upstreams := make([]string, 0, len(parts))
	for u := range parts {
		upstreams = append(upstreams, u)
	}
	sort.Strings(upstreams)

	s.mu.Lock()
	s.ctx = ctx
	started := make(map[string]port.FeedConnection, len(parts))
	for _, upstream := range upstreams {
		conn, err := s.connectionLocked(upstream)
		if err != nil {
			log.Warn().Str("feed", upstream).Strs("symbols", parts[upstream]).Err(err).Msg("no connection for upstream, symbols skipped")
			continue
		}
		started[upstream] = conn
	}
	s.mu.Unlock()

	for _, upstream := range upstreams {
		conn, ok := started[upstream]
		if !ok {
			continue
		}
		for _, sym := range parts[upstream] {
			conn.Subscribe(sym)
		}
		conn.Connect(ctx)
	}
	log.Info().Int("symbols", len(symbols)).Int("feeds", len(started)).Msg("supervisor connected")
}

// DisconnectAll stops every connection and cancels pending retries. Price
// state in the Board is left untouched.
func (s *Supervisor) DisconnectAll() {
	s.mu.Lock()
	s.gen++
	conns := s.conns
	for _, r := range s.retries {
		if r.timer != nil {
			r.timer.Stop()
		}
	}
	s.conns = make(map[string]port.FeedConnection)
	s.retries = make(map[string]*retryState)
	s.status = make(map[string]bool)
	s.mu.Unlock()

	for _, c := range conns {
		c.Stop()
	}
	log.Info().Int("feeds", len(conns)).Msg("supervisor disconnected")
}

// SubscribeToSymbol routes symbol and subscribes it, starting the owning
// connection if needed.
func (s *Supervisor) SubscribeToSymbol(ctx context.Context, symbol string) error {
	symbol = s.router.Canonical(symbol)
	if symbol == "" {
		return errors.New("empty symbol")
	}
	upstream := s.router.Route(symbol)

	s.mu.Lock()
	if s.ctx == nil {
		// first use outside ConnectAll: the connection must outlive the caller's request
		s.ctx = context.WithoutCancel(ctx)
	}
	runCtx := s.ctx
	conn, err := s.connectionLocked(upstream)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	conn.Subscribe(symbol)
	conn.Connect(runCtx)
	return nil
}

// UnsubscribeFromSymbol removes symbol from its owning connection, if any.
func (s *Supervisor) UnsubscribeFromSymbol(symbol string) {
	symbol = s.router.Canonical(symbol)
	upstream := s.router.Route(symbol)

	s.mu.Lock()
	conn := s.conns[upstream]
	s.mu.Unlock()

	if conn != nil {
		conn.Unsubscribe(symbol)
	}
}

// Status returns the connectivity of every upstream with a connection.
func (s *Supervisor) Status() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Upstreams describes every connection, sorted by name.
func (s *Supervisor) Upstreams() []UpstreamStatus {
	s.mu.Lock()
	conns := make([]port.FeedConnection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	out := make([]UpstreamStatus, 0, len(conns))
	for _, c := range conns {
		st := c.State()
		out = append(out, UpstreamStatus{
			Name:          c.Name(),
			State:         st.String(),
			Connected:     st == port.StateConnected,
			Available:     c.Available(),
			Subscriptions: c.Subscriptions(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) connectionLocked(upstream string) (port.FeedConnection, error) {
	if c, ok := s.conns[upstream]; ok {
		return c, nil
	}
	c, err := s.factory.Build(upstream, s.listener(s.gen))
	if err != nil {
		return nil, err
	}
	s.conns[upstream] = c
	s.status[upstream] = false
	return c, nil
}

// listener is bound to a generation so callbacks from connections stopped by
// DisconnectAll are ignored.
func (s *Supervisor) listener(gen int) port.StateListener {
	return func(upstream string, state port.ConnectionState, stopped bool) {
		if s.observer != nil {
			s.observer(upstream, state, stopped)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		switch state {
		case port.StateConnected:
			s.status[upstream] = true
			if r := s.retries[upstream]; r != nil {
				r.attempts = 0
				r.delay = s.retry.InitialDelay
			}
		case port.StateDisconnected:
			if _, ok := s.status[upstream]; ok {
				s.status[upstream] = false
			}
			if !stopped {
				s.scheduleLocked(upstream)
			}
		}
	}
}

func (s *Supervisor) scheduleLocked(upstream string) {
	conn := s.conns[upstream]
	if conn == nil || !conn.Available() {
		return
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}

	r := s.retries[upstream]
	if r == nil {
		r = &retryState{delay: s.retry.InitialDelay}
		s.retries[upstream] = r
	}
	if r.timer != nil {
		return
	}
	if s.retry.MaxRetries > 0 && r.attempts >= s.retry.MaxRetries {
		log.Error().Str("feed", upstream).Int("attempts", r.attempts).Msg("giving up reconnecting")
		return
	}

	delay := r.delay
	r.attempts++
	r.delay *= 2
	if r.delay > s.retry.MaxDelay {
		r.delay = s.retry.MaxDelay
	}

	gen, ctx := s.gen, s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	log.Info().Str("feed", upstream).Int("attempt", r.attempts).Int64("delay_ms", delay.Milliseconds()).Msg("reconnecting")

	r.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		r.timer = nil
		c := s.conns[upstream]
		s.mu.Unlock()

		if c != nil && ctx.Err() == nil {
			c.Connect(ctx)
		}
	})
}
