package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
	"tickerhub/internal/domain"
	"tickerhub/internal/infrastructure/exchange"
)

// Connection owns one upstream transport and the set of symbols subscribed on it.
//
// It never reconnects on its own: after a transport failure it reports
// Disconnected and waits for the next Connect. The subscription set survives
// and is replayed exactly once on every successful connect.
type Connection struct {
	protocol exchange.Protocol
	dialer   exchange.Dialer
	sink     port.TickSink

	onState          port.StateListener
	onDrop           func(upstream string)
	resubscribeDelay time.Duration

	// unavailable is fixed at construction; such a connection never dials.
	unavailable error

	mu      sync.Mutex
	state   port.ConnectionState
	stopped bool
	// live is set once the replay snapshot is taken; from then on
	// Subscribe/Unsubscribe write frames themselves.
	live    bool
	subs    map[string]struct{}
	conn    exchange.Conn
	cancel  context.CancelFunc
	session string

	// lock order: mu before writeMu
	writeMu sync.Mutex
}

type Option func(*Connection)

func WithDialer(d exchange.Dialer) Option {
	return func(c *Connection) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithStateListener is called on every state transition, outside any lock.
func WithStateListener(l port.StateListener) Option {
	return func(c *Connection) { c.onState = l }
}

// WithDropHandler is called for every inbound frame that was discarded.
func WithDropHandler(fn func(upstream string)) Option {
	return func(c *Connection) { c.onDrop = fn }
}

// WithResubscribeDelay waits d after the handshake before replaying subscriptions.
func WithResubscribeDelay(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.resubscribeDelay = d
		}
	}
}

func NewConnection(protocol exchange.Protocol, sink port.TickSink, opts ...Option) *Connection {
	c := &Connection{
		protocol: protocol,
		dialer:   exchange.WSDialer{},
		sink:     sink,
		state:    port.StateDisconnected,
		subs:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := protocol.Validate(); err != nil {
		c.unavailable = err
		log.Warn().Str("feed", protocol.Name()).Err(err).Msg("upstream unavailable, symbols will be queued only")
	}
	return c
}

func (c *Connection) Name() string { return c.protocol.Name() }

func (c *Connection) Available() bool { return c.unavailable == nil }

func (c *Connection) State() port.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscriptions returns the subscription set, sorted.
func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	c.mu.Unlock()
	sort.Strings(out)
	return out
}

// Connect starts the transport on a goroutine and returns immediately.
func (c *Connection) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.stopped || c.unavailable != nil || c.state != port.StateDisconnected {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	session := uuid.NewString()
	c.state = port.StateConnecting
	c.cancel = cancel
	c.session = session
	c.mu.Unlock()

	c.emit(port.StateConnecting, false)
	go c.run(runCtx, session)
}

// Stop closes the transport and suppresses any later Connect.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.state = port.StateDisconnected
	c.live = false
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn, c.session = nil, nil, ""
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("feed", c.Name()).Msg("feed stopped")
	c.emit(port.StateDisconnected, true)
}

// Subscribe adds symbol to the set and, when live, sends the subscribe frame.
// A symbol already in the set sends nothing.
func (c *Connection) Subscribe(symbol string) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return
	}

	c.mu.Lock()
	if _, ok := c.subs[symbol]; ok {
		c.mu.Unlock()
		return
	}
	c.subs[symbol] = struct{}{}
	if !c.live {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.writeMu.Lock()
	c.mu.Unlock()
	defer c.writeMu.Unlock()

	c.sendLocked(conn, symbol, c.protocol.SubscribeFrame)
}

// Unsubscribe removes symbol from the set and, when live, sends the unsubscribe frame.
func (c *Connection) Unsubscribe(symbol string) {
	symbol = domain.NormalizeSymbol(symbol)

	c.mu.Lock()
	if _, ok := c.subs[symbol]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, symbol)
	if !c.live {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.writeMu.Lock()
	c.mu.Unlock()
	defer c.writeMu.Unlock()

	c.sendLocked(conn, symbol, c.protocol.UnsubscribeFrame)
}

func (c *Connection) run(ctx context.Context, session string) {
	name := c.Name()
	logger := log.With().Str("feed", name).Str("session", session).Logger()

	url, err := c.protocol.URL()
	if err != nil {
		logger.Warn().Err(err).Msg("feed url")
		c.disconnected(session, nil)
		return
	}

	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		logger.Warn().Err(err).Msg("feed dial failed")
		c.disconnected(session, nil)
		return
	}

	c.mu.Lock()
	if c.stopped || c.session != session {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = port.StateConnected
	c.mu.Unlock()

	defer c.disconnected(session, conn)

	logger.Info().Msg("feed connected")
	c.emit(port.StateConnected, false)

	if c.resubscribeDelay > 0 {
		t := time.NewTimer(c.resubscribeDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if !c.replay(session) {
		return
	}

	err = exchange.ReadLoop(ctx, conn, c.handle)
	if ctx.Err() == nil {
		logger.Warn().Err(err).Msg("feed transport closed")
	}
}

// replay sends one subscribe frame per symbol in the set. Symbols added after
// the snapshot are sent by Subscribe instead.
func (c *Connection) replay(session string) bool {
	c.mu.Lock()
	if c.stopped || c.session != session || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	c.live = true
	conn := c.conn
	syms := make([]string, 0, len(c.subs))
	for s := range c.subs {
		syms = append(syms, s)
	}
	c.writeMu.Lock()
	c.mu.Unlock()
	defer c.writeMu.Unlock()

	sort.Strings(syms)
	for _, s := range syms {
		c.sendLocked(conn, s, c.protocol.SubscribeFrame)
	}
	if len(syms) > 0 {
		log.Debug().Str("feed", c.Name()).Int("symbols", len(syms)).Msg("subscriptions replayed")
	}
	return true
}

// disconnected closes conn and, if session is still current, moves to Disconnected.
func (c *Connection) disconnected(session string, conn exchange.Conn) {
	if conn != nil {
		_ = conn.Close()
	}

	c.mu.Lock()
	current := c.session == session && !c.stopped
	if current {
		c.state = port.StateDisconnected
		c.live = false
		c.conn = nil
		c.session = ""
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
	}
	c.mu.Unlock()

	if current {
		c.emit(port.StateDisconnected, false)
	}
}

func (c *Connection) handle(raw []byte) {
	name := c.Name()
	msg, err := exchange.Decode(name, raw)
	if err != nil {
		log.Debug().Str("feed", name).Err(err).Msg("frame dropped")
		c.drop()
		return
	}

	switch m := msg.(type) {
	case exchange.Keepalive:
		if pong := c.protocol.PongFrame(); pong != nil {
			c.write(pong)
		}
	case exchange.Control:
		ev := log.Debug()
		if m.Kind == "error" {
			ev = log.Warn()
		}
		ev.Str("feed", name).Str("kind", m.Kind).Str("detail", m.Detail).Msg("control frame")
	default:
		ticks := exchange.Normalize(msg)
		if len(ticks) == 0 && msg.CarriesTicks() {
			c.drop()
			return
		}
		for _, t := range ticks {
			c.sink.ApplyTick(t)
		}
	}
}

func (c *Connection) write(b []byte) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(exchange.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warn().Str("feed", c.Name()).Err(err).Msg("feed write failed")
	}
}

// sendLocked writes one frame built by build. Caller holds writeMu.
func (c *Connection) sendLocked(conn exchange.Conn, symbol string, build func(string) ([]byte, error)) {
	if conn == nil {
		return
	}
	b, err := build(symbol)
	if err != nil {
		log.Warn().Str("feed", c.Name()).Str("symbol", symbol).Err(err).Msg("cannot build frame")
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(exchange.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		// the read loop sees the broken transport and disconnects; the set is kept
		log.Warn().Str("feed", c.Name()).Str("symbol", symbol).Err(err).Msg("feed write failed")
	}
}

func (c *Connection) drop() {
	if c.onDrop != nil {
		c.onDrop(c.Name())
	}
}

func (c *Connection) emit(state port.ConnectionState, stopped bool) {
	if c.onState != nil {
		c.onState(c.Name(), state, stopped)
	}
}

var _ port.FeedConnection = (*Connection)(nil)
