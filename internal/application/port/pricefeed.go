package port

import (
	"context"

	"tickerhub/internal/domain"
)

type PriceTick = domain.PriceTick

// ConnectionState is the lifecycle state of one feed connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TickSink receives normalized ticks. domain.Board implements it.
type TickSink interface {
	ApplyTick(t PriceTick)
}

// StateListener is notified on every connection state transition.
// stopped is true when the transition was caused by Stop.
type StateListener func(upstream string, state ConnectionState, stopped bool)

// FeedConnection owns one upstream transport and its subscription set.
type FeedConnection interface {
	Name() string
	// Connect starts the transport without blocking. No-op while connecting,
	// connected, stopped or unavailable.
	Connect(ctx context.Context)
	// Stop closes the transport and suppresses further connects.
	Stop()
	Subscribe(symbol string)
	Unsubscribe(symbol string)
	State() ConnectionState
	Subscriptions() []string
	// Available is false when the upstream can never connect (e.g. missing credentials).
	Available() bool
}

// ConnectionFactory builds feed connections by upstream id.
type ConnectionFactory interface {
	// Upstreams lists the upstreams a connection can be built for.
	Upstreams() []string
	Build(upstream string, listener StateListener) (FeedConnection, error)
}
