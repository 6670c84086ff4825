package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrUnavailable marks an upstream that can never connect with the current
// configuration, typically because credentials are missing.
var ErrUnavailable = errors.New("upstream unavailable")

// Protocol describes one upstream's wire contract.
type Protocol interface {
	Name() string
	// Validate returns an error wrapping ErrUnavailable when the upstream cannot be used.
	Validate() error
	URL() (string, error)
	SubscribeFrame(symbol string) ([]byte, error)
	UnsubscribeFrame(symbol string) ([]byte, error)
	// PongFrame is the in-band reply to a Keepalive message, nil if the upstream never sends one.
	PongFrame() []byte
}

// Conn is the part of *websocket.Conn used by feed connections.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a transport. Dial returns once the handshake has completed.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials gorilla websocket connections.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

func (d WSDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Transport liveness settings
const (
	ReadTimeout  = 60 * time.Second
	PingInterval = 25 * time.Second
	WriteTimeout = 5 * time.Second
)

// ReadLoop reads messages until the connection fails or ctx is done, sending
// a control ping every PingInterval and extending the read deadline on each
// frame or pong.
func ReadLoop(ctx context.Context, conn Conn, onMessage func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		return nil
	})

	pingTicker := time.NewTicker(PingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
			onMessage(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(WriteTimeout))
		}
	}
}

// BuildQueryURL builds a URL with query parameters
func BuildQueryURL(base, path string, query url.Values) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("base url is empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", base, err)
	}
	if path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + path
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}
