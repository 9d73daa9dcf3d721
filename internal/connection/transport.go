package connection

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one established duplex connection with framed send and
// receive primitives. *websocket.Conn satisfies it directly.
type Transport interface {
	NextReader() (messageType int, r io.Reader, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Factory produces one connected, ready-to-use transport or fails.
// Callers may substitute their own implementation; the Manager is
// factory-agnostic.
type Factory interface {
	Connect(ctx context.Context, identity SessionIdentity) (Transport, error)
}

// dialerFactory is the default Factory, dialing the relay over
// websocket with the session identity in the query string.
type dialerFactory struct {
	rawURL           string
	handshakeTimeout time.Duration
}

// NewDialerFactory creates the default websocket Factory for the given
// relay address.
func NewDialerFactory(rawURL string, handshakeTimeout time.Duration) Factory {
	return &dialerFactory{
		rawURL:           rawURL,
		handshakeTimeout: handshakeTimeout,
	}
}

// Connect dials wss://<host>?token=<token>&uuid=<uuid>.
func (f *dialerFactory) Connect(ctx context.Context, identity SessionIdentity) (Transport, error) {
	u, err := url.Parse(f.rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("token", identity.Token)
	q.Set("uuid", identity.ClientUUID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: f.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return conn, nil
}
