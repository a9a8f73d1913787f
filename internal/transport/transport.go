// Package transport moves framed scopecomms records between a session and a
// perf server. It knows frame boundaries but nothing about record contents.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fakeyudi/scopecomms/internal/wire"
)

var (
	ErrClosed     = errors.New("transport: closed")
	ErrBadAddress = errors.New("transport: unsupported address")
)

// Conn is a bidirectional frame stream.
type Conn interface {
	// Send writes b, which holds one or more complete frames.
	Send(b []byte) error
	// Recv blocks until the next frame arrives.
	Recv() (*wire.Frame, error)
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// Dialer opens client connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// Listener accepts server-side connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

// ParseAddress returns a dialer for addr. Accepted forms are "host:port",
// "tcp://host:port" and "ws://host:port/path" (or wss://).
func ParseAddress(addr string) (Dialer, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadAddress)
	}
	if !strings.Contains(addr, "://") {
		return &TCPDialer{Addr: addr}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q has no host", ErrBadAddress, addr)
		}
		return &TCPDialer{Addr: u.Host}, nil
	case "ws", "wss":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q has no host", ErrBadAddress, addr)
		}
		return &WebSocketDialer{URL: u.String()}, nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrBadAddress, u.Scheme)
	}
}
