package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/fakeyudi/scopecomms/internal/wire"
)

// streamConn frames a byte stream. Used for TCP and in-memory pipes.
type streamConn struct {
	c   net.Conn
	r   *bufio.Reader
	wmu sync.Mutex
}

func newStreamConn(c net.Conn) *streamConn {
	return &streamConn{c: c, r: bufio.NewReaderSize(c, 32<<10)}
}

func (s *streamConn) Send(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.c.Write(b)
	return err
}

func (s *streamConn) Recv() (*wire.Frame, error) {
	return wire.ReadFrame(s.r)
}

func (s *streamConn) SetWriteDeadline(t time.Time) error { return s.c.SetWriteDeadline(t) }
func (s *streamConn) RemoteAddr() string                 { return s.c.RemoteAddr().String() }
func (s *streamConn) Close() error                       { return s.c.Close() }

// TCPDialer dials a perf server over TCP.
type TCPDialer struct {
	Addr string
}

func (d *TCPDialer) Dial(ctx context.Context) (Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return newStreamConn(c), nil
}

// TCPListener accepts sessions over TCP.
type TCPListener struct {
	ln *net.TCPListener
}

// ListenTCP listens on addr ("host:port", port 0 picks a free one).
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln.(*net.TCPListener)}, nil
}

func (l *TCPListener) Accept(ctx context.Context) (Conn, error) {
	l.ln.SetDeadline(time.Time{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.ln.SetDeadline(time.Now())
		case <-done:
		}
	}()
	c, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return newStreamConn(c), nil
}

func (l *TCPListener) Addr() string { return l.ln.Addr().String() }
func (l *TCPListener) Close() error { return l.ln.Close() }
