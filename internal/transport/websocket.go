package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fakeyudi/scopecomms/internal/wire"
)

// A batch may hold a maximal frame plus whatever was coalesced before it.
const wsReadLimit = 2 * (wire.MaxPayloadSize + wire.FrameHeaderSize)

// wsConn carries frames in binary messages. A message holds one or more
// whole frames; frames never span messages.
type wsConn struct {
	c       *websocket.Conn
	wmu     sync.Mutex
	pending []byte
}

func newWSConn(c *websocket.Conn) *wsConn {
	c.SetReadLimit(wsReadLimit)
	return &wsConn{c: c}
}

func (w *wsConn) Send(b []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.c.WriteMessage(websocket.BinaryMessage, b)
}

func (w *wsConn) Recv() (*wire.Frame, error) {
	for len(w.pending) == 0 {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		w.pending = data
	}
	f, rest, err := wire.SplitFrame(w.pending)
	if err != nil {
		w.pending = nil
		return nil, fmt.Errorf("websocket message: %w", err)
	}
	w.pending = rest
	return f, nil
}

func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.c.SetWriteDeadline(t) }
func (w *wsConn) RemoteAddr() string                 { return w.c.RemoteAddr().String() }
func (w *wsConn) Close() error                       { return w.c.Close() }

// WebSocketDialer dials a perf server's WebSocket endpoint.
type WebSocketDialer struct {
	URL string
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(c), nil
}

// WebSocketListener upgrades HTTP requests on one path and hands the
// resulting connections to Accept.
type WebSocketListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	conns    chan Conn
	done     chan struct{}
	once     sync.Once
}

// ListenWebSocket serves WebSocket upgrades for path on addr.
func ListenWebSocket(addr, path string) (*WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &WebSocketListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(chan Conn, 16),
		done:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *WebSocketListener) handle(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case l.conns <- newWSConn(c):
	case <-l.done:
		c.Close()
	}
}

func (l *WebSocketListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WebSocketListener) Addr() string { return l.ln.Addr().String() }

func (l *WebSocketListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	})
	return err
}
