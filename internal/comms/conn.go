package comms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fakeyudi/scopecomms/internal/transport"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// run is the connector loop. It dials, serves a connection until it fails
// and redials after the reconnect delay, until Shutdown.
func (s *Session) run() {
	defer close(s.done)
	for !s.closed.Load() {
		s.setState(StateConnecting)
		conn, err := s.dial()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Debug("connect failed", "err", err)
			s.setState(StateDisconnected)
			if !s.sleep(s.opts.reconnectDelay) {
				return
			}
			continue
		}
		s.log.Info("connected", "remote", conn.RemoteAddr())
		s.serve(conn)
		if s.closed.Load() || !s.sleep(s.opts.reconnectDelay) {
			return
		}
	}
}

func (s *Session) dial() (transport.Conn, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.connectTimeout)
	defer cancel()
	return s.dialer.Dial(ctx)
}

func (s *Session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// serve runs one connection. The preamble is built under the owner lock in
// the same step that makes the connection live, so no owner record can be
// queued ahead of it.
func (s *Session) serve(conn transport.Conn) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		conn.Close()
		return
	}
	preamble, err := s.preambleLocked()
	if err != nil {
		s.mu.Unlock()
		s.log.Error("building preamble", "err", err)
		conn.Close()
		return
	}
	sendCh := make(chan []byte, 1)
	s.sendCh = sendCh
	s.out.reset()
	// A failure on the previous connection is not this one's to report.
	s.setWriteErr(nil)
	s.mu.Unlock()

	s.setState(StateConnected)
	s.metrics.connects.Inc()
	s.metrics.connected.Set(1)

	stop := make(chan struct{})
	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errc <- s.writeLoop(conn, preamble, sendCh, stop)
	}()
	go func() {
		defer wg.Done()
		errc <- s.readLoop(conn, stop)
	}()

	var cause error
	select {
	case cause = <-errc:
	case <-s.ctx.Done():
	}

	s.mu.Lock()
	if s.sendCh == sendCh {
		s.sendCh = nil
	}
	s.out.reset()
	s.mu.Unlock()
	s.metrics.connected.Set(0)
	s.setState(StateDisconnected)

	close(stop)
	conn.Close()
	wg.Wait()
	if cause != nil && !s.closed.Load() {
		s.log.Warn("connection lost", "err", cause)
	}
}

// preambleLocked encodes what a server needs before any other record:
// Hello, then the library and counter definitions if they exist.
func (s *Session) preambleLocked() ([]byte, error) {
	b, err := wire.EncodeHello(s.instance, s.name)
	if err != nil {
		return nil, err
	}
	if s.lib.created {
		f, err := wire.EncodeLibraryCreate(s.lib.items)
		if err != nil {
			return nil, err
		}
		b = append(b, f...)
	}
	if s.ctrs.created {
		f, err := wire.EncodeCounterDefs(s.ctrs.names)
		if err != nil {
			return nil, err
		}
		b = append(b, f...)
	}
	return b, nil
}

func (s *Session) writeLoop(conn transport.Conn, preamble []byte, sendCh <-chan []byte, stop <-chan struct{}) error {
	if err := s.write(conn, preamble); err != nil {
		return err
	}
	for {
		select {
		case b, ok := <-sendCh:
			if !ok {
				return nil
			}
			if err := s.write(conn, b); err != nil {
				return err
			}
		case <-stop:
			return nil
		}
	}
}

func (s *Session) write(conn transport.Conn, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
	if err := conn.Send(b); err != nil {
		s.metrics.writeFailures.Inc()
		s.setWriteErr(err)
		return fmt.Errorf("write: %w", err)
	}
	s.metrics.bytesSent.Add(float64(len(b)))
	return nil
}

func (s *Session) readLoop(conn transport.Conn, stop <-chan struct{}) error {
	for {
		f, err := conn.Recv()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return fmt.Errorf("read: %w", err)
			}
		}
		rec, err := wire.Decode(f)
		if err != nil {
			s.log.Warn("bad inbound frame", "err", err)
			continue
		}
		e, ok := rec.(wire.Edit)
		if !ok {
			s.log.Debug("ignoring inbound record", "type", f.Type)
			continue
		}
		s.metrics.editsReceived.Inc()
		if !s.receiveEdit(e, stop) {
			return nil
		}
	}
}

// receiveEdit queues e for the owner. It blocks while the queue is full,
// which pushes back on the server, and gives up when stop closes.
func (s *Session) receiveEdit(e wire.Edit, stop <-chan struct{}) bool {
	select {
	case s.edits <- e:
		return true
	case <-stop:
		return false
	}
}
