// Package perfserver is the receiving end of scopecomms sessions. It accepts
// clients on any number of listeners, rebuilds their marks, spans and counter
// history, and pushes library edits back to them.
package perfserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/internal/ring"
	"github.com/fakeyudi/scopecomms/internal/transport"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

var (
	ErrUnknownClient = errors.New("perfserver: unknown client")
	ErrNoSuchItem    = errors.New("perfserver: no such library item")
	ErrBadValue      = errors.New("perfserver: value does not fit item")
)

const (
	defaultHistory = 1024
	recentClients  = 16
	editTimeout    = 2 * time.Second
)

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *log.Logger) Option { return func(s *Server) { s.log = l } }

// WithRegisterer registers the server metrics with reg. Nil leaves them
// unregistered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.reg = reg }
}

// WithHistory bounds the samples, marks and spans kept per client.
func WithHistory(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.history = n
		}
	}
}

// WithOnClose sets a hook called with the final snapshot of every client
// that sent a Hello, after it disconnects.
func WithOnClose(fn func(Snapshot)) Option {
	return func(s *Server) { s.onClose = fn }
}

// Server tracks connected clients.
type Server struct {
	log     *log.Logger
	reg     prometheus.Registerer
	metrics *serverMetrics
	history int
	onClose func(Snapshot)
	now     func() time.Time

	mu      sync.RWMutex
	clients map[string]*entry
	recent  *ring.Queue[Snapshot]
}

type entry struct {
	*client
	conn transport.Conn
	// wmu serialises edits; Conn.Send is safe but deadlines are not.
	wmu sync.Mutex
}

func New(opts ...Option) *Server {
	s := &Server{
		history: defaultHistory,
		now:     time.Now,
		clients: make(map[string]*entry),
		recent:  ring.New[Snapshot](recentClients),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logging.Named("server")
	}
	s.metrics = newServerMetrics(s.reg)
	return s
}

// Serve accepts clients on ln until ctx is done or ln is closed. It returns
// after every client it accepted has been torn down.
func (s *Server) Serve(ctx context.Context, ln transport.Listener) error {
	s.log.Info("listening", "addr", ln.Addr())
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		s.metrics.accepted.Inc()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// ServeAll runs Serve on every listener and returns once all of them stop.
func (s *Server) ServeAll(ctx context.Context, lns ...transport.Listener) error {
	errs := make([]error, len(lns))
	var wg sync.WaitGroup
	for i, ln := range lns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Serve(ctx, ln)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *Server) handle(ctx context.Context, conn transport.Conn) {
	e := &entry{client: newClient(uuid.NewString(), conn.RemoteAddr(), s.history, s.now()), conn: conn}
	s.mu.Lock()
	s.clients[e.id] = e
	s.mu.Unlock()
	s.metrics.clients.Inc()
	clog := s.log.With("client", e.id[:8], "remote", e.remote)
	clog.Debug("client attached")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	err := s.read(e, clog)
	conn.Close()

	s.mu.Lock()
	delete(s.clients, e.id)
	e.ended = s.now()
	if !e.goodbye {
		e.closeOpen(e.last)
	}
	snap := e.snapshot()
	if e.hello {
		s.recent.Push(snap)
	}
	s.mu.Unlock()
	s.metrics.clients.Dec()

	switch {
	case snap.Goodbye:
		clog.Info("client said goodbye", "app", snap.App, "records", snap.Records)
	case ctx.Err() != nil:
		clog.Debug("client detached on shutdown", "app", snap.App)
	default:
		clog.Warn("client dropped", "app", snap.App, "err", err)
	}
	if snap.UnmatchedEnds > 0 || snap.OpenSpans > 0 {
		clog.Warn("unbalanced processing spans", "app", snap.App, "unmatched_ends", snap.UnmatchedEnds)
	}
	if e.hello && s.onClose != nil {
		s.onClose(snap)
	}
}

// read applies records until the connection fails.
func (s *Server) read(e *entry, clog *log.Logger) error {
	for {
		f, err := e.conn.Recv()
		if err != nil {
			return err
		}
		rec, err := wire.Decode(f)
		if err != nil {
			s.metrics.badFrames.Inc()
			s.mu.Lock()
			e.badFrames++
			s.mu.Unlock()
			clog.Warn("bad frame", "type", f.Type, "err", err)
			continue
		}
		s.metrics.records.WithLabelValues(rec.Type().String()).Inc()

		s.mu.Lock()
		gaps := e.seqGaps
		e.apply(rec)
		gaps = e.seqGaps - gaps
		s.mu.Unlock()
		if gaps > 0 {
			s.metrics.seqGaps.Add(float64(gaps))
		}

		switch r := rec.(type) {
		case wire.Hello:
			clog.Info("client hello", "app", r.Name, "instance", r.Instance, "version", fmt.Sprintf("%d.%d", r.Major, r.Minor))
		case wire.Library:
			clog.Debug("library registered", "items", len(r.Items))
		case wire.CounterDefs:
			clog.Debug("counters registered", "counters", len(r.Names))
		}
	}
}

// Clients returns snapshots of every attached client, oldest first.
func (s *Server) Clients() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.clients))
	for _, e := range s.clients {
		out = append(out, e.snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Connected.Before(out[j].Connected) })
	return out
}

// Recent returns the final snapshots of recently disconnected clients,
// oldest first.
func (s *Server) Recent() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent.Slice()
}

// Snapshot returns the state of the attached client id.
func (s *Server) Snapshot(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.clients[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	return e.snapshot(), nil
}

// Edit sends a new value for library item of client id. The value must suit
// the item's type; on success it becomes the item's live value.
func (s *Server) Edit(id string, item uint32, data []byte) error {
	s.mu.RLock()
	e, ok := s.clients[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	return s.edit(e, item, data)
}

// EditByName sends data to every attached client that has a String item
// called name and returns how many were updated.
func (s *Server) EditByName(name string, data []byte) (int, error) {
	type target struct {
		e    *entry
		item uint32
	}
	var targets []target
	s.mu.RLock()
	for _, e := range s.clients {
		for i, it := range e.items {
			if it.Name == name && it.Type == wire.ItemString {
				targets = append(targets, target{e, uint32(i)})
			}
		}
	}
	s.mu.RUnlock()

	var errs []error
	n := 0
	for _, t := range targets {
		if err := s.edit(t.e, t.item, data); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *Server) edit(e *entry, item uint32, data []byte) error {
	s.mu.RLock()
	if int(item) >= len(e.items) {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %d", ErrNoSuchItem, item)
	}
	typ := e.items[item].Type
	s.mu.RUnlock()
	if err := checkValue(typ, data); err != nil {
		return fmt.Errorf("%w: item %d: %w", ErrBadValue, item, err)
	}
	frame, err := wire.EncodeEdit(item, data)
	if err != nil {
		return err
	}

	e.wmu.Lock()
	e.conn.SetWriteDeadline(s.now().Add(editTimeout))
	err = e.conn.Send(frame)
	e.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("sending edit to %s: %w", e.id, err)
	}
	s.metrics.editsSent.Inc()

	s.mu.Lock()
	if int(item) < len(e.items) {
		e.setItem(int(item), data)
	}
	s.mu.Unlock()
	return nil
}

func checkValue(t wire.ItemType, data []byte) error {
	if err := wire.ValidatePayload(t, data); err != nil {
		return err
	}
	if t == wire.ItemEnum {
		_, err := wire.ParseEnumValue(data)
		return err
	}
	return nil
}
