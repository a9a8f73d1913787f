// Package comms implements the client side of the scopecomms live-tuning
// protocol. A Session connects to a perf server in the background and streams
// marks, processing spans, library descriptors and counter snapshots to it,
// while remote edits to library items are queued for the owner to poll.
//
// Session methods are meant to be called from one owning goroutine, usually a
// render loop. None of them block on the network: records are buffered and
// handed to a writer goroutine, and sends made while disconnected fail fast
// with ErrDisconnected.
package comms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/fakeyudi/scopecomms/internal/clock"
	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/internal/transport"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// LibraryItem describes one remotely editable parameter.
type LibraryItem = wire.LibraryItem

// State is the connection state of a Session.
type State int32

const (
	StateCreated State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one communications channel to a perf server.
type Session struct {
	name     string
	instance string
	opts     options
	dialer   transport.Dialer
	clock    clock.Clock
	log      *log.Logger
	metrics  *sessionMetrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// edits carries inbound edits from the reader goroutine to the owner.
	edits chan wire.Edit

	stateMu      sync.Mutex
	state        State
	stateChanged chan struct{}

	errMu    sync.Mutex
	writeErr error

	closed atomic.Bool

	mu     sync.Mutex
	sendCh chan []byte // nil while no connection is live
	out    outbox
	lib    library
	ctrs   counters
	depth  int
}

// Initialise creates a session and starts connecting in the background. It
// returns before the connection exists; records sent before then are lost.
func Initialise(name string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("initialise %q: %w", name, err)
	}
	if len(name) > wire.MaxNameLen {
		return nil, &wire.FieldError{Field: "app name", Len: len(name), Max: wire.MaxNameLen}
	}
	d := o.dialer
	if d == nil {
		var err error
		if d, err = transport.ParseAddress(o.address); err != nil {
			return nil, fmt.Errorf("initialise %q: %w", name, err)
		}
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.logger == nil {
		o.logger = logging.Named("comms")
	}

	instance := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		name:         name,
		instance:     instance,
		opts:         o,
		dialer:       d,
		clock:        o.clock,
		log:          o.logger.With("app", name, "session", instance[:8]),
		metrics:      newSessionMetrics(o.registerer, name, instance),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		edits:        make(chan wire.Edit, o.editQueue),
		stateChanged: make(chan struct{}),
	}
	s.out.max = o.maxBuffered
	go s.run()
	return s, nil
}

func (s *Session) Name() string     { return s.name }
func (s *Session) Instance() string { return s.instance }

// Now returns the session clock in microseconds.
func (s *Session) Now() uint64 { return s.clock.NowMicros() }

// State returns the current connection state.
func (s *Session) State() State {
	st, _ := s.watch()
	return st
}

func (s *Session) Connected() bool { return s.State() == StateConnected }

func (s *Session) watch() (State, <-chan struct{}) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state, s.stateChanged
}

// setState records a transition and wakes waiters. Closed is terminal.
func (s *Session) setState(st State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == StateClosed || s.state == st {
		return
	}
	s.log.Debug("state", "from", s.state, "to", st)
	s.state = st
	close(s.stateChanged)
	s.stateChanged = make(chan struct{})
}

// SendMark records a time-stamped label.
func (s *Session) SendMark(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrUseAfterShutdown
	}
	frame, err := wire.EncodeMark(s.clock.NowMicros(), label)
	if err != nil {
		return err
	}
	return s.enqueueLocked(frame)
}

// SendProcessingBegin opens a processing span. Spans nest; each one must be
// closed by SendProcessingEnd.
func (s *Session) SendProcessingBegin(label string, frame uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrUseAfterShutdown
	}
	b, err := wire.EncodeProcessingBegin(s.clock.NowMicros(), label, frame)
	if err != nil {
		return err
	}
	// Depth follows the caller even when the record is dropped.
	s.depth++
	return s.enqueueLocked(b)
}

// SendProcessingEnd closes the innermost open span.
func (s *Session) SendProcessingEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrUseAfterShutdown
	}
	if s.depth == 0 {
		return ErrNestingUnderflow
	}
	b, err := wire.EncodeProcessingEnd(s.clock.NowMicros())
	if err != nil {
		return err
	}
	s.depth--
	return s.enqueueLocked(b)
}

// Scoped opens a span and returns the function that closes it, for use with
// defer. The closer reports both the begin and the end error.
func (s *Session) Scoped(label string, frame uint32) func() error {
	beginErr := s.SendProcessingBegin(label, frame)
	return func() error {
		// A begin rejected before it was counted must not be closed.
		if beginErr != nil && !errors.Is(beginErr, ErrDisconnected) && !errors.Is(beginErr, ErrBufferFull) {
			return beginErr
		}
		return errors.Join(beginErr, s.SendProcessingEnd())
	}
}

// LibraryCreate registers the editable parameters. An item's position in
// items is its index for the lifetime of the session. The data is copied, so
// callers may reuse their buffers. Calling it before the connection exists is
// fine: the library is part of what is sent on every (re)connection.
func (s *Session) LibraryCreate(items []LibraryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrUseAfterShutdown
	}
	if s.lib.created {
		return ErrAlreadyInitialized
	}
	frame, err := wire.EncodeLibraryCreate(items)
	if err != nil {
		return err
	}
	if s.sendCh != nil {
		if err := s.enqueueDefinitionLocked(frame); err != nil {
			return err
		}
	}
	s.lib.create(items)
	s.log.Debug("library created", "items", len(items))
	return nil
}

// PollDirty removes and returns one pending remote edit. Repeated edits to
// the same item coalesce, so each item appears at most once with its latest
// value. The returned Data is valid until the next call.
func (s *Session) PollDirty() (Edit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return Edit{}, false
	}
	s.drainLocked()
	return s.lib.pop()
}

// PendingEdits returns the number of edits PollDirty would currently return.
func (s *Session) PendingEdits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return 0
	}
	s.drainLocked()
	return s.lib.pendingCount()
}

func (s *Session) drainLocked() {
	for i := cap(s.edits); i > 0; i-- {
		select {
		case e := <-s.edits:
			if err := s.lib.check(e); err != nil {
				s.metrics.editsDropped.Inc()
				s.log.Warn("dropping edit", "err", err)
				continue
			}
			s.lib.apply(e)
		default:
			return
		}
	}
}

// CountersCreate registers the counter names. Like the library it is
// re-sent on every (re)connection.
func (s *Session) CountersCreate(defs []CounterDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrUseAfterShutdown
	}
	if s.ctrs.created {
		return ErrAlreadyInitialized
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	frame, err := wire.EncodeCounterDefs(names)
	if err != nil {
		return err
	}
	if s.sendCh != nil {
		if err := s.enqueueDefinitionLocked(frame); err != nil {
			return err
		}
	}
	s.ctrs.create(defs)
	return nil
}

// CountersUpdate sends one snapshot. len(readings) must equal the number of
// registered counters; nothing is encoded otherwise.
func (s *Session) CountersUpdate(readings []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrUseAfterShutdown
	}
	if err := s.ctrs.check(readings); err != nil {
		return err
	}
	frame, err := wire.EncodeCounterUpdate(s.ctrs.next(), s.clock.NowMicros(), readings)
	if err != nil {
		return err
	}
	return s.enqueueLocked(frame)
}

// Flush hands buffered records to the writer. It is a no-op when nothing is
// buffered. If the writer is still busy the records stay buffered and go out
// with the next batch. A failed write from an earlier batch is reported here
// as ErrTransport.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrUseAfterShutdown
	}
	if err := s.takeWriteErr(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if s.sendCh == nil {
		return ErrDisconnected
	}
	s.handoffLocked()
	return nil
}

func (s *Session) enqueueLocked(frame []byte) error {
	if s.sendCh == nil {
		s.metrics.dropped.Inc()
		return ErrDisconnected
	}
	if err := s.out.append(frame); err != nil {
		s.metrics.dropped.Inc()
		return err
	}
	s.metrics.records.Inc()
	if s.out.len() >= s.opts.flushThreshold {
		s.handoffLocked()
	}
	return nil
}

// enqueueDefinitionLocked queues a library or counter definition. When the
// frame does not fit behind what is buffered, the buffer is handed off first
// so the definition starts a batch of its own. Nothing is registered by the
// caller unless this succeeds, so a failed create can be retried.
func (s *Session) enqueueDefinitionLocked(frame []byte) error {
	if s.out.len()+len(frame) > s.out.max {
		s.handoffLocked()
	}
	return s.enqueueLocked(frame)
}

// handoffLocked passes the outbox to the writer without blocking and reports
// whether it was taken.
func (s *Session) handoffLocked() bool {
	if s.out.len() == 0 {
		return true
	}
	select {
	case s.sendCh <- s.out.buf:
		s.out.take()
		s.metrics.flushes.Inc()
		return true
	default:
		return false
	}
}

func (s *Session) takeWriteErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.writeErr
	s.writeErr = nil
	return err
}

func (s *Session) setWriteErr(err error) {
	s.errMu.Lock()
	s.writeErr = err
	s.errMu.Unlock()
}

// Shutdown sends Goodbye, makes one bounded attempt to flush what is
// buffered and closes the connection. The session is unusable afterwards.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrUseAfterShutdown
	}
	s.closed.Store(true)
	ch := s.sendCh
	s.sendCh = nil
	var final []byte
	if ch != nil {
		final = s.out.take()
		if g, err := wire.EncodeGoodbye(s.clock.NowMicros()); err == nil {
			final = append(final, g...)
		}
	}
	s.out.reset()
	s.mu.Unlock()

	var err error
	if ch != nil {
		wctx, wcancel := context.WithTimeout(context.Background(), s.opts.writeTimeout)
		select {
		case ch <- final:
		case <-wctx.Done():
			err = fmt.Errorf("%w: final flush timed out", ErrTransport)
		}
		close(ch)
		select {
		case <-s.done:
		case <-wctx.Done():
		}
		wcancel()
	}
	s.cancel()
	<-s.done

	s.setState(StateClosed)
	s.metrics.connected.Set(0)
	if werr := s.takeWriteErr(); werr != nil && err == nil {
		err = fmt.Errorf("%w: %v", ErrTransport, werr)
	}
	s.log.Info("session closed")
	return err
}
