// Package ppl is the host-facing scopecomms API. Every send-style call
// reports success as a bool so render loops can OR failures across a frame
// and show one "communication error" hint instead of handling each call.
// All functions accept a nil session and report failure.
//
// For typed errors use the methods on *Session directly.
package ppl

import (
	"time"

	"github.com/fakeyudi/scopecomms/internal/comms"
	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

type (
	Session     = comms.Session
	Option      = comms.Option
	CounterDef  = comms.CounterDef
	LibraryItem = wire.LibraryItem
	ItemType    = wire.ItemType
	FloatValue  = wire.FloatValue
	IntValue    = wire.IntValue
	BoolValue   = wire.BoolValue
	EnumValue   = wire.EnumValue
)

const (
	ItemString = wire.ItemString
	ItemFloat  = wire.ItemFloat
	ItemInt    = wire.ItemInt
	ItemEnum   = wire.ItemEnum
	ItemBool   = wire.ItemBool
)

var (
	WithConfig         = comms.WithConfig
	WithAddress        = comms.WithAddress
	WithDialer         = comms.WithDialer
	WithClock          = comms.WithClock
	WithLogger         = comms.WithLogger
	WithRegisterer     = comms.WithRegisterer
	WithFlushThreshold = comms.WithFlushThreshold
	WithMaxBuffered    = comms.WithMaxBuffered
	WithConnectTimeout = comms.WithConnectTimeout
	WithReconnectDelay = comms.WithReconnectDelay
	WithWriteTimeout   = comms.WithWriteTimeout

	ParseFloatValue = wire.ParseFloatValue
	ParseIntValue   = wire.ParseIntValue
	ParseBoolValue  = wire.ParseBoolValue
	ParseEnumValue  = wire.ParseEnumValue
)

// Initialise starts a session. It returns nil if the session could not be
// set up locally; an unreachable server is not a failure.
func Initialise(appName string, opts ...Option) *Session {
	s, err := comms.Initialise(appName, opts...)
	if err != nil {
		logging.Named("ppl").Error("initialise failed", "app", appName, "err", err)
		return nil
	}
	return s
}

// Shutdown flushes and closes s.
func Shutdown(s *Session) {
	if s != nil {
		s.Shutdown()
	}
}

// WaitForConnection waits up to timeout for every session to connect. The
// result for sessions[i] is at index i.
func WaitForConnection(sessions []*Session, timeout time.Duration) []bool {
	return comms.WaitForConnection(timeout, sessions...)
}

// GetTimeUS returns the session clock in microseconds, wrapping at 2^32.
func GetTimeUS(s *Session) uint32 {
	if s == nil {
		return 0
	}
	return uint32(s.Now())
}

func SendMark(s *Session, label string) bool {
	return s != nil && s.SendMark(label) == nil
}

func SendProcessingBegin(s *Session, label string, frame uint32) bool {
	return s != nil && s.SendProcessingBegin(label, frame) == nil
}

func SendProcessingEnd(s *Session) bool {
	return s != nil && s.SendProcessingEnd() == nil
}

// ProcessingScoped sends a begin now and returns the matching end.
//
//	defer ppl.ProcessingScoped(s, "draw", frame)()
func ProcessingScoped(s *Session, label string, frame uint32) func() bool {
	if s == nil {
		return func() bool { return false }
	}
	end := s.Scoped(label, frame)
	return func() bool { return end() == nil }
}

func LibraryCreate(s *Session, items []LibraryItem) bool {
	return s != nil && s.LibraryCreate(items) == nil
}

// LibraryDirtyGetFirst pops one pending remote edit. data is only valid
// until the next call; copy what you need.
func LibraryDirtyGetFirst(s *Session) (item uint32, data []byte, ok bool) {
	if s == nil {
		return 0, nil, false
	}
	e, ok := s.PollDirty()
	return e.Item, e.Data, ok
}

func CountersCreate(s *Session, defs []CounterDef) bool {
	return s != nil && s.CountersCreate(defs) == nil
}

func CountersUpdate(s *Session, readings []uint32) bool {
	return s != nil && s.CountersUpdate(readings) == nil
}

func SendFlush(s *Session) bool {
	return s != nil && s.Flush() == nil
}
