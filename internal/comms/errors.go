package comms

import (
	"errors"
	"fmt"
)

var (
	// ErrDisconnected is returned by sends while no connection is live. The
	// record is dropped; sends are best effort.
	ErrDisconnected = errors.New("comms: not connected")
	// ErrUseAfterShutdown is returned by every operation after Shutdown.
	ErrUseAfterShutdown = errors.New("comms: session has been shut down")
	// ErrAlreadyInitialized is returned by a second LibraryCreate or CountersCreate.
	ErrAlreadyInitialized = errors.New("comms: already created")
	// ErrNotCreated is returned by CountersUpdate before CountersCreate.
	ErrNotCreated = errors.New("comms: counters not created")
	// ErrCounterCountMismatch is the sentinel behind CountMismatchError.
	ErrCounterCountMismatch = errors.New("comms: counter count mismatch")
	// ErrNestingUnderflow is returned by SendProcessingEnd with no open span.
	ErrNestingUnderflow = errors.New("comms: processing end without matching begin")
	// ErrBufferFull is returned when the outbound buffer is at its cap.
	ErrBufferFull = errors.New("comms: outbound buffer full")
	// ErrTransport reports an earlier asynchronous write failure.
	ErrTransport = errors.New("comms: transport write failed")
)

// CountMismatchError is returned by CountersUpdate when the number of
// readings differs from the number of registered counters.
type CountMismatchError struct {
	Want, Got int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("comms: counters update has %d readings, %d counters registered", e.Got, e.Want)
}

func (e *CountMismatchError) Unwrap() error {
	return ErrCounterCountMismatch
}
