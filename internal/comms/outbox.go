package comms

// outbox accumulates encoded frames between handoffs to the writer.
type outbox struct {
	buf []byte
	max int
}

// append adds a frame. A frame larger than max is still accepted into an
// empty outbox so oversized library records can go out on their own.
func (o *outbox) append(frame []byte) error {
	if len(o.buf) > 0 && len(o.buf)+len(frame) > o.max {
		return ErrBufferFull
	}
	o.buf = append(o.buf, frame...)
	return nil
}

func (o *outbox) len() int { return len(o.buf) }

// take returns the buffered bytes and leaves the outbox empty. The returned
// slice is owned by the caller.
func (o *outbox) take() []byte {
	b := o.buf
	o.buf = nil
	return b
}

func (o *outbox) reset() { o.buf = nil }
