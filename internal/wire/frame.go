package wire

import (
	"encoding/binary"
	"io"
)

const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 6

	// MaxPayloadSize bounds a single frame. A library record carrying shader
	// sources is the largest thing normally sent.
	MaxPayloadSize = 16 << 20
)

// RecordType identifies the record carried by a frame.
type RecordType uint8

const (
	RecordHello       RecordType = 0x01
	RecordMark        RecordType = 0x02
	RecordBegin       RecordType = 0x03
	RecordEnd         RecordType = 0x04
	RecordLibrary     RecordType = 0x05
	RecordCounterDefs RecordType = 0x06
	RecordCounters    RecordType = 0x07
	RecordGoodbye     RecordType = 0x08

	RecordEdit RecordType = 0x10
)

func (t RecordType) String() string {
	switch t {
	case RecordHello:
		return "Hello"
	case RecordMark:
		return "Mark"
	case RecordBegin:
		return "Begin"
	case RecordEnd:
		return "End"
	case RecordLibrary:
		return "Library"
	case RecordCounterDefs:
		return "CounterDefs"
	case RecordCounters:
		return "Counters"
	case RecordGoodbye:
		return "Goodbye"
	case RecordEdit:
		return "Edit"
	default:
		return "Unknown"
	}
}

// Frame is one record on the wire.
type Frame struct {
	Type    RecordType
	Flags   uint8
	Payload []byte
}

// appendFrame appends the header and payload to dst.
func appendFrame(dst []byte, t RecordType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return dst, &FieldError{Field: "frame payload", Len: len(payload), Max: MaxPayloadSize}
	}
	dst = append(dst, byte(t), 0)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// Encode returns the frame including its header.
func (f *Frame) Encode() ([]byte, error) {
	out := make([]byte, 0, FrameHeaderSize+len(f.Payload))
	out, err := appendFrame(out, f.Type, f.Payload)
	if err != nil {
		return nil, err
	}
	out[1] = f.Flags
	return out, nil
}

// SplitFrame decodes the first frame in data and returns it together with
// the remaining bytes. io.ErrUnexpectedEOF means data holds a partial frame.
func SplitFrame(data []byte) (*Frame, []byte, error) {
	if len(data) < FrameHeaderSize {
		return nil, data, io.ErrUnexpectedEOF
	}
	length := binary.BigEndian.Uint32(data[2:FrameHeaderSize])
	if length > MaxPayloadSize {
		return nil, data, ErrFrameTooLarge
	}
	end := FrameHeaderSize + int(length)
	if len(data) < end {
		return nil, data, io.ErrUnexpectedEOF
	}
	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:end])
	return &Frame{Type: RecordType(data[0]), Flags: data[1], Payload: payload}, data[end:], nil
}

// ReadFrame reads a complete frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[2:])
	if length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return &Frame{Type: RecordType(header[0]), Flags: header[1], Payload: payload}, nil
}

// WriteFrame writes a complete frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
