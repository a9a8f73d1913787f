package wire

import (
	"fmt"
)

// Version is the protocol version sent in Hello.
var Version = [2]uint8{1, 0}

// Record is any decoded record.
type Record interface {
	Type() RecordType
}

// Hello opens a connection.
type Hello struct {
	Major, Minor uint8
	Instance     string
	Name         string
}

// Mark is a time-stamped label.
type Mark struct {
	Timestamp uint64
	Label     string
}

// Begin opens a processing span.
type Begin struct {
	Timestamp uint64
	Frame     uint32
	Label     string
}

// End closes the innermost open processing span.
type End struct {
	Timestamp uint64
}

// LibraryItem describes one remotely editable parameter.
type LibraryItem struct {
	Name string
	Type ItemType
	Data []byte
}

// Library registers the editable parameters. Item indices are positions in Items.
type Library struct {
	Items []LibraryItem
}

// CounterDefs registers counter names. Reading indices are positions in Names.
type CounterDefs struct {
	Names []string
}

// Counters is one snapshot of every registered counter.
type Counters struct {
	Seq       uint64
	Timestamp uint64
	Readings  []uint32
}

// Goodbye announces an orderly shutdown.
type Goodbye struct {
	Timestamp uint64
}

// Edit carries a new value for library item Item.
type Edit struct {
	Item uint32
	Data []byte
}

func (Hello) Type() RecordType       { return RecordHello }
func (Mark) Type() RecordType        { return RecordMark }
func (Begin) Type() RecordType       { return RecordBegin }
func (End) Type() RecordType         { return RecordEnd }
func (Library) Type() RecordType     { return RecordLibrary }
func (CounterDefs) Type() RecordType { return RecordCounterDefs }
func (Counters) Type() RecordType    { return RecordCounters }
func (Goodbye) Type() RecordType     { return RecordGoodbye }
func (Edit) Type() RecordType        { return RecordEdit }

// ── Encoding ─────────────────────────────────────────────────────────────────

// EncodeHello encodes a Hello frame for the current protocol version.
func EncodeHello(instance, name string) ([]byte, error) {
	if err := checkLen("instance", len(instance), MaxInstance); err != nil {
		return nil, err
	}
	if err := checkLen("app name", len(name), MaxNameLen); err != nil {
		return nil, err
	}
	e := NewEncoderWithCap(4 + len(instance) + len(name))
	e.WriteByte(Version[0])
	e.WriteByte(Version[1])
	e.WriteString(instance)
	e.WriteString(name)
	return appendFrame(nil, RecordHello, e.Bytes())
}

// EncodeMark encodes a Mark frame.
func EncodeMark(ts uint64, label string) ([]byte, error) {
	if err := checkLen("mark label", len(label), MaxNameLen); err != nil {
		return nil, err
	}
	e := NewEncoderWithCap(12 + len(label))
	e.WriteUvarint(ts)
	e.WriteString(label)
	return appendFrame(nil, RecordMark, e.Bytes())
}

// EncodeProcessingBegin encodes a Begin frame.
func EncodeProcessingBegin(ts uint64, label string, frame uint32) ([]byte, error) {
	if err := checkLen("processing label", len(label), MaxNameLen); err != nil {
		return nil, err
	}
	e := NewEncoderWithCap(16 + len(label))
	e.WriteUvarint(ts)
	e.WriteUvarint(uint64(frame))
	e.WriteString(label)
	return appendFrame(nil, RecordBegin, e.Bytes())
}

// EncodeProcessingEnd encodes an End frame.
func EncodeProcessingEnd(ts uint64) ([]byte, error) {
	e := NewEncoderWithCap(10)
	e.WriteUvarint(ts)
	return appendFrame(nil, RecordEnd, e.Bytes())
}

// EncodeLibraryCreate encodes a Library frame, validating every item.
func EncodeLibraryCreate(items []LibraryItem) ([]byte, error) {
	if err := checkLen("library item count", len(items), MaxItems); err != nil {
		return nil, err
	}
	size := 4
	for i, it := range items {
		if err := checkLen(fmt.Sprintf("item %d name", i), len(it.Name), MaxNameLen); err != nil {
			return nil, err
		}
		if err := checkLen(fmt.Sprintf("item %d data", i), len(it.Data), MaxDataLen); err != nil {
			return nil, err
		}
		if err := ValidatePayload(it.Type, it.Data); err != nil {
			return nil, fmt.Errorf("item %d (%q): %w", i, it.Name, err)
		}
		size += 12 + len(it.Name) + len(it.Data)
	}
	e := NewEncoderWithCap(size)
	e.WriteUvarint(uint64(len(items)))
	for _, it := range items {
		e.WriteString(it.Name)
		e.WriteByte(byte(it.Type))
		e.WriteLenBytes(it.Data)
	}
	return appendFrame(nil, RecordLibrary, e.Bytes())
}

// EncodeCounterDefs encodes a CounterDefs frame.
func EncodeCounterDefs(names []string) ([]byte, error) {
	if err := checkLen("counter count", len(names), MaxReadings); err != nil {
		return nil, err
	}
	e := NewEncoder()
	e.WriteUvarint(uint64(len(names)))
	for i, n := range names {
		if err := checkLen(fmt.Sprintf("counter %d name", i), len(n), MaxNameLen); err != nil {
			return nil, err
		}
		e.WriteString(n)
	}
	return appendFrame(nil, RecordCounterDefs, e.Bytes())
}

// EncodeCounterUpdate encodes a Counters snapshot frame.
func EncodeCounterUpdate(seq, ts uint64, readings []uint32) ([]byte, error) {
	if err := checkLen("reading count", len(readings), MaxReadings); err != nil {
		return nil, err
	}
	e := NewEncoderWithCap(24 + 5*len(readings))
	e.WriteUvarint(seq)
	e.WriteUvarint(ts)
	e.WriteUvarint(uint64(len(readings)))
	for _, r := range readings {
		e.WriteUvarint(uint64(r))
	}
	return appendFrame(nil, RecordCounters, e.Bytes())
}

// EncodeGoodbye encodes a Goodbye frame.
func EncodeGoodbye(ts uint64) ([]byte, error) {
	e := NewEncoderWithCap(10)
	e.WriteUvarint(ts)
	return appendFrame(nil, RecordGoodbye, e.Bytes())
}

// EncodeEdit encodes an Edit frame.
func EncodeEdit(item uint32, data []byte) ([]byte, error) {
	if err := checkLen("edit data", len(data), MaxEditBytes); err != nil {
		return nil, err
	}
	e := NewEncoderWithCap(10 + len(data))
	e.WriteUvarint(uint64(item))
	e.WriteLenBytes(data)
	return appendFrame(nil, RecordEdit, e.Bytes())
}

// ── Decoding ─────────────────────────────────────────────────────────────────

// Decode parses the payload of f into a Record.
func Decode(f *Frame) (Record, error) {
	d := NewDecoder(f.Payload)
	var (
		rec Record
		err error
	)
	switch f.Type {
	case RecordHello:
		rec, err = decodeHello(d)
	case RecordMark:
		rec, err = decodeMark(d)
	case RecordBegin:
		rec, err = decodeBegin(d)
	case RecordEnd:
		var ts uint64
		ts, err = d.ReadUvarint()
		rec = End{Timestamp: ts}
	case RecordLibrary:
		rec, err = decodeLibrary(d)
	case RecordCounterDefs:
		rec, err = decodeCounterDefs(d)
	case RecordCounters:
		rec, err = decodeCounters(d)
	case RecordGoodbye:
		var ts uint64
		ts, err = d.ReadUvarint()
		rec = Goodbye{Timestamp: ts}
	case RecordEdit:
		rec, err = decodeEdit(d)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownRecord, uint8(f.Type))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	if !d.EOF() {
		return nil, fmt.Errorf("decode %s: %w", f.Type, ErrTrailingBytes)
	}
	return rec, nil
}

// DecodeAll splits data into frames and decodes each of them.
func DecodeAll(data []byte) ([]Record, error) {
	var out []Record
	for len(data) > 0 {
		f, rest, err := SplitFrame(data)
		if err != nil {
			return out, err
		}
		rec, err := Decode(f)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
		data = rest
	}
	return out, nil
}

func decodeHello(d *Decoder) (Hello, error) {
	var h Hello
	var err error
	if h.Major, err = d.ReadByte(); err != nil {
		return h, err
	}
	if h.Minor, err = d.ReadByte(); err != nil {
		return h, err
	}
	inst, err := d.ReadLenBytes(MaxInstance)
	if err != nil {
		return h, err
	}
	name, err := d.ReadLenBytes(MaxNameLen)
	if err != nil {
		return h, err
	}
	h.Instance, h.Name = string(inst), string(name)
	return h, nil
}

func decodeMark(d *Decoder) (Mark, error) {
	ts, err := d.ReadUvarint()
	if err != nil {
		return Mark{}, err
	}
	label, err := d.ReadLenBytes(MaxNameLen)
	if err != nil {
		return Mark{}, err
	}
	return Mark{Timestamp: ts, Label: string(label)}, nil
}

func decodeBegin(d *Decoder) (Begin, error) {
	ts, err := d.ReadUvarint()
	if err != nil {
		return Begin{}, err
	}
	frame, err := d.ReadUvarint32()
	if err != nil {
		return Begin{}, err
	}
	label, err := d.ReadLenBytes(MaxNameLen)
	if err != nil {
		return Begin{}, err
	}
	return Begin{Timestamp: ts, Frame: frame, Label: string(label)}, nil
}

func decodeLibrary(d *Decoder) (Library, error) {
	n, err := d.ReadCount(MaxItems)
	if err != nil {
		return Library{}, err
	}
	items := make([]LibraryItem, 0, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadLenBytes(MaxNameLen)
		if err != nil {
			return Library{}, err
		}
		t, err := d.ReadByte()
		if err != nil {
			return Library{}, err
		}
		data, err := d.ReadLenBytes(MaxDataLen)
		if err != nil {
			return Library{}, err
		}
		if err := ValidatePayload(ItemType(t), data); err != nil {
			return Library{}, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, LibraryItem{Name: string(name), Type: ItemType(t), Data: data})
	}
	return Library{Items: items}, nil
}

func decodeCounterDefs(d *Decoder) (CounterDefs, error) {
	n, err := d.ReadCount(MaxReadings)
	if err != nil {
		return CounterDefs{}, err
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadLenBytes(MaxNameLen)
		if err != nil {
			return CounterDefs{}, err
		}
		names = append(names, string(name))
	}
	return CounterDefs{Names: names}, nil
}

func decodeCounters(d *Decoder) (Counters, error) {
	var c Counters
	var err error
	if c.Seq, err = d.ReadUvarint(); err != nil {
		return c, err
	}
	if c.Timestamp, err = d.ReadUvarint(); err != nil {
		return c, err
	}
	n, err := d.ReadCount(MaxReadings)
	if err != nil {
		return c, err
	}
	c.Readings = make([]uint32, n)
	for i := range c.Readings {
		if c.Readings[i], err = d.ReadUvarint32(); err != nil {
			return c, err
		}
	}
	return c, nil
}

func decodeEdit(d *Decoder) (Edit, error) {
	item, err := d.ReadUvarint32()
	if err != nil {
		return Edit{}, err
	}
	data, err := d.ReadLenBytes(MaxEditBytes)
	if err != nil {
		return Edit{}, err
	}
	return Edit{Item: item, Data: data}, nil
}
