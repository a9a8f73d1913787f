package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ItemType tags the payload shape of a library item.
type ItemType uint8

const (
	ItemString ItemType = 0
	ItemFloat  ItemType = 1
	ItemInt    ItemType = 2
	ItemEnum   ItemType = 3
	ItemBool   ItemType = 4
)

// Payload sizes of the fixed-layout item types.
const (
	FloatSize = 12
	IntSize   = 12
	BoolSize  = 1
)

func (t ItemType) String() string {
	switch t {
	case ItemString:
		return "String"
	case ItemFloat:
		return "Float"
	case ItemInt:
		return "Int"
	case ItemEnum:
		return "Enum"
	case ItemBool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// ValidatePayload checks that data has the layout required by t.
func ValidatePayload(t ItemType, data []byte) error {
	want := -1
	switch t {
	case ItemFloat:
		want = FloatSize
	case ItemInt:
		want = IntSize
	case ItemBool:
		want = BoolSize
	case ItemString, ItemEnum:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownItemType, uint8(t))
	}
	if want >= 0 && len(data) != want {
		return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrInvalidPayload, t, len(data), want)
	}
	return nil
}

// FloatValue is the payload of a Float item.
type FloatValue struct {
	Current, Min, Max float32
}

func (v FloatValue) Bytes() []byte {
	e := NewEncoderWithCap(FloatSize)
	e.WriteFloat32LE(v.Current)
	e.WriteFloat32LE(v.Min)
	e.WriteFloat32LE(v.Max)
	return e.Bytes()
}

// ParseFloatValue decodes a Float payload.
func ParseFloatValue(data []byte) (FloatValue, error) {
	if err := ValidatePayload(ItemFloat, data); err != nil {
		return FloatValue{}, err
	}
	return FloatValue{
		Current: math.Float32frombits(binary.LittleEndian.Uint32(data[0:])),
		Min:     math.Float32frombits(binary.LittleEndian.Uint32(data[4:])),
		Max:     math.Float32frombits(binary.LittleEndian.Uint32(data[8:])),
	}, nil
}

// IntValue is the payload of an Int item.
type IntValue struct {
	Current, Min, Max int32
}

func (v IntValue) Bytes() []byte {
	e := NewEncoderWithCap(IntSize)
	e.WriteUint32LE(uint32(v.Current))
	e.WriteUint32LE(uint32(v.Min))
	e.WriteUint32LE(uint32(v.Max))
	return e.Bytes()
}

// ParseIntValue decodes an Int payload.
func ParseIntValue(data []byte) (IntValue, error) {
	if err := ValidatePayload(ItemInt, data); err != nil {
		return IntValue{}, err
	}
	return IntValue{
		Current: int32(binary.LittleEndian.Uint32(data[0:])),
		Min:     int32(binary.LittleEndian.Uint32(data[4:])),
		Max:     int32(binary.LittleEndian.Uint32(data[8:])),
	}, nil
}

// BoolValue is the payload of a Bool item.
type BoolValue bool

func (v BoolValue) Bytes() []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// ParseBoolValue decodes a Bool payload. Any nonzero byte is true.
func ParseBoolValue(data []byte) (BoolValue, error) {
	if err := ValidatePayload(ItemBool, data); err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// EnumValue is the payload of an Enum item.
type EnumValue struct {
	Selected int
	Options  []string
}

func (v EnumValue) Bytes() []byte {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(v.Selected))
	for _, o := range v.Options {
		sb.WriteByte('\n')
		sb.WriteString(o)
	}
	return []byte(sb.String())
}

// ParseEnumValue decodes an Enum payload.
func ParseEnumValue(data []byte) (EnumValue, error) {
	lines := strings.Split(string(data), "\n")
	sel, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return EnumValue{}, fmt.Errorf("%w: enum selection %q", ErrInvalidPayload, lines[0])
	}
	return EnumValue{Selected: sel, Options: lines[1:]}, nil
}

// Describe renders a payload for display. Malformed payloads are reported
// rather than rejected.
func Describe(t ItemType, data []byte) string {
	switch t {
	case ItemFloat:
		if v, err := ParseFloatValue(data); err == nil {
			return fmt.Sprintf("%g [%g, %g]", v.Current, v.Min, v.Max)
		}
	case ItemInt:
		if v, err := ParseIntValue(data); err == nil {
			return fmt.Sprintf("%d [%d, %d]", v.Current, v.Min, v.Max)
		}
	case ItemBool:
		if v, err := ParseBoolValue(data); err == nil {
			if v {
				return "on"
			}
			return "off"
		}
	case ItemEnum:
		if v, err := ParseEnumValue(data); err == nil {
			if v.Selected >= 0 && v.Selected < len(v.Options) {
				return fmt.Sprintf("%s (%d of %d)", v.Options[v.Selected], v.Selected+1, len(v.Options))
			}
			return fmt.Sprintf("#%d (%d options)", v.Selected, len(v.Options))
		}
	case ItemString:
		line, _, more := strings.Cut(string(data), "\n")
		if len(line) > 40 {
			line, more = line[:40], true
		}
		if more {
			line += "…"
		}
		return fmt.Sprintf("%q (%d bytes)", line, len(data))
	}
	return fmt.Sprintf("<invalid %s payload, %d bytes>", t, len(data))
}
