package wire

import (
	"bytes"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// Property: Float, Int and Bool payloads have a fixed size and round-trip
// through their parse functions.
func TestFixedPayloadsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := FloatValue{
			Current: rapid.Float32Range(-1e6, 1e6).Draw(t, "cur"),
			Min:     rapid.Float32Range(-1e6, 1e6).Draw(t, "min"),
			Max:     rapid.Float32Range(-1e6, 1e6).Draw(t, "max"),
		}
		fb := f.Bytes()
		if len(fb) != FloatSize {
			t.Fatalf("float payload is %d bytes", len(fb))
		}
		if got, err := ParseFloatValue(fb); err != nil || got != f {
			t.Fatalf("ParseFloatValue = %+v, %v; want %+v", got, err, f)
		}

		i := IntValue{
			Current: rapid.Int32().Draw(t, "icur"),
			Min:     rapid.Int32().Draw(t, "imin"),
			Max:     rapid.Int32().Draw(t, "imax"),
		}
		ib := i.Bytes()
		if len(ib) != IntSize {
			t.Fatalf("int payload is %d bytes", len(ib))
		}
		if got, err := ParseIntValue(ib); err != nil || got != i {
			t.Fatalf("ParseIntValue = %+v, %v; want %+v", got, err, i)
		}

		b := BoolValue(rapid.Bool().Draw(t, "b"))
		if got, err := ParseBoolValue(b.Bytes()); err != nil || got != b {
			t.Fatalf("ParseBoolValue = %v, %v; want %v", got, err, b)
		}
	})
}

func TestFloatLayoutIsLittleEndian(t *testing.T) {
	// 1.0f is 0x3f800000.
	got := FloatValue{Current: 1}.Bytes()
	want := []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("FloatValue{1}.Bytes() = % x, want % x", got, want)
	}
}

func TestIntLayoutIsLittleEndian(t *testing.T) {
	got := IntValue{Current: -2, Min: 0x01020304, Max: 1}.Bytes()
	want := []byte{0xfe, 0xff, 0xff, 0xff, 0x04, 0x03, 0x02, 0x01, 1, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("IntValue.Bytes() = % x, want % x", got, want)
	}
}

func TestParseRejectsWrongSizes(t *testing.T) {
	if _, err := ParseFloatValue(make([]byte, 11)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("float: expected ErrInvalidPayload, got %v", err)
	}
	if _, err := ParseIntValue(make([]byte, 13)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("int: expected ErrInvalidPayload, got %v", err)
	}
	if _, err := ParseBoolValue(nil); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("bool: expected ErrInvalidPayload, got %v", err)
	}
	if v, err := ParseBoolValue([]byte{7}); err != nil || !bool(v) {
		t.Errorf("nonzero bool byte should parse as true")
	}
}

func TestEnumValue(t *testing.T) {
	v := EnumValue{Selected: 2, Options: []string{"off", "low", "high"}}
	if string(v.Bytes()) != "2\noff\nlow\nhigh" {
		t.Errorf("Bytes() = %q", v.Bytes())
	}
	got, err := ParseEnumValue(v.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.Selected != 2 || len(got.Options) != 3 || got.Options[2] != "high" {
		t.Errorf("ParseEnumValue = %+v", got)
	}
	if _, err := ParseEnumValue([]byte("x\na")); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for non-numeric selection, got %v", err)
	}
}

func TestItemTypeString(t *testing.T) {
	names := map[ItemType]string{
		ItemString: "String", ItemFloat: "Float", ItemInt: "Int",
		ItemEnum: "Enum", ItemBool: "Bool", ItemType(42): "Unknown",
	}
	for it, want := range names {
		if it.String() != want {
			t.Errorf("%d.String() = %q, want %q", it, it.String(), want)
		}
	}
}

// Property: a library of arbitrary items decodes to the same items in the
// same order, so item indices on both sides agree.
func TestLibraryRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		items := make([]LibraryItem, n)
		for i := range items {
			name := rapid.StringN(0, 32, -1).Draw(t, "name")
			switch rapid.IntRange(0, 3).Draw(t, "kind") {
			case 0:
				items[i] = LibraryItem{Name: name, Type: ItemString, Data: rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(t, "src")}
			case 1:
				items[i] = LibraryItem{Name: name, Type: ItemFloat, Data: FloatValue{Current: rapid.Float32().Draw(t, "f")}.Bytes()}
			case 2:
				items[i] = LibraryItem{Name: name, Type: ItemInt, Data: IntValue{Current: rapid.Int32().Draw(t, "i")}.Bytes()}
			default:
				items[i] = LibraryItem{Name: name, Type: ItemBool, Data: BoolValue(rapid.Bool().Draw(t, "b")).Bytes()}
			}
		}
		b, err := EncodeLibraryCreate(items)
		if err != nil {
			t.Fatalf("EncodeLibraryCreate: %v", err)
		}
		recs, err := DecodeAll(b)
		if err != nil {
			t.Fatalf("DecodeAll: %v", err)
		}
		lib := recs[0].(Library)
		if len(lib.Items) != n {
			t.Fatalf("decoded %d items, want %d", len(lib.Items), n)
		}
		for i := range items {
			if lib.Items[i].Name != items[i].Name || lib.Items[i].Type != items[i].Type || !bytes.Equal(lib.Items[i].Data, items[i].Data) {
				t.Fatalf("item %d mismatch", i)
			}
		}
	})
}

// Property: counter snapshots keep reading order, count and sequence.
func TestCounterUpdateRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.Uint64().Draw(t, "seq")
		ts := rapid.Uint64().Draw(t, "ts")
		readings := rapid.SliceOfN(rapid.Uint32(), 0, 64).Draw(t, "readings")
		b, err := EncodeCounterUpdate(seq, ts, readings)
		if err != nil {
			t.Fatal(err)
		}
		recs, err := DecodeAll(b)
		if err != nil {
			t.Fatal(err)
		}
		c := recs[0].(Counters)
		if c.Seq != seq || c.Timestamp != ts || len(c.Readings) != len(readings) {
			t.Fatalf("got %+v", c)
		}
		for i := range readings {
			if c.Readings[i] != readings[i] {
				t.Fatalf("reading %d = %d, want %d", i, c.Readings[i], readings[i])
			}
		}
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		typ  ItemType
		data []byte
		want string
	}{
		{ItemFloat, FloatValue{Current: 1.5, Min: 0, Max: 2}.Bytes(), "1.5 [0, 2]"},
		{ItemInt, IntValue{Current: -3, Min: -5, Max: 5}.Bytes(), "-3 [-5, 5]"},
		{ItemBool, BoolValue(true).Bytes(), "on"},
		{ItemEnum, EnumValue{Selected: 1, Options: []string{"lo", "hi"}}.Bytes(), "hi (2 of 2)"},
		{ItemEnum, EnumValue{Selected: 7, Options: []string{"lo"}}.Bytes(), "#7 (1 options)"},
		{ItemString, []byte("void main()\n{}"), `"void main()…" (14 bytes)`},
		{ItemFloat, []byte{1}, "<invalid Float payload, 1 bytes>"},
	}
	for _, tt := range tests {
		if got := Describe(tt.typ, tt.data); got != tt.want {
			t.Errorf("Describe(%s, % x) = %q, want %q", tt.typ, tt.data, got, tt.want)
		}
	}
}
