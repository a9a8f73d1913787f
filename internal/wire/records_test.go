package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func mustDecodeAll(t testing.TB, chunks ...[]byte) []Record {
	t.Helper()
	recs, err := DecodeAll(bytes.Join(chunks, nil))
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	return recs
}

func must(t testing.TB) func([]byte, error) []byte {
	return func(b []byte, err error) []byte {
		t.Helper()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		return b
	}
}

func TestRecordRoundTrip(t *testing.T) {
	m := must(t)
	items := []LibraryItem{
		{Name: "min thickness", Type: ItemFloat, Data: FloatValue{100, 0, 500}.Bytes()},
		{Name: "passes", Type: ItemInt, Data: IntValue{3, 1, 8}.Bytes()},
		{Name: "wireframe", Type: ItemBool, Data: BoolValue(true).Bytes()},
		{Name: "mode", Type: ItemEnum, Data: EnumValue{Selected: 1, Options: []string{"a", "b"}}.Bytes()},
		{Name: "Shader.fsh", Type: ItemString, Data: []byte("void main() {}")},
	}
	recs := mustDecodeAll(t,
		m(EncodeHello("0b7c", "Demo")),
		m(EncodeMark(10, "frame 0")),
		m(EncodeProcessingBegin(11, "draw", 7)),
		m(EncodeProcessingEnd(12)),
		m(EncodeLibraryCreate(items)),
		m(EncodeCounterDefs([]string{"Frames", "Frames10"})),
		m(EncodeCounterUpdate(1, 13, []uint32{37, 30})),
		m(EncodeGoodbye(14)),
		m(EncodeEdit(0, FloatValue{42, 0, 500}.Bytes())),
	)
	if len(recs) != 9 {
		t.Fatalf("got %d records, want 9", len(recs))
	}

	if h := recs[0].(Hello); h.Name != "Demo" || h.Instance != "0b7c" || h.Major != Version[0] {
		t.Errorf("hello = %+v", h)
	}
	if mk := recs[1].(Mark); mk.Timestamp != 10 || mk.Label != "frame 0" {
		t.Errorf("mark = %+v", mk)
	}
	if b := recs[2].(Begin); b.Timestamp != 11 || b.Frame != 7 || b.Label != "draw" {
		t.Errorf("begin = %+v", b)
	}
	if e := recs[3].(End); e.Timestamp != 12 {
		t.Errorf("end = %+v", e)
	}
	lib := recs[4].(Library)
	if len(lib.Items) != len(items) {
		t.Fatalf("library has %d items, want %d", len(lib.Items), len(items))
	}
	for i, it := range items {
		got := lib.Items[i]
		if got.Name != it.Name || got.Type != it.Type || !bytes.Equal(got.Data, it.Data) {
			t.Errorf("item %d = %+v, want %+v", i, got, it)
		}
	}
	if defs := recs[5].(CounterDefs); strings.Join(defs.Names, ",") != "Frames,Frames10" {
		t.Errorf("defs = %+v", defs)
	}
	if c := recs[6].(Counters); c.Seq != 1 || c.Timestamp != 13 || len(c.Readings) != 2 || c.Readings[0] != 37 || c.Readings[1] != 30 {
		t.Errorf("counters = %+v", c)
	}
	if g := recs[7].(Goodbye); g.Timestamp != 14 {
		t.Errorf("goodbye = %+v", g)
	}
	ed := recs[8].(Edit)
	v, err := ParseFloatValue(ed.Data)
	if err != nil || ed.Item != 0 || v.Current != 42 || v.Min != 0 || v.Max != 500 {
		t.Errorf("edit = %+v (%v, %v)", ed, v, err)
	}
}

func TestNamesWithEmbeddedNULs(t *testing.T) {
	m := must(t)
	name := "a\x00b\x00"
	recs := mustDecodeAll(t,
		m(EncodeMark(1, name)),
		m(EncodeLibraryCreate([]LibraryItem{{Name: name, Type: ItemString, Data: []byte{0, 0}}})),
		m(EncodeCounterDefs([]string{name})),
	)
	if recs[0].(Mark).Label != name {
		t.Errorf("mark label lost NULs: %q", recs[0].(Mark).Label)
	}
	if recs[1].(Library).Items[0].Name != name {
		t.Errorf("item name lost NULs")
	}
	if recs[2].(CounterDefs).Names[0] != name {
		t.Errorf("counter name lost NULs")
	}
}

func TestFieldTooLarge(t *testing.T) {
	long := strings.Repeat("x", MaxNameLen+1)
	cases := map[string]func() ([]byte, error){
		"mark":    func() ([]byte, error) { return EncodeMark(0, long) },
		"begin":   func() ([]byte, error) { return EncodeProcessingBegin(0, long, 0) },
		"hello":   func() ([]byte, error) { return EncodeHello("", long) },
		"counter": func() ([]byte, error) { return EncodeCounterDefs([]string{"ok", long}) },
		"item name": func() ([]byte, error) {
			return EncodeLibraryCreate([]LibraryItem{{Name: long, Type: ItemString}})
		},
		"item data": func() ([]byte, error) {
			return EncodeLibraryCreate([]LibraryItem{{Name: "src", Type: ItemString, Data: make([]byte, MaxDataLen+1)}})
		},
		"readings": func() ([]byte, error) { return EncodeCounterUpdate(0, 0, make([]uint32, MaxReadings+1)) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := fn()
			if !errors.Is(err, ErrFieldTooLarge) {
				t.Fatalf("expected ErrFieldTooLarge, got %v", err)
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Len <= fe.Max {
				t.Errorf("expected a FieldError with Len > Max, got %v", err)
			}
			if b != nil {
				t.Errorf("expected no bytes on failure")
			}
		})
	}
}

func TestLibraryRejectsBadPayloadSizes(t *testing.T) {
	cases := []LibraryItem{
		{Name: "f", Type: ItemFloat, Data: make([]byte, 8)},
		{Name: "i", Type: ItemInt, Data: make([]byte, 16)},
		{Name: "b", Type: ItemBool, Data: nil},
		{Name: "?", Type: ItemType(9), Data: nil},
	}
	for _, it := range cases {
		if _, err := EncodeLibraryCreate([]LibraryItem{it}); err == nil {
			t.Errorf("item %q of type %v: expected error", it.Name, it.Type)
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	b, _ := EncodeProcessingEnd(5)
	f, _, _ := SplitFrame(b)
	f.Payload = append(f.Payload, 0x00)
	if _, err := Decode(f); !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestDecodeUnknownRecord(t *testing.T) {
	if _, err := Decode(&Frame{Type: 0x55}); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("expected ErrUnknownRecord, got %v", err)
	}
}

// Property: any well-nested begin/end sequence survives encoding with each
// begin ordered before its matching end and with the nesting depth intact.
func TestWellNestedSpansRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var wire [][]byte
		var want []Span
		var stack []Span
		ts := uint64(0)
		ops := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			ts++
			if len(stack) == 0 || (len(stack) < 8 && rapid.Bool().Draw(t, "push")) {
				label := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "label")
				b, err := EncodeProcessingBegin(ts, label, uint32(i))
				if err != nil {
					t.Fatal(err)
				}
				wire = append(wire, b)
				stack = append(stack, Span{Label: label, Frame: uint32(i), Begin: ts, Depth: len(stack)})
				continue
			}
			e, _ := EncodeProcessingEnd(ts)
			wire = append(wire, e)
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			s.End = ts
			want = append(want, s)
		}
		for len(stack) > 0 {
			ts++
			e, _ := EncodeProcessingEnd(ts)
			wire = append(wire, e)
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			s.End = ts
			want = append(want, s)
		}

		recs, err := DecodeAll(bytes.Join(wire, nil))
		if err != nil {
			t.Fatalf("DecodeAll: %v", err)
		}
		got, unmatched := Spans(recs)
		if unmatched != 0 {
			t.Fatalf("unexpected unmatched ends: %d", unmatched)
		}
		if len(got) != len(want) {
			t.Fatalf("got %d spans, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("span %d = %+v, want %+v", i, got[i], want[i])
			}
			if got[i].Begin >= got[i].End {
				t.Fatalf("span %d ends before it begins", i)
			}
		}
	})
}

// Interleaved pairs cannot be told apart on the wire: End carries no label, so
// "begin A, begin B, end A, end B" decodes as B nested inside A.
func TestMalformedNestingIsAcceptedAsInnermostClose(t *testing.T) {
	m := must(t)
	recs := mustDecodeAll(t,
		m(EncodeProcessingBegin(1, "A", 0)),
		m(EncodeProcessingBegin(2, "B", 0)),
		m(EncodeProcessingEnd(3)), // caller meant to end A
		m(EncodeProcessingEnd(4)), // caller meant to end B
	)
	spans, unmatched := Spans(recs)
	if unmatched != 0 {
		t.Fatalf("unmatched = %d, want 0", unmatched)
	}
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Label != "B" || spans[0].End != 3 || spans[0].Depth != 1 {
		t.Errorf("first closed span = %+v, want B closed at 3", spans[0])
	}
	if spans[1].Label != "A" || spans[1].End != 4 || spans[1].Depth != 0 {
		t.Errorf("second closed span = %+v, want A closed at 4", spans[1])
	}
}

func TestUnmatchedEndAndOpenSpans(t *testing.T) {
	m := must(t)
	recs := mustDecodeAll(t,
		m(EncodeProcessingEnd(1)),
		m(EncodeProcessingBegin(2, "left open", 0)),
		m(EncodeMark(5, "x")),
	)
	spans, unmatched := Spans(recs)
	if unmatched != 1 {
		t.Errorf("unmatched = %d, want 1", unmatched)
	}
	if len(spans) != 1 || !spans[0].Open || spans[0].Label != "left open" {
		t.Errorf("spans = %+v, want one open span", spans)
	}
}
