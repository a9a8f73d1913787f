package wire

import "testing"

func FuzzDecodeAll(f *testing.F) {
	seed := func(b []byte, _ error) { f.Add(b) }
	seed(EncodeHello("abcd", "app"))
	seed(EncodeMark(1, "m"))
	seed(EncodeProcessingBegin(2, "draw", 3))
	seed(EncodeProcessingEnd(4))
	seed(EncodeLibraryCreate([]LibraryItem{{Name: "x", Type: ItemFloat, Data: FloatValue{1, 0, 2}.Bytes()}}))
	seed(EncodeCounterDefs([]string{"a", "b"}))
	seed(EncodeCounterUpdate(1, 5, []uint32{1, 2}))
	seed(EncodeEdit(0, []byte{1}))
	f.Add([]byte{0x05, 0, 0, 0, 0, 2, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		recs, _ := DecodeAll(data)
		// Whatever decoded must re-encode cleanly.
		for _, r := range recs {
			if _, err := reencode(r); err != nil {
				t.Fatalf("re-encode %T: %v", r, err)
			}
		}
	})
}

func reencode(r Record) ([]byte, error) {
	switch v := r.(type) {
	case Hello:
		return EncodeHello(v.Instance, v.Name)
	case Mark:
		return EncodeMark(v.Timestamp, v.Label)
	case Begin:
		return EncodeProcessingBegin(v.Timestamp, v.Label, v.Frame)
	case End:
		return EncodeProcessingEnd(v.Timestamp)
	case Library:
		return EncodeLibraryCreate(v.Items)
	case CounterDefs:
		return EncodeCounterDefs(v.Names)
	case Counters:
		return EncodeCounterUpdate(v.Seq, v.Timestamp, v.Readings)
	case Goodbye:
		return EncodeGoodbye(v.Timestamp)
	case Edit:
		return EncodeEdit(v.Item, v.Data)
	}
	return nil, nil
}
