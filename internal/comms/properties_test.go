package comms

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/internal/transport"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// Property: after N injected edits, polling returns at most one edit per
// valid item, carrying that item's latest value, in first-arrival order,
// and then reports nothing. Indices always refer to the registered item.
func TestPollDirtyDrainsLatestPerItem(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, err := Initialise("prop", WithDialer(blackHole), WithLogger(logging.Discard()))
		if err != nil {
			rt.Fatal(err)
		}
		defer s.Shutdown()

		k := rapid.IntRange(1, 8).Draw(rt, "items")
		items := make([]LibraryItem, k)
		for i := range items {
			items[i] = LibraryItem{
				Name: rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "name"),
				Type: wire.ItemFloat,
				Data: wire.FloatValue{Current: 0, Min: -1, Max: 1}.Bytes(),
			}
		}
		if err := s.LibraryCreate(items); err != nil {
			rt.Fatal(err)
		}

		latest := map[uint32][]byte{}
		var order []uint32
		n := rapid.IntRange(0, cap(s.edits)).Draw(rt, "edits")
		for i := 0; i < n; i++ {
			idx := uint32(rapid.IntRange(0, k+1).Draw(rt, "idx"))
			data := wire.FloatValue{Current: rapid.Float32Range(-1, 1).Draw(rt, "v"), Min: -1, Max: 1}.Bytes()
			if rapid.IntRange(0, 9).Draw(rt, "corrupt") == 0 {
				data = data[:8]
			}
			if !s.receiveEdit(wire.Edit{Item: idx, Data: data}, nil) {
				rt.Fatal("receiveEdit refused")
			}
			if int(idx) >= k || len(data) != wire.FloatSize {
				continue
			}
			if _, seen := latest[idx]; !seen {
				order = append(order, idx)
			}
			latest[idx] = data
		}

		for _, want := range order {
			e, ok := s.PollDirty()
			if !ok {
				rt.Fatalf("ran out of edits, expected item %d", want)
			}
			if e.Item != want || !bytes.Equal(e.Data, latest[want]) {
				rt.Fatalf("got (%d, % x), want (%d, % x)", e.Item, e.Data, want, latest[want])
			}
			if len(e.Data) != wire.FloatSize || items[e.Item].Type != wire.ItemFloat {
				rt.Fatalf("edit does not match registered item %d", e.Item)
			}
		}
		if _, ok := s.PollDirty(); ok {
			rt.Fatal("expected no more edits")
		}
	})
}

// Property: a snapshot with the wrong number of readings is rejected with a
// typed error and nothing is buffered for it.
func TestCountersUpdateNeverPartiallyEncodes(t *testing.T) {
	fs := newFakeServer(t)
	s := newSession(t, fs.ln, WithFlushThreshold(1<<20), WithMaxBuffered(1<<20))
	connect(t, s)
	const k = 4
	if err := s.CountersCreate([]CounterDef{{"a"}, {"b"}, {"c"}, {"d"}}); err != nil {
		t.Fatal(err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 16).Filter(func(n int) bool { return n != k }).Draw(rt, "n")
		readings := rapid.SliceOfN(rapid.Uint32(), n, n).Draw(rt, "readings")

		s.mu.Lock()
		before, seq := s.out.len(), s.ctrs.seq
		s.mu.Unlock()

		err := s.CountersUpdate(readings)
		var mismatch *CountMismatchError
		if !errors.As(err, &mismatch) || mismatch.Want != k || mismatch.Got != n {
			rt.Fatalf("CountersUpdate(%d readings) = %v", n, err)
		}

		s.mu.Lock()
		after, seqAfter := s.out.len(), s.ctrs.seq
		s.mu.Unlock()
		if after != before || seqAfter != seq {
			rt.Fatalf("rejected update changed state: buffered %d→%d, seq %d→%d", before, after, seq, seqAfter)
		}
	})
}

// Property: with no server reachable, no call on the owner's path blocks.
func TestNeverBlocksWhileDisconnected(t *testing.T) {
	const bound = 50 * time.Millisecond
	s := newSession(t, blackHole, WithConnectTimeout(time.Hour))
	if err := s.CountersCreate([]CounterDef{{"Frames"}}); err != nil {
		t.Fatal(err)
	}

	ops := map[string]func() error{
		"SendMark":            func() error { return s.SendMark("m") },
		"SendProcessingBegin": func() error { return s.SendProcessingBegin("b", 1) },
		"SendProcessingEnd":   func() error { s.SendProcessingBegin("b", 1); return s.SendProcessingEnd() },
		"CountersUpdate":      func() error { return s.CountersUpdate([]uint32{1}) },
		"Flush":               s.Flush,
		"PollDirty":           func() error { s.PollDirty(); return ErrDisconnected },
	}
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.SampledFrom([]string{"SendMark", "SendProcessingBegin", "SendProcessingEnd", "CountersUpdate", "Flush", "PollDirty"}).Draw(rt, "op")
		start := time.Now()
		err := ops[name]()
		if d := time.Since(start); d > bound {
			rt.Fatalf("%s took %v", name, d)
		}
		if !errors.Is(err, ErrDisconnected) {
			rt.Fatalf("%s = %v, want ErrDisconnected", name, err)
		}
	})

	start := time.Now()
	if err := s.LibraryCreate(floatItems()); err != nil {
		t.Fatalf("LibraryCreate while disconnected: %v", err)
	}
	if d := time.Since(start); d > bound {
		t.Errorf("LibraryCreate took %v", d)
	}

	start = time.Now()
	s.Shutdown()
	if d := time.Since(start); d > time.Second {
		t.Errorf("Shutdown took %v with a pending dial", d)
	}
}

// A server that accepts but never reads must not stall the owner either.
func TestStalledServerDoesNotBlockOwner(t *testing.T) {
	ln := transport.NewPipeListener()
	defer ln.Close()
	s := newSession(t, ln, WithFlushThreshold(64), WithMaxBuffered(256), WithWriteTimeout(500*time.Millisecond))
	connect(t, s)
	if _, err := ln.Accept(t.Context()); err != nil {
		t.Fatal(err)
	}

	sawFull := false
	for i := 0; i < 200; i++ {
		start := time.Now()
		err := s.SendMark("backlog")
		if d := time.Since(start); d > 50*time.Millisecond {
			t.Fatalf("SendMark %d took %v", i, d)
		}
		if errors.Is(err, ErrBufferFull) {
			sawFull = true
			break
		}
		if err != nil && !errors.Is(err, ErrDisconnected) {
			t.Fatalf("SendMark: %v", err)
		}
	}
	if !sawFull && s.Connected() {
		t.Error("expected the outbound buffer to fill while the writer is stuck")
	}

	start := time.Now()
	s.Shutdown()
	if d := time.Since(start); d > 3*time.Second {
		t.Errorf("Shutdown took %v", d)
	}
}

// Property: every call after Shutdown reports ErrUseAfterShutdown (or
// nothing, for polling) regardless of the order the calls are made in.
func TestPostShutdownSafety(t *testing.T) {
	fs := newFakeServer(t)
	s := newSession(t, fs.ln)
	connect(t, s)
	if err := s.LibraryCreate(floatItems()); err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	calls := map[string]func() error{
		"SendMark":            func() error { return s.SendMark("x") },
		"SendProcessingBegin": func() error { return s.SendProcessingBegin("x", 0) },
		"SendProcessingEnd":   s.SendProcessingEnd,
		"LibraryCreate":       func() error { return s.LibraryCreate(floatItems()) },
		"CountersCreate":      func() error { return s.CountersCreate([]CounterDef{{"f"}}) },
		"CountersUpdate":      func() error { return s.CountersUpdate([]uint32{1}) },
		"Flush":               s.Flush,
		"Shutdown":            s.Shutdown,
	}
	names := make([]string, 0, len(calls))
	for n := range calls {
		names = append(names, n)
	}
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.SampledFrom(names).Draw(rt, "call")
		if err := calls[name](); !errors.Is(err, ErrUseAfterShutdown) {
			rt.Fatalf("%s after Shutdown = %v", name, err)
		}
		if _, ok := s.PollDirty(); ok {
			rt.Fatal("PollDirty after Shutdown returned an edit")
		}
		if s.PendingEdits() != 0 {
			rt.Fatal("PendingEdits after Shutdown should be zero")
		}
		if s.State() != StateClosed {
			rt.Fatalf("state = %v, want closed", s.State())
		}
	})
	if WaitForConnection(10*time.Millisecond, s)[0] {
		t.Error("closed session reported as connected")
	}
}
