package perfserver

import (
	"time"

	"github.com/fakeyudi/scopecomms/internal/ring"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// Sample is one counter snapshot as received.
type Sample struct {
	Seq       uint64   `json:"seq"`
	Timestamp uint64   `json:"timestamp_us"`
	Readings  []uint32 `json:"readings"`
}

// Snapshot is a point-in-time copy of one client's state. It shares no
// memory with the server.
type Snapshot struct {
	ID        string
	App       string
	Instance  string
	Remote    string
	Version   [2]uint8
	Connected time.Time
	// Ended is zero while the client is still attached.
	Ended   time.Time
	Goodbye bool

	Items    []wire.LibraryItem
	Counters []string
	Samples  []Sample
	Marks    []wire.Mark
	Spans    []wire.Span

	OpenSpans     int
	UnmatchedEnds int
	SeqGaps       uint64
	Records       uint64
	BadFrames     uint64
	// LastTimestamp is the newest session clock value seen, in microseconds.
	LastTimestamp uint64
}

// Live reports whether the client was still attached when the snapshot was taken.
func (s Snapshot) Live() bool { return s.Ended.IsZero() }

// ItemIndex returns the index of the library item called name.
func (s Snapshot) ItemIndex(name string) (int, bool) {
	for i, it := range s.Items {
		if it.Name == name {
			return i, true
		}
	}
	return -1, false
}

// client holds everything the server knows about one connection. Callers
// hold Server.mu.
type client struct {
	id        string
	remote    string
	connected time.Time
	ended     time.Time

	hello   bool
	version [2]uint8
	app     string
	inst    string
	goodbye bool

	items    []wire.LibraryItem
	counters []string
	samples  *ring.Queue[Sample]
	marks    *ring.Queue[wire.Mark]
	spans    *ring.Queue[wire.Span]
	tracker  wire.SpanTracker

	haveSeq   bool
	lastSeq   uint64
	seqGaps   uint64
	records   uint64
	badFrames uint64
	last      uint64
}

func newClient(id, remote string, history int, now time.Time) *client {
	return &client{
		id:        id,
		remote:    remote,
		connected: now,
		samples:   ring.New[Sample](history),
		marks:     ring.New[wire.Mark](history),
		spans:     ring.New[wire.Span](history),
	}
}

// apply folds one decoded record into the client state.
func (c *client) apply(rec wire.Record) {
	c.records++
	switch r := rec.(type) {
	case wire.Hello:
		c.hello = true
		c.version = [2]uint8{r.Major, r.Minor}
		c.app = r.Name
		c.inst = r.Instance
	case wire.Mark:
		c.stamp(r.Timestamp)
		c.marks.Push(r)
	case wire.Begin:
		c.stamp(r.Timestamp)
		c.tracker.Begin(r)
	case wire.End:
		c.stamp(r.Timestamp)
		if sp, ok := c.tracker.End(r); ok {
			c.spans.Push(sp)
		}
	case wire.Library:
		c.items = cloneItems(r.Items)
	case wire.CounterDefs:
		c.counters = append([]string(nil), r.Names...)
	case wire.Counters:
		c.stamp(r.Timestamp)
		if c.haveSeq && r.Seq > c.lastSeq+1 {
			c.seqGaps += r.Seq - c.lastSeq - 1
		}
		c.haveSeq, c.lastSeq = true, r.Seq
		c.samples.Push(Sample{Seq: r.Seq, Timestamp: r.Timestamp, Readings: append([]uint32(nil), r.Readings...)})
	case wire.Goodbye:
		c.stamp(r.Timestamp)
		c.goodbye = true
		c.closeOpen(r.Timestamp)
	}
}

func (c *client) stamp(ts uint64) {
	if ts > c.last {
		c.last = ts
	}
}

// closeOpen terminates spans the client never ended. They keep Open set.
func (c *client) closeOpen(ts uint64) {
	for _, sp := range c.tracker.CloseAll(ts) {
		c.spans.Push(sp)
	}
}

// setItem stores data as the live value of item i.
func (c *client) setItem(i int, data []byte) {
	c.items[i].Data = append([]byte(nil), data...)
}

func (c *client) snapshot() Snapshot {
	return Snapshot{
		ID:            c.id,
		App:           c.app,
		Instance:      c.inst,
		Remote:        c.remote,
		Version:       c.version,
		Connected:     c.connected,
		Ended:         c.ended,
		Goodbye:       c.goodbye,
		Items:         cloneItems(c.items),
		Counters:      append([]string(nil), c.counters...),
		Samples:       cloneSamples(c.samples.Slice()),
		Marks:         c.marks.Slice(),
		Spans:         c.spans.Slice(),
		OpenSpans:     c.tracker.Depth(),
		UnmatchedEnds: c.tracker.UnmatchedEnds,
		SeqGaps:       c.seqGaps,
		Records:       c.records,
		BadFrames:     c.badFrames,
		LastTimestamp: c.last,
	}
}

func cloneItems(items []wire.LibraryItem) []wire.LibraryItem {
	if items == nil {
		return nil
	}
	out := make([]wire.LibraryItem, len(items))
	for i, it := range items {
		out[i] = wire.LibraryItem{Name: it.Name, Type: it.Type, Data: append([]byte(nil), it.Data...)}
	}
	return out
}

func cloneSamples(in []Sample) []Sample {
	for i := range in {
		in[i].Readings = append([]uint32(nil), in[i].Readings...)
	}
	return in
}
