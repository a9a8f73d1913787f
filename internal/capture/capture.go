// Package capture persists finished client sessions so they can be reported
// on or viewed after the client has gone.
package capture

import (
	"fmt"
	"time"

	"github.com/fakeyudi/scopecomms/internal/perfserver"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// FormatVersion is bumped whenever Capture changes incompatibly.
const FormatVersion = 1

// Capture is a recording of one client connection.
type Capture struct {
	Version   int        `json:"version"`
	ID        string     `json:"id"`
	App       string     `json:"app"`
	Instance  string     `json:"instance"`
	Remote    string     `json:"remote,omitempty"`
	Protocol  string     `json:"protocol"`
	StartTime time.Time  `json:"start_time"`
	StopTime  *time.Time `json:"stop_time,omitempty"`
	// Goodbye is true when the client shut down cleanly.
	Goodbye bool `json:"goodbye"`

	Library   []Item              `json:"library"`
	Counters  []string            `json:"counters"`
	Samples   []perfserver.Sample `json:"samples"`
	Marks     []Mark              `json:"marks"`
	Spans     []Span              `json:"spans"`
	Anomalies Anomalies           `json:"anomalies"`
}

// Item is a library item and the last value it held.
type Item struct {
	Name string        `json:"name"`
	Type wire.ItemType `json:"type"`
	Data []byte        `json:"data"`
}

// Value renders the item's value for display.
func (i Item) Value() string { return wire.Describe(i.Type, i.Data) }

type Mark struct {
	Timestamp uint64 `json:"timestamp_us"`
	Label     string `json:"label"`
}

type Span struct {
	Label string `json:"label"`
	Frame uint32 `json:"frame"`
	Begin uint64 `json:"begin_us"`
	End   uint64 `json:"end_us"`
	Depth int    `json:"depth"`
	// Open marks spans the client never ended.
	Open bool `json:"open,omitempty"`
}

// Duration returns the span length in microseconds.
func (s Span) Duration() uint64 {
	if s.End < s.Begin {
		return 0
	}
	return s.End - s.Begin
}

// Anomalies counts protocol misuse seen on the connection.
type Anomalies struct {
	UnmatchedEnds int    `json:"unmatched_ends"`
	OpenSpans     int    `json:"open_spans"`
	SeqGaps       uint64 `json:"seq_gaps"`
	BadFrames     uint64 `json:"bad_frames"`
}

// Any reports whether anything went wrong.
func (a Anomalies) Any() bool {
	return a.UnmatchedEnds > 0 || a.OpenSpans > 0 || a.SeqGaps > 0 || a.BadFrames > 0
}

// FromSnapshot converts a server snapshot. Spans the server closed on
// disconnect are counted with the ones still open at snapshot time.
func FromSnapshot(s perfserver.Snapshot) *Capture {
	c := &Capture{
		Version:   FormatVersion,
		ID:        s.ID,
		App:       s.App,
		Instance:  s.Instance,
		Remote:    s.Remote,
		Protocol:  protocol(s.Version),
		StartTime: s.Connected.UTC(),
		Goodbye:   s.Goodbye,
		Counters:  append([]string{}, s.Counters...),
		Samples:   append([]perfserver.Sample{}, s.Samples...),
		Anomalies: Anomalies{
			UnmatchedEnds: s.UnmatchedEnds,
			OpenSpans:     s.OpenSpans,
			SeqGaps:       s.SeqGaps,
			BadFrames:     s.BadFrames,
		},
	}
	if !s.Ended.IsZero() {
		stop := s.Ended.UTC()
		c.StopTime = &stop
	}
	c.Library = make([]Item, len(s.Items))
	for i, it := range s.Items {
		c.Library[i] = Item{Name: it.Name, Type: it.Type, Data: append([]byte(nil), it.Data...)}
	}
	c.Marks = make([]Mark, len(s.Marks))
	for i, m := range s.Marks {
		c.Marks[i] = Mark{Timestamp: m.Timestamp, Label: m.Label}
	}
	c.Spans = make([]Span, 0, len(s.Spans))
	for _, sp := range s.Spans {
		if sp.Open {
			c.Anomalies.OpenSpans++
		}
		c.Spans = append(c.Spans, Span{Label: sp.Label, Frame: sp.Frame, Begin: sp.Begin, End: sp.End, Depth: sp.Depth, Open: sp.Open})
	}
	return c
}

func protocol(v [2]uint8) string {
	return fmt.Sprintf("%d.%d", v[0], v[1])
}
