package wire

// Span is a reconstructed processing span.
type Span struct {
	Label string
	Frame uint32
	Begin uint64
	End   uint64
	Depth int
	// Open is set for spans that never saw an End.
	Open bool
}

// SpanTracker rebuilds spans from a stream of Begin and End records.
// End carries no label, so it always closes the innermost open span.
type SpanTracker struct {
	stack []Span
	// UnmatchedEnds counts End records that arrived with no open span.
	UnmatchedEnds int
}

// Begin pushes a new open span.
func (t *SpanTracker) Begin(b Begin) {
	t.stack = append(t.stack, Span{Label: b.Label, Frame: b.Frame, Begin: b.Timestamp, Depth: len(t.stack), Open: true})
}

// End closes the innermost open span and returns it.
func (t *SpanTracker) End(e End) (Span, bool) {
	if len(t.stack) == 0 {
		t.UnmatchedEnds++
		return Span{}, false
	}
	s := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	s.End = e.Timestamp
	s.Open = false
	return s, true
}

// Depth returns the number of currently open spans.
func (t *SpanTracker) Depth() int {
	return len(t.stack)
}

// CloseAll terminates every open span at ts, innermost first. The returned
// spans keep Open set so callers can tell them apart.
func (t *SpanTracker) CloseAll(ts uint64) []Span {
	var out []Span
	for len(t.stack) > 0 {
		s := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		s.End = ts
		out = append(out, s)
	}
	return out
}

// Spans reconstructs every span in records, in completion order. Spans still
// open at the end of the stream are returned last with Open set.
func Spans(records []Record) (spans []Span, unmatchedEnds int) {
	var t SpanTracker
	var last uint64
	for _, r := range records {
		switch v := r.(type) {
		case Begin:
			t.Begin(v)
			last = v.Timestamp
		case End:
			if s, ok := t.End(v); ok {
				spans = append(spans, s)
			}
			last = v.Timestamp
		}
	}
	spans = append(spans, t.CloseAll(last)...)
	return spans, t.UnmatchedEnds
}
