// Package report renders captures as Markdown or JSON and parses them back.
package report

import (
	"math"
	"sort"

	"github.com/fakeyudi/scopecomms/internal/capture"
)

// CounterStat summarises one counter across every sample.
type CounterStat struct {
	Name    string
	Samples int
	Min     uint32
	Max     uint32
	Mean    float64
	Last    uint32
}

// CounterStats computes per-counter statistics. Samples whose reading count
// does not match the counter definitions are ignored.
func CounterStats(c *capture.Capture) []CounterStat {
	stats := make([]CounterStat, len(c.Counters))
	sums := make([]float64, len(c.Counters))
	for i, name := range c.Counters {
		stats[i] = CounterStat{Name: name, Min: math.MaxUint32}
	}
	for _, s := range c.Samples {
		if len(s.Readings) != len(c.Counters) {
			continue
		}
		for i, v := range s.Readings {
			st := &stats[i]
			st.Samples++
			st.Min = min(st.Min, v)
			st.Max = max(st.Max, v)
			st.Last = v
			sums[i] += float64(v)
		}
	}
	for i := range stats {
		if stats[i].Samples == 0 {
			stats[i].Min = 0
			continue
		}
		stats[i].Mean = sums[i] / float64(stats[i].Samples)
	}
	return stats
}

// SpanStat aggregates every span that shares a label.
type SpanStat struct {
	Label   string
	Count   int
	TotalUS uint64
	MaxUS   uint64
	Open    int
}

// MeanUS is the average span length in microseconds.
func (s SpanStat) MeanUS() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.TotalUS) / float64(s.Count)
}

// SpanStats groups spans by label, most expensive first.
func SpanStats(c *capture.Capture) []SpanStat {
	byLabel := map[string]*SpanStat{}
	var order []string
	for _, sp := range c.Spans {
		st, ok := byLabel[sp.Label]
		if !ok {
			st = &SpanStat{Label: sp.Label}
			byLabel[sp.Label] = st
			order = append(order, sp.Label)
		}
		d := sp.Duration()
		st.Count++
		st.TotalUS += d
		st.MaxUS = max(st.MaxUS, d)
		if sp.Open {
			st.Open++
		}
	}
	out := make([]SpanStat, 0, len(order))
	for _, l := range order {
		out = append(out, *byLabel[l])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalUS > out[j].TotalUS })
	return out
}

// Outline orders spans by start time, parents before children, for a
// flame-style listing. Only the last limit spans are kept when limit > 0.
func Outline(c *capture.Capture, limit int) []capture.Span {
	spans := append([]capture.Span(nil), c.Spans...)
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Begin != spans[j].Begin {
			return spans[i].Begin < spans[j].Begin
		}
		return spans[i].Depth < spans[j].Depth
	})
	if limit > 0 && len(spans) > limit {
		spans = spans[len(spans)-limit:]
	}
	return spans
}
