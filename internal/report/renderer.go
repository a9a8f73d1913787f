package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fakeyudi/scopecomms/internal/capture"
)

const (
	versionSentinel = "<!-- scopecomms-capture-version: 1 -->"
	dataPrefix      = "<!-- scopecomms-data: "
	dataSuffix      = " -->"

	outlineLimit = 200
	barWidth     = 30
)

// Renderer serialises a capture.
type Renderer interface {
	Render(c *capture.Capture) ([]byte, error)
}

// ForFormat returns the renderer for "md", "markdown" or "json".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "md", "markdown", "":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want markdown or json)", format)
	}
}

// JSONRenderer renders a capture as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(c *capture.Capture) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// MarkdownRenderer renders a capture as human-readable Markdown with an
// embedded base64 JSON payload for lossless round-trip parsing.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(c *capture.Capture) ([]byte, error) {
	jsonBytes, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal capture: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# %s: %s\n\n", oneLine(c.App), c.StartTime.Format("2006-01-02 15:04:05 MST"))

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Instance: %s\n", oneLine(c.Instance))
	fmt.Fprintf(&sb, "- Protocol: %s\n", c.Protocol)
	if c.StopTime != nil {
		fmt.Fprintf(&sb, "- Duration: %s\n", c.StopTime.Sub(c.StartTime).Round(time.Millisecond))
	}
	if c.Goodbye {
		sb.WriteString("- Ended: clean shutdown\n")
	} else {
		sb.WriteString("- Ended: connection dropped\n")
	}
	fmt.Fprintf(&sb, "- Samples: %d, marks: %d, spans: %d\n", len(c.Samples), len(c.Marks), len(c.Spans))
	if a := c.Anomalies; a.Any() {
		fmt.Fprintf(&sb, "- Anomalies: %d unmatched ends, %d open spans, %d missing samples, %d bad frames\n",
			a.UnmatchedEnds, a.OpenSpans, a.SeqGaps, a.BadFrames)
	}
	sb.WriteString("\n")

	sb.WriteString("## Library\n\n")
	if len(c.Library) == 0 {
		sb.WriteString("_No library registered._\n")
	} else {
		sb.WriteString("| # | Name | Type | Value |\n")
		sb.WriteString("|---|------|------|-------|\n")
		for i, it := range c.Library {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n", i, cell(it.Name), it.Type, cell(it.Value()))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Counters\n\n")
	if len(c.Counters) == 0 {
		sb.WriteString("_No counters registered._\n")
	} else {
		sb.WriteString("| Counter | Samples | Min | Max | Mean | Last |\n")
		sb.WriteString("|---------|---------|-----|-----|------|------|\n")
		for _, st := range CounterStats(c) {
			fmt.Fprintf(&sb, "| %s | %d | %d | %d | %.2f | %d |\n", cell(st.Name), st.Samples, st.Min, st.Max, st.Mean, st.Last)
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Marks\n\n")
	if len(c.Marks) == 0 {
		sb.WriteString("_No marks recorded._\n")
	} else {
		for _, m := range c.Marks {
			fmt.Fprintf(&sb, "- `%s` %s\n", formatUS(m.Timestamp), oneLine(m.Label))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Processing\n\n")
	if len(c.Spans) == 0 {
		sb.WriteString("_No processing spans recorded._\n")
	} else {
		sb.WriteString("| Label | Count | Total | Mean | Max |\n")
		sb.WriteString("|-------|-------|-------|------|-----|\n")
		for _, st := range SpanStats(c) {
			fmt.Fprintf(&sb, "| %s | %d | %s | %s | %s |\n", cell(st.Label), st.Count,
				formatUS(st.TotalUS), formatUS(uint64(st.MeanUS())), formatUS(st.MaxUS))
		}
		sb.WriteString("\n### Outline\n\n")
		sb.WriteString("```\n")
		writeOutline(&sb, Outline(c, outlineLimit))
		sb.WriteString("```\n")
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

// writeOutline draws one line per span, indented by depth, with a bar
// scaled to the longest span shown.
func writeOutline(sb *strings.Builder, spans []capture.Span) {
	var longest uint64
	for _, sp := range spans {
		longest = max(longest, sp.Duration())
	}
	for _, sp := range spans {
		n := 1
		if longest > 0 {
			n = max(1, int(sp.Duration()*barWidth/longest))
		}
		open := ""
		if sp.Open {
			open = " (open)"
		}
		fmt.Fprintf(sb, "%s%-*s %s %s frame %d%s\n",
			strings.Repeat("  ", sp.Depth), barWidth, strings.Repeat("█", n),
			oneLine(sp.Label), formatUS(sp.Duration()), sp.Frame, open)
	}
}

// formatUS renders microseconds with a unit suited to the magnitude.
func formatUS(us uint64) string {
	switch {
	case us >= 1_000_000:
		return fmt.Sprintf("%.3fs", float64(us)/1e6)
	case us >= 1_000:
		return fmt.Sprintf("%.2fms", float64(us)/1e3)
	default:
		return fmt.Sprintf("%dµs", us)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}
