package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/scopecomms/internal/capture"
	"github.com/fakeyudi/scopecomms/internal/report"
	"github.com/fakeyudi/scopecomms/internal/tui"
)

var plainOutput bool

var viewCmd = &cobra.Command{
	Use:   "view <id|file>",
	Short: "View a saved capture or report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, title, err := loadCapture(args[0])
		if err != nil {
			return err
		}
		if plainOutput || !term.IsTerminal(os.Stdout.Fd()) {
			printCapture(cmd.OutOrStdout(), c)
			return nil
		}
		return tui.Run(c, title)
	},
}

// printCapture writes a plain-text summary to w.
func printCapture(w io.Writer, c *capture.Capture) {
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "  App:       %s\n", c.App)
	fmt.Fprintf(w, "  Instance:  %s\n", c.Instance)
	fmt.Fprintf(w, "  Protocol:  %s\n", c.Protocol)
	fmt.Fprintf(w, "  Started:   %s\n", c.StartTime.Format("2006-01-02 15:04:05 MST"))
	if c.StopTime != nil {
		fmt.Fprintf(w, "  Stopped:   %s\n", c.StopTime.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(w, "  Duration:  %s\n", c.StopTime.Sub(c.StartTime).Round(time.Millisecond))
	}
	if c.Goodbye {
		fmt.Fprintln(w, "  Ended:     goodbye")
	} else {
		fmt.Fprintln(w, "  Ended:     connection dropped")
	}
	if a := c.Anomalies; a.Any() {
		fmt.Fprintf(w, "  Anomalies: %d unmatched ends, %d open spans, %d sequence gaps, %d bad frames\n",
			a.UnmatchedEnds, a.OpenSpans, a.SeqGaps, a.BadFrames)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Library")
	if len(c.Library) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for i, it := range c.Library {
		fmt.Fprintf(w, "  %d. %s (%s) = %s\n", i, it.Name, it.Type, it.Value())
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Counters")
	stats := report.CounterStats(c)
	if len(stats) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, st := range stats {
		fmt.Fprintf(w, "  %s: last %d, min %d, max %d, mean %.1f over %d samples\n",
			st.Name, st.Last, st.Min, st.Max, st.Mean, st.Samples)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Marks")
	if len(c.Marks) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, m := range c.Marks {
		fmt.Fprintf(w, "  [%s] %s\n", micros(m.Timestamp), m.Label)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Processing")
	spans := report.SpanStats(c)
	if len(spans) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, st := range spans {
		line := fmt.Sprintf("  %s: %d spans, total %s, mean %s, max %s",
			st.Label, st.Count, micros(st.TotalUS), micros(uint64(st.MeanUS())), micros(st.MaxUS))
		if st.Open > 0 {
			line += fmt.Sprintf(", %d open", st.Open)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func micros(us uint64) string {
	return (time.Duration(us) * time.Microsecond).String()
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	rootCmd.AddCommand(viewCmd)
}
