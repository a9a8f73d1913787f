package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/scopecomms/internal/capture"
	"github.com/fakeyudi/scopecomms/internal/report"
)

var deleteCapture string

var capturesCmd = &cobra.Command{
	Use:   "captures",
	Short: "List saved captures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if deleteCapture != "" {
			if err := store.Delete(deleteCapture); err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted capture %s.\n", deleteCapture)
			return nil
		}

		list, err := store.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "no saved captures")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tAPP\tSTARTED\tDURATION\tENDED")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(s.ID), s.App,
				s.StartTime.Local().Format("2006-01-02 15:04:05"), captureDuration(s), endReason(s))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Captures: %d\n", len(list))
		return nil
	},
}

// loadCapture resolves ref as a report or capture file first, then as a
// stored capture ID or ID prefix.
func loadCapture(ref string) (*capture.Capture, string, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, "", err
		}
		c, err := report.Parse(data)
		if err != nil {
			return nil, "", err
		}
		if c.Version > capture.FormatVersion {
			return nil, "", fmt.Errorf("%s has format version %d, newer than %d", ref, c.Version, capture.FormatVersion)
		}
		return c, filepath.Base(ref), nil
	}
	store, err := openStore()
	if err != nil {
		return nil, "", err
	}
	c, err := store.Load(ref)
	if err != nil {
		return nil, "", err
	}
	return c, c.ID, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func captureDuration(s capture.Summary) string {
	if s.StopTime == nil {
		return "-"
	}
	return s.StopTime.Sub(s.StartTime).Round(time.Second).String()
}

func endReason(s capture.Summary) string {
	if s.Goodbye {
		return "goodbye"
	}
	return "dropped"
}

func init() {
	capturesCmd.Flags().StringVar(&deleteCapture, "delete", "", "delete the capture with this ID or ID prefix")
	rootCmd.AddCommand(capturesCmd)
}
