package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/scopecomms/internal/report"
)

var (
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report <id|file>",
	Short: "Render a capture as Markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		renderer, err := report.ForFormat(reportFormat)
		if err != nil {
			return err
		}
		c, _, err := loadCapture(args[0])
		if err != nil {
			return err
		}
		data, err := renderer.Render(c)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}

		if reportOutput == "" || reportOutput == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(reportOutput, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", reportOutput)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown", "output format: markdown or json")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
