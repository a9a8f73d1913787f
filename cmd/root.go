package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/scopecomms/internal/capture"
	"github.com/fakeyudi/scopecomms/internal/config"
	"github.com/fakeyudi/scopecomms/internal/logging"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logLevel overrides the configured log level when set.
var logLevel string

var rootCmd = &cobra.Command{
	Use:          "scopecomms",
	Short:        "Live-tune host applications and capture their performance data",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.Merge(global, project)
		config.ApplyEnv(&cfg)

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		if err := logging.SetLevel(level); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// openStore returns the capture store named by the config, or the XDG default.
func openStore() (capture.Store, error) {
	if cfg.CaptureDir != "" {
		return capture.NewStoreAt(cfg.CaptureDir)
	}
	return capture.NewStore()
}
