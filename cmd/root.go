// Package cmd defines and implements the CLI commands for the scanforge
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/config"
	"github.com/scanforge/scanforge/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

// newRootCmd creates and configures the root command. Configuration and the
// logger are built once here and shared by every subcommand.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanforge",
		Short: "Acquire, track, and export OCR'd scanned-document PDFs.",
		Long: `scanforge harvests scanned-document PDFs from a digital library,
tracks each file through download, OCR, and export in Postgres, ingests
externally produced OCR output, and emits combined JSON and Markdown
artifacts.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus SCANFORGE_* env)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSlurmCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
