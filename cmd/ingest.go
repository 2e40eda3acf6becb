package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/metrics"
	"github.com/scanforge/scanforge/internal/ocr"
)

func newIngestCmd() *cobra.Command {
	var (
		resultsDir string
		subcol     string
		dryRun     bool
		resetStale time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest externally produced OCR output into the workflow database",
		Long: `Scans a directory of OCR result files (batch JSONL keyed by source
file, or per-PDF JSON named after the PDF stem), matches them to tracked
PDFs by filename, and marks those files OCR-complete with the full record
payload stored for export. Rerunning over the same directory is a no-op.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics.Init()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if resetStale > 0 {
				n, err := st.ResetStaleOCR(ctx, time.Now().Add(-resetStale))
				if err != nil {
					return fmt.Errorf("reset stale ocr records: %w", err)
				}
				logger.Info("reset stale ocr records", zap.Int64("count", n))
			}

			dir := cfg.OCR.ResultsDir
			if resultsDir != "" {
				dir = resultsDir
			}

			ing := ocr.New(st, cfg.OCR.Engine, dryRun, logger)
			sum, err := ing.Run(ctx, dir, optionalString(subcol))
			if err != nil {
				return err
			}
			metrics.ObserveOCRIngest(sum.New + sum.Updated)

			if sum.BadFiles > 0 {
				logger.Warn("some ocr outputs could not be ingested", zap.Int("bad_files", sum.BadFiles))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "override the configured OCR results directory")
	cmd.Flags().StringVar(&subcol, "subcollection", "", "only ingest results for this subcollection")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be ingested without writing")
	cmd.Flags().DurationVar(&resetStale, "reset-stale", 0, "first reset processing records older than this (e.g. 24h)")

	return cmd
}
