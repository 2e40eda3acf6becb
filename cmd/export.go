package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/export"
	"github.com/scanforge/scanforge/internal/metrics"
)

func newExportCmd() *cobra.Command {
	var (
		outputDir  string
		exportType string
		subcol     string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write combined JSON/Markdown artifacts for OCR-complete files",
		Long: `Joins item metadata, file provenance, and the ingested OCR payload
for every OCR-complete file without an export record, and writes one JSON
document and/or one Markdown document per file. The export record is only
written once the artifacts are safely on disk.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics.Init()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			dir := cfg.Export.OutputDir
			if outputDir != "" {
				dir = outputDir
			}
			typ := cfg.Export.Type
			if exportType != "" {
				typ = exportType
			}

			exp, err := export.New(st, export.Config{
				OutputDir: dir,
				Type:      typ,
				Engine:    cfg.OCR.Engine,
				DryRun:    dryRun,
			}, logger)
			if err != nil {
				return err
			}

			sum, err := exp.Run(ctx, optionalString(subcol))
			if err != nil {
				return err
			}
			for i := 0; i < sum.Exported; i++ {
				metrics.ObserveExport()
			}
			if sum.Errors > 0 {
				logger.Warn("some files failed to export", zap.Int("errors", sum.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "override the configured export directory")
	cmd.Flags().StringVar(&exportType, "type", "", "artifact type: json, markdown, or both")
	cmd.Flags().StringVar(&subcol, "subcollection", "", "only export files from this subcollection")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be exported without writing")

	return cmd
}
