package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/internal/report"
)

func newStatusCmd() *cobra.Command {
	var (
		subcol         string
		identifier     string
		limit          int
		pendingOCR     bool
		pendingExports bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workflow statistics and stage queues",
		Long: `Prints aggregate counts by stage, and with flags the per-file
workflow view or the pending-OCR / pending-export queues.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()

			switch {
			case pendingOCR:
				pdfs, err := st.PendingOCR(ctx, optionalString(subcol))
				if err != nil {
					return err
				}
				fmt.Fprint(out, report.PendingOCR(pdfs))

			case pendingExports:
				cands, err := st.PendingExports(ctx, optionalString(subcol))
				if err != nil {
					return err
				}
				fmt.Fprint(out, report.PendingExports(cands))

			case identifier != "":
				rows, err := st.WorkflowRows(ctx, &identifier, limit)
				if err != nil {
					return err
				}
				fmt.Fprint(out, report.Workflow(rows))

			default:
				stats, err := st.Statistics(ctx, optionalString(subcol))
				if err != nil {
					return err
				}
				fmt.Fprint(out, report.Statistics(stats))

				rows, err := st.WorkflowRows(ctx, nil, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, report.Workflow(rows))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&subcol, "subcollection", "", "restrict to one subcollection")
	cmd.Flags().StringVar(&identifier, "identifier", "", "show the workflow rows for one item")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum workflow rows to print")
	cmd.Flags().BoolVar(&pendingOCR, "pending-ocr", false, "list files awaiting OCR")
	cmd.Flags().BoolVar(&pendingExports, "pending-exports", false, "list OCR-complete files awaiting export")

	return cmd
}
