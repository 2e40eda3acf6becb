package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/internal/slurm"
)

func newSlurmCmd() *cobra.Command {
	var opts slurm.Options
	var outPath string

	cmd := &cobra.Command{
		Use:   "slurm",
		Short: "Generate an sbatch script that runs a harvest as a batch job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Binary == "" {
				if exe, err := os.Executable(); err == nil {
					opts.Binary = exe
				}
			}
			if opts.DownloadDir == "" {
				opts.DownloadDir = cfg.Download.Dir
			}
			opts.ConfigPath = cfgFile

			if err := slurm.WriteScript(outPath, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created SLURM script: %s\nSubmit with: sbatch %s\n", outPath, outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "output", "submit_harvest.sh", "path of the generated script")
	cmd.Flags().StringVar(&opts.JobName, "job-name", "scanforge_harvest", "SLURM job name")
	cmd.Flags().StringVar(&opts.TimeLimit, "time", "24:00:00", "SLURM time limit")
	cmd.Flags().StringVar(&opts.Memory, "mem", "8G", "SLURM memory request")
	cmd.Flags().IntVar(&opts.CPUs, "cpus", 2, "SLURM cpus per task")
	cmd.Flags().IntVar(&opts.MaxItems, "max-items", 0, "forwarded --max-items value (0 omits the flag)")
	cmd.Flags().StringVar(&opts.DownloadDir, "download-dir", "", "forwarded download directory")
	cmd.Flags().StringArrayVar(&opts.ExtraArgs, "extra-arg", nil, "additional raw arguments appended to the harvest command")

	return cmd
}
