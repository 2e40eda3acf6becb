// Package slurm generates sbatch submission scripts so a harvest can run
// as a batch job on a cluster login node.
package slurm

import (
	"fmt"
	"os"
	"strings"
	"text/template"
)

// Options parameterize the generated submission script.
type Options struct {
	Binary      string // path to the harvester binary
	JobName     string
	TimeLimit   string
	Memory      string
	CPUs        int
	DownloadDir string
	ConfigPath  string
	MaxItems    int
	ExtraArgs   []string
}

func (o *Options) defaults() {
	if o.JobName == "" {
		o.JobName = "scanforge_harvest"
	}
	if o.TimeLimit == "" {
		o.TimeLimit = "24:00:00"
	}
	if o.Memory == "" {
		o.Memory = "8G"
	}
	if o.CPUs <= 0 {
		o.CPUs = 2
	}
	if o.DownloadDir == "" {
		o.DownloadDir = "./pdfs"
	}
	if o.Binary == "" {
		o.Binary = "scanforge"
	}
}

var scriptTmpl = template.Must(template.New("sbatch").Parse(`#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --time={{.TimeLimit}}
#SBATCH --mem={{.Memory}}
#SBATCH --cpus-per-task={{.CPUs}}
#SBATCH --output={{.JobName}}_%j.out
#SBATCH --error={{.JobName}}_%j.err

# Load required modules (adjust for your cluster)
# module load go/1.24

mkdir -p {{.DownloadDirQ}}

{{.BinaryQ}} harvest \
    {{.CLIBlock}}

echo "Job completed at $(date)"
`))

type scriptData struct {
	Options
	DownloadDirQ string
	BinaryQ      string
	CLIBlock     string
}

// Render produces the script text.
func Render(opts Options) (string, error) {
	opts.defaults()

	args := []string{fmt.Sprintf("--download-dir %s", shellQuote(opts.DownloadDir))}
	if opts.ConfigPath != "" {
		args = append(args, fmt.Sprintf("--config %s", shellQuote(opts.ConfigPath)))
	}
	if opts.MaxItems > 0 {
		args = append(args, fmt.Sprintf("--max-items %d", opts.MaxItems))
	}
	args = append(args, opts.ExtraArgs...)

	var b strings.Builder
	err := scriptTmpl.Execute(&b, scriptData{
		Options:      opts,
		DownloadDirQ: shellQuote(opts.DownloadDir),
		BinaryQ:      shellQuote(opts.Binary),
		CLIBlock:     strings.Join(args, " \\\n    "),
	})
	if err != nil {
		return "", fmt.Errorf("render sbatch script: %w", err)
	}
	return b.String(), nil
}

// WriteScript renders and writes the script, executable.
func WriteScript(path string, opts Options) error {
	text, err := Render(opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o755); err != nil {
		return fmt.Errorf("write sbatch script: %w", err)
	}
	return nil
}

// shellQuote single-quotes a value for the generated shell script.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$&|;<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
