package slurm_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/internal/slurm"
)

func TestRenderDefaults(t *testing.T) {
	text, err := slurm.Render(slurm.Options{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "#!/bin/bash\n"))
	assert.Contains(t, text, "#SBATCH --job-name=scanforge_harvest")
	assert.Contains(t, text, "#SBATCH --time=24:00:00")
	assert.Contains(t, text, "#SBATCH --mem=8G")
	assert.Contains(t, text, "#SBATCH --cpus-per-task=2")
	assert.Contains(t, text, "mkdir -p ./pdfs")
	assert.Contains(t, text, "scanforge harvest")
	assert.Contains(t, text, "--download-dir ./pdfs")
	assert.NotContains(t, text, "--max-items")
}

func TestRenderForwardsOptions(t *testing.T) {
	text, err := slurm.Render(slurm.Options{
		Binary:      "/opt/bin/scanforge",
		JobName:     "gazetteers",
		TimeLimit:   "48:00:00",
		Memory:      "16G",
		CPUs:        8,
		DownloadDir: "/scratch/pdfs",
		ConfigPath:  "/etc/scanforge.yaml",
		MaxItems:    500,
		ExtraArgs:   []string{"--all-variants"},
	})
	require.NoError(t, err)

	assert.Contains(t, text, "#SBATCH --job-name=gazetteers")
	assert.Contains(t, text, "#SBATCH --output=gazetteers_%j.out")
	assert.Contains(t, text, "/opt/bin/scanforge harvest")
	assert.Contains(t, text, "--download-dir /scratch/pdfs")
	assert.Contains(t, text, "--config /etc/scanforge.yaml")
	assert.Contains(t, text, "--max-items 500")
	assert.Contains(t, text, "--all-variants")
}

func TestRenderQuotesUnsafePaths(t *testing.T) {
	text, err := slurm.Render(slurm.Options{DownloadDir: "/data/my pdfs"})
	require.NoError(t, err)
	assert.Contains(t, text, "mkdir -p '/data/my pdfs'")
	assert.Contains(t, text, "--download-dir '/data/my pdfs'")
}

func TestWriteScriptIsExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submit.sh")
	require.NoError(t, slurm.WriteScript(path, slurm.Options{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "owner execute bit")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#SBATCH")
}
