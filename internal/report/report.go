// Package report renders workflow state as plain-text tables for the
// status command. Column widths are display widths, so wide glyphs in
// titles and filenames stay aligned.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/scanforge/scanforge/internal/store"
)

const maxCellWidth = 48

// table is a header row plus data rows, rendered with padded columns.
type table struct {
	headers []string
	rows    [][]string
}

func (t *table) add(cells ...string) {
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = runewidth.Truncate(c, maxCellWidth, "…")
	}
	t.rows = append(t.rows, row)
}

func (t *table) render() string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		b.WriteString("\n")
	}

	writeRow(t.headers)
	rule := make([]string, len(t.headers))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	writeRow(rule)
	for _, row := range t.rows {
		writeRow(row)
	}
	return b.String()
}

// Statistics renders the aggregate workflow counters.
func Statistics(stats store.Statistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Items tracked:   %d\n", stats.TotalItems)
	fmt.Fprintf(&b, "Exports written: %d\n\n", stats.TotalExports)

	b.WriteString("PDF files by download status\n")
	b.WriteString(statusTable(stats.PDFStatus))
	b.WriteString("\nOCR records by status\n")
	b.WriteString(statusTable(stats.OCRStatus))
	return b.String()
}

func statusTable(counts map[string]int64) string {
	t := &table{headers: []string{"Status", "Count"}}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		t.add("(none)", "0")
	}
	for _, k := range keys {
		t.add(k, fmt.Sprintf("%d", counts[k]))
	}
	return t.render()
}

// Workflow renders the per-file stage view.
func Workflow(rows []store.WorkflowRow) string {
	if len(rows) == 0 {
		return "No tracked files.\n"
	}
	t := &table{headers: []string{"Identifier", "Filename", "Download", "OCR", "Export"}}
	for _, r := range rows {
		t.add(r.Identifier, r.Filename, r.DownloadStatus, r.OCRStatus, r.ExportStatus)
	}
	return t.render()
}

// PendingOCR renders the queue of files awaiting OCR.
func PendingOCR(pdfs []store.PDFFile) string {
	if len(pdfs) == 0 {
		return "No files pending OCR.\n"
	}
	t := &table{headers: []string{"Identifier", "Filename", "Size (bytes)"}}
	for _, p := range pdfs {
		t.add(p.Identifier, p.Filename, fmt.Sprintf("%d", p.SizeBytes))
	}
	return t.render() + fmt.Sprintf("\n%d file(s) pending OCR.\n", len(pdfs))
}

// PendingExports renders the queue of OCR-complete files awaiting export.
func PendingExports(cands []store.ExportCandidate) string {
	if len(cands) == 0 {
		return "No files pending export.\n"
	}
	t := &table{headers: []string{"Identifier", "Filename", "OCR Output"}}
	for _, c := range cands {
		out := ""
		if c.OCRPath != nil {
			out = *c.OCRPath
		}
		t.add(c.Identifier, c.Filename, out)
	}
	return t.render() + fmt.Sprintf("\n%d file(s) pending export.\n", len(cands))
}
