package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/scanforge/internal/ocr"
	"github.com/scanforge/scanforge/internal/store"
)

// frontMatter is the YAML header of the Markdown artifact.
type frontMatter struct {
	Identifier  string   `yaml:"identifier"`
	Title       string   `yaml:"title"`
	Creator     string   `yaml:"creator,omitempty"`
	Year        *int     `yaml:"year,omitempty"`
	Date        string   `yaml:"date,omitempty"`
	Publisher   string   `yaml:"publisher,omitempty"`
	Language    string   `yaml:"language,omitempty"`
	Subjects    []string `yaml:"subjects,omitempty"`
	Collections []string `yaml:"collections,omitempty"`
	Source      string   `yaml:"source"`
	PDFFilename string   `yaml:"pdf_filename"`
	PDFSHA256   string   `yaml:"pdf_sha256"`
	PDFPages    int      `yaml:"pdf_pages"`
	OCREngine   string   `yaml:"ocr_engine"`
	OCRVersion  string   `yaml:"ocr_version"`
	Generated   string   `yaml:"generated"`
}

// renderMarkdown builds the Markdown artifact: YAML front matter, title
// heading, optional description, the combined OCR text, and a stats trailer.
func renderMarkdown(item store.Item, pdf store.PDFFile, combined ocr.Combined, engine string) string {
	fm := frontMatter{
		Identifier:  item.Identifier,
		Title:       orUnknown(item.Title),
		Creator:     item.Creator,
		Year:        item.Year,
		Date:        item.Date,
		Publisher:   item.Publisher,
		Language:    item.Language,
		Subjects:    splitSemicolon(item.Subject),
		Collections: splitSemicolon(item.Collection),
		Source:      item.ItemURL,
		PDFFilename: pdf.Filename,
		PDFSHA256:   pdf.SHA256,
		PDFPages:    combined.PageCount,
		OCREngine:   engine,
		OCRVersion:  combined.Version,
		Generated:   time.Now().Format(time.RFC3339),
	}

	var b strings.Builder
	b.WriteString("---\n")
	if data, err := yaml.Marshal(fm); err == nil {
		b.Write(data)
	}
	b.WriteString("---\n\n")

	title := item.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if item.Description != "" {
		b.WriteString("## Description\n\n")
		b.WriteString(item.Description)
		b.WriteString("\n\n")
	}

	b.WriteString("## OCR Text\n\n")
	b.WriteString(combined.Text)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "*OCR processed %d pages in %d records*  \n", combined.PageCount, combined.RecordCount)
	fmt.Fprintf(&b, "*Total length: %d characters*  \n", combined.TotalLength)
	fmt.Fprintf(&b, "*%s version: %s*\n", engine, combined.Version)

	return b.String()
}

func splitSemicolon(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
