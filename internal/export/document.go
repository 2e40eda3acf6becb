package export

import (
	"time"

	"github.com/scanforge/scanforge/internal/ocr"
	"github.com/scanforge/scanforge/internal/store"
)

// Document is the combined JSON artifact for one PDF.
type Document struct {
	Identifier string       `json:"identifier"`
	Metadata   ItemMetadata `json:"metadata"`
	PDF        PDFInfo      `json:"pdf"`
	OCR        OCRInfo      `json:"ocr"`
	Generated  string       `json:"generated"`
}

// ItemMetadata carries the catalog fields of the owning item.
type ItemMetadata struct {
	Title       string `json:"title"`
	Creator     string `json:"creator"`
	Publisher   string `json:"publisher"`
	Date        string `json:"date"`
	Year        *int   `json:"year"`
	Language    string `json:"language"`
	Subject     string `json:"subject"`
	Collection  string `json:"collection"`
	Description string `json:"description"`
	ItemURL     string `json:"item_url"`
}

// PDFInfo carries local file provenance.
type PDFInfo struct {
	Filename     string `json:"filename"`
	Filepath     string `json:"filepath"`
	SizeBytes    int64  `json:"size_bytes"`
	SHA256       string `json:"sha256"`
	DownloadDate string `json:"download_date"`
}

// OCRInfo carries the combined text plus engine metadata and statistics.
type OCRInfo struct {
	Engine     string        `json:"engine"`
	Version    string        `json:"version"`
	Text       string        `json:"text"`
	Metadata   OCRMetadata   `json:"metadata"`
	Statistics OCRStatistics `json:"statistics"`
}

// OCRMetadata mirrors the engine-declared metadata of the first record.
type OCRMetadata struct {
	Version       string `json:"ocr_version"`
	SourceFile    string `json:"source_file"`
	PDFTotalPages int    `json:"pdf_total_pages"`
	InputTokens   int    `json:"total_input_tokens"`
	OutputTokens  int    `json:"total_output_tokens"`
}

// OCRStatistics aggregates over all records.
type OCRStatistics struct {
	RecordCount  int `json:"record_count"`
	PageCount    int `json:"page_count"`
	TotalLength  int `json:"total_length"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func buildDocument(item store.Item, pdf store.PDFFile, combined ocr.Combined, engine string, now time.Time) Document {
	return Document{
		Identifier: item.Identifier,
		Metadata: ItemMetadata{
			Title:       item.Title,
			Creator:     item.Creator,
			Publisher:   item.Publisher,
			Date:        item.Date,
			Year:        item.Year,
			Language:    item.Language,
			Subject:     item.Subject,
			Collection:  item.Collection,
			Description: item.Description,
			ItemURL:     item.ItemURL,
		},
		PDF: PDFInfo{
			Filename:     pdf.Filename,
			Filepath:     pdf.Filepath,
			SizeBytes:    pdf.SizeBytes,
			SHA256:       pdf.SHA256,
			DownloadDate: pdf.DownloadDate.Format(time.RFC3339),
		},
		OCR: OCRInfo{
			Engine:  engine,
			Version: combined.Version,
			Text:    combined.Text,
			Metadata: OCRMetadata{
				Version:       combined.Version,
				SourceFile:    combined.SourceFile,
				PDFTotalPages: combined.PageCount,
				InputTokens:   combined.InputTokens,
				OutputTokens:  combined.OutputTokens,
			},
			Statistics: OCRStatistics{
				RecordCount:  combined.RecordCount,
				PageCount:    combined.PageCount,
				TotalLength:  combined.TotalLength,
				InputTokens:  combined.InputTokens,
				OutputTokens: combined.OutputTokens,
			},
		},
		Generated: now.Format(time.RFC3339),
	}
}
