// Package store owns the relational workflow state: catalog items, local
// PDF files, OCR processing records, export records, and the audit log. All
// other components mutate these tables only through this package.
package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Download statuses for a PDFFile.
const (
	DownloadStatusDownloaded = "downloaded"
	DownloadStatusFailed     = "failed"
)

// OCR processing statuses.
const (
	OCRStatusPending    = "pending"
	OCRStatusProcessing = "processing"
	OCRStatusCompleted  = "completed"
	OCRStatusFailed     = "failed"
)

// Export types.
const (
	ExportTypeJSON     = "json"
	ExportTypeMarkdown = "markdown"
	ExportTypeBoth     = "both"
)

// Item is one remote catalog entry, keyed by its external identifier.
// Upserts overwrite; items are never deleted by the pipeline.
type Item struct {
	Identifier   string
	Title        string
	Creator      string
	Publisher    string
	Date         string
	Year         *int
	Language     string
	Subject      string
	Collection   string
	Description  string
	ItemURL      string
	MetadataJSON json.RawMessage
	DownloadDate time.Time
}

// PDFFile is one physical file on local storage tied to exactly one Item.
// Filepath uniquely identifies a row; re-downloading the same path upserts.
type PDFFile struct {
	ID              int64
	Identifier      string
	Filename        string
	Filepath        string
	Subcollection   *string
	SizeBytes       int64
	SHA256          string
	DownloadStatus  string
	IsValid         bool
	ValidationError *string
	DownloadDate    time.Time
	LastVerified    *time.Time
}

// OCRRecord tracks OCR processing for one PDFFile (at most one row per
// file, enforced by a uniqueness constraint).
type OCRRecord struct {
	ID             int64
	PDFFileID      int64
	Status         string
	Engine         string
	OutputPath     *string
	Payload        json.RawMessage
	StartedDate    *time.Time
	CompletedDate  *time.Time
	ProcessingSecs *int64
	ErrorMessage   *string
	RetryCount     int
}

// ExportRecord marks a PDFFile as exported; its presence removes the file
// from pending-export queries.
type ExportRecord struct {
	ID           int64
	PDFFileID    int64
	ExportType   string
	JSONPath     *string
	MarkdownPath *string
	CreatedDate  time.Time
	LastUpdated  time.Time
}

// OCRCompletion carries everything needed to transition a file's OCR
// record to completed in one operation.
type OCRCompletion struct {
	PDFFileID  int64
	Engine     string
	OutputPath string
	Payload    json.RawMessage
}

// ExportCandidate is one row from the pending-export queue, joined with the
// stored OCR output so the exporter can avoid a second round trip.
type ExportCandidate struct {
	PDFFileID  int64
	Identifier string
	Filename   string
	Filepath   string
	OCRPath    *string
	Payload    json.RawMessage
}

// Statistics aggregates workflow counts for reporting.
type Statistics struct {
	TotalItems   int64
	PDFStatus    map[string]int64
	OCRStatus    map[string]int64
	TotalExports int64
}

// WorkflowRow is one line of the per-file workflow status view.
type WorkflowRow struct {
	Identifier     string
	Filename       string
	DownloadStatus string
	OCRStatus      string
	ExportStatus   string
}
