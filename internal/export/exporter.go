// Package export combines item metadata, file provenance, and OCR payloads
// into final JSON and Markdown artifacts.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/ocr"
	"github.com/scanforge/scanforge/internal/store"
)

// Store is the slice of the workflow store the exporter needs.
type Store interface {
	PendingExports(ctx context.Context, subcollection *string) ([]store.ExportCandidate, error)
	GetItem(ctx context.Context, identifier string) (store.Item, error)
	GetPDFFileByPath(ctx context.Context, filepath string) (store.PDFFile, error)
	RecordExport(ctx context.Context, rec store.ExportRecord) error
}

// Config controls the exporter.
type Config struct {
	OutputDir string
	Type      string // json, markdown, or both
	Engine    string
	DryRun    bool
}

// Summary reports one export run.
type Summary struct {
	Exported int
	Errors   int
}

// Exporter emits one artifact set per pending file. The export row is
// written only after every artifact write succeeded; a failed write leaves
// the file pending.
type Exporter struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New creates an Exporter and its output subdirectories.
func New(st Store, cfg Config, logger *zap.Logger) (*Exporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Engine == "" {
		cfg.Engine = "olmOCR"
	}
	switch cfg.Type {
	case store.ExportTypeJSON, store.ExportTypeMarkdown, store.ExportTypeBoth:
	default:
		return nil, fmt.Errorf("unknown export type %q", cfg.Type)
	}
	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		if cfg.Type != store.ExportTypeMarkdown {
			if err := os.MkdirAll(filepath.Join(cfg.OutputDir, "json"), 0o750); err != nil {
				return nil, fmt.Errorf("create json output directory: %w", err)
			}
		}
		if cfg.Type != store.ExportTypeJSON {
			if err := os.MkdirAll(filepath.Join(cfg.OutputDir, "markdown"), 0o750); err != nil {
				return nil, fmt.Errorf("create markdown output directory: %w", err)
			}
		}
	}
	return &Exporter{store: st, cfg: cfg, logger: logger}, nil
}

// Run exports every pending file. Per-item failures are counted and never
// abort the batch.
func (e *Exporter) Run(ctx context.Context, subcollection *string) (Summary, error) {
	var sum Summary

	pending, err := e.store.PendingExports(ctx, subcollection)
	if err != nil {
		return sum, fmt.Errorf("load pending exports: %w", err)
	}
	e.logger.Info("pending exports", zap.Int("count", len(pending)))

	for _, cand := range pending {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if err := e.exportOne(ctx, cand); err != nil {
			e.logger.Warn("export failed",
				zap.String("identifier", cand.Identifier),
				zap.String("file", cand.Filename),
				zap.Error(err),
			)
			sum.Errors++
			continue
		}
		sum.Exported++
	}

	e.logger.Info("export finished",
		zap.Int("exported", sum.Exported),
		zap.Int("errors", sum.Errors),
		zap.Bool("dry_run", e.cfg.DryRun),
	)
	return sum, nil
}

func (e *Exporter) exportOne(ctx context.Context, cand store.ExportCandidate) error {
	item, err := e.store.GetItem(ctx, cand.Identifier)
	if err != nil {
		return fmt.Errorf("load item metadata: %w", err)
	}
	pdf, err := e.store.GetPDFFileByPath(ctx, cand.Filepath)
	if err != nil {
		return fmt.Errorf("load pdf record: %w", err)
	}

	records, err := e.loadRecords(cand)
	if err != nil {
		return err
	}
	combined := ocr.Combine(records)

	baseName := strings.TrimSuffix(cand.Filename, filepath.Ext(cand.Filename))
	rec := store.ExportRecord{
		PDFFileID:  cand.PDFFileID,
		ExportType: e.cfg.Type,
	}

	if e.cfg.Type != store.ExportTypeMarkdown {
		path := filepath.Join(e.cfg.OutputDir, "json", baseName+".json")
		if !e.cfg.DryRun {
			if err := e.writeJSON(path, item, pdf, combined); err != nil {
				return err
			}
		}
		rec.JSONPath = &path
	}
	if e.cfg.Type != store.ExportTypeJSON {
		path := filepath.Join(e.cfg.OutputDir, "markdown", baseName+".md")
		if !e.cfg.DryRun {
			if err := os.WriteFile(path, []byte(renderMarkdown(item, pdf, combined, e.cfg.Engine)), 0o644); err != nil {
				return fmt.Errorf("write markdown artifact: %w", err)
			}
		}
		rec.MarkdownPath = &path
	}

	if e.cfg.DryRun {
		e.logger.Info("would export",
			zap.String("identifier", cand.Identifier),
			zap.String("file", cand.Filename),
		)
		return nil
	}
	if err := e.store.RecordExport(ctx, rec); err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

// loadRecords prefers the payload stored at ingestion time and falls back
// to re-reading the output file for two-phase ingestions.
func (e *Exporter) loadRecords(cand store.ExportCandidate) ([]ocr.Record, error) {
	if len(cand.Payload) > 0 {
		var records []ocr.Record
		if err := json.Unmarshal(cand.Payload, &records); err == nil && len(records) > 0 {
			return records, nil
		}
	}
	if cand.OCRPath == nil || *cand.OCRPath == "" {
		return nil, fmt.Errorf("no ocr payload or output path for %s", cand.Filename)
	}
	records, _, err := ocr.ParseFile(*cand.OCRPath)
	if err != nil {
		return nil, fmt.Errorf("load ocr output: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ocr output %s has no records", filepath.Base(*cand.OCRPath))
	}
	return records, nil
}

func (e *Exporter) writeJSON(path string, item store.Item, pdf store.PDFFile, combined ocr.Combined) error {
	doc := buildDocument(item, pdf, combined, e.cfg.Engine, time.Now())
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json artifact: %w", err)
	}
	return nil
}
