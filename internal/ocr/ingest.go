package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/store"
)

// IngestStore is the slice of the workflow store the ingestor needs.
type IngestStore interface {
	EligiblePDFs(ctx context.Context, subcollection *string) ([]store.PDFFile, error)
	GetOCRRecord(ctx context.Context, pdfFileID int64) (store.OCRRecord, error)
	CompleteOCR(ctx context.Context, c store.OCRCompletion) error
	BackfillOCRPayload(ctx context.Context, pdfFileID int64, outputPath string, payload json.RawMessage) error
}

// output is one discovered result file mapped to a PDF filename. Records
// are loaded lazily for single-object files.
type output struct {
	path    string
	records []Record
}

// Summary reports one ingestion run.
type Summary struct {
	New      int
	Updated  int
	Skipped  int
	BadFiles int
	Orphaned []string
}

// Ingestor matches OCR output files to tracked PDFs and transitions their
// records. Matching is exact filename equality only.
type Ingestor struct {
	store  IngestStore
	engine string
	dryRun bool
	logger *zap.Logger
}

// New creates an Ingestor.
func New(st IngestStore, engine string, dryRun bool, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == "" {
		engine = "olmOCR"
	}
	return &Ingestor{store: st, engine: engine, dryRun: dryRun, logger: logger}
}

// Run scans resultsDir and ingests every matchable output. Per-file parse
// failures are counted, never fatal to the batch.
func (in *Ingestor) Run(ctx context.Context, resultsDir string, subcollection *string) (Summary, error) {
	var sum Summary

	outputs, badFiles, err := in.scan(resultsDir)
	if err != nil {
		return sum, err
	}
	sum.BadFiles = badFiles
	in.logger.Info("scanned ocr results",
		zap.String("dir", resultsDir),
		zap.Int("mappings", len(outputs)),
	)

	pdfs, err := in.store.EligiblePDFs(ctx, subcollection)
	if err != nil {
		return sum, fmt.Errorf("load eligible pdfs: %w", err)
	}

	used := map[string]bool{}
	for _, pdf := range pdfs {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		out, ok := outputs[pdf.Filename]
		if !ok {
			continue
		}
		used[pdf.Filename] = true

		if out.records == nil {
			records, issues, err := ParseFile(out.path)
			if err != nil || len(records) == 0 {
				in.logger.Warn("skipping unreadable ocr output",
					zap.String("file", filepath.Base(out.path)),
					zap.Error(err),
				)
				sum.BadFiles++
				continue
			}
			for _, issue := range issues {
				in.logger.Warn("ocr record issue",
					zap.String("file", filepath.Base(out.path)),
					zap.String("issue", issue),
				)
			}
			out.records = records
			outputs[pdf.Filename] = out
		}

		switch in.ingestOne(ctx, pdf, out, &sum) {
		case nil:
		default:
			// ingestOne already counted and logged.
		}
	}

	for name := range outputs {
		if !used[name] {
			sum.Orphaned = append(sum.Orphaned, name)
		}
	}
	sort.Strings(sum.Orphaned)
	if len(sum.Orphaned) > 0 {
		preview := sum.Orphaned
		if len(preview) > 10 {
			preview = preview[:10]
		}
		in.logger.Warn("ocr outputs with no matching pdf",
			zap.Int("count", len(sum.Orphaned)),
			zap.Strings("examples", preview),
		)
	}

	in.logger.Info("ingestion finished",
		zap.Int("new", sum.New),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("bad_files", sum.BadFiles),
		zap.Bool("dry_run", in.dryRun),
	)
	return sum, nil
}

// ingestOne applies the idempotence rules for a single matched pair.
func (in *Ingestor) ingestOne(ctx context.Context, pdf store.PDFFile, out output, sum *Summary) error {
	payload, err := json.Marshal(out.records)
	if err != nil {
		in.logger.Warn("could not encode ocr payload", zap.String("file", pdf.Filename), zap.Error(err))
		sum.BadFiles++
		return err
	}

	existing, err := in.store.GetOCRRecord(ctx, pdf.ID)
	switch {
	case err == nil:
		pathMatches := existing.OutputPath != nil && *existing.OutputPath == out.path
		hasPayload := len(existing.Payload) > 0

		if existing.Status == store.OCRStatusCompleted && pathMatches && hasPayload {
			sum.Skipped++
			return nil
		}
		if existing.Status == store.OCRStatusCompleted && pathMatches && !hasPayload {
			// Partial prior ingestion: backfill payload only.
			in.logger.Info("backfilling ocr payload", zap.String("file", pdf.Filename))
			if !in.dryRun {
				if err := in.store.BackfillOCRPayload(ctx, pdf.ID, out.path, payload); err != nil {
					in.logger.Warn("backfill failed", zap.String("file", pdf.Filename), zap.Error(err))
					sum.BadFiles++
					return err
				}
			}
			sum.Updated++
			return nil
		}

		in.logger.Info("updating ocr record",
			zap.String("file", pdf.Filename),
			zap.String("old_status", existing.Status),
			zap.String("output", filepath.Base(out.path)),
		)
		if !in.dryRun {
			if err := in.completeOCR(ctx, pdf.ID, out.path, payload); err != nil {
				sum.BadFiles++
				return err
			}
		}
		sum.Updated++
		return nil

	case err == store.ErrNotFound:
		in.logger.Info("new ocr record",
			zap.String("file", pdf.Filename),
			zap.Int("records", len(out.records)),
		)
		if !in.dryRun {
			if err := in.completeOCR(ctx, pdf.ID, out.path, payload); err != nil {
				sum.BadFiles++
				return err
			}
		}
		sum.New++
		return nil

	default:
		in.logger.Warn("ocr record lookup failed", zap.String("file", pdf.Filename), zap.Error(err))
		sum.BadFiles++
		return err
	}
}

func (in *Ingestor) completeOCR(ctx context.Context, pdfFileID int64, path string, payload json.RawMessage) error {
	err := in.store.CompleteOCR(ctx, store.OCRCompletion{
		PDFFileID:  pdfFileID,
		Engine:     in.engine,
		OutputPath: path,
		Payload:    payload,
	})
	if err != nil {
		in.logger.Warn("ocr completion write failed", zap.Int64("pdf_file_id", pdfFileID), zap.Error(err))
	}
	return err
}

// scan maps PDF filenames to their output files. JSONL batch files are
// parsed and grouped by each record's Source-File; plain JSON files map by
// stem. A later file claiming an already-mapped PDF wins and the conflict
// is logged.
func (in *Ingestor) scan(dir string) (map[string]output, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read results directory: %w", err)
	}

	outputs := map[string]output{}
	badFiles := 0

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".json" || ext == ".jsonl" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if strings.EqualFold(filepath.Ext(name), ".jsonl") {
			records, issues, err := ParseFile(path)
			if err != nil {
				in.logger.Warn("skipping unparseable batch file", zap.String("file", name), zap.Error(err))
				badFiles++
				continue
			}
			for _, issue := range issues {
				in.logger.Warn("ocr record issue", zap.String("file", name), zap.String("issue", issue))
			}

			grouped := map[string][]Record{}
			missing := 0
			for _, rec := range records {
				src := rec.SourceFile()
				if src == "" {
					missing++
					continue
				}
				grouped[src] = append(grouped[src], rec)
			}
			if missing > 0 {
				in.logger.Warn("records without source metadata",
					zap.String("file", name),
					zap.Int("count", missing),
				)
			}
			if len(grouped) == 0 {
				in.logger.Warn("no usable records in batch file", zap.String("file", name))
				badFiles++
				continue
			}
			for pdfName, recs := range grouped {
				if prev, dup := outputs[pdfName]; dup {
					in.logger.Warn("duplicate ocr results",
						zap.String("pdf", pdfName),
						zap.String("keeping", name),
						zap.String("seen", filepath.Base(prev.path)),
					)
				}
				outputs[pdfName] = output{path: path, records: recs}
			}
			continue
		}

		// Single-object output: <stem>.json -> <stem>.pdf, loaded lazily.
		pdfName := strings.TrimSuffix(name, filepath.Ext(name)) + ".pdf"
		if prev, dup := outputs[pdfName]; dup {
			in.logger.Warn("duplicate ocr results",
				zap.String("pdf", pdfName),
				zap.String("keeping", name),
				zap.String("seen", filepath.Base(prev.path)),
			)
		}
		outputs[pdfName] = output{path: path}
	}

	return outputs, badFiles, nil
}
