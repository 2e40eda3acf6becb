package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements the workflow store over Postgres.
type PostgresStore struct {
	pool   pool
	logger *zap.Logger
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// NewPostgres connects to Postgres and pings the pool. An unreachable
// database at startup is a fatal configuration error for the caller.
func NewPostgres(ctx context.Context, cfg Config, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newWithPool(p, logger), nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPostgresWithPool(p pool, logger *zap.Logger) (*PostgresStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newWithPool(p, logger), nil
}

func newWithPool(p pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: p, logger: logger}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InitSchema creates the owned tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------- items

const upsertItemSQL = `
INSERT INTO items (
	identifier, title, creator, publisher, date, year, language,
	subject, collection, description, item_url, metadata_json, download_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (identifier) DO UPDATE SET
	title = EXCLUDED.title,
	creator = EXCLUDED.creator,
	publisher = EXCLUDED.publisher,
	date = EXCLUDED.date,
	year = EXCLUDED.year,
	language = EXCLUDED.language,
	subject = EXCLUDED.subject,
	collection = EXCLUDED.collection,
	description = EXCLUDED.description,
	item_url = EXCLUDED.item_url,
	metadata_json = EXCLUDED.metadata_json,
	download_date = EXCLUDED.download_date`

// UpsertItem creates or overwrites an item (last write wins).
func (s *PostgresStore) UpsertItem(ctx context.Context, item Item) error {
	if item.Identifier == "" {
		return fmt.Errorf("item identifier is required")
	}
	downloadDate := item.DownloadDate
	if downloadDate.IsZero() {
		downloadDate = time.Now()
	}
	_, err := s.pool.Exec(ctx, upsertItemSQL,
		item.Identifier,
		item.Title,
		item.Creator,
		item.Publisher,
		item.Date,
		item.Year,
		item.Language,
		item.Subject,
		item.Collection,
		item.Description,
		item.ItemURL,
		item.MetadataJSON,
		downloadDate,
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.Identifier, err)
	}
	s.audit(ctx, "upsert", "items", item.Identifier, map[string]any{"title": item.Title})
	return nil
}

const getItemSQL = `
SELECT identifier, title, creator, publisher, date, year, language,
	subject, collection, description, item_url, metadata_json, download_date
FROM items WHERE identifier = $1`

// GetItem returns an item by identifier, or ErrNotFound.
func (s *PostgresStore) GetItem(ctx context.Context, identifier string) (Item, error) {
	var item Item
	err := s.pool.QueryRow(ctx, getItemSQL, identifier).Scan(
		&item.Identifier,
		&item.Title,
		&item.Creator,
		&item.Publisher,
		&item.Date,
		&item.Year,
		&item.Language,
		&item.Subject,
		&item.Collection,
		&item.Description,
		&item.ItemURL,
		&item.MetadataJSON,
		&item.DownloadDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("get item %s: %w", identifier, err)
	}
	return item, nil
}

// ------------------------------------------------------------ pdf_files

const upsertPDFFileSQL = `
INSERT INTO pdf_files (
	identifier, filename, filepath, subcollection, size_bytes, sha256,
	download_status, is_valid, validation_error, download_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (filepath) DO UPDATE SET
	identifier = EXCLUDED.identifier,
	filename = EXCLUDED.filename,
	subcollection = EXCLUDED.subcollection,
	size_bytes = EXCLUDED.size_bytes,
	sha256 = EXCLUDED.sha256,
	download_status = EXCLUDED.download_status,
	is_valid = EXCLUDED.is_valid,
	validation_error = EXCLUDED.validation_error,
	download_date = EXCLUDED.download_date
RETURNING id`

// UpsertPDFFile creates or replaces the row for a filepath and returns its id.
func (s *PostgresStore) UpsertPDFFile(ctx context.Context, f PDFFile) (int64, error) {
	if f.Identifier == "" || f.Filepath == "" {
		return 0, fmt.Errorf("pdf file requires identifier and filepath")
	}
	downloadDate := f.DownloadDate
	if downloadDate.IsZero() {
		downloadDate = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx, upsertPDFFileSQL,
		f.Identifier,
		f.Filename,
		f.Filepath,
		f.Subcollection,
		f.SizeBytes,
		f.SHA256,
		f.DownloadStatus,
		f.IsValid,
		f.ValidationError,
		downloadDate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert pdf file %s: %w", f.Filepath, err)
	}
	s.audit(ctx, "upsert", "pdf_files", fmt.Sprintf("%d", id), map[string]any{
		"filename": f.Filename,
		"status":   f.DownloadStatus,
	})
	return id, nil
}

const pdfFileColumns = `id, identifier, filename, filepath, subcollection,
	size_bytes, sha256, download_status, is_valid, validation_error,
	download_date, last_verified`

// GetPDFFileByPath returns the row owning a filepath, or ErrNotFound.
func (s *PostgresStore) GetPDFFileByPath(ctx context.Context, filepath string) (PDFFile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pdfFileColumns+` FROM pdf_files WHERE filepath = $1`, filepath)
	f, err := scanPDFFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PDFFile{}, ErrNotFound
		}
		return PDFFile{}, fmt.Errorf("get pdf file %s: %w", filepath, err)
	}
	return f, nil
}

// ListPDFFilesForItem returns every file row tied to one item.
func (s *PostgresStore) ListPDFFilesForItem(ctx context.Context, identifier string) ([]PDFFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pdfFileColumns+` FROM pdf_files WHERE identifier = $1 ORDER BY filename`,
		identifier)
	if err != nil {
		return nil, fmt.Errorf("list pdf files for %s: %w", identifier, err)
	}
	defer rows.Close()
	return collectPDFFiles(rows)
}

// EligiblePDFs returns downloaded, valid files, optionally filtered by
// subcollection. This is the ingestor's matching universe.
func (s *PostgresStore) EligiblePDFs(ctx context.Context, subcollection *string) ([]PDFFile, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+pdfFileColumns+`
FROM pdf_files
WHERE download_status = 'downloaded' AND is_valid
  AND ($1::text IS NULL OR subcollection = $1)
ORDER BY download_date`, subcollection)
	if err != nil {
		return nil, fmt.Errorf("list eligible pdfs: %w", err)
	}
	defer rows.Close()
	return collectPDFFiles(rows)
}

// PendingOCR returns downloaded, valid files with no OCR record or a failed
// one. A file is visible here only until its record reaches a later state.
func (s *PostgresStore) PendingOCR(ctx context.Context, subcollection *string) ([]PDFFile, error) {
	rows, err := s.pool.Query(ctx, `
SELECT p.id, p.identifier, p.filename, p.filepath, p.subcollection,
	p.size_bytes, p.sha256, p.download_status, p.is_valid, p.validation_error,
	p.download_date, p.last_verified
FROM pdf_files p
LEFT JOIN ocr_processing o ON p.id = o.pdf_file_id
WHERE p.download_status = 'downloaded' AND p.is_valid
  AND (o.status IS NULL OR o.status = 'failed')
  AND ($1::text IS NULL OR p.subcollection = $1)
ORDER BY p.download_date`, subcollection)
	if err != nil {
		return nil, fmt.Errorf("list pending ocr: %w", err)
	}
	defer rows.Close()
	return collectPDFFiles(rows)
}

func scanPDFFile(row pgx.Row) (PDFFile, error) {
	var f PDFFile
	err := row.Scan(
		&f.ID,
		&f.Identifier,
		&f.Filename,
		&f.Filepath,
		&f.Subcollection,
		&f.SizeBytes,
		&f.SHA256,
		&f.DownloadStatus,
		&f.IsValid,
		&f.ValidationError,
		&f.DownloadDate,
		&f.LastVerified,
	)
	return f, err
}

func collectPDFFiles(rows pgx.Rows) ([]PDFFile, error) {
	var out []PDFFile
	for rows.Next() {
		f, err := scanPDFFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pdf file row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pdf file rows: %w", err)
	}
	return out, nil
}

// ------------------------------------------------------- ocr_processing

const getOCRRecordSQL = `
SELECT id, pdf_file_id, status, ocr_engine, json_output_path, ocr_data,
	started_date, completed_date, processing_time_seconds, error_message, retry_count
FROM ocr_processing WHERE pdf_file_id = $1`

// GetOCRRecord returns the OCR record owned by a file, or ErrNotFound.
func (s *PostgresStore) GetOCRRecord(ctx context.Context, pdfFileID int64) (OCRRecord, error) {
	var r OCRRecord
	err := s.pool.QueryRow(ctx, getOCRRecordSQL, pdfFileID).Scan(
		&r.ID,
		&r.PDFFileID,
		&r.Status,
		&r.Engine,
		&r.OutputPath,
		&r.Payload,
		&r.StartedDate,
		&r.CompletedDate,
		&r.ProcessingSecs,
		&r.ErrorMessage,
		&r.RetryCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OCRRecord{}, ErrNotFound
		}
		return OCRRecord{}, fmt.Errorf("get ocr record for file %d: %w", pdfFileID, err)
	}
	return r, nil
}

const completeOCRSQL = `
INSERT INTO ocr_processing (
	pdf_file_id, status, ocr_engine, json_output_path, ocr_data,
	started_date, completed_date
) VALUES ($1,'completed',$2,$3,$4,$5,$5)
ON CONFLICT (pdf_file_id) DO UPDATE SET
	status = 'completed',
	ocr_engine = EXCLUDED.ocr_engine,
	json_output_path = EXCLUDED.json_output_path,
	ocr_data = EXCLUDED.ocr_data,
	completed_date = EXCLUDED.completed_date,
	error_message = NULL`

// CompleteOCR transitions a file's OCR record to completed with its payload
// in one atomic statement.
func (s *PostgresStore) CompleteOCR(ctx context.Context, c OCRCompletion) error {
	if c.PDFFileID == 0 {
		return fmt.Errorf("ocr completion requires pdf file id")
	}
	_, err := s.pool.Exec(ctx, completeOCRSQL,
		c.PDFFileID, c.Engine, c.OutputPath, c.Payload, time.Now())
	if err != nil {
		return fmt.Errorf("complete ocr for file %d: %w", c.PDFFileID, err)
	}
	s.audit(ctx, "ocr_complete", "ocr_processing", fmt.Sprintf("%d", c.PDFFileID),
		map[string]any{"output_path": c.OutputPath})
	return nil
}

const backfillOCRSQL = `
UPDATE ocr_processing
SET ocr_data = $2,
	json_output_path = COALESCE(json_output_path, $3),
	completed_date = COALESCE(completed_date, $4)
WHERE pdf_file_id = $1`

// BackfillOCRPayload stores payload data on an existing record without
// resetting its other fields (two-phase ingestion).
func (s *PostgresStore) BackfillOCRPayload(ctx context.Context, pdfFileID int64, outputPath string, payload json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, backfillOCRSQL, pdfFileID, payload, outputPath, time.Now())
	if err != nil {
		return fmt.Errorf("backfill ocr payload for file %d: %w", pdfFileID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const markOCRFailedSQL = `
INSERT INTO ocr_processing (pdf_file_id, status, error_message, started_date)
VALUES ($1,'failed',$2,$3)
ON CONFLICT (pdf_file_id) DO UPDATE SET
	status = 'failed',
	error_message = EXCLUDED.error_message,
	retry_count = ocr_processing.retry_count + 1`

// MarkOCRFailed records a processing failure, bumping the retry count on
// repeat failures.
func (s *PostgresStore) MarkOCRFailed(ctx context.Context, pdfFileID int64, message string) error {
	_, err := s.pool.Exec(ctx, markOCRFailedSQL, pdfFileID, message, time.Now())
	if err != nil {
		return fmt.Errorf("mark ocr failed for file %d: %w", pdfFileID, err)
	}
	return nil
}

// ResetStaleOCR moves rows stuck in processing since before the cutoff back
// to pending. This is the only sanctioned regression path and is an
// explicit operator action.
func (s *PostgresStore) ResetStaleOCR(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE ocr_processing
SET status = 'pending', started_date = NULL
WHERE status = 'processing' AND started_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale ocr rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --------------------------------------------------------------- exports

// PendingExports returns files whose OCR completed but which have no export
// record yet, joined with the stored payload.
func (s *PostgresStore) PendingExports(ctx context.Context, subcollection *string) ([]ExportCandidate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT p.id, p.identifier, p.filename, p.filepath, o.json_output_path, o.ocr_data
FROM pdf_files p
INNER JOIN ocr_processing o ON p.id = o.pdf_file_id
LEFT JOIN exports e ON p.id = e.pdf_file_id
WHERE o.status = 'completed' AND e.id IS NULL
  AND ($1::text IS NULL OR p.subcollection = $1)
ORDER BY p.download_date`, subcollection)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	defer rows.Close()

	var out []ExportCandidate
	for rows.Next() {
		var c ExportCandidate
		if err := rows.Scan(&c.PDFFileID, &c.Identifier, &c.Filename, &c.Filepath, &c.OCRPath, &c.Payload); err != nil {
			return nil, fmt.Errorf("scan pending export row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending export rows: %w", err)
	}
	return out, nil
}

const recordExportSQL = `
INSERT INTO exports (pdf_file_id, export_type, json_output_path, markdown_output_path, created_date, last_updated)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (pdf_file_id) DO UPDATE SET
	export_type = EXCLUDED.export_type,
	json_output_path = EXCLUDED.json_output_path,
	markdown_output_path = EXCLUDED.markdown_output_path,
	last_updated = EXCLUDED.last_updated`

// RecordExport writes the export sentinel row. Callers must only invoke
// this after every artifact write has succeeded.
func (s *PostgresStore) RecordExport(ctx context.Context, rec ExportRecord) error {
	if rec.PDFFileID == 0 {
		return fmt.Errorf("export record requires pdf file id")
	}
	_, err := s.pool.Exec(ctx, recordExportSQL,
		rec.PDFFileID, rec.ExportType, rec.JSONPath, rec.MarkdownPath, time.Now())
	if err != nil {
		return fmt.Errorf("record export for file %d: %w", rec.PDFFileID, err)
	}
	s.audit(ctx, "export", "exports", fmt.Sprintf("%d", rec.PDFFileID),
		map[string]any{"type": rec.ExportType})
	return nil
}

// ------------------------------------------------------------- reporting

// Statistics aggregates counts across the workflow tables.
func (s *PostgresStore) Statistics(ctx context.Context, subcollection *string) (Statistics, error) {
	stats := Statistics{
		PDFStatus: map[string]int64{},
		OCRStatus: map[string]int64{},
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&stats.TotalItems); err != nil {
		return Statistics{}, fmt.Errorf("count items: %w", err)
	}

	if err := s.countGrouped(ctx, `
SELECT download_status, COUNT(*) FROM pdf_files
WHERE ($1::text IS NULL OR subcollection = $1)
GROUP BY download_status`, subcollection, stats.PDFStatus); err != nil {
		return Statistics{}, err
	}

	if err := s.countGrouped(ctx, `
SELECT o.status, COUNT(*) FROM ocr_processing o
JOIN pdf_files p ON o.pdf_file_id = p.id
WHERE ($1::text IS NULL OR p.subcollection = $1)
GROUP BY o.status`, subcollection, stats.OCRStatus); err != nil {
		return Statistics{}, err
	}

	if err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM exports e
JOIN pdf_files p ON e.pdf_file_id = p.id
WHERE ($1::text IS NULL OR p.subcollection = $1)`, subcollection).Scan(&stats.TotalExports); err != nil {
		return Statistics{}, fmt.Errorf("count exports: %w", err)
	}

	return stats, nil
}

func (s *PostgresStore) countGrouped(ctx context.Context, sql string, subcollection *string, into map[string]int64) error {
	rows, err := s.pool.Query(ctx, sql, subcollection)
	if err != nil {
		return fmt.Errorf("grouped count: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return fmt.Errorf("scan grouped count: %w", err)
		}
		into[status] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate grouped counts: %w", err)
	}
	return nil
}

// WorkflowRows returns the per-file stage view used by the status command.
func (s *PostgresStore) WorkflowRows(ctx context.Context, identifier *string, limit int) ([]WorkflowRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
SELECT p.identifier, p.filename, p.download_status,
	COALESCE(o.status, 'not_started'),
	CASE WHEN e.id IS NULL THEN 'pending' ELSE COALESCE(e.export_type, 'done') END
FROM pdf_files p
LEFT JOIN ocr_processing o ON p.id = o.pdf_file_id
LEFT JOIN exports e ON p.id = e.pdf_file_id
WHERE ($1::text IS NULL OR p.identifier = $1)
ORDER BY p.identifier, p.filename
LIMIT $2`, identifier, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflow rows: %w", err)
	}
	defer rows.Close()

	var out []WorkflowRow
	for rows.Next() {
		var r WorkflowRow
		if err := rows.Scan(&r.Identifier, &r.Filename, &r.DownloadStatus, &r.OCRStatus, &r.ExportStatus); err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow rows: %w", err)
	}
	return out, nil
}

// ------------------------------------------------------------- audit log

// audit appends a best-effort entry. Failures are logged and swallowed so
// the side channel can never affect pipeline correctness.
func (s *PostgresStore) audit(ctx context.Context, operation, table, recordID string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte(`{}`)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO audit_log (operation, table_name, record_id, details)
VALUES ($1,$2,$3,$4)`, operation, table, recordID, payload)
	if err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Error(err),
		)
	}
}
