package store

// schema is the owned DDL. ocr_processing and exports carry UNIQUE
// pdf_file_id so the one-record-per-file rule lives in the schema, not in
// query discipline.
const schema = `
CREATE TABLE IF NOT EXISTS items (
	identifier TEXT PRIMARY KEY,
	title TEXT,
	creator TEXT,
	publisher TEXT,
	date TEXT,
	year INTEGER,
	language TEXT,
	subject TEXT,
	collection TEXT,
	description TEXT,
	item_url TEXT,
	metadata_json JSONB,
	download_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pdf_files (
	id BIGSERIAL PRIMARY KEY,
	identifier TEXT NOT NULL REFERENCES items(identifier),
	filename TEXT NOT NULL,
	filepath TEXT NOT NULL UNIQUE,
	subcollection TEXT,
	size_bytes BIGINT,
	sha256 TEXT,
	download_status TEXT NOT NULL DEFAULT 'downloaded',
	is_valid BOOLEAN NOT NULL DEFAULT TRUE,
	validation_error TEXT,
	download_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_verified TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ocr_processing (
	id BIGSERIAL PRIMARY KEY,
	pdf_file_id BIGINT NOT NULL UNIQUE REFERENCES pdf_files(id) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'pending',
	ocr_engine TEXT NOT NULL DEFAULT 'olmOCR',
	json_output_path TEXT,
	ocr_data JSONB,
	started_date TIMESTAMPTZ,
	completed_date TIMESTAMPTZ,
	processing_time_seconds BIGINT,
	error_message TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS exports (
	id BIGSERIAL PRIMARY KEY,
	pdf_file_id BIGINT NOT NULL UNIQUE REFERENCES pdf_files(id) ON DELETE CASCADE,
	export_type TEXT NOT NULL,
	json_output_path TEXT,
	markdown_output_path TEXT,
	created_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	operation TEXT NOT NULL,
	table_name TEXT NOT NULL,
	record_id TEXT,
	details JSONB
);

CREATE INDEX IF NOT EXISTS idx_pdf_files_identifier ON pdf_files(identifier);
CREATE INDEX IF NOT EXISTS idx_pdf_files_subcollection ON pdf_files(subcollection);
CREATE INDEX IF NOT EXISTS idx_ocr_status ON ocr_processing(status);
`
