// Package ocr parses externally produced OCR output and matches it to
// tracked PDF files.
package ocr

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Separator joins record texts in their original order.
const Separator = "\n\n---\n\n"

// Metadata keys emitted by the OCR engine.
const (
	metaSourceFile   = "Source-File"
	metaSourceFileLC = "source_file"
	metaPageCount    = "pdf-total-pages"
	metaVersion      = "olmocr-version"
	metaInputTokens  = "total-input-tokens"
	metaOutputTokens = "total-output-tokens"
)

// Record is one OCR output record: one JSON object in a .json file, or one
// line in a .jsonl batch file. Some engine versions put the source path at
// the top level instead of inside metadata.
type Record struct {
	ID            string         `json:"id,omitempty"`
	Text          string         `json:"text"`
	Source        string         `json:"source,omitempty"`
	Added         string         `json:"added,omitempty"`
	Created       string         `json:"created,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SourcePath    string         `json:"Source-File,omitempty"`
	SourcePathAlt string         `json:"source_file,omitempty"`
}

// SourceFile returns the record's declared source PDF basename, or "".
// Metadata keys win over the top-level fields.
func (r Record) SourceFile() string {
	for _, key := range []string{metaSourceFile, metaSourceFileLC} {
		if v, ok := r.Metadata[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return filepath.Base(s)
			}
		}
	}
	for _, s := range []string{r.SourcePath, r.SourcePathAlt} {
		if s != "" {
			return filepath.Base(s)
		}
	}
	return ""
}

// Combined is the aggregate of all records for one PDF.
type Combined struct {
	Text         string
	RecordCount  int
	TotalLength  int
	PageCount    int
	Version      string
	SourceFile   string
	InputTokens  int
	OutputTokens int
}

// Combine concatenates record texts in order and derives aggregate
// statistics. Engine metadata is taken from the first record carrying any.
func Combine(records []Record) Combined {
	var texts []string
	c := Combined{RecordCount: len(records), Version: "unknown"}

	captured := false
	for _, r := range records {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
		if !captured && len(r.Metadata) > 0 {
			captured = true
			c.PageCount = metaInt(r.Metadata, metaPageCount)
			c.InputTokens = metaInt(r.Metadata, metaInputTokens)
			c.OutputTokens = metaInt(r.Metadata, metaOutputTokens)
			if v, ok := r.Metadata[metaVersion].(string); ok && v != "" {
				c.Version = v
			}
			if v, ok := r.Metadata[metaSourceFile].(string); ok {
				c.SourceFile = v
			}
		}
	}
	c.Text = strings.Join(texts, Separator)
	c.TotalLength = len(c.Text)
	return c
}

func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

// ParseFile loads an output file: newline-delimited records for .jsonl, a
// single object otherwise. Unparseable lines are skipped and counted in the
// returned issue list.
func ParseFile(path string) ([]Record, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open ocr file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return parseJSONL(f)
	}

	var rec Record
	if err := json.NewDecoder(f).Decode(&rec); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return []Record{rec}, nil, nil
}

func parseJSONL(f *os.File) ([]Record, []string, error) {
	var (
		records []Record
		issues  []string
	)
	scanner := bufio.NewScanner(f)
	// OCR text lines can be large.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			issues = append(issues, fmt.Sprintf("line %d: json decode error: %v", lineNo, err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, issues, fmt.Errorf("scan jsonl: %w", err)
	}
	return records, issues, nil
}
