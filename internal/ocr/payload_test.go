package ocr_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/internal/ocr"
)

func TestCombineJoinsTextsInOrder(t *testing.T) {
	c := ocr.Combine([]ocr.Record{
		{Text: "Page one."},
		{Text: ""},
		{Text: "Page three."},
	})
	assert.Equal(t, "Page one.\n\n---\n\nPage three.", c.Text)
	assert.Equal(t, 3, c.RecordCount)
	assert.Equal(t, len(c.Text), c.TotalLength)
	assert.Equal(t, "unknown", c.Version)
}

func TestCombineCapturesFirstMetadata(t *testing.T) {
	c := ocr.Combine([]ocr.Record{
		{Text: "a", Metadata: map[string]any{
			"Source-File":         "/work/pdfs/vol1.pdf",
			"pdf-total-pages":     float64(420),
			"olmocr-version":      "0.1.5",
			"total-input-tokens":  float64(1000),
			"total-output-tokens": float64(900),
		}},
		{Text: "b", Metadata: map[string]any{
			"olmocr-version":  "9.9.9",
			"pdf-total-pages": float64(1),
		}},
	})
	assert.Equal(t, 420, c.PageCount)
	assert.Equal(t, "0.1.5", c.Version)
	assert.Equal(t, "/work/pdfs/vol1.pdf", c.SourceFile)
	assert.Equal(t, 1000, c.InputTokens)
	assert.Equal(t, 900, c.OutputTokens)
}

func TestCombineEmpty(t *testing.T) {
	c := ocr.Combine(nil)
	assert.Equal(t, "", c.Text)
	assert.Equal(t, 0, c.RecordCount)
	assert.Equal(t, "unknown", c.Version)
}

func TestSourceFileVariants(t *testing.T) {
	assert.Equal(t, "vol1.pdf",
		ocr.Record{Metadata: map[string]any{"Source-File": "s3://bucket/pdfs/vol1.pdf"}}.SourceFile())
	assert.Equal(t, "vol2.pdf",
		ocr.Record{Metadata: map[string]any{"source_file": "vol2.pdf"}}.SourceFile())
	assert.Equal(t, "",
		ocr.Record{Metadata: map[string]any{"Source-File": 42}}.SourceFile())
	assert.Equal(t, "", ocr.Record{}.SourceFile())
}

func TestSourceFileTopLevelFallback(t *testing.T) {
	parse := func(line string) ocr.Record {
		var rec ocr.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		return rec
	}

	assert.Equal(t, "vol3.pdf",
		parse(`{"text":"x","Source-File":"/y/vol3.pdf"}`).SourceFile())
	assert.Equal(t, "vol4.pdf",
		parse(`{"text":"x","source_file":"vol4.pdf"}`).SourceFile())
	// Metadata wins when both are present.
	assert.Equal(t, "meta.pdf",
		parse(`{"text":"x","Source-File":"top.pdf","metadata":{"Source-File":"meta.pdf"}}`).SourceFile())
}

func TestParseFileJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.jsonl")
	content := `{"text":"one","metadata":{"Source-File":"a.pdf"}}

not valid json
{"text":"two","metadata":{"Source-File":"b.pdf"}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, issues, err := ocr.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "one", records[0].Text)
	assert.Equal(t, "b.pdf", records[1].SourceFile())
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "line 3")
}

func TestParseFileSingleObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"text":"whole doc"}`), 0o644))

	records, issues, err := ocr.ParseFile(path)
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.Len(t, records, 1)
	assert.Equal(t, "whole doc", records[0].Text)
}

func TestParseFileBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, _, err := ocr.ParseFile(path)
	assert.Error(t, err)
}

func TestParseFileMissing(t *testing.T) {
	_, _, err := ocr.ParseFile(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}
