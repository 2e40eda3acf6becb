package ocr_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/ocr"
	"github.com/scanforge/scanforge/internal/store"
)

// fakeIngestStore keeps OCR records in memory and records writes.
type fakeIngestStore struct {
	pdfs        []store.PDFFile
	records     map[int64]store.OCRRecord
	completions []store.OCRCompletion
	backfills   []int64
}

func (f *fakeIngestStore) EligiblePDFs(_ context.Context, _ *string) ([]store.PDFFile, error) {
	return f.pdfs, nil
}

func (f *fakeIngestStore) GetOCRRecord(_ context.Context, pdfFileID int64) (store.OCRRecord, error) {
	rec, ok := f.records[pdfFileID]
	if !ok {
		return store.OCRRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeIngestStore) CompleteOCR(_ context.Context, c store.OCRCompletion) error {
	f.completions = append(f.completions, c)
	return nil
}

func (f *fakeIngestStore) BackfillOCRPayload(_ context.Context, pdfFileID int64, _ string, _ json.RawMessage) error {
	f.backfills = append(f.backfills, pdfFileID)
	return nil
}

func writeResults(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func eligible(id int64, filename string) store.PDFFile {
	return store.PDFFile{
		ID:             id,
		Identifier:     "item-" + filename,
		Filename:       filename,
		Filepath:       "/pdfs/" + filename,
		DownloadStatus: store.DownloadStatusDownloaded,
		IsValid:        true,
	}
}

func TestRunIngestsBatchFileGroupedBySource(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"batch.jsonl": `{"text":"a page 1","metadata":{"Source-File":"/x/a.pdf"}}
{"text":"a page 2","metadata":{"Source-File":"/x/a.pdf"}}
{"text":"b page 1","metadata":{"Source-File":"b.pdf"}}
`,
	})
	st := &fakeIngestStore{
		pdfs:    []store.PDFFile{eligible(1, "a.pdf"), eligible(2, "b.pdf"), eligible(3, "c.pdf")},
		records: map[int64]store.OCRRecord{},
	}

	ing := ocr.New(st, "olmOCR", false, zap.NewNop())
	sum, err := ing.Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.New)
	assert.Equal(t, 0, sum.Skipped)
	assert.Empty(t, sum.Orphaned)

	require.Len(t, st.completions, 2)
	byID := map[int64]store.OCRCompletion{}
	for _, c := range st.completions {
		byID[c.PDFFileID] = c
	}

	var aRecords []ocr.Record
	require.NoError(t, json.Unmarshal(byID[1].Payload, &aRecords))
	require.Len(t, aRecords, 2)
	assert.Equal(t, "a page 1", aRecords[0].Text)
	assert.Equal(t, "olmOCR", byID[1].Engine)
	assert.Equal(t, filepath.Join(dir, "batch.jsonl"), byID[2].OutputPath)
}

func TestRunMapsPlainJSONByStem(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"vol1.json": `{"text":"whole doc"}`,
	})
	st := &fakeIngestStore{
		pdfs:    []store.PDFFile{eligible(1, "vol1.pdf")},
		records: map[int64]store.OCRRecord{},
	}

	sum, err := ocr.New(st, "olmOCR", false, zap.NewNop()).Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.New)
	require.Len(t, st.completions, 1)
	assert.Equal(t, int64(1), st.completions[0].PDFFileID)
}

func TestRunSkipsAlreadyIngested(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"vol1.json": `{"text":"whole doc"}`,
	})
	path := filepath.Join(dir, "vol1.json")
	st := &fakeIngestStore{
		pdfs: []store.PDFFile{eligible(1, "vol1.pdf")},
		records: map[int64]store.OCRRecord{
			1: {
				PDFFileID:  1,
				Status:     store.OCRStatusCompleted,
				OutputPath: &path,
				Payload:    json.RawMessage(`[{"text":"whole doc"}]`),
			},
		},
	}

	sum, err := ocr.New(st, "olmOCR", false, zap.NewNop()).Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.New)
	assert.Empty(t, st.completions)
	assert.Empty(t, st.backfills)
}

func TestRunBackfillsMissingPayload(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"vol1.json": `{"text":"whole doc"}`,
	})
	path := filepath.Join(dir, "vol1.json")
	st := &fakeIngestStore{
		pdfs: []store.PDFFile{eligible(1, "vol1.pdf")},
		records: map[int64]store.OCRRecord{
			1: {PDFFileID: 1, Status: store.OCRStatusCompleted, OutputPath: &path},
		},
	}

	sum, err := ocr.New(st, "olmOCR", false, zap.NewNop()).Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, []int64{1}, st.backfills)
	assert.Empty(t, st.completions)
}

func TestRunReplacesFailedRecord(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"vol1.json": `{"text":"retry worked"}`,
	})
	st := &fakeIngestStore{
		pdfs: []store.PDFFile{eligible(1, "vol1.pdf")},
		records: map[int64]store.OCRRecord{
			1: {PDFFileID: 1, Status: store.OCRStatusFailed},
		},
	}

	sum, err := ocr.New(st, "olmOCR", false, zap.NewNop()).Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	require.Len(t, st.completions, 1)
}

func TestRunReportsOrphans(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"known.json":    `{"text":"ok"}`,
		"stranger.json": `{"text":"no pdf"}`,
	})
	st := &fakeIngestStore{
		pdfs:    []store.PDFFile{eligible(1, "known.pdf")},
		records: map[int64]store.OCRRecord{},
	}

	sum, err := ocr.New(st, "olmOCR", false, zap.NewNop()).Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.New)
	assert.Equal(t, []string{"stranger.pdf"}, sum.Orphaned)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"vol1.json": `{"text":"whole doc"}`,
	})
	st := &fakeIngestStore{
		pdfs:    []store.PDFFile{eligible(1, "vol1.pdf")},
		records: map[int64]store.OCRRecord{},
	}

	sum, err := ocr.New(st, "olmOCR", true, zap.NewNop()).Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.New)
	assert.Empty(t, st.completions)
	assert.Empty(t, st.backfills)
}

func TestRunCountsUnreadableOutputs(t *testing.T) {
	dir := writeResults(t, map[string]string{
		"vol1.json": `{broken`,
	})
	st := &fakeIngestStore{
		pdfs:    []store.PDFFile{eligible(1, "vol1.pdf")},
		records: map[int64]store.OCRRecord{},
	}

	sum, err := ocr.New(st, "olmOCR", false, zap.NewNop()).Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.New)
	assert.Equal(t, 1, sum.BadFiles)
}

func TestRunMissingDirectory(t *testing.T) {
	st := &fakeIngestStore{records: map[int64]store.OCRRecord{}}
	_, err := ocr.New(st, "olmOCR", false, zap.NewNop()).Run(context.Background(), filepath.Join(t.TempDir(), "absent"), nil)
	assert.Error(t, err)
}
