package download_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/catalog"
	"github.com/scanforge/scanforge/internal/checksum"
	"github.com/scanforge/scanforge/internal/download"
)

// fakeSource serves scripted responses per attempt.
type fakeSource struct {
	responses []any // []byte payload or error
	calls     int
}

func (f *fakeSource) Download(_ context.Context, _, _ string) (io.ReadCloser, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	switch v := f.responses[idx].(type) {
	case error:
		return nil, v
	case []byte:
		return io.NopCloser(strings.NewReader(string(v))), nil
	default:
		panic("bad fixture")
	}
}

func newDownloader(t *testing.T, src download.Source, dir string) *download.Downloader {
	t.Helper()
	d, err := download.New(src, download.Config{
		Dir:        dir,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return d
}

func pdfFile(name string) catalog.FileInfo {
	return catalog.FileInfo{Name: name, Format: "Text PDF"}
}

func TestFetchDownloadsAndHashes(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{responses: []any{validPDF()}}
	d := newDownloader(t, src, dir)

	res := d.Fetch(context.Background(), "item-1", pdfFile("vol1.pdf"))
	assert.Equal(t, download.OutcomeDownloaded, res.Outcome)
	assert.Equal(t, filepath.Join(dir, "vol1.pdf"), res.Path)
	assert.Equal(t, int64(len(validPDF())), res.Size)

	want, err := checksum.SumFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, want, res.SHA256)
}

func TestFetchSkipsExistingValidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vol1.pdf"), validPDF(), 0o644))

	src := &fakeSource{responses: []any{errors.New("must not be called")}}
	d := newDownloader(t, src, dir)

	res := d.Fetch(context.Background(), "item-1", pdfFile("vol1.pdf"))
	assert.Equal(t, download.OutcomeSkipped, res.Outcome)
	assert.Equal(t, 0, src.calls)
}

func TestFetchReplacesExistingInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vol1.pdf"), []byte("garbage"), 0o644))

	src := &fakeSource{responses: []any{validPDF()}}
	d := newDownloader(t, src, dir)

	res := d.Fetch(context.Background(), "item-1", pdfFile("vol1.pdf"))
	assert.Equal(t, download.OutcomeDownloaded, res.Outcome)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, validPDF(), data)
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	src := &fakeSource{responses: []any{
		errors.New("transient"),
		[]byte("not a pdf"),
		validPDF(),
	}}
	d := newDownloader(t, src, t.TempDir())

	res := d.Fetch(context.Background(), "item-1", pdfFile("vol1.pdf"))
	assert.Equal(t, download.OutcomeDownloaded, res.Outcome)
	assert.Equal(t, 3, src.calls)
}

func TestFetchExhaustsRetriesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{responses: []any{[]byte("<html>error page</html>")}}
	d := newDownloader(t, src, dir)

	res := d.Fetch(context.Background(), "item-1", pdfFile("vol1.pdf"))
	assert.Equal(t, download.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, download.ErrInvalidPDF)
	assert.Equal(t, 3, src.calls)

	// No partial file may survive a failed fetch.
	_, err := os.Stat(filepath.Join(dir, "vol1.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchRejectsNamelessFile(t *testing.T) {
	d := newDownloader(t, &fakeSource{responses: []any{validPDF()}}, t.TempDir())

	res := d.Fetch(context.Background(), "item-1", catalog.FileInfo{})
	assert.Equal(t, download.OutcomeSkipped, res.Outcome)
	assert.Error(t, res.Err)
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{responses: []any{errors.New("boom")}}
	d := newDownloader(t, src, t.TempDir())

	res := d.Fetch(ctx, "item-1", pdfFile("vol1.pdf"))
	assert.Equal(t, download.OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, src.calls, "no retries after cancellation")
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := download.New(&fakeSource{}, download.Config{}, zap.NewNop())
	assert.Error(t, err)
}
