package download

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	pdfMagic  = []byte("%PDF-")
	eofMarker = []byte("%%EOF")
)

// ErrInvalidPDF marks structural validation failures.
var ErrInvalidPDF = errors.New("invalid pdf")

// tailWindow is how far from the end the EOF marker is searched for.
const tailWindow = 1024

// ValidatePDF performs the cheap structural sanity check: the first five
// bytes must be the PDF magic marker and the last kilobyte must contain an
// end-of-file marker. It is not a parse.
func ValidatePDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: short header read: %w", ErrInvalidPDF, err)
	}
	if !bytes.Equal(header, pdfMagic) {
		return fmt.Errorf("%w: missing %%PDF- header", ErrInvalidPDF)
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat for validation: %w", err)
	}
	offset := info.Size() - tailWindow
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek tail: %w", err)
	}
	tail, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read tail: %w", err)
	}
	if !bytes.Contains(tail, eofMarker) {
		return fmt.Errorf("%w: no %%%%EOF marker in final %d bytes", ErrInvalidPDF, tailWindow)
	}
	return nil
}
