package validate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrBadHeader means the file does not start with the PDF magic bytes.
	ErrBadHeader = errors.New("validate: not a PDF")
	// ErrTooSmall means the file is under the configured size floor.
	ErrTooSmall = errors.New("validate: file too small")
)

var pdfMagic = []byte("%PDF-")

// Validator checks that a downloaded file is a plausible PDF document.
// Mirrors and landing pages routinely serve HTML error pages with a 200
// status, so the magic-byte check is the last line of defense before a file
// is promoted into storage.
type Validator struct {
	minBytes int64
}

// New creates a Validator with the given size floor in bytes.
func New(minBytes int64) *Validator {
	return &Validator{minBytes: minBytes}
}

// Validate inspects the file at path. It returns ErrTooSmall or ErrBadHeader
// for rejected files, or a non-sentinel error for I/O failures.
func (v *Validator) Validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() < v.minBytes {
		return fmt.Errorf("%d bytes, floor %d: %w", info.Size(), v.minBytes, ErrTooSmall)
	}

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header: %w", ErrBadHeader)
	}
	if !bytes.Equal(header, pdfMagic) {
		return fmt.Errorf("header %q: %w", printableHeader(header), ErrBadHeader)
	}
	return nil
}

func printableHeader(b []byte) string {
	s := string(b)
	var sb strings.Builder
	for _, r := range s {
		if r >= 32 && r < 127 {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('.')
		}
	}
	return sb.String()
}
