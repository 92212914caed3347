// Package archive validates and extracts downloaded update containers.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// zipMagic is the local file header signature every zip container starts with.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

var (
	// ErrBadSignature means the container does not start with the zip magic bytes.
	ErrBadSignature = errors.New("not a zip archive")
	// ErrUnsafePath means an entry would land outside the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

// Extractor unpacks a container file into dst.
type Extractor interface {
	Extract(src, dst string) error
}

// CheckSignature verifies the container's magic bytes.
func CheckSignature(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open container: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !bytes.Equal(header, zipMagic) {
		return fmt.Errorf("%w: header %x", ErrBadSignature, header)
	}
	return nil
}
