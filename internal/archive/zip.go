package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ZipExtractor extracts zip containers with path containment checks.
type ZipExtractor struct {
	// MaxBytes caps the total uncompressed size; 0 means unlimited.
	MaxBytes int64
}

// Extract validates the signature, then extracts every entry under dst.
// The first unsafe entry aborts extraction; nothing outside dst is written.
func (z ZipExtractor) Extract(src, dst string) error {
	if err := CheckSignature(src); err != nil {
		return err
	}

	// The reader may come back together with an insecure-path warning;
	// entryTarget below makes the decision in that case.
	r, err := zip.OpenReader(src)
	if r == nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	root, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	// Validate every entry before writing anything.
	targets := make([]string, len(r.File))
	for i, f := range r.File {
		target, err := entryTarget(root, f)
		if err != nil {
			return err
		}
		targets[i] = target
	}

	var written int64
	for i, f := range r.File {
		n, err := z.extractEntry(f, targets[i], written)
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// entryTarget resolves the on-disk path for f and rejects anything that
// would escape root.
func entryTarget(root string, f *zip.File) (string, error) {
	name := f.Name
	if f.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: symlink entry %q", ErrUnsafePath, name)
	}
	if name == "" || strings.Contains(name, "\\") || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}

func (z ZipExtractor) extractEntry(f *zip.File, target string, written int64) (int64, error) {
	if f.FileInfo().IsDir() {
		return 0, os.MkdirAll(target, 0o750)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", f.Name, err)
	}

	var src io.Reader = rc
	if z.MaxBytes > 0 {
		// One byte over the budget is enough to detect overflow.
		src = io.LimitReader(rc, z.MaxBytes-written+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if z.MaxBytes > 0 && written+n > z.MaxBytes {
		return n, fmt.Errorf("archive exceeds %d bytes uncompressed", z.MaxBytes)
	}
	return n, nil
}
