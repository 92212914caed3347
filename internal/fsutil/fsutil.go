// Package fsutil holds the directory primitives used by staging, activation
// and rollback.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const lockFile = ".lock"

// ErrLocked is returned by LockDir when another opener holds the lock.
var ErrLocked = errors.New("directory is locked by another process")

// Exists reports whether path exists (any type).
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir reports whether path is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile reports whether path is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CopyDir copies the tree at src to dst, which must be absent or an empty directory.
// Regular files, directories and symlinks are copied; other types are skipped.
func CopyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("copy %s: not a directory", src)
	}
	entries, err := os.ReadDir(dst)
	switch {
	case err == nil && len(entries) > 0:
		return fmt.Errorf("copy destination %s is not empty", dst)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("read destination: %w", err)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o750)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read link %s: %w", rel, err)
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return nil
		}
	})
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dst, cerr)
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}

// Swap installs incoming at active. Afterwards incoming is gone and backup
// holds the previous active content, if there was any.
// Any stale backup is removed first. Active is never observed partially
// populated: it is replaced by a rename.
func Swap(active, incoming, backup string) error {
	if !IsDir(incoming) {
		return fmt.Errorf("incoming directory %s missing", incoming)
	}
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("clear backup slot: %w", err)
	}
	if !Exists(active) {
		if err := os.Rename(incoming, active); err != nil {
			return fmt.Errorf("install %s: %w", active, err)
		}
		return nil
	}

	if err := exchange(incoming, active); err == nil {
		// The new content is live. Outgoing content that cannot be parked
		// is dropped; callers discard the backup on success anyway.
		if err := os.Rename(incoming, backup); err != nil {
			_ = os.RemoveAll(incoming)
		}
		return nil
	}

	if err := os.Rename(active, backup); err != nil {
		return fmt.Errorf("move active aside: %w", err)
	}
	if err := os.Rename(incoming, active); err != nil {
		if rerr := os.Rename(backup, active); rerr != nil {
			return fmt.Errorf("install %s: %w (restore failed: %v)", active, err, rerr)
		}
		return fmt.Errorf("install %s: %w", active, err)
	}
	return nil
}
