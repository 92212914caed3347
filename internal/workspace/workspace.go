package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/hotupdate/internal/logfields"
)

// Manager handles a fixed scratch directory.
type Manager struct {
	dir string
}

// NewPersistentManager creates a manager for the fixed directory dir.
func NewPersistentManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Reset removes any leftover content and recreates an empty directory.
func (m *Manager) Reset() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to clear workspace: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Workspace reset", logfields.Path(m.dir))
	return nil
}

// GetPath returns the path to the workspace directory.
func (m *Manager) GetPath() string {
	return m.dir
}

// Cleanup removes the workspace directory entirely.
func (m *Manager) Cleanup() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.dir))
	return nil
}

// Sibling creates a fresh, uniquely named directory next to target
// (same filesystem, so a later rename is atomic). The parent of target is
// created if needed.
func Sibling(target, tag string) (string, error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "."+filepath.Base(target)+"."+tag+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", tag, err)
	}
	return dir, nil
}

// Promote replaces target with the fully populated directory fresh. An
// existing target is removed first; on failure fresh is discarded.
func Promote(fresh, target string) error {
	if err := os.RemoveAll(target); err != nil {
		_ = os.RemoveAll(fresh)
		return fmt.Errorf("failed to remove %s: %w", target, err)
	}
	if err := os.Rename(fresh, target); err != nil {
		_ = os.RemoveAll(fresh)
		return fmt.Errorf("failed to promote %s: %w", target, err)
	}
	return nil
}
