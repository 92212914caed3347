package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/hotupdate/internal/logfields"
)

// JSONStore implements Store as a single JSON object on disk.
// Every Update rewrites the file through a temp file, fsync and rename.
type JSONStore struct {
	path   string // "" means in-memory
	mu     sync.RWMutex
	values map[string]json.RawMessage
	closed bool
}

// NewJSONStore opens (or creates) the state file at path. A file that cannot
// be decoded is moved aside to <path>.corrupt and the store starts empty.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	js := &JSONStore{path: path, values: make(map[string]json.RawMessage)}
	if err := js.loadFromDisk(); err != nil {
		return nil, err
	}
	return js, nil
}

// NewMemoryStore returns a JSONStore that never touches disk.
func NewMemoryStore() *JSONStore {
	return &JSONStore{values: make(map[string]json.RawMessage)}
}

func (js *JSONStore) lookup(key string) ([]byte, bool) {
	v, ok := js.values[key]
	return v, ok
}

// View runs fn against a consistent snapshot.
func (js *JSONStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrClosed
	}
	return fn(newTxn(js.lookup))
}

// Update runs fn and persists its writes atomically.
func (js *JSONStore) Update(ctx context.Context, fn func(Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	if js.closed {
		return ErrClosed
	}

	t := newTxn(js.lookup)
	if err := fn(t); err != nil {
		return err
	}
	if len(t.writes) == 0 {
		return nil
	}
	next := t.apply(js.values)
	if err := js.saveToDisk(next); err != nil {
		return err
	}
	js.values = next
	return nil
}

// Close marks the store closed. Every Update is already on disk.
func (js *JSONStore) Close() error {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.closed = true
	return nil
}

func (js *JSONStore) loadFromDisk() error {
	data, err := os.ReadFile(js.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		aside := js.path + ".corrupt"
		slog.Warn("State file is corrupt; starting with empty state",
			logfields.Path(js.path), logfields.Error(err))
		if rerr := os.Rename(js.path, aside); rerr != nil {
			return fmt.Errorf("failed to move corrupt state file aside: %w", rerr)
		}
		return nil
	}
	if values != nil {
		js.values = values
	}
	return nil
}

func (js *JSONStore) saveToDisk(values map[string]json.RawMessage) error {
	if js.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(js.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(js.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temporary state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temporary state file: %w", err)
	}
	if err := os.Rename(tmpPath, js.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return syncDir(dir)
}

// syncDir flushes a rename in dir to disk.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open state directory: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync state directory: %w", err)
	}
	return nil
}
