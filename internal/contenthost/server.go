// Package contenthost serves the active content directory over HTTP.
//
// Files are cached in memory after the first read. The cache is dropped on
// Reload and whenever fsnotify reports a change under the served root.
package contenthost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/hotupdate/internal/logfields"
)

// maxCachedFile bounds the size of a single cached file.
const maxCachedFile = 4 << 20

// RootFunc returns the directory to serve.
type RootFunc func() string

type cachedFile struct {
	data    []byte
	modTime time.Time
}

// Server serves files below the directory returned by its RootFunc.
type Server struct {
	root      RootFunc
	entryFile string
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedFile

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	watched []string
}

// New creates a server. entryFile is served for the empty path.
func New(root RootFunc, entryFile string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		root:      root,
		entryFile: entryFile,
		logger:    logger,
		cache:     make(map[string]cachedFile),
	}
}

// Reload drops cached files and re-targets the watcher. activeDir is
// informational; the RootFunc decides what is served.
func (s *Server) Reload(activeDir string) error {
	s.flush()
	s.logger.Info("Content reloaded", logfields.Path(activeDir), slog.String("root", s.root()))
	return s.rewatch()
}

func (s *Server) flush() {
	s.mu.Lock()
	s.cache = make(map[string]cachedFile)
	s.mu.Unlock()
}

// Start watches the served root and flushes the cache on any change until
// ctx ends or Close is called.
func (s *Server) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	s.watchMu.Lock()
	s.watcher = w
	s.watchMu.Unlock()

	if err := s.rewatch(); err != nil {
		s.logger.Warn("Failed to watch content root", logfields.Error(err))
	}
	go s.watchLoop(ctx, w)
	return nil
}

func (s *Server) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			s.logger.Debug("Content change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			s.flush()
			if event.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					s.watchMu.Lock()
					s.addTree(event.Name)
					s.watchMu.Unlock()
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Error("Content watcher error", logfields.Error(err))
		}
	}
}

// rewatch replaces the watch set with every directory under the root.
func (s *Server) rewatch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	for _, dir := range s.watched {
		_ = s.watcher.Remove(dir)
	}
	s.watched = nil
	root := s.root()
	if root == "" {
		return nil
	}
	return s.addTree(root)
}

// addTree watches dir and its subdirectories. Caller holds watchMu.
func (s *Server) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := s.watcher.Add(p); err != nil {
			return err
		}
		s.watched = append(s.watched, p)
		return nil
	})
}

// Close stops the watcher.
func (s *Server) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

var errOutsideRoot = errors.New("path escapes content root")

// resolve maps a request path to a file below root.
func (s *Server) resolve(root, urlPath string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if rel == "" {
		rel = s.entryFile
	}
	full := filepath.Join(root, filepath.FromSlash(rel))

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	realFull, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", err
	}
	r, err := filepath.Rel(realRoot, realFull)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return realFull, nil
}

func (s *Server) load(file string) (cachedFile, error) {
	s.mu.RLock()
	cf, ok := s.cache[file]
	s.mu.RUnlock()
	if ok {
		return cf, nil
	}

	fi, err := os.Stat(file)
	if err != nil {
		return cachedFile{}, err
	}
	if fi.IsDir() {
		return cachedFile{}, fs.ErrNotExist
	}
	// #nosec G304 -- file was resolved below the content root
	data, err := os.ReadFile(file)
	if err != nil {
		return cachedFile{}, err
	}
	cf = cachedFile{data: data, modTime: fi.ModTime()}
	if fi.Size() <= maxCachedFile {
		s.mu.Lock()
		s.cache[file] = cf
		s.mu.Unlock()
	}
	return cf, nil
}

// ServeHTTP serves GET and HEAD requests for files below the root.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	root := s.root()
	file, err := s.resolve(root, r.URL.Path)
	if err != nil {
		if errors.Is(err, errOutsideRoot) {
			s.logger.Warn("Path traversal attempt blocked", logfields.Path(r.URL.Path))
		}
		http.NotFound(w, r)
		return
	}

	cf, err := s.load(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", MimeType(file))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(file), cf.modTime, bytes.NewReader(cf.data))
}
