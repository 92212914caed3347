// Package stager turns a fetched container into staged content ready for
// activation.
package stager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/hotupdate/internal/archive"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/fsutil"
	"git.home.luguber.info/inful/hotupdate/internal/layout"
	"git.home.luguber.info/inful/hotupdate/internal/ledger"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/workspace"
)

// SkipReason explains why a stage request needs no work.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipInstalled SkipReason = "installed"
	SkipPending   SkipReason = "pending"
)

// Stager validates, extracts and deposits artifacts.
type Stager struct {
	layout    layout.Layout
	ledger    *ledger.Ledger
	extractor archive.Extractor
	scratch   *workspace.Manager
	fsLock    *sync.Mutex
	guard     *semaphore.Weighted
	logger    *slog.Logger
}

// New creates a stager. fsLock is shared with the activation engine so a
// deposit never overlaps an activation or rollback.
func New(l layout.Layout, led *ledger.Ledger, ex archive.Extractor, fsLock *sync.Mutex, logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{
		layout:    l,
		ledger:    led,
		extractor: ex,
		scratch:   workspace.NewPersistentManager(l.Scratch()),
		fsLock:    fsLock,
		guard:     semaphore.NewWeighted(1),
		logger:    logger,
	}
}

// Skip reports whether staging version would be a no-op because it is
// already installed or already staged. It does not touch the filesystem.
func (s *Stager) Skip(ctx context.Context, version string) (SkipReason, error) {
	snap, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return SkipNone, err
	}
	if snap.Installed.UnwrapOr("") == version {
		return SkipInstalled, nil
	}
	if snap.PendingReady && snap.Pending.UnwrapOr("") == version {
		return SkipPending, nil
	}
	return SkipNone, nil
}

// Acquire claims the single stage slot and persists the in-progress flag.
func (s *Stager) Acquire(ctx context.Context) error {
	if !s.guard.TryAcquire(1) {
		return ferrors.NewError(ferrors.CategoryConflict, "Download already in progress").
			WithCode(ferrors.CodeDownloadInProgress).
			Build()
	}
	if err := s.ledger.SetDownloadInProgress(ctx, true); err != nil {
		// The in-memory guard still holds; the flag only matters after a crash.
		s.logger.Warn("Failed to persist download flag", logfields.Error(err))
	}
	return nil
}

// Release frees the stage slot and clears the persisted flag.
func (s *Stager) Release(ctx context.Context) {
	if err := s.ledger.SetDownloadInProgress(context.WithoutCancel(ctx), false); err != nil {
		s.logger.Warn("Failed to clear download flag", logfields.Error(err))
	}
	s.guard.Release(1)
}

// Stage runs the full contract for a container already on disk: skip check,
// exclusivity, then StageAcquired.
func (s *Stager) Stage(ctx context.Context, sourceFile, version string) error {
	reason, err := s.Skip(ctx, version)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryState, "Failed to read state").
			WithCode(ferrors.CodeExtractionFailed).Build()
	}
	if reason != SkipNone {
		s.logger.Info("Stage skipped", logfields.Version(version), slog.String("reason", string(reason)))
		return nil
	}
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release(ctx)
	return s.StageAcquired(ctx, sourceFile, version)
}

// StageAcquired validates and extracts sourceFile, then deposits its content
// root into both staging directories and marks version pending. The caller
// must hold the stage slot. Staging directories change only after the
// content root was found.
func (s *Stager) StageAcquired(ctx context.Context, sourceFile, version string) error {
	digest, err := archive.Digest(sourceFile)
	if err != nil {
		return extractionFailed(err)
	}

	if err := s.scratch.Reset(); err != nil {
		return ferrors.FileSystemError("Failed to create temporary directory").
			WithCode(ferrors.CodeTempDirError).WithCause(err).Build()
	}
	defer func() {
		if err := s.scratch.Cleanup(); err != nil {
			s.logger.Warn("Failed to clean scratch directory", logfields.Error(err))
		}
	}()

	if err := s.extractor.Extract(sourceFile, s.scratch.GetPath()); err != nil {
		return extractionFailed(err)
	}

	root, ok := FindContentRoot(s.scratch.GetPath(), s.layout.RootDir())
	if !ok {
		return ferrors.ArchiveError(s.layout.RootDir() + " folder not found in archive").
			WithCode(ferrors.CodeWWWNotFound).Build()
	}

	s.fsLock.Lock()
	defer s.fsLock.Unlock()

	if err := s.deposit(ctx, root); err != nil {
		return extractionFailed(err)
	}
	if err := s.ledger.MarkStaged(ctx, version, digest); err != nil {
		return extractionFailed(fmt.Errorf("persist pending version: %w", err))
	}
	if err := os.Remove(sourceFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove downloaded container", logfields.Path(sourceFile), logfields.Error(err))
	}

	s.logger.Info("Update staged", logfields.Version(version), logfields.Digest(digest))
	return nil
}

func extractionFailed(cause error) error {
	return ferrors.ArchiveError("Failed to extract ZIP").WithCause(cause).Build()
}

// deposit copies root into fresh siblings of both staging directories, then
// promotes them. Both copies exist before either target is replaced.
func (s *Stager) deposit(ctx context.Context, root string) error {
	targets := []string{s.layout.Immediate(), s.layout.NextLaunch()}
	fresh := make([]string, 0, len(targets))
	discard := func() {
		for _, f := range fresh {
			_ = os.RemoveAll(f)
		}
	}

	for _, target := range targets {
		dir, err := workspace.Sibling(target, "fresh")
		if err != nil {
			discard()
			return err
		}
		fresh = append(fresh, dir)
		if err := fsutil.CopyDir(root, dir); err != nil {
			discard()
			return fmt.Errorf("copy content into %s: %w", target, err)
		}
	}

	for i, target := range targets {
		if err := workspace.Promote(fresh[i], target); err != nil {
			// Earlier targets are already replaced; drop every staging copy
			// so no half-updated pair survives.
			for _, f := range fresh[i+1:] {
				_ = os.RemoveAll(f)
			}
			s.dropStaging()
			if cerr := s.ledger.ClearPending(context.WithoutCancel(ctx)); cerr != nil {
				s.logger.Warn("Failed to clear pending version", logfields.Error(cerr))
			}
			return err
		}
	}
	return nil
}

// dropStaging removes both staging directories.
func (s *Stager) dropStaging() {
	for _, dir := range []string{s.layout.ImmediateParent(), s.layout.NextLaunchParent()} {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove staging directory", logfields.Path(dir), logfields.Error(err))
		}
	}
}

// FindContentRoot looks for rootName directly under dir, then one level
// deeper (first match in lexical order).
func FindContentRoot(dir, rootName string) (string, bool) {
	direct := filepath.Join(dir, rootName)
	if fsutil.IsDir(direct) {
		return direct, true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		nested := filepath.Join(dir, e.Name(), rootName)
		if fsutil.IsDir(nested) {
			return nested, true
		}
	}
	return "", false
}
