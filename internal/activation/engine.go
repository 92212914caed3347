// Package activation promotes staged content to active and rolls it back.
//
// Active content is never rewritten in place: new content is assembled in an
// incoming directory and swapped with the active directory by rename.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/fsutil"
	"git.home.luguber.info/inful/hotupdate/internal/layout"
	"git.home.luguber.info/inful/hotupdate/internal/ledger"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/workspace"
)

// Engine performs activations and rollbacks.
type Engine struct {
	layout        layout.Layout
	ledger        *ledger.Ledger
	bundleVersion string
	entryFile     string
	fsLock        *sync.Mutex
	logger        *slog.Logger
}

// New creates an engine. fsLock must be the lock shared with the stager.
func New(l layout.Layout, led *ledger.Ledger, bundleVersion, entryFile string, fsLock *sync.Mutex, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		layout:        l,
		ledger:        led,
		bundleVersion: bundleVersion,
		entryFile:     entryFile,
		fsLock:        fsLock,
		logger:        logger,
	}
}

// HasEntryFile reports whether dir holds the content entry file.
func (e *Engine) HasEntryFile(dir string) bool {
	return fsutil.IsFile(filepath.Join(dir, e.entryFile))
}

// Activate installs the content staged for immediate activation and returns
// the installed version.
func (e *Engine) Activate(ctx context.Context) (string, error) {
	e.fsLock.Lock()
	defer e.fsLock.Unlock()

	snap, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return "", installFailed(fmt.Errorf("read state: %w", err))
	}
	if !snap.PendingReady || snap.Pending.IsNone() {
		return "", ferrors.StateError(ferrors.CodeNoUpdateReady, "No update ready to install").Build()
	}
	if !e.HasEntryFile(e.layout.Immediate()) {
		return "", ferrors.StateError(ferrors.CodeUpdateFilesNotFound, "Downloaded update files not found").
			WithContext("path", e.layout.Immediate()).Build()
	}

	version := snap.Pending.Unwrap()
	if err := e.install(ctx, snap, e.layout.Immediate(), version); err != nil {
		return "", err
	}
	return version, nil
}

// ActivateFrom installs the content in dir as version. The launch
// reconciler uses it for next-launch content.
func (e *Engine) ActivateFrom(ctx context.Context, dir, version string) error {
	e.fsLock.Lock()
	defer e.fsLock.Unlock()

	if !e.HasEntryFile(dir) {
		return ferrors.StateError(ferrors.CodeUpdateFilesNotFound, "Update files not found").
			WithContext("path", dir).Build()
	}
	snap, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return installFailed(fmt.Errorf("read state: %w", err))
	}
	return e.install(ctx, snap, dir, version)
}

// install runs snapshot, replace and bookkeeping. The caller holds fsLock.
// Once the first directory changes, the ledger writes must land even if the
// caller goes away, so ctx is detached from cancellation.
func (e *Engine) install(ctx context.Context, snap ledger.Snapshot, src, version string) error {
	ctx = context.WithoutCancel(ctx)
	log := e.logger.With(logfields.Version(version))

	if err := e.snapshotActive(ctx, snap); err != nil {
		return installFailed(fmt.Errorf("snapshot active content: %w", err))
	}

	if err := e.replaceActive(src); err != nil {
		return installFailed(err)
	}

	if err := e.ledger.CompleteActivation(ctx, version); err != nil {
		return installFailed(fmt.Errorf("persist installed version: %w", err))
	}

	for _, dir := range []string{e.layout.ImmediateParent(), e.layout.NextLaunchParent(), e.layout.Scratch()} {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("Failed to remove staging directory", logfields.Path(dir), logfields.Error(err))
		}
	}
	log.Info("Update installed")
	return nil
}

// snapshotActive copies active content to the previous-backup directory and
// records which version it holds. Without active content nothing changes.
func (e *Engine) snapshotActive(ctx context.Context, snap ledger.Snapshot) error {
	active := e.layout.Active()
	if !fsutil.IsDir(active) {
		return nil
	}
	fresh, err := workspace.Sibling(e.layout.Previous(), "snapshot")
	if err != nil {
		return err
	}
	if err := fsutil.CopyDir(active, fresh); err != nil {
		_ = os.RemoveAll(fresh)
		return err
	}
	if err := workspace.Promote(fresh, e.layout.Previous()); err != nil {
		return err
	}
	return e.ledger.RecordPrevious(ctx, snap.Installed.UnwrapOr(e.bundleVersion))
}

// replaceActive assembles src in the incoming slot and swaps it in.
func (e *Engine) replaceActive(src string) error {
	incoming := e.layout.Incoming()
	if err := os.RemoveAll(incoming); err != nil {
		return fmt.Errorf("clear incoming slot: %w", err)
	}
	if err := fsutil.CopyDir(src, incoming); err != nil {
		_ = os.RemoveAll(incoming)
		return fmt.Errorf("copy new content: %w", err)
	}
	if err := fsutil.Swap(e.layout.Active(), incoming, e.layout.Backup()); err != nil {
		_ = os.RemoveAll(incoming)
		return fmt.Errorf("swap in new content: %w", err)
	}
	if err := os.RemoveAll(e.layout.Backup()); err != nil {
		e.logger.Warn("Failed to remove backup slot", logfields.Path(e.layout.Backup()), logfields.Error(err))
	}
	return nil
}

func installFailed(cause error) error {
	return ferrors.FileSystemError("Install failed").
		WithCode(ferrors.CodeInstallFailed).
		WithCause(cause).
		Build()
}
