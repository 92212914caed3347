package activation

import (
	"context"
	"errors"
	"fmt"
	"os"

	"git.home.luguber.info/inful/hotupdate/internal/fsutil"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
)

// Rollback guard failures. None of them mutates anything.
var (
	ErrNoPreviousVersion = errors.New("no previous version recorded")
	ErrPreviousMissing   = errors.New("previous content directory missing")
	ErrRollbackCycle     = errors.New("previous version equals installed version")
)

// Transition describes a completed rollback.
type Transition struct {
	From string
	To   string
}

// Rollback restores the previous-backup content and reports success.
func (e *Engine) Rollback(ctx context.Context) bool {
	t, err := e.TryRollback(ctx)
	if err != nil {
		e.logger.Warn("Rollback failed", logfields.Error(err))
		return false
	}
	e.logger.Info("Rolled back", logfields.From(t.From), logfields.To(t.To))
	return true
}

// TryRollback is Rollback with the reason for failure.
func (e *Engine) TryRollback(ctx context.Context) (Transition, error) {
	e.fsLock.Lock()
	defer e.fsLock.Unlock()

	snap, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return Transition{}, fmt.Errorf("read state: %w", err)
	}
	if snap.Previous.IsNone() {
		return Transition{}, ErrNoPreviousVersion
	}
	if !fsutil.IsDir(e.layout.Previous()) {
		return Transition{}, ErrPreviousMissing
	}
	t := Transition{From: snap.Installed.UnwrapOr(e.bundleVersion), To: snap.Previous.Unwrap()}
	if t.From == t.To {
		return Transition{}, ErrRollbackCycle
	}

	ctx = context.WithoutCancel(ctx)
	incoming := e.layout.Incoming()
	if err := os.RemoveAll(incoming); err != nil {
		return Transition{}, fmt.Errorf("clear incoming slot: %w", err)
	}
	if err := fsutil.CopyDir(e.layout.Previous(), incoming); err != nil {
		_ = os.RemoveAll(incoming)
		return Transition{}, fmt.Errorf("copy previous content: %w", err)
	}
	if err := fsutil.Swap(e.layout.Active(), incoming, e.layout.Backup()); err != nil {
		_ = os.RemoveAll(incoming)
		return Transition{}, fmt.Errorf("swap in previous content: %w", err)
	}

	if err := e.ledger.CompleteRollback(ctx, t.From, t.To); err != nil {
		e.restoreBackup()
		return Transition{}, fmt.Errorf("persist rollback: %w", err)
	}
	if err := os.RemoveAll(e.layout.Backup()); err != nil {
		e.logger.Warn("Failed to remove backup slot", logfields.Path(e.layout.Backup()), logfields.Error(err))
	}
	return t, nil
}

// restoreBackup puts the outgoing content back as active. Best effort.
func (e *Engine) restoreBackup() {
	if !fsutil.IsDir(e.layout.Backup()) {
		return
	}
	if err := fsutil.Swap(e.layout.Active(), e.layout.Backup(), e.layout.Incoming()); err != nil {
		e.logger.Error("Failed to restore active content", logfields.Error(err))
		return
	}
	_ = os.RemoveAll(e.layout.Incoming())
}
