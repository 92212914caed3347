// Package reconcile brings persisted bookkeeping and the content directories
// back into agreement when the process starts.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/hotupdate/internal/activation"
	"git.home.luguber.info/inful/hotupdate/internal/foundation"
	"git.home.luguber.info/inful/hotupdate/internal/fsutil"
	"git.home.luguber.info/inful/hotupdate/internal/layout"
	"git.home.luguber.info/inful/hotupdate/internal/ledger"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/workspace"
)

// Armer starts a canary window.
type Armer interface {
	Arm(version string) error
}

// Options carries the bundle the application shipped with.
type Options struct {
	BundleDir     string
	BundleVersion string
	// KeepPending leaves a staged next-launch update in place instead of
	// installing it. Tools that inspect or drive the updater set it.
	KeepPending bool
}

// Report describes what a run changed.
type Report struct {
	ClearedDownloadFlag bool
	SeededActive        bool
	Activated           foundation.Option[string]
	DiscardedPending    foundation.Option[string]
	SeededHistory       bool
	Armed               foundation.Option[string]
}

type Reconciler struct {
	layout layout.Layout
	ledger *ledger.Ledger
	engine *activation.Engine
	armer  Armer
	opts   Options
	logger *slog.Logger
}

func New(l layout.Layout, led *ledger.Ledger, engine *activation.Engine, armer Armer, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{layout: l, ledger: led, engine: engine, armer: armer, opts: opts, logger: logger}
}

// Run performs the launch steps in order. Only an unreadable state store
// stops it; every other failure is logged and the run continues.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	report := Report{
		Activated:        foundation.None[string](),
		DiscardedPending: foundation.None[string](),
		Armed:            foundation.None[string](),
	}

	snap, err := r.ledger.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("read state: %w", err)
	}

	// A flag left set means the previous process died mid-download.
	if snap.DownloadInProgress {
		if err := r.ledger.SetDownloadInProgress(ctx, false); err != nil {
			r.logger.Warn("Failed to clear download flag", logfields.Error(err))
		} else {
			report.ClearedDownloadFlag = true
			r.logger.Info("Cleared stale download flag")
		}
	}

	report.SeededActive = r.seedActive()

	if snap.PendingReady && snap.Pending.IsSome() && !r.opts.KeepPending {
		r.installPending(ctx, snap.Pending.Unwrap(), &report)
	}

	seeded, err := r.ledger.SeedHistory(ctx, r.opts.BundleVersion)
	if err != nil {
		r.logger.Warn("Failed to seed version history", logfields.Error(err))
	}
	report.SeededHistory = seeded

	snap, err = r.ledger.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("read state: %w", err)
	}
	if snap.CanaryOwed() {
		installed := snap.Installed.Unwrap()
		if err := r.armer.Arm(installed); err != nil {
			r.logger.Error("Failed to arm canary", logfields.Version(installed), logfields.Error(err))
		} else {
			report.Armed = foundation.Some(installed)
		}
	}
	return report, nil
}

// seedActive copies the bundle into place when there is no active content.
func (r *Reconciler) seedActive() bool {
	active := r.layout.Active()
	if r.opts.BundleDir == "" || fsutil.IsDir(active) || !fsutil.IsDir(r.opts.BundleDir) {
		return false
	}
	fresh, err := workspace.Sibling(active, "seed")
	if err == nil {
		if err = fsutil.CopyDir(r.opts.BundleDir, fresh); err == nil {
			err = workspace.Promote(fresh, active)
		} else {
			_ = os.RemoveAll(fresh)
		}
	}
	if err != nil {
		r.logger.Error("Failed to seed active content from bundle", logfields.Path(r.opts.BundleDir), logfields.Error(err))
		return false
	}
	r.logger.Info("Seeded active content from bundle", logfields.Path(r.opts.BundleDir))
	return true
}

func (r *Reconciler) installPending(ctx context.Context, version string, report *Report) {
	log := r.logger.With(logfields.Version(version))
	src := r.layout.NextLaunch()

	var err error
	if r.engine.HasEntryFile(src) {
		err = r.engine.ActivateFrom(ctx, src, version)
	} else {
		err = fmt.Errorf("next-launch content missing or incomplete at %s", src)
	}
	if err == nil {
		report.Activated = foundation.Some(version)
		log.Info("Installed pending update at launch")
		return
	}

	log.Warn("Discarding pending update", logfields.Error(err))
	if cerr := r.ledger.ClearPending(ctx); cerr != nil {
		log.Error("Failed to clear pending update", logfields.Error(cerr))
	}
	for _, dir := range []string{r.layout.NextLaunchParent(), r.layout.ImmediateParent()} {
		if rerr := os.RemoveAll(dir); rerr != nil {
			log.Warn("Failed to remove staging directory", logfields.Path(dir), logfields.Error(rerr))
		}
	}
	report.DiscardedPending = foundation.Some(version)
}
