// Package updater is the operation surface of the hot-update lifecycle:
// stage, activate, confirm, listIgnored, listHistory and status.
//
// Open wires every component from a configuration and runs the launch
// reconciler before returning. Stage jobs run on a dedicated worker
// goroutine; canary outcomes are consumed on another.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"git.home.luguber.info/inful/hotupdate/internal/activation"
	"git.home.luguber.info/inful/hotupdate/internal/archive"
	"git.home.luguber.info/inful/hotupdate/internal/canary"
	"git.home.luguber.info/inful/hotupdate/internal/config"
	"git.home.luguber.info/inful/hotupdate/internal/downloader"
	"git.home.luguber.info/inful/hotupdate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/fsutil"
	"git.home.luguber.info/inful/hotupdate/internal/layout"
	"git.home.luguber.info/inful/hotupdate/internal/ledger"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/metrics"
	"git.home.luguber.info/inful/hotupdate/internal/reconcile"
	"git.home.luguber.info/inful/hotupdate/internal/retry"
	"git.home.luguber.info/inful/hotupdate/internal/stager"
	"git.home.luguber.info/inful/hotupdate/internal/state"
)

// Options overrides collaborators. Zero values select the production
// implementation built from the configuration.
type Options struct {
	Store       state.Store
	Downloader  downloader.Downloader
	Extractor   archive.Extractor
	ContentHost ContentHost
	Scheduler   canary.Scheduler
	Journal     *eventstore.Journal
	Recorder    metrics.Recorder
	Logger      *slog.Logger

	// KeepPending opens without installing a staged next-launch update, for
	// processes that are not application launches.
	KeepPending bool
}

// Updater coordinates the lifecycle components.
type Updater struct {
	cfg        *config.Config
	opts       Options
	layout     layout.Layout
	store      state.Store
	ledger     *ledger.Ledger
	downloader downloader.Downloader
	stager     *stager.Stager
	engine     *activation.Engine
	supervisor *canary.Supervisor
	host       ContentHost
	journal    *eventstore.Journal
	recorder   metrics.Recorder
	logger     *slog.Logger

	jobs      chan stageJob
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	report    reconcile.Report
	unlock    func() error
}

// Open wires the components for cfg and runs the launch reconciler.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Updater, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	unlock, err := lockDataDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	opened := false
	defer func() {
		if !opened {
			_ = unlock()
		}
	}()

	u := &Updater{
		cfg:      cfg,
		opts:     opts,
		layout:   layout.New(cfg.DataDir, cfg.Content.RootDir),
		host:     opts.ContentHost,
		recorder: opts.Recorder,
		logger:   logger,
		jobs:     make(chan stageJob),
		done:     make(chan struct{}),
		unlock:   unlock,
	}
	if u.host == nil {
		u.host = nopHost{}
	}
	if u.recorder == nil {
		u.recorder = metrics.NoopRecorder{}
	}

	u.store = opts.Store
	if u.store == nil {
		store, err := state.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		u.store = store
	}
	u.ledger = ledger.New(u.store)

	u.journal = opts.Journal
	if u.journal == nil {
		journal, err := eventstore.Open(ctx, cfg, logger)
		if err != nil {
			_ = u.store.Close()
			return nil, err
		}
		u.journal = journal
	}

	u.downloader = opts.Downloader
	if u.downloader == nil {
		u.downloader = downloader.NewHTTPDownloader(cfg.ConnectTimeout(), cfg.ReadTimeout(),
			downloader.WithRetryPolicy(retry.FromConfig(cfg.Download.Retry)),
			downloader.WithRetryHook(u.recorder.IncDownloadRetry),
			downloader.WithLogger(logger))
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = archive.ZipExtractor{MaxBytes: cfg.Download.MaxExtractBytes}
	}

	fsLock := &sync.Mutex{}
	u.stager = stager.New(u.layout, u.ledger, extractor, fsLock, logger)
	u.engine = activation.New(u.layout, u.ledger, cfg.BundleVersion, cfg.Content.EntryFile, fsLock, logger)

	scheduler := opts.Scheduler
	if scheduler == nil {
		s, err := canary.NewGocronScheduler()
		if err != nil {
			_ = u.journal.Close()
			_ = u.store.Close()
			return nil, err
		}
		scheduler = s
	}
	u.supervisor = canary.New(u.ledger, u.engine, scheduler, cfg.CanaryTimeout(), logger)
	u.supervisor.Start(context.WithoutCancel(ctx))

	if err := u.reconcile(ctx); err != nil {
		_ = u.supervisor.Stop()
		_ = u.journal.Close()
		_ = u.store.Close()
		return nil, err
	}

	opened = true
	u.wg.Add(2)
	go u.runWorker()
	go u.runOutcomes()
	return u, nil
}

// lockDataDir holds dir exclusively for this process so a second opener
// cannot overwrite state it never read.
func lockDataDir(dir string) (func() error, error) {
	unlock, err := fsutil.LockDir(dir)
	if errors.Is(err, fsutil.ErrLocked) {
		return nil, ferrors.NewError(ferrors.CategoryConflict,
			fmt.Sprintf("data directory %s is in use by another process", dir)).
			WithCause(err).
			WithContext("data_dir", dir).
			Build()
	}
	if err != nil {
		return nil, ferrors.FileSystemError(fmt.Sprintf("lock data directory %s", dir)).
			WithCause(err).
			Build()
	}
	return unlock, nil
}

func (u *Updater) reconcile(ctx context.Context) error {
	rec := reconcile.New(u.layout, u.ledger, u.engine, u.supervisor, reconcile.Options{
		BundleDir:     u.cfg.Content.BundleDir,
		BundleVersion: u.cfg.BundleVersion,
		KeepPending:   u.opts.KeepPending,
	}, u.logger)
	report, err := rec.Run(ctx)
	if err != nil {
		return fmt.Errorf("launch reconcile: %w", err)
	}
	u.report = report

	opID := newOpID()
	if report.Activated.IsSome() {
		u.journal.Record(ctx, eventstore.NewActivated(opID, report.Activated.Unwrap(), ""))
		u.recorder.IncOperationResult("activate", metrics.ResultSuccess, "")
		u.reload()
	}
	if report.DiscardedPending.IsSome() {
		u.journal.Record(ctx, eventstore.NewPendingDiscarded(opID, report.DiscardedPending.Unwrap()))
	}
	u.logger.Info("Launch reconciled",
		logfields.OpID(opID),
		slog.Bool("activated", report.Activated.IsSome()),
		slog.Bool("armed", report.Armed.IsSome()),
		slog.Bool("seeded_history", report.SeededHistory))
	return nil
}

// LaunchReport returns what the launch reconciler did.
func (u *Updater) LaunchReport() reconcile.Report { return u.report }

// Layout exposes the content directories.
func (u *Updater) Layout() layout.Layout { return u.layout }

// ContentRoot returns the directory the content host should serve: active
// content once an update is installed, else the bundle.
func (u *Updater) ContentRoot(ctx context.Context) string {
	snap, err := u.ledger.Snapshot(ctx)
	if err == nil && snap.Installed.IsSome() && fsutil.IsDir(u.layout.Active()) {
		return u.layout.Active()
	}
	if u.cfg.Content.BundleDir != "" && fsutil.IsDir(u.cfg.Content.BundleDir) {
		return u.cfg.Content.BundleDir
	}
	return u.layout.Active()
}

// Operations returns recent operations from the journal, newest first.
func (u *Updater) Operations() []eventstore.OperationSummary {
	return u.journal.Operations()
}

func (u *Updater) reload() {
	if err := u.host.Reload(u.layout.Active()); err != nil {
		u.logger.Warn("Content host reload failed", logfields.Error(err))
	}
}

// Close stops the worker and the canary supervisor, then closes the
// journal and the state store.
func (u *Updater) Close() error {
	u.closeOnce.Do(func() {
		close(u.done)
		u.wg.Wait()
		u.closeErr = errors.Join(
			u.supervisor.Stop(),
			u.journal.Close(),
			u.store.Close(),
			u.unlock(),
		)
	})
	return u.closeErr
}
