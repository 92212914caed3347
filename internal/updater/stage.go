package updater

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/hotupdate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/metrics"
	"git.home.luguber.info/inful/hotupdate/internal/stager"
)

type stageJob struct {
	ctx     context.Context
	opID    string
	url     string
	version string
	result  chan error
}

func newOpID() string { return uuid.NewString() }

// Stage fetches req.URL and stages it as req.Version. A version that is
// already installed, or already staged and ready, succeeds without a
// download. A second stage while one is running fails with
// DOWNLOAD_IN_PROGRESS. Once accepted, a stage runs to completion even if
// ctx ends; the caller then gets DOWNLOAD_IN_PROGRESS as well.
func (u *Updater) Stage(ctx context.Context, req *StageRequest) Result {
	if req == nil {
		return fail(ferrors.ValidationError(ferrors.CodeUpdateDataRequired, "Update data is required").Build())
	}
	if req.URL == "" {
		return fail(ferrors.ValidationError(ferrors.CodeURLRequired, "URL is required").Build())
	}
	version := req.Version
	if version == "" {
		version = DefaultStageVersion
	}

	opID := newOpID()
	log := u.logger.With(logfields.OpID(opID), logfields.Operation("stage"), logfields.Version(version))

	reason, err := u.stager.Skip(ctx, version)
	if err != nil {
		log.Warn("Failed to read state for stage skip check", logfields.Error(err))
	}
	if reason != stager.SkipNone {
		log.Info("Stage skipped", "reason", string(reason))
		u.recorder.IncOperationResult("stage", metrics.ResultSkipped, "")
		return success()
	}

	if err := u.stager.Acquire(ctx); err != nil {
		u.recorder.IncOperationResult("stage", metrics.ResultFailed, string(ferrors.CodeOf(err)))
		return fail(classify(err, "Stage failed"))
	}

	job := stageJob{
		ctx:     context.WithoutCancel(ctx),
		opID:    opID,
		url:     req.URL,
		version: version,
		result:  make(chan error, 1),
	}
	select {
	case u.jobs <- job:
	case <-u.done:
		u.stager.Release(ctx)
		return fail(ferrors.NewError(ferrors.CategoryInternal, "Updater is closed").
			WithCode(ferrors.CodeDownloadFailed).Build())
	}

	select {
	case err := <-job.result:
		if err != nil {
			return fail(classify(err, "Stage failed"))
		}
		return success()
	case <-ctx.Done():
		return fail(ferrors.NewError(ferrors.CategoryConflict, "Download still in progress").
			WithCode(ferrors.CodeDownloadInProgress).WithCause(ctx.Err()).Build())
	}
}

func (u *Updater) runWorker() {
	defer u.wg.Done()
	for {
		select {
		case <-u.done:
			return
		case job := <-u.jobs:
			job.result <- u.runStage(job)
		}
	}
}

// runStage downloads and stages one job. The caller already holds the
// stage slot; runStage releases it.
func (u *Updater) runStage(job stageJob) error {
	ctx := job.ctx
	defer u.stager.Release(ctx)

	log := u.logger.With(logfields.OpID(job.opID), logfields.Operation("stage"), logfields.Version(job.version))
	start := time.Now()
	u.journal.Record(ctx, eventstore.NewStageStarted(job.opID, job.url, job.version))
	log.Info("Stage started", logfields.URL(job.url))

	err := u.fetchAndStage(ctx, job)
	elapsed := time.Since(start)
	u.recorder.ObserveOperationDuration("stage", elapsed)

	if err != nil {
		code := string(ferrors.CodeOf(err))
		u.recorder.IncOperationResult("stage", metrics.ResultFailed, code)
		u.journal.Record(ctx, eventstore.NewStageFailed(job.opID, job.version, code, classify(err, "Stage failed").Detail()))
		log.Error("Stage failed", logfields.Code(code), logfields.Error(err))
		return err
	}

	snap, _ := u.ledger.Snapshot(ctx)
	digest := snap.PendingDigest.UnwrapOr("")
	u.recorder.IncOperationResult("stage", metrics.ResultSuccess, "")
	u.recorder.SetPendingReady(true)
	u.journal.Record(ctx, eventstore.NewStageCompleted(job.opID, job.version, digest, elapsed))
	log.Info("Stage completed", logfields.Digest(digest), logfields.DurationMS(float64(elapsed.Milliseconds())))
	return nil
}

func (u *Updater) fetchAndStage(ctx context.Context, job stageJob) error {
	container := u.layout.Container()
	if err := u.downloader.Fetch(ctx, job.url, container); err != nil {
		_ = os.Remove(container)
		return err
	}
	if fi, err := os.Stat(container); err == nil {
		u.recorder.ObserveDownloadBytes(fi.Size())
	}
	return u.stager.StageAcquired(ctx, container, job.version)
}
