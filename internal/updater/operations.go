package updater

import (
	"context"
	"time"

	"git.home.luguber.info/inful/hotupdate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/metrics"
)

// Activate installs the staged update, arms the canary for it and asks the
// content host to reload.
func (u *Updater) Activate(ctx context.Context) Result {
	opID := newOpID()
	log := u.logger.With(logfields.OpID(opID), logfields.Operation("activate"))

	before, _ := u.ledger.Snapshot(ctx)
	start := time.Now()
	version, err := u.engine.Activate(ctx)
	u.recorder.ObserveOperationDuration("activate", time.Since(start))
	if err != nil {
		c := classify(err, "Install failed")
		u.recorder.IncOperationResult("activate", metrics.ResultFailed, string(c.Code()))
		u.journal.Record(ctx, eventstore.NewActivationFailed(opID, string(c.Code()), c.Detail()))
		log.Error("Activation failed", logfields.Code(string(c.Code())), logfields.Error(err))
		return fail(c)
	}

	previous := before.Installed.UnwrapOr(u.cfg.BundleVersion)
	u.recorder.IncOperationResult("activate", metrics.ResultSuccess, "")
	u.recorder.SetPendingReady(false)
	u.journal.Record(ctx, eventstore.NewActivated(opID, version, previous))
	log.Info("Activated", logfields.Version(version), logfields.From(previous))

	if err := u.supervisor.Arm(version); err != nil {
		log.Error("Failed to arm canary", logfields.Error(err))
	}
	u.reload()
	return success()
}

// Confirm records that version is alive and disarms the canary. Any
// non-empty version is accepted.
func (u *Updater) Confirm(ctx context.Context, version string) Result {
	opID := newOpID()
	if err := u.supervisor.Confirm(ctx, version); err != nil {
		c := classify(err, "Confirm failed")
		u.recorder.IncOperationResult("confirm", metrics.ResultFailed, string(c.Code()))
		return fail(c)
	}
	u.recorder.IncOperationResult("confirm", metrics.ResultSuccess, "")
	u.recorder.IncCanaryOutcome("confirmed")
	u.journal.Record(ctx, eventstore.NewConfirmed(opID, version))
	return success()
}

// ListIgnored returns the versions that were rolled back from.
func (u *Updater) ListIgnored(ctx context.Context) Versions {
	return Versions{Versions: u.ledger.IgnoreList(ctx)}
}

// ListHistory returns the versions that were installed and not rolled back.
func (u *Updater) ListHistory(ctx context.Context) Versions {
	return Versions{Versions: u.ledger.History(ctx)}
}

// Status returns a debug view of the bookkeeping. Read failures yield a
// status holding only the bundle version.
func (u *Updater) Status(ctx context.Context) Status {
	st := Status{BundleVersion: u.cfg.BundleVersion, IgnoreList: []string{}}
	state, _ := u.supervisor.State()
	st.CanaryState = state.String()

	snap, err := u.ledger.Snapshot(ctx)
	if err != nil {
		u.logger.Warn("Failed to read status", logfields.Error(err))
		return st
	}
	st.InstalledVersion = snap.Installed.ToPointer()
	st.PreviousVersion = snap.Previous.ToPointer()
	st.CanaryVersion = snap.Canary.ToPointer()
	st.PendingVersion = snap.Pending.ToPointer()
	st.HasPendingUpdate = snap.PendingReady
	st.PendingDigest = snap.PendingDigest.ToPointer()
	if snap.IgnoreList != nil {
		st.IgnoreList = snap.IgnoreList
	}
	return st
}
