package updater

import (
	"context"

	"git.home.luguber.info/inful/hotupdate/internal/canary"
	"git.home.luguber.info/inful/hotupdate/internal/eventstore"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
)

// runOutcomes reacts to canary windows that closed unconfirmed.
func (u *Updater) runOutcomes() {
	defer u.wg.Done()
	for {
		select {
		case <-u.done:
			return
		case o := <-u.supervisor.Outcomes():
			u.handleOutcome(context.Background(), o)
		}
	}
}

func (u *Updater) handleOutcome(ctx context.Context, o canary.Outcome) {
	opID := newOpID()
	log := u.logger.With(logfields.OpID(opID), logfields.Operation("canary"), logfields.Version(o.Version))

	switch {
	case o.RolledBack():
		u.recorder.IncCanaryOutcome("rolled_back")
		u.journal.Record(ctx, eventstore.NewRolledBack(opID, o.Rollback.From, o.Rollback.To))
		log.Warn("Rolled back unconfirmed update", logfields.From(o.Rollback.From), logfields.To(o.Rollback.To))
		u.reload()
	case o.State == canary.Expired:
		u.recorder.IncCanaryOutcome("expired")
		u.journal.Record(ctx, eventstore.NewCanaryExpired(opID, o.Version))
	default:
		u.recorder.IncCanaryOutcome("rollback_failed")
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		u.journal.Record(ctx, eventstore.NewRollbackFailed(opID, o.Version, msg))
		log.Error("Rollback after canary timeout failed", logfields.Error(o.Err))
	}
}
