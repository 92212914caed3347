// Package ledger owns every mutation of the persisted version bookkeeping.
// Each method is one state transaction; related keys change together.
package ledger

import (
	"context"
	"log/slog"
	"slices"

	"git.home.luguber.info/inful/hotupdate/internal/foundation"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/state"
)

// Snapshot is a consistent read of all bookkeeping.
type Snapshot struct {
	Installed          foundation.Option[string]
	Previous           foundation.Option[string]
	Pending            foundation.Option[string]
	PendingReady       bool
	PendingDigest      foundation.Option[string]
	Canary             foundation.Option[string]
	IgnoreList         []string
	History            []string
	DownloadInProgress bool
}

// CanaryOwed reports whether the installed version still awaits confirmation.
func (s Snapshot) CanaryOwed() bool {
	return s.Installed.IsSome() && s.Canary.UnwrapOr("") != s.Installed.Unwrap()
}

// Ledger is typed bookkeeping over a state.Store.
type Ledger struct {
	store state.Store
}

func New(store state.Store) *Ledger {
	return &Ledger{store: store}
}

func optString(r state.Reader, key string) foundation.Option[string] {
	if v, ok := r.String(key); ok && v != "" {
		return foundation.Some(v)
	}
	return foundation.None[string]()
}

func read(r state.Reader) Snapshot {
	return Snapshot{
		Installed:          optString(r, state.KeyInstalledVersion),
		Previous:           optString(r, state.KeyPreviousVersion),
		Pending:            optString(r, state.KeyPendingVersion),
		PendingReady:       r.Bool(state.KeyPendingReady),
		PendingDigest:      optString(r, state.KeyPendingDigest),
		Canary:             optString(r, state.KeyCanaryVersion),
		IgnoreList:         r.Strings(state.KeyIgnoreList),
		History:            r.Strings(state.KeyVersionHistory),
		DownloadInProgress: r.Bool(state.KeyDownloadInProgress),
	}
}

// Snapshot reads all bookkeeping in one transaction.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := l.store.View(ctx, func(r state.Reader) error {
		snap = read(r)
		return nil
	})
	return snap, err
}

// MarkStaged records a staged artifact ready for activation. It also clears
// the download flag: staging is complete once this returns.
func (l *Ledger) MarkStaged(ctx context.Context, version, digest string) error {
	return l.store.Update(ctx, func(w state.Writer) error {
		w.SetString(state.KeyPendingVersion, version)
		w.SetBool(state.KeyPendingReady, true)
		if digest != "" {
			w.SetString(state.KeyPendingDigest, digest)
		} else {
			w.Delete(state.KeyPendingDigest)
		}
		w.SetBool(state.KeyDownloadInProgress, false)
		return nil
	})
}

// ClearPending forgets any staged artifact.
func (l *Ledger) ClearPending(ctx context.Context) error {
	return l.store.Update(ctx, func(w state.Writer) error {
		clearPending(w)
		return nil
	})
}

func clearPending(w state.Writer) {
	w.Delete(state.KeyPendingVersion)
	w.SetBool(state.KeyPendingReady, false)
	w.Delete(state.KeyPendingDigest)
}

// RecordPrevious persists the version whose content now sits in the
// previous-backup directory.
func (l *Ledger) RecordPrevious(ctx context.Context, version string) error {
	return l.store.Update(ctx, func(w state.Writer) error {
		w.SetString(state.KeyPreviousVersion, version)
		return nil
	})
}

// CompleteActivation marks version installed, clears pending and canary
// confirmation, and appends version to history once.
func (l *Ledger) CompleteActivation(ctx context.Context, version string) error {
	return l.store.Update(ctx, func(w state.Writer) error {
		w.SetString(state.KeyInstalledVersion, version)
		clearPending(w)
		w.Delete(state.KeyCanaryVersion)
		history := w.Strings(state.KeyVersionHistory)
		if !slices.Contains(history, version) {
			w.SetStrings(state.KeyVersionHistory, append(history, version))
		}
		return nil
	})
}

// CompleteRollback makes to the installed version, clears previous (so a
// second rollback cannot bounce back), ignores from and drops it from history.
func (l *Ledger) CompleteRollback(ctx context.Context, from, to string) error {
	return l.store.Update(ctx, func(w state.Writer) error {
		w.SetString(state.KeyInstalledVersion, to)
		w.Delete(state.KeyPreviousVersion)

		ignored := w.Strings(state.KeyIgnoreList)
		if !slices.Contains(ignored, from) {
			w.SetStrings(state.KeyIgnoreList, append(ignored, from))
		}
		history := w.Strings(state.KeyVersionHistory)
		if i := slices.Index(history, from); i >= 0 {
			w.SetStrings(state.KeyVersionHistory, slices.Delete(history, i, i+1))
		}
		return nil
	})
}

// Confirm records the canary confirmation for version. Any version is accepted.
func (l *Ledger) Confirm(ctx context.Context, version string) error {
	return l.store.Update(ctx, func(w state.Writer) error {
		w.SetString(state.KeyCanaryVersion, version)
		return nil
	})
}

func (l *Ledger) SetDownloadInProgress(ctx context.Context, inProgress bool) error {
	return l.store.Update(ctx, func(w state.Writer) error {
		w.SetBool(state.KeyDownloadInProgress, inProgress)
		return nil
	})
}

// SeedHistory records bundleVersion as the first history entry when history
// is empty. It reports whether it wrote anything.
func (l *Ledger) SeedHistory(ctx context.Context, bundleVersion string) (bool, error) {
	seeded := false
	err := l.store.Update(ctx, func(w state.Writer) error {
		if bundleVersion == "" || len(w.Strings(state.KeyVersionHistory)) > 0 {
			return nil
		}
		w.SetStrings(state.KeyVersionHistory, []string{bundleVersion})
		seeded = true
		return nil
	})
	return seeded, err
}

// IgnoreList returns the ignored versions in insertion order. Read errors
// are logged and yield an empty list.
func (l *Ledger) IgnoreList(ctx context.Context) []string {
	return l.list(ctx, state.KeyIgnoreList)
}

// History returns the version history. Read errors yield an empty list.
func (l *Ledger) History(ctx context.Context) []string {
	return l.list(ctx, state.KeyVersionHistory)
}

func (l *Ledger) list(ctx context.Context, key string) []string {
	out := []string{}
	err := l.store.View(ctx, func(r state.Reader) error {
		out = append(out, r.Strings(key)...)
		return nil
	})
	if err != nil {
		slog.Warn("Failed to read version list", slog.String("key", key), logfields.Error(err))
		return []string{}
	}
	return out
}
