package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotupdate/internal/state"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(state.NewMemoryStore())
}

func snap(t *testing.T, l *Ledger) Snapshot {
	t.Helper()
	s, err := l.Snapshot(t.Context())
	require.NoError(t, err)
	return s
}

func TestLedger_FreshSnapshot(t *testing.T) {
	s := snap(t, newLedger(t))
	assert.True(t, s.Installed.IsNone())
	assert.True(t, s.Previous.IsNone())
	assert.True(t, s.Pending.IsNone())
	assert.False(t, s.PendingReady)
	assert.Empty(t, s.IgnoreList)
	assert.Empty(t, s.History)
	assert.False(t, s.CanaryOwed())
}

func TestLedger_StageActivateLifecycle(t *testing.T) {
	ctx := t.Context()
	l := newLedger(t)

	seeded, err := l.SeedHistory(ctx, "1.0.0")
	require.NoError(t, err)
	assert.True(t, seeded)

	require.NoError(t, l.SetDownloadInProgress(ctx, true))
	require.NoError(t, l.MarkStaged(ctx, "2.0.0", "d1g3st"))
	s := snap(t, l)
	assert.Equal(t, "2.0.0", s.Pending.Unwrap())
	assert.True(t, s.PendingReady)
	assert.Equal(t, "d1g3st", s.PendingDigest.Unwrap())
	assert.False(t, s.DownloadInProgress)

	require.NoError(t, l.RecordPrevious(ctx, "1.0.0"))
	require.NoError(t, l.Confirm(ctx, "1.0.0"))
	require.NoError(t, l.CompleteActivation(ctx, "2.0.0"))

	s = snap(t, l)
	assert.Equal(t, "2.0.0", s.Installed.Unwrap())
	assert.Equal(t, "1.0.0", s.Previous.Unwrap())
	assert.True(t, s.Pending.IsNone())
	assert.False(t, s.PendingReady)
	assert.True(t, s.PendingDigest.IsNone())
	assert.True(t, s.Canary.IsNone(), "activation clears confirmation")
	assert.True(t, s.CanaryOwed())
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, s.History)

	require.NoError(t, l.Confirm(ctx, "2.0.0"))
	assert.False(t, snap(t, l).CanaryOwed())
}

func TestLedger_HistoryAppendOnce(t *testing.T) {
	ctx := t.Context()
	l := newLedger(t)
	require.NoError(t, l.CompleteActivation(ctx, "2.0.0"))
	require.NoError(t, l.CompleteActivation(ctx, "2.0.0"))
	assert.Equal(t, []string{"2.0.0"}, l.History(ctx))
}

func TestLedger_CompleteRollback(t *testing.T) {
	ctx := t.Context()
	l := newLedger(t)
	_, err := l.SeedHistory(ctx, "1.0.0")
	require.NoError(t, err)
	require.NoError(t, l.RecordPrevious(ctx, "1.0.0"))
	require.NoError(t, l.CompleteActivation(ctx, "2.0.0"))

	require.NoError(t, l.CompleteRollback(ctx, "2.0.0", "1.0.0"))
	s := snap(t, l)
	assert.Equal(t, "1.0.0", s.Installed.Unwrap())
	assert.True(t, s.Previous.IsNone())
	assert.Equal(t, []string{"2.0.0"}, s.IgnoreList)
	assert.Equal(t, []string{"1.0.0"}, s.History)

	// Ignoring twice keeps one entry.
	require.NoError(t, l.CompleteRollback(ctx, "2.0.0", "1.0.0"))
	assert.Equal(t, []string{"2.0.0"}, l.IgnoreList(ctx))
}

func TestLedger_IgnoreListInsertionOrder(t *testing.T) {
	ctx := t.Context()
	l := newLedger(t)
	for _, v := range []string{"3.0.0", "1.5.0", "2.0.0"} {
		require.NoError(t, l.CompleteRollback(ctx, v, "1.0.0"))
	}
	assert.Equal(t, []string{"3.0.0", "1.5.0", "2.0.0"}, l.IgnoreList(ctx))
}

func TestLedger_SeedHistoryOnlyWhenEmpty(t *testing.T) {
	ctx := t.Context()
	l := newLedger(t)
	require.NoError(t, l.CompleteActivation(ctx, "2.0.0"))

	seeded, err := l.SeedHistory(ctx, "1.0.0")
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Equal(t, []string{"2.0.0"}, l.History(ctx))
}

func TestLedger_ClearPending(t *testing.T) {
	ctx := t.Context()
	l := newLedger(t)
	require.NoError(t, l.MarkStaged(ctx, "2.0.0", ""))
	require.NoError(t, l.ClearPending(ctx))
	s := snap(t, l)
	assert.True(t, s.Pending.IsNone())
	assert.False(t, s.PendingReady)
}

type failingStore struct{ state.Store }

func (failingStore) View(context.Context, func(state.Reader) error) error {
	return errors.New("disk gone")
}

func TestLedger_ListsNeverFail(t *testing.T) {
	l := New(failingStore{Store: state.NewMemoryStore()})
	ignored := l.IgnoreList(t.Context())
	assert.NotNil(t, ignored)
	assert.Empty(t, ignored)
	assert.NotNil(t, l.History(t.Context()))
}
