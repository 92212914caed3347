package reconcile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotupdate/internal/activation"
	"git.home.luguber.info/inful/hotupdate/internal/layout"
	"git.home.luguber.info/inful/hotupdate/internal/ledger"
	"git.home.luguber.info/inful/hotupdate/internal/state"
	helpers "git.home.luguber.info/inful/hotupdate/internal/testutil/testutils"
)

type recordingArmer struct {
	armed []string
}

func (a *recordingArmer) Arm(version string) error {
	a.armed = append(a.armed, version)
	return nil
}

type fixture struct {
	layout layout.Layout
	ledger *ledger.Ledger
	armer  *recordingArmer
	bundle string
	rec    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	l := layout.New(root+"/data", "www")
	led := ledger.New(state.NewMemoryStore())
	bundle := root + "/bundle"
	helpers.WriteTree(t, bundle, map[string]string{"index.html": "bundle"})

	f := &fixture{layout: l, ledger: led, armer: &recordingArmer{}, bundle: bundle}
	engine := activation.New(l, led, "1.0.0", "index.html", &sync.Mutex{}, nil)
	f.rec = New(l, led, engine, f.armer, Options{BundleDir: bundle, BundleVersion: "1.0.0"}, nil)
	return f
}

func (f *fixture) snapshot(t *testing.T) ledger.Snapshot {
	t.Helper()
	snap, err := f.ledger.Snapshot(t.Context())
	require.NoError(t, err)
	return snap
}

func TestRun_FreshInstall(t *testing.T) {
	f := newFixture(t)

	report, err := f.rec.Run(t.Context())
	require.NoError(t, err)

	assert.True(t, report.SeededActive)
	assert.True(t, report.SeededHistory)
	assert.True(t, report.Armed.IsNone())
	assert.Empty(t, f.armer.armed)
	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "bundle")
	assert.Equal(t, []string{"1.0.0"}, f.snapshot(t).History)
}

func TestRun_ClearsStaleDownloadFlag(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.SetDownloadInProgress(t.Context(), true))

	report, err := f.rec.Run(t.Context())
	require.NoError(t, err)
	assert.True(t, report.ClearedDownloadFlag)
	assert.False(t, f.snapshot(t).DownloadInProgress)
}

func TestRun_ImplicitActivation(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.NextLaunch(), map[string]string{"index.html": "2.0.0"})
	helpers.WriteTree(t, f.layout.Immediate(), map[string]string{"index.html": "2.0.0"})
	require.NoError(t, f.ledger.MarkStaged(t.Context(), "2.0.0", ""))

	report, err := f.rec.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", report.Activated.Unwrap())
	assert.Equal(t, "2.0.0", report.Armed.Unwrap())
	assert.Equal(t, []string{"2.0.0"}, f.armer.armed)
	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "2.0.0")
	helpers.NewFileAssertions(t, f.layout.Previous()).AssertFileContains("index.html", "bundle")
	assert.NoDirExists(t, f.layout.NextLaunchParent())
	assert.NoDirExists(t, f.layout.ImmediateParent())

	snap := f.snapshot(t)
	assert.Equal(t, "2.0.0", snap.Installed.Unwrap())
	assert.Equal(t, "1.0.0", snap.Previous.Unwrap())
	assert.False(t, snap.PendingReady)
	// History was not empty once the activation appended to it.
	assert.Equal(t, []string{"2.0.0"}, snap.History)
}

func TestRun_KeepPending(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.NextLaunch(), map[string]string{"index.html": "2.0.0"})
	helpers.WriteTree(t, f.layout.Immediate(), map[string]string{"index.html": "2.0.0"})
	require.NoError(t, f.ledger.MarkStaged(t.Context(), "2.0.0", ""))
	f.rec.opts.KeepPending = true

	report, err := f.rec.Run(t.Context())
	require.NoError(t, err)

	assert.True(t, report.Activated.IsNone())
	assert.True(t, report.DiscardedPending.IsNone())
	assert.DirExists(t, f.layout.NextLaunch())
	snap := f.snapshot(t)
	assert.True(t, snap.PendingReady)
	assert.Equal(t, "2.0.0", snap.Pending.Unwrap())
	assert.True(t, snap.Installed.IsNone())
}

func TestRun_CorruptPendingDiscarded(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.NextLaunch(), map[string]string{"broken.txt": "x"})
	helpers.WriteTree(t, f.layout.Immediate(), map[string]string{"index.html": "2.0.0"})
	require.NoError(t, f.ledger.MarkStaged(t.Context(), "2.0.0", ""))

	report, err := f.rec.Run(t.Context())
	require.NoError(t, err)

	assert.True(t, report.Activated.IsNone())
	assert.Equal(t, "2.0.0", report.DiscardedPending.Unwrap())
	assert.NoDirExists(t, f.layout.NextLaunchParent())
	assert.NoDirExists(t, f.layout.ImmediateParent())
	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "bundle")

	snap := f.snapshot(t)
	assert.False(t, snap.PendingReady)
	assert.True(t, snap.Pending.IsNone())
	assert.True(t, snap.Installed.IsNone())
}

func TestRun_ArmsUnconfirmedInstall(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.Active(), map[string]string{"index.html": "2.0.0"})
	require.NoError(t, f.ledger.CompleteActivation(t.Context(), "2.0.0"))

	report, err := f.rec.Run(t.Context())
	require.NoError(t, err)
	assert.False(t, report.SeededActive)
	assert.Equal(t, "2.0.0", report.Armed.Unwrap())
}

func TestRun_ConfirmedInstallNotArmed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.CompleteActivation(t.Context(), "2.0.0"))
	require.NoError(t, f.ledger.Confirm(t.Context(), "2.0.0"))

	report, err := f.rec.Run(t.Context())
	require.NoError(t, err)
	assert.True(t, report.Armed.IsNone())
	assert.Empty(t, f.armer.armed)
}

func TestRun_StoreClosed(t *testing.T) {
	root := t.TempDir()
	store := state.NewMemoryStore()
	require.NoError(t, store.Close())
	led := ledger.New(store)
	l := layout.New(root, "www")
	engine := activation.New(l, led, "1.0.0", "index.html", &sync.Mutex{}, nil)

	_, err := New(l, led, engine, &recordingArmer{}, Options{}, nil).Run(t.Context())
	assert.ErrorIs(t, err, state.ErrClosed)
}
