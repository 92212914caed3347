package activation

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/layout"
	"git.home.luguber.info/inful/hotupdate/internal/ledger"
	"git.home.luguber.info/inful/hotupdate/internal/state"
	helpers "git.home.luguber.info/inful/hotupdate/internal/testutil/testutils"
)

type fixture struct {
	layout layout.Layout
	ledger *ledger.Ledger
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := layout.New(t.TempDir(), "www")
	led := ledger.New(state.NewMemoryStore())
	return &fixture{
		layout: l,
		ledger: led,
		engine: New(l, led, "1.0.0", "index.html", &sync.Mutex{}, nil),
	}
}

// stage simulates a completed stage of version.
func (f *fixture) stage(t *testing.T, version string) {
	t.Helper()
	files := map[string]string{"index.html": version}
	require.NoError(t, os.RemoveAll(f.layout.ImmediateParent()))
	require.NoError(t, os.RemoveAll(f.layout.NextLaunchParent()))
	helpers.WriteTree(t, f.layout.Immediate(), files)
	helpers.WriteTree(t, f.layout.NextLaunch(), files)
	require.NoError(t, f.ledger.MarkStaged(t.Context(), version, ""))
}

// cancelAfter reports cancellation once Err has been consulted n times, as
// a request context does when the client disconnects mid-operation.
type cancelAfter struct {
	context.Context
	mu sync.Mutex
	n  int
}

func newCancelAfter(n int) *cancelAfter {
	return &cancelAfter{Context: context.Background(), n: n}
}

func (c *cancelAfter) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n > 0 {
		c.n--
		return nil
	}
	return context.Canceled
}

func (f *fixture) snapshot(t *testing.T) ledger.Snapshot {
	t.Helper()
	snap, err := f.ledger.Snapshot(t.Context())
	require.NoError(t, err)
	return snap
}

func TestActivate_NoUpdateReady(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.Active(), map[string]string{"index.html": "bundle"})

	_, err := f.engine.Activate(t.Context())
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeNoUpdateReady, ferrors.CodeOf(err))
	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "bundle")
}

func TestActivate_StagedFilesMissing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.MarkStaged(t.Context(), "2.0.0", ""))
	helpers.WriteTree(t, f.layout.Immediate(), map[string]string{"app.js": "no entry"})

	_, err := f.engine.Activate(t.Context())
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeUpdateFilesNotFound, ferrors.CodeOf(err))
	assert.True(t, f.snapshot(t).PendingReady)
}

func TestActivate_FirstActivationSnapshotsBundle(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.Active(), map[string]string{"index.html": "bundle"})
	f.stage(t, "2.0.0")

	version, err := f.engine.Activate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", version)

	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "2.0.0")
	helpers.NewFileAssertions(t, f.layout.Previous()).AssertFileContains("index.html", "bundle")
	assert.NoDirExists(t, f.layout.ImmediateParent())
	assert.NoDirExists(t, f.layout.NextLaunchParent())
	assert.NoDirExists(t, f.layout.Incoming())
	assert.NoDirExists(t, f.layout.Backup())

	snap := f.snapshot(t)
	assert.Equal(t, "2.0.0", snap.Installed.Unwrap())
	assert.Equal(t, "1.0.0", snap.Previous.Unwrap())
	assert.True(t, snap.Pending.IsNone())
	assert.False(t, snap.PendingReady)
	assert.Equal(t, []string{"2.0.0"}, snap.History)
}

func TestActivate_WithoutActiveContent(t *testing.T) {
	f := newFixture(t)
	f.stage(t, "2.0.0")

	_, err := f.engine.Activate(t.Context())
	require.NoError(t, err)
	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "2.0.0")
	assert.NoDirExists(t, f.layout.Previous())
	assert.True(t, f.snapshot(t).Previous.IsNone())
}

func TestActivate_PreviousTracksInstalled(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.Active(), map[string]string{"index.html": "bundle"})
	f.stage(t, "2.0.0")
	_, err := f.engine.Activate(t.Context())
	require.NoError(t, err)
	f.stage(t, "3.0.0")
	_, err = f.engine.Activate(t.Context())
	require.NoError(t, err)

	helpers.NewFileAssertions(t, f.layout.Previous()).AssertFileContains("index.html", "2.0.0")
	snap := f.snapshot(t)
	assert.Equal(t, "3.0.0", snap.Installed.Unwrap())
	assert.Equal(t, "2.0.0", snap.Previous.Unwrap())
	assert.Equal(t, []string{"2.0.0", "3.0.0"}, snap.History)
}

func TestActivate_ClearsCanaryConfirmation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Confirm(t.Context(), "1.0.0"))
	f.stage(t, "2.0.0")

	_, err := f.engine.Activate(t.Context())
	require.NoError(t, err)
	assert.True(t, f.snapshot(t).CanaryOwed())
}

func TestActivateFrom_NextLaunchSource(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.Active(), map[string]string{"index.html": "bundle"})
	f.stage(t, "2.0.0")

	require.NoError(t, f.engine.ActivateFrom(t.Context(), f.layout.NextLaunch(), "2.0.0"))
	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "2.0.0")
	assert.NoDirExists(t, f.layout.NextLaunchParent())
}

func TestActivateFrom_MissingEntryFile(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.NextLaunch(), map[string]string{"other.html": "x"})

	err := f.engine.ActivateFrom(t.Context(), f.layout.NextLaunch(), "2.0.0")
	assert.Equal(t, ferrors.CodeUpdateFilesNotFound, ferrors.CodeOf(err))
}

func TestActivate_StateReadFailureIsInstallFailed(t *testing.T) {
	l := layout.New(t.TempDir(), "www")
	store := state.NewMemoryStore()
	led := ledger.New(store)
	engine := New(l, led, "1.0.0", "index.html", &sync.Mutex{}, nil)
	require.NoError(t, store.Close())

	_, err := engine.Activate(context.Background())
	assert.Equal(t, ferrors.CodeInstallFailed, ferrors.CodeOf(err))
}

func TestActivate_CallerCancelAfterStartStillRecordsInstall(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.Active(), map[string]string{"index.html": "bundle"})
	f.stage(t, "2.0.0")

	version, err := f.engine.Activate(newCancelAfter(2))
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", version)

	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "2.0.0")
	snap := f.snapshot(t)
	assert.Equal(t, "2.0.0", snap.Installed.Unwrap())
	assert.Equal(t, "1.0.0", snap.Previous.Unwrap())
	assert.False(t, snap.PendingReady)
	assert.Equal(t, []string{"2.0.0"}, snap.History)
}

func TestActivate_CancelledBeforeStartChangesNothing(t *testing.T) {
	f := newFixture(t)
	helpers.WriteTree(t, f.layout.Active(), map[string]string{"index.html": "bundle"})
	f.stage(t, "2.0.0")

	_, err := f.engine.Activate(newCancelAfter(0))
	require.Error(t, err)
	helpers.NewFileAssertions(t, f.layout.Active()).AssertFileContains("index.html", "bundle")
	assert.True(t, f.snapshot(t).PendingReady)
}
