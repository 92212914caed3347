package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotupdate/internal/config"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"json-memory": func(t *testing.T) Store { return NewMemoryStore() },
		"json-file": func(t *testing.T) Store {
			s, err := NewJSONStore(filepath.Join(t.TempDir(), "state.json"))
			require.NoError(t, err)
			return s
		},
		"badger-memory": func(t *testing.T) Store {
			s, err := NewBadgerStore("", nil)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_TypedRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer func() { _ = s.Close() }()
			ctx := t.Context()

			require.NoError(t, s.Update(ctx, func(w Writer) error {
				w.SetString(KeyInstalledVersion, "1.1.0")
				w.SetBool(KeyPendingReady, true)
				w.SetStrings(KeyVersionHistory, []string{"1.0.0", "1.1.0"})
				// Reads inside the transaction see buffered writes.
				v, ok := w.String(KeyInstalledVersion)
				assert.True(t, ok)
				assert.Equal(t, "1.1.0", v)
				return nil
			}))

			require.NoError(t, s.View(ctx, func(r Reader) error {
				v, ok := r.String(KeyInstalledVersion)
				assert.True(t, ok)
				assert.Equal(t, "1.1.0", v)
				assert.True(t, r.Bool(KeyPendingReady))
				assert.Equal(t, []string{"1.0.0", "1.1.0"}, r.Strings(KeyVersionHistory))

				_, ok = r.String(KeyPreviousVersion)
				assert.False(t, ok)
				assert.False(t, r.Bool(KeyDownloadInProgress))
				assert.NotNil(t, r.Strings(KeyIgnoreList))
				assert.Empty(t, r.Strings(KeyIgnoreList))
				return nil
			}))

			require.NoError(t, s.Update(ctx, func(w Writer) error {
				w.Delete(KeyInstalledVersion)
				return nil
			}))
			require.NoError(t, s.View(ctx, func(r Reader) error {
				_, ok := r.String(KeyInstalledVersion)
				assert.False(t, ok)
				return nil
			}))
		})
	}
}

func TestStore_FailedUpdateDiscardsWrites(t *testing.T) {
	boom := errors.New("boom")
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer func() { _ = s.Close() }()
			ctx := t.Context()

			err := s.Update(ctx, func(w Writer) error {
				w.SetString(KeyInstalledVersion, "9.9.9")
				return boom
			})
			require.ErrorIs(t, err, boom)

			require.NoError(t, s.View(ctx, func(r Reader) error {
				_, ok := r.String(KeyInstalledVersion)
				assert.False(t, ok)
				return nil
			}))
		})
	}
}

func TestJSONStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Update(t.Context(), func(w Writer) error {
		w.SetStrings(KeyIgnoreList, []string{"2.0.0"})
		w.SetString(KeyCanaryVersion, "1.0.0")
		return nil
	}))
	require.NoError(t, s.Close())

	reopened, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, reopened.View(t.Context(), func(r Reader) error {
		assert.Equal(t, []string{"2.0.0"}, r.Strings(KeyIgnoreList))
		v, _ := r.String(KeyCanaryVersion)
		assert.Equal(t, "1.0.0", v)
		return nil
	}))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "state.json.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no temp files left behind")
}

func TestJSONStore_CorruptFileMovedAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, s.View(t.Context(), func(r Reader) error {
		_, ok := r.String(KeyInstalledVersion)
		assert.False(t, ok)
		return nil
	}))
	assert.FileExists(t, path+".corrupt")
	assert.NoFileExists(t, path)
}

func TestJSONStore_ClosedRejects(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Update(t.Context(), func(Writer) error { return nil }), ErrClosed)
	assert.ErrorIs(t, s.View(t.Context(), func(Reader) error { return nil }), ErrClosed)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.badger")
	s, err := NewBadgerStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Update(t.Context(), func(w Writer) error {
		w.SetString(KeyPendingVersion, "1.2.0")
		w.SetString(KeyPendingDigest, "abcd")
		return nil
	}))
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(dir, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.View(t.Context(), func(r Reader) error {
		v, _ := r.String(KeyPendingVersion)
		assert.Equal(t, "1.2.0", v)
		return nil
	}))
}

func TestOpen_SelectsBackend(t *testing.T) {
	cfg := config.Default(t.TempDir(), "1.0.0")
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)
	require.NoError(t, s.Close())

	cfg.State.Backend = config.StateBackendBadger
	s, err = Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())
}
