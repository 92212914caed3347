//go:build unix

package fsutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockDir_Exclusive(t *testing.T) {
	dir := t.TempDir()
	release, err := LockDir(dir)
	require.NoError(t, err)

	_, err = LockDir(dir)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release())
	again, err := LockDir(dir)
	require.NoError(t, err)
	assert.NoError(t, again())
}
