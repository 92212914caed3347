//go:build !unix

package fsutil

// LockDir is a no-op where flock is unavailable.
func LockDir(string) (func() error, error) {
	return func() error { return nil }, nil
}
