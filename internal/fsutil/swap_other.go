//go:build !linux

package fsutil

import "errors"

var errNoExchange = errors.New("atomic exchange not supported on this platform")

func exchange(_, _ string) error {
	return errNoExchange
}
