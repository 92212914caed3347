package downloader

import (
	"errors"
	"io"
	"sync/atomic"
	"time"
)

var errReadTimeout = errors.New("read timeout")

// idleReader cancels the request when no bytes arrive for timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel func()) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.fired.Load() {
		return n, errReadTimeout
	}
	if err != nil {
		ir.timer.Stop()
		return n, err
	}
	ir.timer.Reset(ir.timeout)
	return n, nil
}
