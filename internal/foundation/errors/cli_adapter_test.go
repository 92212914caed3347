package errors

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, 0, adapter.ExitCodeFor(nil))
	assert.Equal(t, 1, adapter.ExitCodeFor(stderrors.New("plain")))
	assert.Equal(t, 2, adapter.ExitCodeFor(ValidationError(CodeVersionRequired, "version required").Build()))
	assert.Equal(t, 3, adapter.ExitCodeFor(StateError(CodeNoUpdateReady, "no update").Build()))
	assert.Equal(t, 7, adapter.ExitCodeFor(ConfigError("bad yaml").Build()))
	assert.Equal(t, 8, adapter.ExitCodeFor(HTTPStatusError("HTTP error: 500").Build()))
	assert.Equal(t, 9, adapter.ExitCodeFor(ArchiveError("bad").Build()))
	assert.Equal(t, 10, adapter.ExitCodeFor(InternalError("bug").Build()))
	assert.Equal(t, 11, adapter.ExitCodeFor(FileSystemError("disk").Build()))
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	err := NetworkError("download failed").WithCause(stderrors.New("timeout")).Build()

	quiet := NewCLIErrorAdapter(false, nil)
	assert.Equal(t, "Error: DOWNLOAD_FAILED: download failed: timeout", quiet.FormatError(err))

	verbose := NewCLIErrorAdapter(true, nil)
	assert.Equal(t, err.Error(), verbose.FormatError(err))

	assert.Equal(t, "Error: plain", quiet.FormatError(stderrors.New("plain")))
	assert.Empty(t, quiet.FormatError(nil))
}

func TestCLIErrorAdapter_HandleError(t *testing.T) {
	var out bytes.Buffer
	var logs bytes.Buffer
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&logs, nil)))
	adapter.out = &out
	code := -1
	adapter.exit = func(c int) { code = c }

	adapter.HandleError(InternalError("invariant broken").Build())

	assert.Equal(t, 10, code)
	assert.Contains(t, out.String(), "invariant broken")
	assert.Contains(t, logs.String(), "category=internal")

	code = -1
	adapter.HandleError(nil)
	assert.Equal(t, -1, code)
}
