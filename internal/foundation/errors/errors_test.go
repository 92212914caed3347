package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("builder sets every field", func(t *testing.T) {
		cause := stderrors.New("connection reset")
		err := NewError(CategoryNetwork, "download failed").
			WithCode(CodeDownloadFailed).
			WithCause(cause).
			WithContext("url", "https://example.test/a.zip").
			Retryable().
			Build()

		assert.Equal(t, CategoryNetwork, err.Category())
		assert.Equal(t, SeverityError, err.Severity())
		assert.Equal(t, RetryBackoff, err.RetryStrategy())
		assert.Equal(t, CodeDownloadFailed, err.Code())
		assert.Equal(t, "download failed", err.Message())
		assert.Equal(t, "download failed: connection reset", err.Detail())
		assert.True(t, err.CanRetry())

		url, ok := err.Context().GetString("url")
		require.True(t, ok)
		assert.Equal(t, "https://example.test/a.zip", url)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("error string includes code", func(t *testing.T) {
		err := ValidationError(CodeURLRequired, "url is required").Build()
		assert.Equal(t, "[validation:error:URL_REQUIRED] url is required", err.Error())
		assert.False(t, err.CanRetry())
	})

	t.Run("WithContext copies", func(t *testing.T) {
		base := StateError(CodeNoUpdateReady, "no update ready").Build()
		derived := base.WithContext("version", "1.2.0")

		_, ok := base.Context().Get("version")
		assert.False(t, ok)
		v, ok := derived.Context().GetString("version")
		require.True(t, ok)
		assert.Equal(t, "1.2.0", v)
	})
}

func TestAsClassified_WrappedChain(t *testing.T) {
	inner := ArchiveError("zip magic mismatch").Build()
	wrapped := fmt.Errorf("stage: %w", inner)

	got, ok := AsClassified(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.Equal(t, CodeExtractionFailed, CodeOf(wrapped))
	assert.True(t, HasCategory(wrapped, CategoryArchive))
	assert.Equal(t, CategoryArchive, GetCategory(wrapped))

	plain := stderrors.New("plain")
	assert.False(t, IsClassified(plain))
	assert.Equal(t, Code(""), CodeOf(plain))
	assert.Equal(t, CategoryInternal, GetCategory(plain))
}

func TestClassifiedError_IsSentinel(t *testing.T) {
	sentinel := StateError(CodeNoUpdateReady, "no update ready").Build()
	other := StateError(CodeNoUpdateReady, "no update ready").WithContext("x", 1).Build()

	assert.ErrorIs(t, fmt.Errorf("wrap: %w", other), sentinel)
	assert.NotErrorIs(t, other, StateError(CodeUpdateFilesNotFound, "no update ready").Build())
}

func TestCodes_ClosedSet(t *testing.T) {
	for _, c := range []Code{
		CodeUpdateDataRequired, CodeURLRequired, CodeDownloadInProgress, CodeDownloadFailed,
		CodeHTTPError, CodeTempDirError, CodeExtractionFailed, CodeWWWNotFound,
		CodeNoUpdateReady, CodeUpdateFilesNotFound, CodeInstallFailed, CodeVersionRequired,
	} {
		assert.True(t, c.Known(), string(c))
	}
	assert.False(t, Code("CONTENT_ROOT_NOT_FOUND").Known())
	assert.Len(t, knownCodes, 12)
}

func TestErrorContext_Merge(t *testing.T) {
	a := ErrorContext{"a": 1, "b": 1}
	b := ErrorContext{"b": 2}
	merged := a.Merge(b)

	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, 2, merged["b"])
	assert.Equal(t, 1, a["b"])
	assert.Equal(t, b, ErrorContext(nil).Merge(b))
}
