package errors

import (
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPErrorAdapter_StatusCodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: http.StatusOK},
		{name: "validation", err: ValidationError(CodeURLRequired, "url is required").Build(), expected: http.StatusBadRequest},
		{name: "conflict", err: NewError(CategoryConflict, "busy").WithCode(CodeDownloadInProgress).Build(), expected: http.StatusConflict},
		{name: "state", err: StateError(CodeNoUpdateReady, "no update").Build(), expected: http.StatusConflict},
		{name: "files missing", err: StateError(CodeUpdateFilesNotFound, "gone").Build(), expected: http.StatusNotFound},
		{name: "network", err: NetworkError("reset").Build(), expected: http.StatusBadGateway},
		{name: "http", err: HTTPStatusError("HTTP error: 404").Build(), expected: http.StatusBadGateway},
		{name: "archive", err: ArchiveError("bad zip").Build(), expected: http.StatusUnprocessableEntity},
		{name: "filesystem", err: FileSystemError("disk").WithCode(CodeInstallFailed).Build(), expected: http.StatusInternalServerError},
		{name: "unclassified", err: stderrors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.StatusCodeFor(tt.err))
		})
	}
}

func TestHTTPErrorAdapter_WriteErrorResponse_Envelope(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(http.MethodPost, "/v1/stage", nil)
	rec := httptest.NewRecorder()

	err := HTTPStatusError("HTTP error: 404").Build()
	adapter.WriteErrorResponse(rec, req, err)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":{"code":"HTTP_ERROR","message":"HTTP error: 404"}}`, rec.Body.String())
}

func TestHTTPErrorAdapter_FormatErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)

	withCause := ArchiveError("extraction failed").WithCause(stderrors.New("unexpected EOF")).Build()
	resp := adapter.FormatErrorResponse(withCause)
	assert.Equal(t, "EXTRACTION_FAILED", resp.Error.Code)
	assert.Equal(t, "extraction failed: unexpected EOF", resp.Error.Message)

	plain := adapter.FormatErrorResponse(stderrors.New("boom"))
	assert.Empty(t, plain.Error.Code)
	assert.Equal(t, "boom", plain.Error.Message)
}
