// Package downloader fetches update containers to a local file.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/retry"
)

// Downloader fetches rawURL into the file dst.
type Downloader interface {
	Fetch(ctx context.Context, rawURL, dst string) error
}

// HTTPDownloader fetches over HTTP(S) and reads file:// URLs from disk.
// Failures are classified: non-200 responses carry HTTP_ERROR with a
// message starting "HTTP error:", everything else DOWNLOAD_FAILED.
type HTTPDownloader struct {
	client      *http.Client
	readTimeout time.Duration
	policy      retry.Policy
	logger      *slog.Logger
	onRetry     func()
}

// Option configures an HTTPDownloader.
type Option func(*HTTPDownloader)

// WithClient replaces the HTTP client (tests use httptest clients).
func WithClient(c *http.Client) Option {
	return func(d *HTTPDownloader) { d.client = c }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(d *HTTPDownloader) { d.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *HTTPDownloader) { d.logger = l }
}

// WithRetryHook registers fn to run before every retried attempt.
func WithRetryHook(fn func()) Option {
	return func(d *HTTPDownloader) { d.onRetry = fn }
}

// NewHTTPDownloader returns a downloader with the given connect and read
// timeouts. The read timeout bounds the wait for response headers and every
// gap between body reads.
func NewHTTPDownloader(connectTimeout, readTimeout time.Duration, opts ...Option) *HTTPDownloader {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
	}
	d := &HTTPDownloader{
		client:      &http.Client{Transport: transport},
		readTimeout: readTimeout,
		policy:      retry.NoRetry(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads rawURL into dst, replacing any existing file. A partial
// download never remains at dst.
func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL, dst string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ferrors.NetworkError("Download failed: invalid URL").
			WithCause(err).WithContext("url", rawURL).WithRetry(ferrors.RetryNever).Build()
	}
	if u.Scheme == "file" {
		return d.copyLocal(u.Path, dst)
	}

	return d.policy.Do(ctx, retryable, func(attempt int) error {
		if attempt > 0 {
			d.logger.Info("Retrying download", logfields.URL(rawURL), slog.Int("attempt", attempt+1))
			if d.onRetry != nil {
				d.onRetry()
			}
		}
		return d.fetchOnce(ctx, rawURL, dst)
	})
}

// retryable reports transport failures and 5xx responses as worth retrying.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code >= 500
	}
	c, ok := ferrors.AsClassified(err)
	return ok && c.CanRetry()
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("HTTP error: %d", e.code) }

func (d *HTTPDownloader) fetchOnce(ctx context.Context, rawURL, dst string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ferrors.NetworkError("Download failed").WithCause(err).WithRetry(ferrors.RetryNever).Build()
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return ferrors.NetworkError("Download failed").WithCause(err).WithContext("url", rawURL).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		se := &statusError{code: resp.StatusCode}
		return ferrors.HTTPStatusError("Download failed").WithCause(se).WithContext("url", rawURL).Build()
	}

	var body io.Reader = resp.Body
	if d.readTimeout > 0 {
		body = newIdleReader(resp.Body, d.readTimeout, cancel)
	}
	if err := writeFile(dst, body); err != nil {
		return ferrors.NetworkError("Download failed").WithCause(err).WithContext("url", rawURL).Build()
	}
	d.logger.Debug("Download complete", logfields.URL(rawURL), logfields.Path(dst))
	return nil
}

func (d *HTTPDownloader) copyLocal(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return ferrors.NetworkError("Download failed").WithCause(err).WithRetry(ferrors.RetryNever).Build()
	}
	defer func() { _ = f.Close() }()
	if err := writeFile(dst, f); err != nil {
		return ferrors.NetworkError("Download failed").WithCause(err).WithRetry(ferrors.RetryNever).Build()
	}
	return nil
}

// writeFile streams r into a temp file next to dst, then renames it over dst.
func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".part-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
