package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/pkg/errors"
)

// Fetcher retrieves remote files over HTTP with retries
type Fetcher struct {
	client *http.Client
	retry  *RetryPolicy
	logger *zap.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(p *RetryPolicy) FetcherOption {
	return func(f *Fetcher) { f.retry = p }
}

// WithFetchLogger sets the fetcher logger
func WithFetchLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Minute},
		retry:  DefaultRetryPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// statusError is returned for non-2xx responses
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.url, e.code, http.StatusText(e.code))
}

// retryable reports whether a failed fetch is worth repeating: transport
// errors and server-side statuses are, client errors are not.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

// Fetch downloads url and returns its body
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.retry.Execute(ctx, func() error {
		return f.get(ctx, url, func(r io.Reader) error {
			b, err := io.ReadAll(r)
			body = b
			return err
		})
	}, retryable)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "fetch").WithDetail("url", url)
	}
	return body, nil
}

// FetchFile downloads url into path. The body is streamed to a temporary
// file next to path and renamed into place once complete.
func (f *Fetcher) FetchFile(ctx context.Context, url, dst string) (int64, error) {
	var written int64
	err := f.retry.Execute(ctx, func() error {
		tmp := filepath.Join(filepath.Dir(dst), fmt.Sprintf(".%s-%s.part", filepath.Base(dst), uuid.NewString()))
		out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		err = f.get(ctx, url, func(r io.Reader) error {
			n, err := io.Copy(out, r)
			written = n
			return err
		})
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = os.Rename(tmp, dst)
		}
		if err != nil {
			_ = os.Remove(tmp)
		}
		return err
	}, retryable)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "download").WithDetail("url", url)
	}
	f.logger.Info("downloaded", zap.String("url", url), zap.String("path", dst), zap.Int64("bytes", written))
	return written, nil
}

func (f *Fetcher) get(ctx context.Context, url string, consume func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &statusError{url: url, code: resp.StatusCode}
	}
	return consume(resp.Body)
}

// HTTPDownloader fetches the dataset archive from a direct URL
type HTTPDownloader struct {
	URL      string
	FileName string
	Fetcher  *Fetcher
}

// Download implements Downloader
func (d *HTTPDownloader) Download(ctx context.Context, dir string) error {
	if d.URL == "" {
		return errors.New(errors.ErrorTypeConfig, "dataset archive URL is not configured")
	}
	name := d.FileName
	if name == "" {
		u, err := neturl.Parse(d.URL)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "parse dataset archive URL")
		}
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." {
		name = "dataset.zip"
	}
	fetcher := d.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	_, err := fetcher.FetchFile(ctx, d.URL, filepath.Join(dir, name))
	return err
}
