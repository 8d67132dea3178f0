package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/renameio/v2"
	"github.com/schollz/progressbar/v3"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
)

// Identity names a remote bundle. At most one fetch node exists per identity
// in a single invocation.
type Identity struct {
	Name    string
	Version string
}

func (i Identity) String() string {
	return i.Name + "@" + i.Version
}

// Request describes one bundle to fetch.
type Request struct {
	Identity Identity
	URL      string
	Dest     string
}

// Result describes what a fetch did.
type Result struct {
	Path        string
	Transferred int64
	NotModified bool
}

// RetryPolicy bounds the retries made for transient failures. MaxRetries of
// zero means a single attempt.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// Fetcher performs conditional downloads.
type Fetcher struct {
	client   *http.Client
	retry    RetryPolicy
	progress io.Writer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client. Timeouts belong to the client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRetry sets the retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(f *Fetcher) { f.retry = p }
}

// WithProgress renders a progress bar for each transfer on w.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) { f.progress = w }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch makes sure req.Dest holds the current content of req.URL.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("bundle", req.Identity.String())

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	meta, err := ReadMetadata(req.Dest)
	if err != nil {
		logger.Warn("Ignoring unreadable cache metadata.", "error", err)
		meta = nil
	}
	if !meta.usable(req.URL, req.Dest) {
		meta = nil
	}

	var result *Result
	operation := func() error {
		r, err := f.attempt(ctx, req, meta)
		if err != nil {
			var terr *TransportError
			if errors.As(err, &terr) && terr.retryable() && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	if f.retry.InitialInterval > 0 {
		policy.InitialInterval = f.retry.InitialInterval
	}
	if f.retry.MaxInterval > 0 {
		policy.MaxInterval = f.retry.MaxInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, f.retry.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("Fetch attempt failed, retrying.", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}

	if result.NotModified {
		logger.Info("📦 Bundle not modified, reusing cache.", "path", result.Path)
	} else {
		logger.Info("📦 Bundle downloaded.", "path", result.Path, "bytes", result.Transferred)
	}
	return result, nil
}

func (f *Fetcher) attempt(ctx context.Context, req Request, meta *Metadata) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", req.URL, err)
	}
	if meta != nil {
		if meta.ETag != "" {
			httpReq.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", meta.LastModified)
		}
		logger.Debug("Revalidating cached bundle.", "etag", meta.ETag, "last_modified", meta.LastModified)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && meta != nil:
		return &Result{Path: req.Dest, NotModified: true}, nil
	case resp.StatusCode == http.StatusOK:
		return f.download(ctx, req, resp)
	default:
		return nil, &TransportError{URL: req.URL, StatusCode: resp.StatusCode}
	}
}

func (f *Fetcher) download(ctx context.Context, req Request, resp *http.Response) (*Result, error) {
	pending, err := renameio.TempFile("", req.Dest)
	if err != nil {
		return nil, fmt.Errorf("creating pending cache file: %w", err)
	}
	defer pending.Cleanup()

	digest := sha256.New()
	w := io.MultiWriter(pending, digest)
	if f.progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription("Downloading "+req.Identity.String()),
			progressbar.OptionSetWriter(f.progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(f.progress, "\n")
			}),
			progressbar.OptionSpinnerType(14),
		)
		defer bar.Close()
		w = io.MultiWriter(w, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{URL: req.URL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if err := pending.Chmod(0o644); err != nil {
		return nil, fmt.Errorf("setting cache file mode: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("replacing cache file %s: %w", req.Dest, err)
	}

	meta := &Metadata{
		Name:         req.Identity.Name,
		Version:      req.Identity.Version,
		URL:          req.URL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Size:         n,
		SHA256:       hex.EncodeToString(digest.Sum(nil)),
	}
	if err := writeMetadata(req.Dest, meta); err != nil {
		return nil, fmt.Errorf("writing cache metadata: %w", err)
	}
	return &Result{Path: req.Dest, Transferred: n}, nil
}
