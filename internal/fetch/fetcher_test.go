package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// origin is a tiny conditional-GET server with a mutable body and ETag.
type origin struct {
	mu       sync.Mutex
	body     []byte
	etag     string
	requests atomic.Int32
	failures atomic.Int32 // number of leading requests answered with 503
}

func (o *origin) set(body, etag string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.body, o.etag = []byte(body), etag
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.requests.Add(1)
	if o.failures.Load() > 0 {
		o.failures.Add(-1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.Header.Get("If-None-Match") == o.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", o.etag)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(o.body)
}

func fastRetry() Option {
	return WithRetry(RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond})
}

func newRequest(t *testing.T, url string) Request {
	t.Helper()
	return Request{
		Identity: Identity{Name: "apps", Version: "1.2.3"},
		URL:      url,
		Dest:     filepath.Join(t.TempDir(), "cache", "apps-1.2.3.zip"),
	}
}

func TestFetch_DownloadsThenRevalidates(t *testing.T) {
	// --- Arrange ---
	o := &origin{}
	o.set("bundle-bytes", `"v1"`)
	srv := httptest.NewServer(o)
	defer srv.Close()
	f := New(fastRetry())
	req := newRequest(t, srv.URL+"/apps.zip")

	// --- Act ---
	first, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	before, err := os.ReadFile(req.Dest)
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	// --- Assert ---
	assert.False(t, first.NotModified)
	assert.Equal(t, int64(len("bundle-bytes")), first.Transferred)
	assert.True(t, second.NotModified)
	assert.Zero(t, second.Transferred)

	after, err := os.ReadFile(req.Dest)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	meta, err := ReadMetadata(req.Dest)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, `"v1"`, meta.ETag)
	assert.Equal(t, "apps", meta.Name)
	assert.Equal(t, int64(12), meta.Size)
}

func TestFetch_ChangedETagReplacesContent(t *testing.T) {
	o := &origin{}
	o.set("old", `"v1"`)
	srv := httptest.NewServer(o)
	defer srv.Close()
	f := New(fastRetry())
	req := newRequest(t, srv.URL+"/apps.zip")

	_, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	o.set("new-content", `"v2"`)
	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.NotModified)
	data, err := os.ReadFile(req.Dest)
	require.NoError(t, err)
	assert.Equal(t, "new-content", string(data))
}

func TestFetch_URLChangeSkipsRevalidation(t *testing.T) {
	var sawConditional atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" {
			sawConditional.Store(true)
		}
		w.Header().Set("ETag", `"same"`)
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()
	f := New(fastRetry())
	req := newRequest(t, srv.URL+"/v1/apps.zip")

	_, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	req.URL = srv.URL + "/v2/apps.zip"
	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.NotModified)
	assert.False(t, sawConditional.Load())
	data, err := os.ReadFile(req.Dest)
	require.NoError(t, err)
	assert.Equal(t, "/v2/apps.zip", string(data))
}

func TestFetch_MissingCacheFileForcesDownload(t *testing.T) {
	o := &origin{}
	o.set("payload", `"v1"`)
	srv := httptest.NewServer(o)
	defer srv.Close()
	f := New(fastRetry())
	req := newRequest(t, srv.URL+"/apps.zip")

	_, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, os.Remove(req.Dest))

	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.NotModified)
	assert.FileExists(t, req.Dest)
}

func TestFetch_NotFoundIsFatal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()
	f := New(fastRetry())
	req := newRequest(t, srv.URL+"/missing.zip")

	_, err := f.Fetch(context.Background(), req)

	require.Error(t, err)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusNotFound, terr.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
	assert.NoFileExists(t, req.Dest)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	o := &origin{}
	o.set("eventually", `"v1"`)
	o.failures.Store(2)
	srv := httptest.NewServer(o)
	defer srv.Close()
	f := New(fastRetry())
	req := newRequest(t, srv.URL+"/apps.zip")

	res, err := f.Fetch(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, int64(len("eventually")), res.Transferred)
	assert.Equal(t, int32(3), o.requests.Load())
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	o := &origin{}
	o.set("never", `"v1"`)
	o.failures.Store(100)
	srv := httptest.NewServer(o)
	defer srv.Close()
	f := New(WithRetry(RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}))
	req := newRequest(t, srv.URL+"/apps.zip")

	_, err := f.Fetch(context.Background(), req)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.Equal(t, int32(3), o.requests.Load())
}

func TestFetch_FailedRefetchKeepsPreviousCache(t *testing.T) {
	o := &origin{}
	o.set("good", `"v1"`)
	srv := httptest.NewServer(o)
	defer srv.Close()
	f := New(WithRetry(RetryPolicy{}))
	req := newRequest(t, srv.URL+"/apps.zip")

	_, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	o.failures.Store(1)
	_, err = f.Fetch(context.Background(), req)
	require.Error(t, err)

	data, err := os.ReadFile(req.Dest)
	require.NoError(t, err)
	assert.Equal(t, "good", string(data))
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	f := New(fastRetry())
	req := newRequest(t, srv.URL+"/slow.zip")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, req)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIdentity_String(t *testing.T) {
	assert.Equal(t, "apps@1.2.3", Identity{Name: "apps", Version: "1.2.3"}.String())
}
