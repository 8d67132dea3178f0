package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Origin serves bundles with ETag revalidation and counts what it sends.
type Origin struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string]originFile

	fullResponses atomic.Int32
	bytesSent     atomic.Int64
}

type originFile struct {
	body []byte
	etag string
}

// NewOrigin starts an origin that is closed with the test.
func NewOrigin(t *testing.T) *Origin {
	t.Helper()
	o := &Origin{files: make(map[string]originFile)}
	o.Server = httptest.NewServer(o)
	t.Cleanup(o.Close)
	return o
}

// Set publishes body at path under etag.
func (o *Origin) Set(path string, body []byte, etag string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[path] = originFile{body: body, etag: etag}
}

// BytesSent is the total body size of every 200 response so far.
func (o *Origin) BytesSent() int64 { return o.bytesSent.Load() }

// FullResponses counts 200 responses.
func (o *Origin) FullResponses() int { return int(o.fullResponses.Load()) }

func (o *Origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	f, ok := o.files[r.URL.Path]
	o.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("If-None-Match") == f.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", f.etag)
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write(f.body)
	o.fullResponses.Add(1)
	o.bytesSent.Add(int64(n))
}

// Project is a throwaway project tree with sources, a requirement archive,
// helper scripts and an origin serving two bundles at version 1.2.3.
type Project struct {
	Root   string
	Origin *Origin
	// VersionCalls is appended to on every version helper run.
	VersionCalls string
}

// NewProject lays out a project and writes its bundlegrid.hcl.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	p := &Project{Root: root, Origin: NewOrigin(t)}

	p.WriteFile(t, "src/main/python/testapp/main.py", "run()")
	WriteZip(t, filepath.Join(root, "wheels", "kolibri.zip"), map[string]string{
		"kolibri/__init__.py": "k",
		"kolibri/cache.pyc":   "compiled",
	})
	scripts := filepath.Join(root, "scripts")
	_, p.VersionCalls = VersionScript(t, scripts, "0.16.2-test")
	PruneScript(t, scripts)

	p.Origin.Set("/v1.2.3/apps-bundle.zip", ZipBytes(t, map[string]string{
		"bundle-1.2.3/":             "",
		"bundle-1.2.3/apps/foo.txt": "foo",
	}), `"apps-1"`)
	p.Origin.Set("/v1.2.3/loading-screen.zip", ZipBytes(t, map[string]string{
		"index.html": "<html/>",
	}), `"ls-1"`)

	p.WriteFile(t, "bundlegrid.hcl", p.HCL())
	return p
}

// WriteFile writes content to a path relative to the project root.
func (p *Project) WriteFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(p.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// HCL returns the build definition of the project.
func (p *Project) HCL() string {
	return fmt.Sprintf(`
variable "explore_version" {
  default = "1.2.3"
}

bundle "apps" {
  version          = var.explore_version
  url              = "%[1]s/v${version}/apps-bundle.zip"
  target           = "src/main/python/testapp/apps"
  strip_components = 1
}

bundle "loading_screen" {
  version = var.explore_version
  url     = "%[1]s/v${version}/loading-screen.zip"
  assets  = true
  prepend = "loadingScreen"
}

variant "debug" {}
variant "release" {
  signing = true
}

packager {
  source_dir   = "src/main/python"
  requirements = ["wheels/kolibri.zip"]
}

version_helper { command = ["%[2]s"] }
prune_helper   { command = ["%[3]s"] }
`, p.Origin.URL, filepath.ToSlash(filepath.Join(p.Root, "scripts", "versions.sh")), filepath.ToSlash(filepath.Join(p.Root, "scripts", "prune.sh")))
}

// VersionRuns returns how many times the version helper ran.
func (p *Project) VersionRuns(t *testing.T) int {
	t.Helper()
	data, err := os.ReadFile(p.VersionCalls)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
