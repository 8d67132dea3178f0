package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/layout"
	"github.com/specialistvlad/bundlegrid/internal/testutil"
	"github.com/specialistvlad/bundlegrid/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMetadata(t *testing.T, root, v string) variant.OutputMetadata {
	t.Helper()
	data, err := os.ReadFile(layout.New(root).OutputMetadata(v))
	require.NoError(t, err)
	var meta variant.OutputMetadata
	require.NoError(t, json.Unmarshal(data, &meta))
	return meta
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		in      Config
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name:    "root is required",
			in:      Config{},
			wantErr: "Root is a required",
		},
		{
			name: "defaults",
			in:   Config{Root: "."},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "text", c.LogFormat)
				assert.Equal(t, "info", c.LogLevel)
				assert.Positive(t, c.WorkerCount)
			},
		},
		{
			name: "normalizes case",
			in:   Config{Root: ".", LogFormat: "JSON", LogLevel: "Debug", WorkerCount: 3},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "json", c.LogFormat)
				assert.Equal(t, "debug", c.LogLevel)
				assert.Equal(t, 3, c.WorkerCount)
			},
		},
		{name: "bad format", in: Config{Root: ".", LogFormat: "xml"}, wantErr: "invalid log-format"},
		{name: "bad level", in: Config{Root: ".", LogLevel: "trace"}, wantErr: "invalid log-level"},
		{name: "negative retries", in: Config{Root: ".", FetchRetries: -1}, wantErr: "fetch retries"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfig(tc.in)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	// --- Arrange ---
	p := testutil.NewProject(t)
	a, logs := SetupAppTest(t, Config{Root: p.Root, WorkerCount: 4})

	// --- Act ---
	err := a.Build(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	out := logs.String()
	assert.Contains(t, out, "🚀 Starting concurrent execution...")
	assert.Contains(t, out, "🏁 Execution finished.")
	assert.Contains(t, out, "NODE")
	assert.Contains(t, out, "assemble.release")

	for _, v := range []string{"debug", "release"} {
		meta := readMetadata(t, p.Root, v)
		assert.Equal(t, int64(1700000000), meta.VersionCode)
		assert.Equal(t, "0.16.2-test", meta.VersionName)
		assert.Equal(t, []string{"build/generated/" + v + "/assets"}, meta.GeneratedAssets)
		assert.Nil(t, meta.Signing, "no credentials configured")
	}
}

func TestBuild_RerunIsByteIdentical(t *testing.T) {
	p := testutil.NewProject(t)
	a, _ := SetupAppTest(t, Config{Root: p.Root})
	require.NoError(t, a.Build(context.Background()))
	first, err := os.ReadFile(layout.New(p.Root).OutputMetadata("release"))
	require.NoError(t, err)
	sent := p.Origin.BytesSent()

	b, logs := SetupAppTest(t, Config{Root: p.Root})
	require.NoError(t, b.Build(context.Background()))

	second, err := os.ReadFile(layout.New(p.Root).OutputMetadata("release"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, sent, p.Origin.BytesSent())
	assert.Contains(t, logs.String(), "skipped")
}

func TestBuild_VersionCodeOverrideAndVariantSelection(t *testing.T) {
	p := testutil.NewProject(t)
	a, _ := SetupAppTest(t, Config{Root: p.Root, VersionCode: "12345", Variants: []string{"release"}})

	require.NoError(t, a.Build(context.Background()))

	assert.Equal(t, int64(12345), readMetadata(t, p.Root, "release").VersionCode)
	assert.NoFileExists(t, layout.New(p.Root).OutputMetadata("debug"))
	assert.Equal(t, 1, p.VersionRuns(t))
}

func TestBuild_SigningCredentials(t *testing.T) {
	p := testutil.NewProject(t)
	p.WriteFile(t, "keys/signing.yaml", "store_file: release.keystore\nstore_password: s\nkey_alias: upload\nkey_password: k\n")
	a, logs := SetupAppTest(t, Config{Root: p.Root, SigningFile: "keys/signing.yaml"})

	require.NoError(t, a.Build(context.Background()))

	release := readMetadata(t, p.Root, "release")
	require.NotNil(t, release.Signing)
	assert.Equal(t, "upload", *release.Signing)
	assert.Nil(t, readMetadata(t, p.Root, "debug").Signing, "debug is never signed")
	assert.NotContains(t, logs.String(), "store_password")
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     func(root string) Config
		wantErr string
	}{
		{
			name:    "unknown variant",
			cfg:     func(root string) Config { return Config{Root: root, Variants: []string{"staging"}} },
			wantErr: `unknown variant "staging"`,
		},
		{
			name:    "bad version code",
			cfg:     func(root string) Config { return Config{Root: root, VersionCode: "abc"} },
			wantErr: "version code",
		},
		{
			name:    "missing definition",
			cfg:     func(root string) Config { return Config{Root: root, DefinitionPath: "missing.hcl"} },
			wantErr: "failed to load build definition",
		},
		{
			name:    "invalid bundle version",
			cfg:     func(root string) Config { return Config{Root: root, Vars: map[string]string{"explore_version": "latest"}} },
			wantErr: "latest",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := testutil.NewProject(t)
			a, _ := SetupAppTest(t, tc.cfg(p.Root))

			err := a.Build(context.Background())

			require.Error(t, err)
			assert.True(t, IsConfigError(err), "got %T: %v", err, err)
			assert.ErrorContains(t, err, tc.wantErr)
			assert.Zero(t, p.Origin.FullResponses(), "nothing runs after a configuration error")
		})
	}
}

func TestBuild_ExecutionFailureIsNotConfigError(t *testing.T) {
	p := testutil.NewProject(t)
	p.Origin.Set("/v1.2.3/apps-bundle.zip", []byte("not an archive"), `"broken"`)
	a, logs := SetupAppTest(t, Config{Root: p.Root})

	err := a.Build(context.Background())

	require.Error(t, err)
	assert.False(t, IsConfigError(err))
	assert.ErrorContains(t, err, "extract.apps")
	assert.Contains(t, logs.String(), "failed")
}

func TestClean_RemovesGeneratedState(t *testing.T) {
	p := testutil.NewProject(t)
	a, _ := SetupAppTest(t, Config{Root: p.Root})
	require.NoError(t, a.Build(context.Background()))
	l := layout.New(p.Root)

	require.NoError(t, a.Clean(context.Background()))

	assert.NoDirExists(t, l.BuildDir())
	assert.NoFileExists(t, l.StateFile())
	assert.NoDirExists(t, filepath.Join(p.Root, "src/main/python/testapp/apps"))
}

func TestPrintReport(t *testing.T) {
	var sb strings.Builder
	s := printReport(&sb, []dag.NodeReport{
		{ID: "fetch.apps@1.0.0", State: dag.Done, Outcome: dag.OutcomeSkipped},
		{ID: "extract.apps", State: dag.Done, Outcome: dag.OutcomeExecuted, Duration: 1500 * time.Microsecond},
		{ID: "assemble.debug", State: dag.Failed},
	})

	assert.Equal(t, Summary{Executed: 1, Skipped: 1, Failed: 1}, s)
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"NODE", "STATE", "OUTCOME", "DURATION"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"extract.apps", "done", "executed", "2ms"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"assemble.debug", "failed", "-", "0s"}, strings.Fields(lines[3]))
}

func TestHealthHandler(t *testing.T) {
	a, _ := SetupAppTest(t, Config{Root: t.TempDir()})
	status := &buildStatus{}
	h := a.healthHandler(status)

	get := func() int {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, get())
	status.set(nil)
	assert.Equal(t, http.StatusOK, get())
	status.set(assert.AnError)
	assert.Equal(t, http.StatusServiceUnavailable, get())
}

func TestWatch_RebuildsOnDefinitionChange(t *testing.T) {
	// --- Arrange ---
	p := testutil.NewProject(t)
	a, logs := SetupAppTest(t, Config{Root: p.Root, Variants: []string{"debug"}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()

	require.Eventually(t, func() bool { return p.VersionRuns(t) == 1 }, 10*time.Second, 20*time.Millisecond)

	// --- Act ---
	p.WriteFile(t, "bundlegrid.hcl", p.HCL()+"\n# touched\n")

	// --- Assert ---
	require.Eventually(t, func() bool { return p.VersionRuns(t) == 2 }, 10*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, logs.String(), "Build definition changed")
}
