package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buildHCL = `
variable "explore_version" {}
variable "collections_version" {
  default = "0.1.0"
}

bundle "apps" {
  version          = var.explore_version
  url              = "https://example.org/v${version}/apps-bundle.zip"
  target           = "src/main/python/testapp/apps"
  strip_components = 1
}

bundle "collections" {
  version = var.collections_version
  url     = "https://example.org/collections-${version}.tar.gz"
  target  = "src/main/python/testapp/collections"
}

bundle "loading_screen" {
  version = var.explore_version
  url     = "https://example.org/v${version}/loading-screen.zip"
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

version_helper { command = ["./scripts/versions.py"] }
prune_helper   { command = ["./scripts/prune.py", "--verbose"] }
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoader_LoadsBuildDefinition(t *testing.T) {
	// --- Arrange ---
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": buildHCL})

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), map[string]string{"explore_version": "0.16.2"}, dir)

	// --- Assert ---
	require.NoError(t, err)
	want := []*config.Bundle{
		{Name: "apps", Version: "0.16.2", URL: "https://example.org/v0.16.2/apps-bundle.zip", Target: "src/main/python/testapp/apps", StripComponents: 1},
		{Name: "collections", Version: "0.1.0", URL: "https://example.org/collections-0.1.0.tar.gz", Target: "src/main/python/testapp/collections"},
		{Name: "loading_screen", Version: "0.16.2", URL: "https://example.org/v0.16.2/loading-screen.zip", Prepend: "loadingScreen", Assets: true},
	}
	if diff := cmp.Diff(want, model.Bundles); diff != "" {
		t.Errorf("bundles mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []*config.Variant{{Name: "debug"}, {Name: "release", Signing: true}}, model.Variants)
	assert.Equal(t, &config.Packager{SourceDir: "src/main/python", Requirements: []string{"wheels/kolibri.zip"}}, model.Packager)
	assert.Equal(t, []string{"./scripts/versions.py"}, model.VersionHelper.Command)
	assert.Equal(t, []string{"./scripts/prune.py", "--verbose"}, model.PruneHelper.Command)
}

func TestLoader_CLIOverridesDefault(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": buildHCL})

	model, err := NewLoader().Load(context.Background(), map[string]string{
		"explore_version":     "0.16.2",
		"collections_version": "2.0.0",
	}, dir)

	require.NoError(t, err)
	b, ok := model.Bundle("collections")
	require.True(t, ok)
	assert.Equal(t, "2.0.0", b.Version)
}

func TestLoader_MissingRequiredVariable(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": buildHCL})

	_, err := NewLoader().Load(context.Background(), nil, dir)

	assert.ErrorContains(t, err, `variable "explore_version" has no value and no default`)
}

func TestLoader_UndeclaredVariable(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": buildHCL})

	_, err := NewLoader().Load(context.Background(), map[string]string{"explore_version": "1.0.0", "typo": "1"}, dir)

	assert.ErrorContains(t, err, `variable "typo" is set but not declared`)
}

func TestLoader_RejectsNonSemverVersion(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": buildHCL})

	_, err := NewLoader().Load(context.Background(), map[string]string{"explore_version": "latest"}, dir)

	assert.ErrorContains(t, err, "not a semantic version")
}

func TestLoader_MergesFilesInDirectory(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a_vars.hcl":      `variable "v" { default = "1.0.0" }`,
		"b_bundles.hcl":   "bundle \"apps\" {\n  version = var.v\n  url = \"https://x/${version}.zip\"\n  target = \"src/out\"\n}\n",
		"c_variants.hcl":  `variant "debug" {}`,
		"d_packager.hcl":  "packager { source_dir = \"src\" }\nversion_helper { command = [\"v\"] }\nprune_helper { command = [\"p\"] }",
		"ignored.txt":     `garbage`,
		"sub/e_extra.hcl": `variant "release" {}`,
	})

	model, err := NewLoader().Load(context.Background(), nil, dir)

	require.NoError(t, err)
	assert.Len(t, model.Bundles, 1)
	assert.Equal(t, "https://x/1.0.0.zip", model.Bundles[0].URL)
	assert.Len(t, model.Variants, 2)
}

func TestLoader_UnknownBlockIsAnError(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": buildHCL + "\nmystery {}\n"})

	_, err := NewLoader().Load(context.Background(), map[string]string{"explore_version": "1.0.0"}, dir)

	assert.Error(t, err)
}

func TestLoader_SyntaxError(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": `bundle "apps" {`})

	_, err := NewLoader().Load(context.Background(), nil, dir)

	assert.ErrorContains(t, err, "failed to parse HCL file")
}

func TestLoader_NoFiles(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), nil, t.TempDir())
	assert.ErrorContains(t, err, "no .hcl build files")
}

func TestLoader_SigningBlock(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bundlegrid.hcl": buildHCL + "\nsigning { credentials = \"signing.yaml\" }\n"})

	model, err := NewLoader().Load(context.Background(), map[string]string{"explore_version": "1.0.0"}, dir)

	require.NoError(t, err)
	assert.Equal(t, "signing.yaml", model.SigningCredentials)
}
