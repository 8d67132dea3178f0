package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validModel() *Model {
	return &Model{
		Bundles: []*Bundle{
			{Name: "apps", Version: "1.2.3", URL: "https://example.org/apps.zip", Target: "src/apps", StripComponents: 1},
			{Name: "loading_screen", Version: "1.2.3", URL: "https://example.org/ls.zip", Assets: true, Prepend: "loadingScreen"},
		},
		Variants:      []*Variant{{Name: "debug"}, {Name: "release", Signing: true}},
		Packager:      &Packager{SourceDir: "src"},
		VersionHelper: &Helper{Command: []string{"./versions.py"}},
		PruneHelper:   &Helper{Command: []string{"./prune.py"}},
	}
}

func TestModel_ValidateAcceptsValidModel(t *testing.T) {
	m := validModel()
	require.NoError(t, m.Validate())
	assert.Equal(t, "loading_screen", m.AssetsBundle().Name)

	b, ok := m.Bundle("apps")
	require.True(t, ok)
	assert.Equal(t, 1, b.StripComponents)
	_, ok = m.Variant("release")
	assert.True(t, ok)
}

func TestModel_ValidateReportsEveryProblem(t *testing.T) {
	m := validModel()
	m.Bundles[0].Version = "latest"
	m.Bundles[0].Target = ""
	m.Bundles = append(m.Bundles, &Bundle{Name: "more", Version: "1.0.0", URL: "u", Assets: true})
	m.Variants = append(m.Variants, &Variant{Name: "debug"})
	m.PruneHelper = nil

	err := m.Validate()

	require.Error(t, err)
	for _, want := range []string{
		`bundle "apps": version "latest" is not a semantic version`,
		`bundle "apps": target is required`,
		"only one bundle may set assets = true",
		`variant "debug": declared more than once`,
		"prune_helper",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestModel_ValidateRequiresVariant(t *testing.T) {
	m := validModel()
	m.Variants = nil
	assert.ErrorContains(t, m.Validate(), "at least one variant")
}

func TestModel_StripAndPrependAreExclusive(t *testing.T) {
	m := validModel()
	m.Bundles[0].Prepend = "x"
	assert.ErrorContains(t, m.Validate(), "exclusive")
}

func TestModel_TargetMustLieInsideSourceDir(t *testing.T) {
	testCases := []struct {
		name   string
		target string
		ok     bool
	}{
		{name: "nested", target: "src/apps", ok: true},
		{name: "deeply nested", target: "src/main/python/apps", ok: true},
		{name: "outside", target: "vendor/apps", ok: false},
		{name: "sibling prefix", target: "srcx/apps", ok: false},
		{name: "escapes", target: "src/../vendor", ok: false},
		{name: "source dir itself", target: "src", ok: false},
		{name: "absolute", target: "/tmp/apps", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := validModel()
			m.Bundles[0].Target = tc.target

			err := m.Validate()

			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, `must lie inside packager source_dir "src"`)
		})
	}
}
