// Package layout names every on-disk location the build reads or writes.
package layout

import (
	"fmt"
	"path/filepath"
)

// Layout is rooted at the project directory.
type Layout struct {
	Root string
}

// New returns the layout of the project at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// Abs resolves p against the project root unless it is already absolute.
func (l Layout) Abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.Root, p)
}

// Rel returns p relative to the project root in slash form, or p unchanged
// when it lies outside the root.
func (l Layout) Rel(p string) string {
	rel, err := filepath.Rel(l.Root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// StateDir holds tool state that survives between invocations.
func (l Layout) StateDir() string { return filepath.Join(l.Root, ".bundlegrid") }

// StateFile is the fingerprint store.
func (l Layout) StateFile() string { return filepath.Join(l.StateDir(), "state.yaml") }

// CacheDir holds fetched bundles.
func (l Layout) CacheDir() string { return filepath.Join(l.StateDir(), "cache") }

// BundleCache is the cache file of one bundle identity.
func (l Layout) BundleCache(name, version, ext string) string {
	return filepath.Join(l.CacheDir(), fmt.Sprintf("%s-%s%s", name, version, ext))
}

// BuildDir holds everything generated for variants.
func (l Layout) BuildDir() string { return filepath.Join(l.Root, "build") }

// GeneratedDir is the parent of all generated inputs of variant.
func (l Layout) GeneratedDir(variant string) string {
	return filepath.Join(l.BuildDir(), "generated", variant)
}

// GeneratedAssets is the collector output directory of variant.
func (l Layout) GeneratedAssets(variant string) string {
	return filepath.Join(l.GeneratedDir(variant), "assets")
}

// PackageRoot is where the packager extracts requirements for variant.
func (l Layout) PackageRoot(variant string) string {
	return filepath.Join(l.BuildDir(), "pip", variant)
}

// OutputsDir holds the finished outputs of variant.
func (l Layout) OutputsDir(variant string) string {
	return filepath.Join(l.BuildDir(), "outputs", variant)
}

// Payload is the zipped package root of variant.
func (l Layout) Payload(variant string) string {
	return filepath.Join(l.OutputsDir(variant), "payload.zip")
}

// OutputMetadata is the metadata document of variant.
func (l Layout) OutputMetadata(variant string) string {
	return filepath.Join(l.OutputsDir(variant), "output-metadata.json")
}

// VersionRecord is where the version helper writes its record for variant.
func (l Layout) VersionRecord(variant string) string {
	return filepath.Join(l.OutputsDir(variant), "version.json")
}
