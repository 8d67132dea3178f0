package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver"
)

// Model is the whole build definition with every expression evaluated.
type Model struct {
	Bundles       []*Bundle
	Variants      []*Variant
	Packager      *Packager
	VersionHelper *Helper
	PruneHelper   *Helper
	// SigningCredentials is the optional credentials file path.
	SigningCredentials string
}

// Bundle is a tracked remote archive.
type Bundle struct {
	Name    string
	Version string
	URL     string
	// Target is the extraction directory, relative to the project root.
	Target          string
	StripComponents int
	Prepend         string
	KeepEmptyDirs   bool
	// Assets marks the fixed-name assets bundle consumed by the collector.
	Assets bool
}

// Variant is a build variant definition.
type Variant struct {
	Name    string
	Signing bool
}

// Packager configures the runtime packager collaborator.
type Packager struct {
	SourceDir    string
	Requirements []string
}

// Helper is an external helper command.
type Helper struct {
	Command []string
}

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// AssetsBundle returns the bundle marked as assets, if any.
func (m *Model) AssetsBundle() *Bundle {
	for _, b := range m.Bundles {
		if b.Assets {
			return b
		}
	}
	return nil
}

// Bundle returns the bundle called name.
func (m *Model) Bundle(name string) (*Bundle, bool) {
	for _, b := range m.Bundles {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// Variant returns the variant called name.
func (m *Model) Variant(name string) (*Variant, bool) {
	for _, v := range m.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Validate checks the semantic rules a loader cannot express in its schema
// and reports every violation at once.
func (m *Model) Validate() error {
	var errs []string

	if len(m.Variants) == 0 {
		errs = append(errs, "at least one variant is required")
	}
	seenVariants := make(map[string]bool)
	for _, v := range m.Variants {
		if !namePattern.MatchString(v.Name) {
			errs = append(errs, fmt.Sprintf("variant %q: invalid name", v.Name))
		}
		if seenVariants[v.Name] {
			errs = append(errs, fmt.Sprintf("variant %q: declared more than once", v.Name))
		}
		seenVariants[v.Name] = true
	}

	seenBundles := make(map[string]bool)
	assets := 0
	for _, b := range m.Bundles {
		if !namePattern.MatchString(b.Name) {
			errs = append(errs, fmt.Sprintf("bundle %q: invalid name", b.Name))
		}
		if seenBundles[b.Name] {
			errs = append(errs, fmt.Sprintf("bundle %q: declared more than once", b.Name))
		}
		seenBundles[b.Name] = true

		if _, err := semver.NewVersion(b.Version); err != nil {
			errs = append(errs, fmt.Sprintf("bundle %q: version %q is not a semantic version", b.Name, b.Version))
		}
		if b.URL == "" {
			errs = append(errs, fmt.Sprintf("bundle %q: url is required", b.Name))
		}
		if b.StripComponents < 0 {
			errs = append(errs, fmt.Sprintf("bundle %q: strip_components must not be negative", b.Name))
		}
		if b.StripComponents > 0 && b.Prepend != "" {
			errs = append(errs, fmt.Sprintf("bundle %q: strip_components and prepend are exclusive", b.Name))
		}
		if b.Assets {
			assets++
		} else if b.Target == "" {
			errs = append(errs, fmt.Sprintf("bundle %q: target is required", b.Name))
		}
	}
	if assets > 1 {
		errs = append(errs, "only one bundle may set assets = true")
	}

	if m.Packager == nil {
		errs = append(errs, "a packager block is required")
	} else if m.Packager.SourceDir == "" {
		errs = append(errs, "packager: source_dir is required")
	} else {
		for _, b := range m.Bundles {
			if !b.Assets && b.Target != "" && !within(m.Packager.SourceDir, b.Target) {
				errs = append(errs, fmt.Sprintf("bundle %q: target %q must lie inside packager source_dir %q", b.Name, b.Target, m.Packager.SourceDir))
			}
		}
	}
	if m.VersionHelper == nil || len(m.VersionHelper.Command) == 0 {
		errs = append(errs, "a version_helper block with a command is required")
	}
	if m.PruneHelper == nil || len(m.PruneHelper.Command) == 0 {
		errs = append(errs, "a prune_helper block with a command is required")
	}

	if len(errs) > 0 {
		return errors.New("configuration validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

// within reports whether target is strictly below dir. Both are project
// relative; extraction clears its target, so dir itself is refused.
func within(dir, target string) bool {
	if filepath.IsAbs(dir) != filepath.IsAbs(target) {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(target))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
