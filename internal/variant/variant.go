// Package variant models build variants and assembles their output
// metadata.
package variant

import (
	"slices"
	"sync"

	"github.com/specialistvlad/bundlegrid/internal/signing"
	"github.com/specialistvlad/bundlegrid/internal/version"
)

// Variant is a named build configuration. It lives for one invocation.
type Variant struct {
	Name string
	// Signing marks the variant as signed when credentials are available.
	Signing     bool
	Credentials *signing.Credentials

	// VersionCode is the build-wide code, identical for every variant.
	VersionCode version.Code
	// VersionName resolves the helper's record on first use.
	VersionName *version.Lazy[version.Record]

	mu              sync.Mutex
	generatedAssets []string
}

// New creates a variant.
func New(name string, signed bool) *Variant {
	return &Variant{Name: name, Signing: signed}
}

// AddGeneratedAssets registers dir as a generated asset directory. Adding the
// same directory twice has no effect.
func (v *Variant) AddGeneratedAssets(dir string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !slices.Contains(v.generatedAssets, dir) {
		v.generatedAssets = append(v.generatedAssets, dir)
	}
}

// GeneratedAssets returns the registered asset directories in registration
// order.
func (v *Variant) GeneratedAssets() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.generatedAssets)
}

// SigningKey returns the key alias used for this variant, or nil when the
// variant is unsigned.
func (v *Variant) SigningKey() *string {
	if !v.Signing || v.Credentials == nil {
		return nil
	}
	alias := v.Credentials.KeyAlias
	return &alias
}
