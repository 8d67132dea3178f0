// Package hcl_adapter loads the HCL build definition into the
// format-agnostic config.Model.
package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under paths, evaluates variables and
// bundle expressions, and returns the validated model.
func (l *Loader) Load(ctx context.Context, vars map[string]string, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl build files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	roots := make([]*fileRoot, 0, len(files))
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if err := rejectRemaining(root.Remain); err != nil {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, err)
		}
		roots = append(roots, &root)
	}

	evalCtx, err := l.evalContext(ctx, roots, vars)
	if err != nil {
		return nil, err
	}
	model, err := l.translate(ctx, roots, evalCtx)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "bundles", len(model.Bundles), "variants", len(model.Variants))
	return model, nil
}

// rejectRemaining fails on attributes or blocks no schema field claimed.
func rejectRemaining(body hcl.Body) error {
	if body == nil {
		return nil
	}
	_, diags := body.Content(&hcl.BodySchema{})
	if diags.HasErrors() {
		return diags
	}
	return nil
}

// findAllHCLFiles returns every .hcl file named directly or found below a
// directory in paths, in a stable order and without duplicates.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				add(f)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	return allFiles, nil
}
