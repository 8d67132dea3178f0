// This file translates decoded HCL blocks into the format-agnostic model,
// evaluating every expression along the way.

package hcl_adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// evalContext resolves every declared variable. Values given in vars win
// over declared defaults; a variable with neither is an error, as is a value
// for a variable nobody declared.
func (l *Loader) evalContext(ctx context.Context, roots []*fileRoot, vars map[string]string) (*hcl.EvalContext, error) {
	logger := ctxlog.FromContext(ctx)

	declared := make(map[string]*variableBlock)
	for _, root := range roots {
		for _, v := range root.Variables {
			if _, dup := declared[v.Name]; dup {
				return nil, fmt.Errorf("variable %q declared more than once", v.Name)
			}
			declared[v.Name] = v
		}
	}

	var errs []string
	for name := range vars {
		if _, ok := declared[name]; !ok {
			errs = append(errs, fmt.Sprintf("variable %q is set but not declared", name))
		}
	}

	values := make(map[string]cty.Value, len(declared))
	for name, v := range declared {
		if raw, ok := vars[name]; ok {
			values[name] = cty.StringVal(raw)
			logger.Debug("Variable set from invocation.", "variable", name)
			continue
		}
		if !isExprDefined(v.Default) {
			errs = append(errs, fmt.Sprintf("variable %q has no value and no default", name))
			continue
		}
		s, err := evalString(v.Default, nil)
		if err != nil {
			errs = append(errs, fmt.Sprintf("variable %q default: %v", name, err))
			continue
		}
		values[name] = cty.StringVal(s)
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, errors.New("variable resolution failed:\n- " + strings.Join(errs, "\n- "))
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(values)},
	}, nil
}

func (l *Loader) translate(ctx context.Context, roots []*fileRoot, evalCtx *hcl.EvalContext) (*config.Model, error) {
	model := &config.Model{}
	for _, root := range roots {
		for _, b := range root.Bundles {
			bundle, err := l.translateBundle(ctx, b, evalCtx)
			if err != nil {
				return nil, err
			}
			model.Bundles = append(model.Bundles, bundle)
		}
		for _, v := range root.Variants {
			model.Variants = append(model.Variants, &config.Variant{Name: v.Name, Signing: v.Signing != nil && *v.Signing})
		}
		for _, p := range root.Packager {
			if model.Packager != nil {
				return nil, errors.New("only one packager block is allowed")
			}
			model.Packager = &config.Packager{SourceDir: p.SourceDir, Requirements: p.Requirements}
		}
		for _, h := range root.VersionHelper {
			if model.VersionHelper != nil {
				return nil, errors.New("only one version_helper block is allowed")
			}
			model.VersionHelper = &config.Helper{Command: h.Command}
		}
		for _, h := range root.PruneHelper {
			if model.PruneHelper != nil {
				return nil, errors.New("only one prune_helper block is allowed")
			}
			model.PruneHelper = &config.Helper{Command: h.Command}
		}
		for _, s := range root.Signing {
			if model.SigningCredentials != "" {
				return nil, errors.New("only one signing block is allowed")
			}
			model.SigningCredentials = s.Credentials
		}
	}
	return model, nil
}

// translateBundle evaluates the version with var.* in scope, then the url
// with the bundle's own version also in scope as `version`.
func (l *Loader) translateBundle(ctx context.Context, b *bundleBlock, evalCtx *hcl.EvalContext) (*config.Bundle, error) {
	logger := ctxlog.FromContext(ctx).With("bundle", b.Name)

	version, err := evalString(b.Version, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("bundle %q: version: %w", b.Name, err)
	}
	urlCtx := evalCtx.NewChild()
	urlCtx.Variables = map[string]cty.Value{"version": cty.StringVal(version)}
	url, err := evalString(b.URL, urlCtx)
	if err != nil {
		return nil, fmt.Errorf("bundle %q: url: %w", b.Name, err)
	}
	logger.Debug("Bundle evaluated.", "version", version, "url", url)

	bundle := &config.Bundle{Name: b.Name, Version: version, URL: url}
	if b.Target != nil {
		bundle.Target = *b.Target
	}
	if b.StripComponents != nil {
		bundle.StripComponents = *b.StripComponents
	}
	if b.Prepend != nil {
		bundle.Prepend = *b.Prepend
	}
	if b.KeepEmptyDirs != nil {
		bundle.KeepEmptyDirs = *b.KeepEmptyDirs
	}
	if b.Assets != nil {
		bundle.Assets = *b.Assets
	}
	return bundle, nil
}
