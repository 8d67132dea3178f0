package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a build file may contain.
type fileRoot struct {
	Variables     []*variableBlock `hcl:"variable,block"`
	Bundles       []*bundleBlock   `hcl:"bundle,block"`
	Variants      []*variantBlock  `hcl:"variant,block"`
	Packager      []*packagerBlock `hcl:"packager,block"`
	VersionHelper []*helperBlock   `hcl:"version_helper,block"`
	PruneHelper   []*helperBlock   `hcl:"prune_helper,block"`
	Signing       []*signingBlock  `hcl:"signing,block"`
	Remain        hcl.Body         `hcl:",remain"`
}

type variableBlock struct {
	Name        string         `hcl:"name,label"`
	Default     hcl.Expression `hcl:"default,optional"`
	Description *string        `hcl:"description,optional"`
}

type bundleBlock struct {
	Name            string         `hcl:"name,label"`
	Version         hcl.Expression `hcl:"version"`
	URL             hcl.Expression `hcl:"url"`
	Target          *string        `hcl:"target,optional"`
	StripComponents *int           `hcl:"strip_components,optional"`
	Prepend         *string        `hcl:"prepend,optional"`
	KeepEmptyDirs   *bool          `hcl:"keep_empty_dirs,optional"`
	Assets          *bool          `hcl:"assets,optional"`
}

type variantBlock struct {
	Name    string `hcl:"name,label"`
	Signing *bool  `hcl:"signing,optional"`
}

type packagerBlock struct {
	SourceDir    string   `hcl:"source_dir"`
	Requirements []string `hcl:"requirements,optional"`
}

type helperBlock struct {
	Command []string `hcl:"command"`
}

type signingBlock struct {
	Credentials string `hcl:"credentials"`
}
