// Package config defines the format-agnostic build definition: the tracked
// remote bundles, the build variants, the packager collaborator and the two
// helper processes. Concrete loaders, such as the HCL one, live in separate
// packages and produce a Model.
package config
