package config

import "context"

// Loader reads a build definition from paths. vars override the defaults of
// declared variables.
type Loader interface {
	Load(ctx context.Context, vars map[string]string, paths ...string) (*Model, error)
}
