// Package signing discovers optional release signing credentials.
package signing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Credentials locate a keystore and the key used to sign release outputs.
type Credentials struct {
	StoreFile     string `yaml:"store_file"`
	StorePassword string `yaml:"store_password"`
	KeyAlias      string `yaml:"key_alias"`
	KeyPassword   string `yaml:"key_password"`
}

// Load reads credentials from path. A missing file is not an error: it
// yields nil and the build falls back to unsigned outputs. A relative
// store_file is resolved against the credentials file's directory.
func Load(ctx context.Context, path string) (*Credentials, error) {
	logger := ctxlog.FromContext(ctx)
	if path == "" {
		logger.Info("No signing credentials configured, outputs will be unsigned.")
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("Signing credentials not found, outputs will be unsigned.", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading signing credentials: %w", err)
	}

	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding signing credentials %s: %w", path, err)
	}
	if c.StoreFile == "" || c.KeyAlias == "" {
		return nil, fmt.Errorf("signing credentials %s: store_file and key_alias are required", path)
	}
	if !filepath.IsAbs(c.StoreFile) {
		c.StoreFile = filepath.Join(filepath.Dir(path), c.StoreFile)
	}
	logger.Info("🔑 Signing credentials loaded.", "key_alias", c.KeyAlias)
	return &c, nil
}

// String never reveals passwords.
func (c *Credentials) String() string {
	if c == nil {
		return "unsigned"
	}
	return fmt.Sprintf("%s (%s)", c.KeyAlias, c.StoreFile)
}
