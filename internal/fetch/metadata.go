package fetch

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Metadata is the revalidation record stored next to a cached bundle.
type Metadata struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	URL          string `yaml:"url"`
	ETag         string `yaml:"etag,omitempty"`
	LastModified string `yaml:"last_modified,omitempty"`
	Size         int64  `yaml:"size"`
	SHA256       string `yaml:"sha256"`
}

// MetadataPath returns where the revalidation record for dest lives.
func MetadataPath(dest string) string {
	return dest + ".meta.yaml"
}

// ReadMetadata loads the record for dest. It returns nil, nil when there is
// no record.
func ReadMetadata(dest string) (*Metadata, error) {
	data, err := os.ReadFile(MetadataPath(dest))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding cache metadata %s: %w", MetadataPath(dest), err)
	}
	return &m, nil
}

func writeMetadata(dest string, m *Metadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding cache metadata: %w", err)
	}
	return renameio.WriteFile(MetadataPath(dest), data, 0o644)
}

// usable reports whether a previous record can be used for revalidation.
func (m *Metadata) usable(url, dest string) bool {
	if m == nil || m.URL != url || (m.ETag == "" && m.LastModified == "") {
		return false
	}
	_, err := os.Stat(dest)
	return err == nil
}
