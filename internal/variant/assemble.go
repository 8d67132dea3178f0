package variant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/layout"
)

// OutputMetadata is written next to each variant's outputs.
type OutputMetadata struct {
	VariantName     string   `json:"variantName"`
	VersionCode     int64    `json:"versionCode"`
	VersionName     string   `json:"versionName"`
	GeneratedAssets []string `json:"generatedAssets"`
	Payload         Payload  `json:"payload"`
	Signing         *string  `json:"signing"`
}

// Payload references the zipped package root.
type Payload struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Assemble resolves v's version name and writes its output metadata. Paths
// are recorded relative to the project root so equal inputs give equal bytes.
func Assemble(ctx context.Context, v *Variant, l layout.Layout) (*OutputMetadata, error) {
	logger := ctxlog.FromContext(ctx)

	if v.VersionName == nil {
		return nil, errors.New("variant has no version name source")
	}
	rec, err := v.VersionName.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving version name: %w", err)
	}

	sum, err := sha256File(l.Payload(v.Name))
	if err != nil {
		return nil, fmt.Errorf("hashing payload: %w", err)
	}

	assets := make([]string, 0)
	for _, dir := range v.GeneratedAssets() {
		assets = append(assets, l.Rel(dir))
	}

	meta := &OutputMetadata{
		VariantName:     v.Name,
		VersionCode:     int64(v.VersionCode),
		VersionName:     rec.VersionName,
		GeneratedAssets: assets,
		Payload:         Payload{Path: l.Rel(l.Payload(v.Name)), SHA256: sum},
		Signing:         v.SigningKey(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding output metadata: %w", err)
	}
	data = append(data, '\n')

	out := l.OutputMetadata(v.Name)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, fmt.Errorf("creating outputs directory: %w", err)
	}
	if err := renameio.WriteFile(out, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing output metadata: %w", err)
	}
	logger.Info("📝 Output metadata written.", "path", l.Rel(out), "versionName", meta.VersionName, "versionCode", meta.VersionCode)
	return meta, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
