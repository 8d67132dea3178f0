package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zip"
)

// epoch is the modification time stamped on every written entry, the
// earliest time the zip format can represent.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// WriteZip packs every regular file below root into dest. Entries are sorted
// and carry a fixed timestamp, so equal trees produce byte-identical zips.
// dest is replaced atomically. It returns the number of files written.
func WriteZip(ctx context.Context, root, dest string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}
	pending, err := renameio.TempFile("", dest)
	if err != nil {
		return 0, fmt.Errorf("creating pending zip: %w", err)
	}
	defer pending.Cleanup()

	zw := zip.NewWriter(pending)
	count := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		hdr := &zip.FileHeader{
			Name:     filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: epoch,
		}
		hdr.SetMode(info.Mode().Perm())
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("writing zip %s: %w", dest, err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finishing zip %s: %w", dest, err)
	}
	if err := pending.Chmod(0o644); err != nil {
		return 0, err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("replacing %s: %w", dest, err)
	}
	return count, nil
}
