package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/fsutil"
)

// ErrEscapesTarget is reported for entries whose rewritten path resolves
// outside the extraction target.
var ErrEscapesTarget = errors.New("entry escapes extraction target")

// Format is a supported archive container.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTarGz
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTarGz:
		return "tar.gz"
	default:
		return "unknown"
	}
}

// Spec describes one extraction.
type Spec struct {
	Target        string
	Rewrite       Rewrite
	KeepEmptyDirs bool
	// Merge writes into Target without clearing it first.
	Merge bool
}

// Stats summarizes what an extraction wrote.
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Extract clears spec.Target and repopulates it from the archive at src.
// With Merge set the target is kept and entries overwrite existing files.
// Directory entries are only materialized when KeepEmptyDirs is set; file
// parents are always created.
func Extract(ctx context.Context, src string, spec Spec) (*Stats, error) {
	logger := ctxlog.FromContext(ctx)

	format, err := DetectFormat(src)
	if err != nil {
		return nil, err
	}
	if spec.Merge {
		err = os.MkdirAll(spec.Target, 0o755)
	} else {
		err = fsutil.ResetDir(spec.Target)
	}
	if err != nil {
		return nil, fmt.Errorf("preparing extraction target: %w", err)
	}

	x := &extractor{src: src, spec: spec, stats: &Stats{}}
	switch format {
	case FormatZip:
		err = x.zip(ctx)
	case FormatTarGz:
		err = x.tarGz(ctx)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Extracted archive.",
		"archive", src, "format", format.String(), "rewrite", spec.Rewrite.String(),
		"files", x.stats.Files, "bytes", x.stats.Bytes)
	return x.stats, nil
}

// DetectFormat picks the container by file extension and falls back to the
// leading magic bytes.
func DetectFormat(src string) (Format, error) {
	lower := strings.ToLower(src)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	}

	f, err := os.Open(src)
	if err != nil {
		return FormatUnknown, &Error{Archive: src, Err: err}
	}
	defer f.Close()
	magic := make([]byte, 4)
	n, _ := io.ReadFull(f, magic)
	magic = magic[:n]
	switch {
	case bytes.HasPrefix(magic, []byte("PK\x03\x04")), bytes.HasPrefix(magic, []byte("PK\x05\x06")):
		return FormatZip, nil
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		return FormatTarGz, nil
	}
	return FormatUnknown, &Error{Archive: src, Err: errors.New("unrecognized archive format")}
}

type extractor struct {
	src   string
	spec  Spec
	stats *Stats
}

func (x *extractor) zip(ctx context.Context) error {
	r, err := zip.OpenReader(x.src)
	if err != nil {
		return &Error{Archive: x.src, Err: err}
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := x.dir(f.Name); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return &Error{Archive: x.src, Entry: f.Name, Err: err}
		}
		err = x.file(f.Name, f.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) tarGz(ctx context.Context) error {
	f, err := os.Open(x.src)
	if err != nil {
		return &Error{Archive: x.src, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &Error{Archive: x.src, Err: err}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &Error{Archive: x.src, Err: err}
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := x.dir(hdr.Name); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.file(hdr.Name, hdr.FileInfo().Mode(), tr); err != nil {
				return err
			}
		}
	}
}

// resolve applies the rewrite and guards against escaping the target.
func (x *extractor) resolve(name string) (string, error) {
	rel := x.spec.Rewrite.Apply(name)
	if rel == "" {
		return "", nil
	}
	dest := filepath.Join(x.spec.Target, filepath.FromSlash(rel))
	within, err := filepath.Rel(x.spec.Target, dest)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", &Error{Archive: x.src, Entry: name, Err: ErrEscapesTarget}
	}
	return dest, nil
}

func (x *extractor) dir(name string) error {
	if !x.spec.KeepEmptyDirs {
		return nil
	}
	dest, err := x.resolve(name)
	if err != nil || dest == "" {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	x.stats.Dirs++
	return nil
}

func (x *extractor) file(name string, mode fs.FileMode, r io.Reader) error {
	dest, err := x.resolve(name)
	if err != nil || dest == "" {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}

	perm := mode.Perm() | 0o600
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &Error{Archive: x.src, Entry: name, Err: err}
	}
	x.stats.Files++
	x.stats.Bytes += n
	return nil
}
