package state

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Fingerprint hashes params and the content of every input path. Directories
// are walked in lexical order; a missing path contributes a marker so that its
// later appearance changes the fingerprint.
func Fingerprint(inputs, params []string) (string, error) {
	h := sha256.New()
	for _, p := range params {
		fmt.Fprintf(h, "param\x00%s\x00", p)
	}
	for _, in := range inputs {
		if err := hashPath(h, in); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashPath(h hash.Hash, root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(h, "missing\x00%s\x00", root)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", root, err)
	}
	if !info.IsDir() {
		fmt.Fprintf(h, "file\x00%s\x00", root)
		return hashFile(h, root)
	}

	fmt.Fprintf(h, "dir\x00%s\x00", root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			fmt.Fprintf(h, "d\x00%s\x00", filepath.ToSlash(rel))
			return nil
		case d.Type().IsRegular():
			fmt.Fprintf(h, "f\x00%s\x00", filepath.ToSlash(rel))
			return hashFile(h, path)
		default:
			fmt.Fprintf(h, "o\x00%s\x00", filepath.ToSlash(rel))
			return nil
		}
	})
}

func hashFile(h hash.Hash, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	return nil
}
