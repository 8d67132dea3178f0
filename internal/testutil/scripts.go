package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteScript writes an executable shell script with body into dir and
// returns its path. Tests using it are skipped on Windows.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script collaborators need a POSIX shell")
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nset -e\n"+body+"\n"), 0o755))
	return path
}

// VersionScript writes a version helper that answers with versionName name
// and appends one line per invocation to a counter file next to it. It
// returns the script path and the counter path.
func VersionScript(t *testing.T, dir, name string) (string, string) {
	t.Helper()
	counter := filepath.Join(dir, "version-calls.log")
	body := `code= pkgdir= out=
while [ $# -gt 0 ]; do
  case "$1" in
    --version-code) code="$2"; shift 2 ;;
    --pkgdir) pkgdir="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    *) echo "unknown argument $1" >&2; exit 64 ;;
  esac
done
echo "$code $pkgdir" >> "` + counter + `"
printf '{"versionName": "` + name + `", "versionCode": %s}' "$code" > "$out"`
	return WriteScript(t, dir, "versions.sh", body), counter
}

// PruneScript writes a prune helper that deletes every "*.pyc" file below the
// package root and lists the deleted paths in the report.
func PruneScript(t *testing.T, dir string) string {
	t.Helper()
	body := `root= report=
while [ $# -gt 0 ]; do
  case "$1" in
    --pkgroot) root="$2"; shift 2 ;;
    --report) report="$2"; shift 2 ;;
    *) echo "unknown argument $1" >&2; exit 64 ;;
  esac
done
mkdir -p "$(dirname "$report")"
: > "$report"
find "$root" -name '*.pyc' -type f | sort | while read -r f; do
  rm "$f"
  echo "$f" >> "$report"
done`
	return WriteScript(t, dir, "prune.sh", body)
}
