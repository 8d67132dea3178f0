package external

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/bundlegrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_PassesArguments(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args.txt")
	script := testutil.WriteScript(t, dir, "echo.sh", `echo "$@" > "`+out+`"`)

	r := &Runner{Dir: dir}
	err := r.Run(context.Background(), []string{script, "--fixed"}, "--pkgroot", "/tmp/x")

	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "--fixed --pkgroot /tmp/x\n", string(data))
}

func TestRunner_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := testutil.WriteScript(t, dir, "fail.sh", `echo "boom" >&2; exit 3`)

	err := (&Runner{Dir: dir}).Run(context.Background(), []string{script})

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.ExitCode)
	assert.Equal(t, "boom", perr.Stderr)
	assert.Contains(t, perr.Error(), "exited with status 3")
}

func TestRunner_MissingBinary(t *testing.T) {
	err := (&Runner{}).Run(context.Background(), []string{filepath.Join(t.TempDir(), "nope")})

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Zero(t, perr.ExitCode)
}

func TestRunner_EmptyCommand(t *testing.T) {
	err := (&Runner{}).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	var tb tailBuffer
	big := make([]byte, stderrTail+10)
	for i := range big {
		big[i] = 'a'
	}
	big[len(big)-1] = 'z'
	_, _ = tb.Write(big)
	assert.Len(t, tb.String(), stderrTail)
	assert.Equal(t, byte('z'), tb.String()[stderrTail-1])
}
