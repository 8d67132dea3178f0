package app

import (
	"os"
	"testing"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/hcl_adapter"
	"github.com/specialistvlad/bundlegrid/internal/testutil"
)

// SetupAppTest creates an App over cfg with debug logs captured in a buffer.
// Set BGGRID_TEST_LOGS=true to print the logs of every test.
func SetupAppTest(t *testing.T, cfg Config) (*App, *testutil.SafeBuffer) {
	t.Helper()

	cfg.LogLevel = "debug"
	validated, err := NewConfig(cfg)
	if err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	logBuffer := &testutil.SafeBuffer{}
	a := NewApp(logBuffer, validated, hcl_adapter.NewLoader())
	a.now = func() time.Time { return time.Unix(1700000000, 0) }

	t.Cleanup(func() {
		if os.Getenv("BGGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return a, logBuffer
}
