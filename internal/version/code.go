// Package version computes the build-wide version code and resolves the
// per-variant version name through the external version helper.
package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Code is the build-wide version code. It is computed once per invocation
// and handed to every variant by value.
type Code int64

// NewCode returns override parsed as an integer when it is set, otherwise the
// epoch seconds of now.
func NewCode(override string, now func() time.Time) (Code, error) {
	if override = strings.TrimSpace(override); override != "" {
		n, err := strconv.ParseInt(override, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid version code override %q: %w", override, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("invalid version code override %q: must not be negative", override)
		}
		return Code(n), nil
	}
	if now == nil {
		now = time.Now
	}
	return Code(now().Unix()), nil
}

func (c Code) String() string {
	return strconv.FormatInt(int64(c), 10)
}
