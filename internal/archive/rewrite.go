// Package archive unpacks fetched bundles into target directories with a
// path-rewrite rule applied to every entry, and writes deterministic zips.
package archive

import (
	"fmt"
	"path"
	"strings"
)

// Rewrite maps an archive entry name to its path below the extraction target.
// The zero value leaves names unchanged.
type Rewrite struct {
	strip   int
	prepend string
}

// Identity keeps entry names as they are.
func Identity() Rewrite { return Rewrite{} }

// Strip drops the first k path segments of every entry.
func Strip(k int) Rewrite {
	if k < 0 {
		k = 0
	}
	return Rewrite{strip: k}
}

// Prepend places every entry below seg.
func Prepend(seg string) Rewrite {
	return Rewrite{prepend: strings.Trim(path.Clean("/"+seg), "/")}
}

// Apply returns the rewritten slash-separated name. An empty result means
// the entry has nothing left after rewriting and is dropped.
func (r Rewrite) Apply(name string) string {
	name = strings.TrimLeft(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
	if name == "" || name == "." {
		return ""
	}
	if r.strip > 0 {
		segs := strings.Split(name, "/")
		if len(segs) <= r.strip {
			return ""
		}
		name = strings.Join(segs[r.strip:], "/")
	}
	if r.prepend != "" {
		name = r.prepend + "/" + name
	}
	return name
}

func (r Rewrite) String() string {
	switch {
	case r.strip > 0:
		return fmt.Sprintf("strip(%d)", r.strip)
	case r.prepend != "":
		return fmt.Sprintf("prepend(%s)", r.prepend)
	default:
		return "identity"
	}
}
