package archive

import "fmt"

// Error is an archive fault: the bundle is corrupt, unreadable, or holds an
// entry that would land outside the extraction target.
type Error struct {
	Archive string
	Entry   string
	Err     error
}

func (e *Error) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("archive fault in %s at entry %q: %v", e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("archive fault in %s: %v", e.Archive, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
