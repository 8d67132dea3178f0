package fetch

import (
	"fmt"
	"net/http"
)

// TransportError is a fatal fetch failure: the origin could not be reached or
// answered with a status other than success or "not modified".
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport fault fetching %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("transport fault fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// retryable reports whether another attempt may succeed.
func (e *TransportError) retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
