package version

import (
	"context"
	"sync"
)

// Lazy is a value computed on first use. Every later Get returns the first
// result, including a failure.
type Lazy[T any] struct {
	once     sync.Once
	fn       func(context.Context) (T, error)
	val      T
	err      error
	resolved bool
	mu       sync.Mutex
}

// NewLazy wraps fn. fn runs at most once.
func NewLazy[T any](fn func(context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{fn: fn}
}

// Get resolves the value, running fn with ctx if this is the first call.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.once.Do(func() {
		v, err := l.fn(ctx)
		l.mu.Lock()
		l.val, l.err, l.resolved = v, err, true
		l.mu.Unlock()
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.err
}

// Resolved reports whether fn has run.
func (l *Lazy[T]) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolved
}
