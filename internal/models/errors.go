package models

import "errors"

// Sentinel error kinds per the error-handling design: callers use
// errors.Is/errors.As against these to branch on kind without string
// matching.
var (
	// ErrPermissionDenied surfaces a refused sensor access; the
	// pipeline must refuse to start.
	ErrPermissionDenied = errors.New("trinitymemory: permission denied")

	// ErrNotConfigured marks an attempt to process before
	// initialization.
	ErrNotConfigured = errors.New("trinitymemory: not configured")

	// ErrIndexCorrupt marks a malformed tier file or a dimension
	// mismatch; the affected tier starts empty.
	ErrIndexCorrupt = errors.New("trinitymemory: index corrupt")

	// ErrEmbeddingFailed marks an embedding provider error; the
	// iteration aborts and the observation is dropped.
	ErrEmbeddingFailed = errors.New("trinitymemory: embedding failed")

	// ErrPersistenceFailed marks a tier read/write failure.
	ErrPersistenceFailed = errors.New("trinitymemory: persistence failed")

	// ErrTransient marks a recoverable error eligible for retry.
	ErrTransient = errors.New("trinitymemory: transient error")
)

// Wrap annotates err with a sentinel kind so that errors.Is(wrapped,
// kind) succeeds, while preserving the original error text and chain
// via %w-equivalent wrapping semantics.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}
