// Package retry implements the linear-backoff retry policy spec.md §7
// reserves for Transient errors, shared by the embedding fan-out
// (internal/pipeline) and tier persistence (internal/memstore) — the
// two operations the policy names — without either depending on the
// other.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
)

// MaxAttempts and BaseDelay implement the linear backoff policy (base,
// 2*base, 3*base) for Transient errors.
const (
	MaxAttempts = 3
	BaseDelay   = 50 * time.Millisecond
)

// Do runs fn, retrying with linear backoff while fn's error satisfies
// errors.Is(err, models.ErrTransient). Any other error, or exhausting
// the retry budget, returns immediately.
func Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, models.ErrTransient) {
			return lastErr
		}
		if attempt == MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(BaseDelay * time.Duration(attempt+1)):
		}
	}
	return lastErr
}
