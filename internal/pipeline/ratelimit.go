package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// embeddingLimiter bounds concurrent embedding work to
// performance.max_concurrent_embeddings, adapted from the teacher's
// TokenBucketRateLimiter (integration/vault.go) but repurposed from a
// per-service requests-per-hour budget to a simple concurrency
// semaphore plus a steady-state processing cadence.
type embeddingLimiter struct {
	sem     chan struct{}
	cadence *rate.Limiter

	mu sync.Mutex
}

// newEmbeddingLimiter builds a limiter admitting at most maxConcurrent
// in-flight embedding calls, paced at roughly one admission per
// processingInterval.
func newEmbeddingLimiter(maxConcurrent int, processingInterval time.Duration) *embeddingLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	var limit rate.Limit
	if processingInterval <= 0 {
		limit = rate.Inf
	} else {
		limit = rate.Every(processingInterval)
	}
	return &embeddingLimiter{
		sem:     make(chan struct{}, maxConcurrent),
		cadence: rate.NewLimiter(limit, maxConcurrent),
	}
}

// Acquire blocks until both the concurrency semaphore and the pacing
// limiter admit the caller, or ctx is done.
func (l *embeddingLimiter) Acquire(ctx context.Context) error {
	if err := l.cadence.Wait(ctx); err != nil {
		return err
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a concurrency slot.
func (l *embeddingLimiter) Release() {
	select {
	case <-l.sem:
	default:
	}
}
