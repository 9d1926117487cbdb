// Package embedding defines the embedding-provider contract (C2) the
// rest of the memory engine depends on, plus two concrete
// implementations: a deterministic local fallback and an HTTP client
// for an external embedding service.
package embedding

import (
	"context"
	"math"
)

// Provider produces normalized, fixed-dimension vectors from text or an
// observation's derived text. The core does not mandate a specific
// model; it only requires determinism for equal inputs and a fixed
// dimensionality across a single process.
type Provider interface {
	// Generate creates a unit-norm embedding vector for text.
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch creates embeddings for multiple texts.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// Normalize rescales v to unit L2 norm in place and returns it. A
// zero-magnitude vector is returned unchanged (callers must treat an
// all-zero embedding as degenerate).
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	mag := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
	return v
}
