package embedding

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashProvider is a deterministic, dependency-free embedding generator
// used when no external embedding service is configured. It folds
// position-weighted word hashes into a fixed-width vector and
// renormalizes to unit length, adapted from the teacher's
// hash-based fallback embedder.
type HashProvider struct {
	dimensions int
}

// NewHashProvider creates a hash-based embedding generator of the given
// width.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &HashProvider{dimensions: dimensions}
}

// Generate produces a deterministic unit-norm embedding for text; text
// with no words yields an all-zero vector.
func (p *HashProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	words := strings.Fields(text)

	vec := make([]float32, p.dimensions)
	if len(words) == 0 {
		return vec, nil
	}

	for i, word := range words {
		h := xxhash.Sum64String(word)
		position := float32(i) / float32(len(words))
		weight := float32(1.0) / (1.0 + position)

		for j := 0; j < p.dimensions; j++ {
			idx := (h + uint64(j)) % uint64(p.dimensions)
			vec[idx] += weight
		}
	}

	return Normalize(vec), nil
}

// GenerateBatch generates embeddings for multiple texts sequentially;
// the hash provider is cheap enough that batching adds no value beyond
// satisfying the Provider contract.
func (p *HashProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Generate(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured vector width.
func (p *HashProvider) Dimensions() int {
	return p.dimensions
}
