package vectorindex

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"

	kgzip "github.com/klauspost/compress/gzip"

	"github.com/trinityvector/trinitymemory/internal/models"
)

// pqCode is a single entry's quantized representation: one 8-bit code
// per subvector.
type pqCode struct {
	codes []byte
}

// pqCodebook holds the trained centroids for each of M subvector
// subspaces. Training is offline; at runtime, quantized entries only
// support asymmetric distance (scored against the full-precision
// query), per spec §4.1.
type pqCodebook struct {
	Subvectors int         // M
	SubDim     int         // dimensions per subvector
	Centroids  [][][]float32 // [subvector][code 0..255][subDim]
}

// TrainPQ trains M subvector codebooks of 256 centroids each from a
// sample of full-precision vectors: the centroids of each subspace are
// an evenly strided selection of the sample's subvectors, with no
// assignment or refinement pass — intentionally simple, since PQ
// training is an offline, best-effort compaction step rather than a
// correctness-critical path.
func TrainPQ(vectors [][]float32, subvectors int) (*pqCodebook, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("vectorindex: cannot train PQ codebook on zero vectors")
	}
	dim := len(vectors[0])
	if subvectors <= 0 {
		subvectors = 8
	}
	if dim%subvectors != 0 {
		return nil, fmt.Errorf("vectorindex: dimension %d not divisible by %d subvectors", dim, subvectors)
	}
	subDim := dim / subvectors

	cb := &pqCodebook{Subvectors: subvectors, SubDim: subDim}
	cb.Centroids = make([][][]float32, subvectors)

	for s := 0; s < subvectors; s++ {
		start := s * subDim
		end := start + subDim

		nCentroids := 256
		if nCentroids > len(vectors) {
			nCentroids = len(vectors)
		}

		centroids := make([][]float32, 0, nCentroids)
		stride := len(vectors) / nCentroids
		if stride < 1 {
			stride = 1
		}
		for i := 0; i < len(vectors) && len(centroids) < nCentroids; i += stride {
			centroids = append(centroids, append([]float32(nil), vectors[i][start:end]...))
		}
		cb.Centroids[s] = centroids
	}

	return cb, nil
}

// Quantize encodes v into an 8-bit code per subvector.
func (cb *pqCodebook) Quantize(v []float32) *pqCode {
	codes := make([]byte, cb.Subvectors)
	for s := 0; s < cb.Subvectors; s++ {
		start := s * cb.SubDim
		end := start + cb.SubDim
		sub := v[start:end]

		best := 0
		bestDist := math32DistSq(sub, cb.Centroids[s][0])
		for c := 1; c < len(cb.Centroids[s]); c++ {
			d := math32DistSq(sub, cb.Centroids[s][c])
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		codes[s] = byte(best)
	}
	return &pqCode{codes: codes}
}

// asymmetricScore scores a full-precision query against a quantized
// entry by reconstructing its approximate vector from the codebook and
// taking cosine similarity — "asymmetric" because only one side is
// quantized.
func (cb *pqCodebook) asymmetricScore(query []float32, code *pqCode) float64 {
	approx := make([]float32, cb.Subvectors*cb.SubDim)
	for s, c := range code.codes {
		copy(approx[s*cb.SubDim:(s+1)*cb.SubDim], cb.Centroids[s][c])
	}
	return Cosine(query, approx)
}

func math32DistSq(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

// SaveCodebook serializes and gzip-compresses a codebook using
// klauspost/compress, a faster drop-in for compress/gzip already
// pulled in transitively through BadgerDB's value-log compaction path.
func SaveCodebook(cb *pqCodebook) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(cb); err != nil {
		return nil, fmt.Errorf("vectorindex: encode codebook: %w", err)
	}

	var compressed bytes.Buffer
	w, err := kgzip.NewWriterLevel(&compressed, kgzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: init gzip writer: %w", err)
	}
	if _, err := w.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("vectorindex: compress codebook: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("vectorindex: finalize codebook archive: %w", err)
	}

	return compressed.Bytes(), nil
}

// LoadCodebook reverses SaveCodebook. Decompression accepts either the
// klauspost or stdlib gzip container since the two are wire-compatible.
func LoadCodebook(data []byte) (*pqCodebook, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open codebook archive: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: read codebook archive: %w", err)
	}

	var cb pqCodebook
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&cb); err != nil {
		return nil, fmt.Errorf("vectorindex: decode codebook: %w", err)
	}
	return &cb, nil
}

// Train installs a trained codebook on the index and quantizes any
// existing semantic-tier entries against it. Safe to call repeatedly;
// re-training replaces the codebook and re-quantizes.
func (idx *Index) Train(subvectors int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var sample [][]float32
	for _, r := range idx.records {
		sample = append(sample, r.vector)
	}

	cb, err := TrainPQ(sample, subvectors)
	if err != nil {
		return err
	}
	idx.pq = cb

	for _, r := range idx.records {
		if r.tier != models.TierSemantic {
			continue
		}
		r.quantized = cb.Quantize(r.vector)
	}
	return nil
}
