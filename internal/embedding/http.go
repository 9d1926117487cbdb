package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trinityvector/trinitymemory/internal/models"
)

// HTTPProvider calls an external embedding service over HTTP, adapted
// from the teacher's HuggingFace-backed embedding client. It is the
// production path; HashProvider is the dependency-free fallback used
// when no such service is reachable.
type HTTPProvider struct {
	apiURL     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewHTTPProvider creates an embedding generator backed by a local
// sentence-embedding HTTP service (e.g. a sentence-transformers server
// running on-device or on a paired host).
func NewHTTPProvider(apiURL, model string, dimensions int) *HTTPProvider {
	return &HTTPProvider{
		apiURL:     apiURL,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{},
	}
}

// Generate creates an embedding vector for text.
func (p *HTTPProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding: no vectors returned")
	}
	return vecs[0], nil
}

// GenerateBatch creates embeddings for multiple texts in one request.
func (p *HTTPProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"inputs": texts,
		"model":  p.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// A failed round trip (connection refused, timeout, context
		// deadline) is presumed recoverable: the service may simply be
		// warming up or momentarily unreachable.
		return nil, models.Wrap(models.ErrTransient, fmt.Errorf("embedding: request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		statusErr := fmt.Errorf("embedding: service returned %d: %s", resp.StatusCode, string(payload))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, models.Wrap(models.ErrTransient, statusErr)
		}
		return nil, statusErr
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}

	for _, v := range vectors {
		Normalize(v)
	}

	return vectors, nil
}

// Dimensions returns the embedding vector dimensionality.
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}
