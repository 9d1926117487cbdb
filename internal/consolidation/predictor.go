package consolidation

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
)

const (
	defaultLearningRate      = 0.01
	defaultConsolidationTau = 0.7
)

// state is the JSON-persisted form of a Predictor: weights plus the
// running count of training steps, matching the teacher's convention of
// JSON-blob persistence for small trained-model state.
type state struct {
	Weights       [FeatureCount]float64 `json:"weights"`
	TrainingCount int64                 `json:"training_count"`
}

// Predictor is an online logistic-regression consolidation scorer.
// Safe for concurrent use.
type Predictor struct {
	mu           sync.RWMutex
	weights      [FeatureCount]float64
	trainingCount int64
	learningRate float64
}

// New creates a predictor with weights drawn from Uniform(-0.1, 0.1).
func New() *Predictor {
	p := &Predictor{learningRate: defaultLearningRate}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range p.weights {
		p.weights[i] = r.Float64()*0.2 - 0.1
	}
	return p
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func dot(w, x [FeatureCount]float64) float64 {
	var sum float64
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

// Score returns σ(w·x) for entry's current feature vector.
func (p *Predictor) Score(entry *models.Entry, now time.Time) float64 {
	x := Features(entry, now)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sigmoid(dot(p.weights, x))
}

// ShouldConsolidate reports whether entry's score meets or exceeds τ
// (default 0.7).
func (p *Predictor) ShouldConsolidate(entry *models.Entry, now time.Time, tau float64) bool {
	if tau <= 0 {
		tau = defaultConsolidationTau
	}
	return p.Score(entry, now) >= tau
}

// Train applies a single SGD step on the log-loss for (entry, label),
// label ∈ {0, 1}.
func (p *Predictor) Train(entry *models.Entry, now time.Time, label float64) {
	x := Features(entry, now)

	p.mu.Lock()
	defer p.mu.Unlock()

	pred := sigmoid(dot(p.weights, x))
	errTerm := pred - label
	for i := range p.weights {
		p.weights[i] -= p.learningRate * errTerm * x[i]
	}
	p.trainingCount++
}

// TrainingCount returns the number of SGD steps applied so far.
func (p *Predictor) TrainingCount() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trainingCount
}

// Save atomically persists the predictor's weights and training count
// as a JSON blob (write-to-temp + rename, matching C6's persistence
// convention).
func (p *Predictor) Save(path string) error {
	p.mu.RLock()
	s := state{Weights: p.weights, TrainingCount: p.trainingCount}
	p.mu.RUnlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("consolidation: marshal predictor state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "predictor-*.tmp")
	if err != nil {
		return models.Wrap(models.ErrTransient, fmt.Errorf("consolidation: create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("consolidation: write predictor state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("consolidation: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return models.Wrap(models.ErrTransient, fmt.Errorf("consolidation: rename predictor state into place: %w", err))
	}
	return nil
}

// Load replaces the predictor's weights and training count with what's
// persisted at path.
func (p *Predictor) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("consolidation: read predictor state: %w", err)
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("consolidation: unmarshal predictor state: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.weights = s.Weights
	p.trainingCount = s.TrainingCount
	return nil
}
