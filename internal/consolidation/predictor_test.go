package consolidation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
)

func freshEntry(accessCount int, created time.Time, lastAccessed time.Time, confidence float64) *models.Entry {
	return &models.Entry{
		ID:           "e1",
		Embedding:    []float32{1, 0, 0},
		Tier:         models.TierWorking,
		AccessCount:  accessCount,
		Created:      created,
		LastAccessed: lastAccessed,
		Metadata: models.Metadata{
			Confidence: confidence,
			Tags:       models.NewStringSet("a", "b"),
			Timestamp:  created,
		},
	}
}

func TestFeaturesInRange(t *testing.T) {
	now := time.Now()
	entry := freshEntry(25, now.Add(-48*time.Hour), now.Add(-2*time.Hour), 0.8)
	features := Features(entry, now)
	for i, f := range features {
		if f < 0 || f > 1 {
			t.Fatalf("feature %d out of [0,1] range: %v", i, f)
		}
	}
}

func TestTrainReducesLossForPositiveLabel(t *testing.T) {
	p := New()
	now := time.Now()
	entry := freshEntry(40, now.Add(-100*time.Hour), now.Add(-1*time.Hour), 0.9)

	before := p.Score(entry, now)
	for i := 0; i < 50; i++ {
		p.Train(entry, now, 1.0)
	}
	after := p.Score(entry, now)

	if after <= before {
		t.Fatalf("expected score to increase toward positive label, before=%v after=%v", before, after)
	}
	if p.TrainingCount() != 50 {
		t.Fatalf("expected training count 50, got %d", p.TrainingCount())
	}
}

func TestShouldConsolidateThreshold(t *testing.T) {
	p := New()
	now := time.Now()
	entry := freshEntry(50, now.Add(-200*time.Hour), now.Add(-1*time.Minute), 1.0)

	for i := 0; i < 200; i++ {
		p.Train(entry, now, 1.0)
	}

	if !p.ShouldConsolidate(entry, now, 0.7) {
		t.Fatalf("expected heavily-trained-positive entry to clear consolidation threshold")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := New()
	now := time.Now()
	entry := freshEntry(10, now.Add(-10*time.Hour), now.Add(-1*time.Hour), 0.6)
	p.Train(entry, now, 1.0)
	p.Train(entry, now, 0.0)

	path := filepath.Join(t.TempDir(), "predictor.json")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.TrainingCount() != p.TrainingCount() {
		t.Fatalf("training count mismatch after round trip: got %d, want %d", loaded.TrainingCount(), p.TrainingCount())
	}

	origScore := p.Score(entry, now)
	loadedScore := loaded.Score(entry, now)
	if origScore != loadedScore {
		t.Fatalf("score mismatch after round trip: got %v, want %v", loadedScore, origScore)
	}
}
