package memstore

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

func unitVec(x, y, z float32) []float32 {
	v := []float32{x, y, z}
	var sumSq float64
	for _, c := range v {
		sumSq += float64(c) * float64(c)
	}
	mag := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
	return v
}

func obs(label string, confidence float64, embedding []float32) (*models.Observation, []float32) {
	return &models.Observation{
		Timestamp: time.Now(),
		DetectedObjects: []models.Detected{
			{ID: "d1", Label: label, Confidence: confidence},
		},
	}, embedding
}

func newTestConfig(t *testing.T) *models.Config {
	cfg := models.DefaultConfig()
	cfg.StoragePath = t.TempDir()
	cfg.Memory.MaxWorking = 3
	return cfg
}

func TestAddObservationRejectsLowConfidence(t *testing.T) {
	m := New(newTestConfig(t))
	o, e := obs("person", 0.5, unitVec(1, 0, 0))
	entry, stored := m.AddObservation(o, e)
	if stored || entry != nil {
		t.Fatalf("expected low-confidence observation to be rejected")
	}
}

func TestAddObservationStoresAdmitted(t *testing.T) {
	m := New(newTestConfig(t))
	o, e := obs("person", 0.9, unitVec(1, 0, 0))
	entry, stored := m.AddObservation(o, e)
	if !stored || entry == nil {
		t.Fatalf("expected admitted observation to be stored")
	}
	if entry.Tier != models.TierWorking {
		t.Fatalf("expected new entry in Working tier, got %s", entry.Tier)
	}
	if m.Stats().Working != 1 {
		t.Fatalf("expected 1 working entry, got %d", m.Stats().Working)
	}
}

func TestAddObservationMergesDuplicate(t *testing.T) {
	m := New(newTestConfig(t))
	v := unitVec(1, 0, 0)

	o1, e1 := obs("person", 0.9, v)
	first, _ := m.AddObservation(o1, e1)

	o2, e2 := obs("person", 0.9, v)
	second, stored := m.AddObservation(o2, e2)
	if !stored {
		t.Fatalf("expected duplicate observation to still report stored=true (merge)")
	}
	if second.ID != first.ID {
		t.Fatalf("expected merge to preserve original id: got %q, want %q", second.ID, first.ID)
	}
	if m.Stats().Working != 1 {
		t.Fatalf("expected merge to keep working count at 1, got %d", m.Stats().Working)
	}
}

func TestEvictWorkingEnforcesMaxWorking(t *testing.T) {
	m := New(newTestConfig(t)) // MaxWorking = 3

	vectors := [][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {1, 0, 1}}
	for i, v := range vectors {
		o, e := obs("obstacle", 0.9, unitVec(v[0], v[1], v[2]))
		_, stored := m.AddObservation(o, e)
		if !stored {
			t.Fatalf("observation %d unexpectedly rejected", i)
		}
	}

	if got := m.Stats().Working; got > 3 {
		t.Fatalf("expected working tier capped at 3, got %d", got)
	}
}

func TestSearchBumpsAccessAccounting(t *testing.T) {
	m := New(newTestConfig(t))
	v := unitVec(1, 0, 0)
	o, e := obs("person", 0.9, v)
	entry, _ := m.AddObservation(o, e)

	results := m.Search(v, 1, nil)
	if len(results) != 1 {
		t.Fatalf("expected 1 search result, got %d", len(results))
	}
	if results[0].AccessCount != entry.AccessCount {
		// entry is the same pointer stored in the manager's map, so this
		// also verifies Touch mutated it in place.
		t.Fatalf("expected access count to be bumped on search")
	}
	if results[0].AccessCount < 1 {
		t.Fatalf("expected access count >= 1 after one search hit, got %d", results[0].AccessCount)
	}
}

func TestClearTier(t *testing.T) {
	m := New(newTestConfig(t))
	o, e := obs("person", 0.9, unitVec(1, 0, 0))
	m.AddObservation(o, e)

	tier := models.TierWorking
	m.Clear(&tier)

	if m.Stats().Working != 0 {
		t.Fatalf("expected working tier cleared, got %d entries", m.Stats().Working)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := newTestConfig(t)
	m := New(cfg)
	o, e := obs("person", 0.9, unitVec(1, 0, 0))
	original, _ := m.AddObservation(o, e)
	m.Predictor().Train(original, time.Now(), 1.0)
	trainedCount := m.Predictor().TrainingCount()

	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := New(cfg)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, ok := reloaded.Get(original.ID)
	if !ok {
		t.Fatalf("expected reloaded manager to contain entry %q", original.ID)
	}
	if got.Metadata.ObjectType != "person" {
		t.Fatalf("expected object type to round-trip, got %q", got.Metadata.ObjectType)
	}
	if reloaded.Predictor().TrainingCount() != trainedCount {
		t.Fatalf("expected predictor training count to round-trip, got %d want %d", reloaded.Predictor().TrainingCount(), trainedCount)
	}

	if _, err := os.Stat(filepath.Join(cfg.StoragePath, configFileName)); err != nil {
		t.Fatalf("expected config.json to be written: %v", err)
	}
}

func TestExportImportMergePrefersNewer(t *testing.T) {
	cfg := newTestConfig(t)
	m := New(cfg)
	o, e := obs("person", 0.9, unitVec(1, 0, 0))
	original, _ := m.AddObservation(o, e)

	exportDir := filepath.Join(t.TempDir(), "bundle")
	if err := m.Export(exportDir); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	fresh := New(newTestConfig(t))
	if err := fresh.Import(exportDir); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	got, ok := fresh.Get(original.ID)
	if !ok {
		t.Fatalf("expected imported entry %q to be present", original.ID)
	}
	if got.Metadata.ObjectType != "person" {
		t.Fatalf("expected object type to survive import, got %q", got.Metadata.ObjectType)
	}
}

func TestConsolidatePromotesHighAccessWorkingEntries(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Memory.SemanticPromotionThreshold = 2
	m := New(cfg)

	o, e := obs("person", 0.9, unitVec(1, 0, 0))
	entry, _ := m.AddObservation(o, e)
	entry.AccessCount = 5 // force promotion regardless of predictor score

	m.Consolidate()

	if _, ok := m.working[entry.ID]; ok {
		t.Fatalf("expected high-access entry to leave Working tier")
	}
	if _, ok := m.episodic[entry.ID]; !ok {
		t.Fatalf("expected high-access entry to be promoted to Episodic tier")
	}
}

func TestConsolidatePromotesSingletonEpisodicClusterToSemantic(t *testing.T) {
	cfg := newTestConfig(t)
	m := New(cfg)

	o, e := obs("person", 0.9, unitVec(1, 0, 0))
	entry, _ := m.AddObservation(o, e)
	entry.Tier = models.TierEpisodic
	delete(m.working, entry.ID)
	m.episodic[entry.ID] = entry

	now := time.Now()
	entry.Created = now.Add(-10 * 24 * time.Hour)
	entry.Metadata.Timestamp = now.Add(-10 * 24 * time.Hour)

	// Train the shared predictor past consolidationTau so the single-entry
	// cluster's representative (which reuses the entry's own id, since
	// dedup.Representative clones a singleton cluster's sole member)
	// qualifies for promotion.
	for i := 0; i < 200; i++ {
		m.predictor.Train(entry, now, 1.0)
	}
	if m.predictor.Score(entry, now) < consolidationTau {
		t.Fatalf("expected predictor score to clear consolidationTau after training")
	}

	m.Consolidate()

	if _, ok := m.episodic[entry.ID]; ok {
		t.Fatalf("expected promoted entry to leave the Episodic tier, id %q still present in both tiers", entry.ID)
	}
	if _, ok := m.semantic[entry.ID]; !ok {
		t.Fatalf("expected promoted entry to land in the Semantic tier under id %q", entry.ID)
	}
}

func TestTierFilterOnManagerSearch(t *testing.T) {
	m := New(newTestConfig(t))
	v := unitVec(1, 0, 0)
	o, e := obs("person", 0.9, v)
	m.AddObservation(o, e)

	filtered := m.Search(v, 5, vectorindex.NewTierFilter(models.TierSemantic))
	if len(filtered) != 0 {
		t.Fatalf("expected no results when filtering to a tier with no entries, got %d", len(filtered))
	}
}
