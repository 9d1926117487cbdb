package vectorindex

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
)

func unitVector(seed int64, dim int) []float32 {
	r := rand.New(rand.NewSource(seed))
	v := make([]float32, dim)
	var sumSq float64
	for i := range v {
		x := r.Float64()*2 - 1
		v[i] = float32(x)
		sumSq += x * x
	}
	mag := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
	return v
}

func TestCosineIdentity(t *testing.T) {
	v := unitVector(1, 32)
	if got := Cosine(v, v); math.Abs(got-1) > 1e-6 {
		t.Fatalf("Cosine(v, v) = %v, want ~1", got)
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0, 0}
	if got := Cosine(a, b); got != 0 {
		t.Fatalf("Cosine with mismatched dims = %v, want 0", got)
	}
}

func TestCosineZeroMagnitude(t *testing.T) {
	a := []float32{0, 0, 0}
	b := unitVector(2, 3)
	if got := Cosine(a, b); got != 0 {
		t.Fatalf("Cosine with zero vector = %v, want 0", got)
	}
}

func TestIsUnitNorm(t *testing.T) {
	v := unitVector(3, 16)
	if !IsUnitNorm(v, 1e-4) {
		t.Fatalf("expected unit-norm vector to pass tolerance check")
	}
	scaled := make([]float32, len(v))
	for i := range v {
		scaled[i] = v[i] * 2
	}
	if IsUnitNorm(scaled, 1e-4) {
		t.Fatalf("expected scaled vector to fail tolerance check")
	}
}

func TestIndexInsertSearchBruteForce(t *testing.T) {
	idx := New(Config{BruteThreshold: 1000})

	target := unitVector(10, 32)
	idx.Insert("target", target, models.TierWorking, 0, time.Now())
	for i := 0; i < 20; i++ {
		idx.Insert(randID(i), unitVector(int64(100+i), 32), models.TierWorking, 0, time.Now())
	}

	results := idx.Search(target, 1, nil)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "target" {
		t.Fatalf("expected exact match 'target', got %q (score %v)", results[0].ID, results[0].Score)
	}
}

func TestIndexTierFilterBypassesCache(t *testing.T) {
	idx := New(Config{BruteThreshold: 1000})
	q := unitVector(5, 16)

	idx.Insert("working-1", unitVector(6, 16), models.TierWorking, 0, time.Now())
	idx.Insert("episodic-1", unitVector(7, 16), models.TierEpisodic, 0, time.Now())

	all := idx.Search(q, 10, nil)
	if len(all) != 2 {
		t.Fatalf("expected 2 unfiltered results, got %d", len(all))
	}

	filtered := idx.Search(q, 10, NewTierFilter(models.TierEpisodic))
	if len(filtered) != 1 || filtered[0].ID != "episodic-1" {
		t.Fatalf("expected only episodic-1 from filtered search, got %+v", filtered)
	}

	// Re-running the unfiltered search must still see both entries;
	// a tier-filtered search must never have poisoned the shared cache.
	all2 := idx.Search(q, 10, nil)
	if len(all2) != 2 {
		t.Fatalf("expected 2 unfiltered results after filtered search, got %d", len(all2))
	}
}

func TestIndexDeleteRemovesFromResults(t *testing.T) {
	idx := New(Config{BruteThreshold: 1000})
	q := unitVector(20, 8)
	idx.Insert("a", unitVector(21, 8), models.TierWorking, 0, time.Now())
	idx.Insert("b", unitVector(22, 8), models.TierWorking, 0, time.Now())

	idx.Delete("a")
	if idx.Len() != 1 {
		t.Fatalf("expected length 1 after delete, got %d", idx.Len())
	}

	results := idx.Search(q, 10, nil)
	for _, r := range results {
		if r.ID == "a" {
			t.Fatalf("deleted id 'a' still present in search results")
		}
	}
}

func TestIndexIVFPromotionAboveThreshold(t *testing.T) {
	idx := New(Config{BruteThreshold: 50, MaxClusters: 10, NProbe: 3})
	for i := 0; i < 200; i++ {
		idx.Insert(randID(i), unitVector(int64(i), 24), models.TierSemantic, 0, time.Now())
	}
	if idx.ivf == nil {
		t.Fatalf("expected IVF structure to be built once cardinality exceeds threshold")
	}

	q := unitVector(1000, 24)
	results := idx.Search(q, 5, nil)
	if len(results) != 5 {
		t.Fatalf("expected 5 results from IVF search, got %d", len(results))
	}
}

func TestPQQuantizeRoundTrip(t *testing.T) {
	var vectors [][]float32
	for i := 0; i < 50; i++ {
		vectors = append(vectors, unitVector(int64(i), 32))
	}

	cb, err := TrainPQ(vectors, 8)
	if err != nil {
		t.Fatalf("TrainPQ failed: %v", err)
	}

	code := cb.Quantize(vectors[0])
	score := cb.asymmetricScore(vectors[0], code)
	if score < 0.5 {
		t.Fatalf("expected reasonably high asymmetric score for self-quantized vector, got %v", score)
	}

	data, err := SaveCodebook(cb)
	if err != nil {
		t.Fatalf("SaveCodebook failed: %v", err)
	}
	loaded, err := LoadCodebook(data)
	if err != nil {
		t.Fatalf("LoadCodebook failed: %v", err)
	}
	if loaded.Subvectors != cb.Subvectors || loaded.SubDim != cb.SubDim {
		t.Fatalf("round-tripped codebook shape mismatch: got %d/%d, want %d/%d",
			loaded.Subvectors, loaded.SubDim, cb.Subvectors, cb.SubDim)
	}
}

func randID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "id-" + string(letters[i%len(letters)]) + string(rune('0'+i%10))
}
