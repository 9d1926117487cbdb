// Package vectorindex implements the shared top-K approximate nearest
// neighbor index (C3): a brute-force exact path below a cardinality
// threshold, an IVF approximate path above it, a result cache, and
// optional product-quantized storage for the semantic tier.
package vectorindex

import (
	"sort"
	"sync"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
)

// TierFilter restricts a search to a subset of tiers; nil means "all
// tiers".
type TierFilter map[models.Tier]struct{}

// NewTierFilter builds a filter from the given tiers.
func NewTierFilter(tiers ...models.Tier) TierFilter {
	f := make(TierFilter, len(tiers))
	for _, t := range tiers {
		f[t] = struct{}{}
	}
	return f
}

func (f TierFilter) allows(t models.Tier) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[t]
	return ok
}

type record struct {
	id           string
	vector       []float32
	tier         models.Tier
	accessCount  int
	lastAccessed time.Time
	quantized    *pqCode
}

// Index is the vector index shared across all three memory tiers.
type Index struct {
	mu sync.RWMutex

	records map[string]*record

	bruteThreshold int
	nprobe         int
	maxClusters    int

	ivf *ivfIndex // built lazily once cardinality crosses bruteThreshold

	cache *resultCache
	pq    *pqCodebook // nil until Train is called
}

// Config controls index construction.
type Config struct {
	BruteThreshold int
	NProbe         int
	MaxClusters    int
	CacheSize      int
	PQSubvectors   int
}

// New creates an empty vector index.
func New(cfg Config) *Index {
	if cfg.BruteThreshold <= 0 {
		cfg.BruteThreshold = 1000
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 5
	}
	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = 100
	}
	return &Index{
		records:        make(map[string]*record),
		bruteThreshold: cfg.BruteThreshold,
		nprobe:         cfg.NProbe,
		maxClusters:    cfg.MaxClusters,
		cache:          newResultCache(int64(cfg.CacheSize)),
	}
}

// Insert adds or replaces the vector for id, tagged with its tier and
// access-accounting fields used for tie-breaking in brute-force search.
func (idx *Index) Insert(id string, vector []float32, tier models.Tier, accessCount int, lastAccessed time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.records[id] = &record{
		id:           id,
		vector:       vector,
		tier:         tier,
		accessCount:  accessCount,
		lastAccessed: lastAccessed,
	}

	idx.rebuildIVFLocked()
	idx.cache.clear()
}

// Delete removes id from the index.
func (idx *Index) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.records, id)
	if idx.ivf != nil {
		idx.ivf.remove(id)
	}
	idx.cache.clear()
}

// Touch updates the access-accounting fields used by brute-force
// tie-breaking, without touching the cache (search-path bumps happen
// on every hit and must not thrash the cache).
func (idx *Index) Touch(id string, accessCount int, lastAccessed time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if r, ok := idx.records[id]; ok {
		r.accessCount = accessCount
		r.lastAccessed = lastAccessed
	}
}

// Len returns the live cardinality of the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// rebuildIVFLocked (re)builds or tears down the IVF structure depending
// on whether live cardinality has crossed bruteThreshold. Called with
// idx.mu held for writing.
func (idx *Index) rebuildIVFLocked() {
	n := len(idx.records)
	if n < idx.bruteThreshold {
		idx.ivf = nil
		return
	}

	if idx.ivf == nil {
		vectors := make(map[string][]float32, n)
		for id, r := range idx.records {
			vectors[id] = r.vector
		}
		idx.ivf = newIVFIndex(vectors, idx.maxClusters, idx.nprobe)
		return
	}

	// Already built: incrementally reassign every live record to its
	// nearest existing centroid (which picks up new and replaced
	// vectors), per spec's "stability via incremental reassign". The
	// centroids themselves are not recomputed.
	for id, r := range idx.records {
		idx.ivf.reassign(id, r.vector)
	}
}

// Search returns up to k nearest neighbors to query by cosine
// similarity, optionally restricted to tiers. Ties are broken by
// higher access count first, then newer lastAccessed.
func (idx *Index) Search(query []float32, k int, tiers TierFilter) []Result {
	// The cache key is (query-hash, k) only, per spec; a tier-filtered
	// query would either poison the cache for unfiltered callers or
	// silently return results outside the requested tiers, so
	// tier-filtered searches bypass the cache rather than taking the
	// coarser whole-cache-clear option for every filtered query.
	cacheable := len(tiers) == 0
	if cacheable {
		if cached, ok := idx.cache.get(query, k); ok {
			return cached
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var candidateIDs []string
	if idx.ivf != nil {
		candidateIDs = idx.ivf.probe(query)
	} else {
		candidateIDs = make([]string, 0, len(idx.records))
		for id := range idx.records {
			candidateIDs = append(candidateIDs, id)
		}
	}

	type scored struct {
		rec   *record
		score float64
	}
	scoredCandidates := make([]scored, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		r, ok := idx.records[id]
		if !ok {
			continue
		}
		if !tiers.allows(r.tier) {
			continue
		}
		score := idx.scoreLocked(r, query)
		scoredCandidates = append(scoredCandidates, scored{rec: r, score: score})
	}

	sort.Slice(scoredCandidates, func(i, j int) bool {
		a, b := scoredCandidates[i], scoredCandidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.rec.accessCount != b.rec.accessCount {
			return a.rec.accessCount > b.rec.accessCount
		}
		return a.rec.lastAccessed.After(b.rec.lastAccessed)
	})

	if k > len(scoredCandidates) {
		k = len(scoredCandidates)
	}

	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{ID: scoredCandidates[i].rec.id, Score: scoredCandidates[i].score}
	}

	if cacheable {
		idx.cache.put(query, k, out)
	}
	return out
}

// scoreLocked computes the similarity between query and r, using
// asymmetric PQ distance when r has been quantized.
func (idx *Index) scoreLocked(r *record, query []float32) float64 {
	if r.quantized != nil && idx.pq != nil {
		return idx.pq.asymmetricScore(query, r.quantized)
	}
	return Cosine(query, r.vector)
}

// HitRate exposes the result cache's hit-rate counter.
func (idx *Index) HitRate() float64 {
	return idx.cache.hitRate()
}
