// Package memstore implements the three-tier memory manager (C6): the
// Working/Episodic/Semantic containers, ingestion with deduplication,
// search with access-accounting, consolidation, persistence, and the
// optional trigger/graph/cache-mirror infrastructure layered on top of
// the shared vector index.
package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/trinityvector/trinitymemory/internal/consolidation"
	"github.com/trinityvector/trinitymemory/internal/dedup"
	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

const recentEpisodicDedupWindow = 1000

// Manager coordinates the three memory tiers, the shared vector index,
// the deduplication engine, and the consolidation predictor. Safe for
// concurrent use.
type Manager struct {
	mu sync.RWMutex

	cfg     models.MemoryConfig
	fullCfg *models.Config

	index     *vectorindex.Index
	dedup     *dedup.Engine
	predictor *consolidation.Predictor

	working  map[string]*models.Entry
	episodic map[string]*models.Entry
	semantic map[string]*models.Entry

	admission AdmissionPolicy
	graph     ConnectionGraph
	triggers  TriggerStore // optional; nil when not configured

	storagePath string
}

// Option configures optional Manager dependencies beyond the defaults.
type Option func(*Manager)

// WithAdmissionPolicy overrides the default ingestion admission policy.
func WithAdmissionPolicy(p AdmissionPolicy) Option {
	return func(m *Manager) { m.admission = p }
}

// WithConnectionGraph overrides the default in-memory connection graph.
func WithConnectionGraph(g ConnectionGraph) Option {
	return func(m *Manager) { m.graph = g }
}

// WithTriggerStore installs a trigger index (e.g. BadgerTriggerStore).
func WithTriggerStore(t TriggerStore) Option {
	return func(m *Manager) { m.triggers = t }
}

// New builds a Manager from the given memory/index/dedup config and
// storage root.
func New(cfg *models.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg.Memory,
		fullCfg: cfg,
		index: vectorindex.New(vectorindex.Config{
			BruteThreshold: cfg.Index.BruteThreshold,
			NProbe:         cfg.Index.NProbe,
			MaxClusters:    cfg.Index.MaxClusters,
			CacheSize:      cfg.Index.CacheSize,
			PQSubvectors:   cfg.Index.PQSubvectors,
		}),
		dedup:       dedup.New(cfg.Dedup),
		predictor:   consolidation.New(),
		working:     make(map[string]*models.Entry),
		episodic:    make(map[string]*models.Entry),
		semantic:    make(map[string]*models.Entry),
		admission:   DefaultAdmissionPolicy,
		graph:       NewMemoryGraph(),
		storagePath: cfg.StoragePath,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) tierMap(tier models.Tier) map[string]*models.Entry {
	switch tier {
	case models.TierWorking:
		return m.working
	case models.TierEpisodic:
		return m.episodic
	case models.TierSemantic:
		return m.semantic
	default:
		return nil
	}
}

// buildCandidate constructs an unstored Entry from an observation and
// its embedding.
func buildCandidate(obs *models.Observation, embedding []float32) *models.Entry {
	tags := models.NewStringSet()
	var spatial *models.SpatialData
	for _, d := range obs.DetectedObjects {
		tags.Add(d.Label)
		if d.Spatial != nil && spatial == nil {
			spatial = d.Spatial
		}
	}

	now := obs.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	return &models.Entry{
		ID:           newEntryID(),
		Embedding:    embedding,
		Tier:         models.TierWorking,
		AccessCount:  0,
		LastAccessed: now,
		Created:      now,
		Metadata: models.Metadata{
			ObjectType:  obs.PrimaryLabel(),
			Confidence:  obs.PrimaryConfidence(),
			Tags:        tags,
			Spatial:     spatial,
			Timestamp:   now,
			Location:    obs.Location,
		},
	}
}

var entryIDCounter struct {
	mu sync.Mutex
	n  uint64
}

// newEntryID produces a process-unique entry id. Timestamp-based ids
// collide under rapid ingestion, so a monotonic counter is folded in.
func newEntryID() string {
	entryIDCounter.mu.Lock()
	entryIDCounter.n++
	n := entryIDCounter.n
	entryIDCounter.mu.Unlock()
	return fmt.Sprintf("entry-%d-%d", time.Now().UnixNano(), n)
}

// recentEpisodic returns up to recentEpisodicDedupWindow episodic
// entries, most-recent-by-timestamp first, per the bounded dedup scan
// spec.md prescribes for the episodic tier.
func (m *Manager) recentEpisodic() []*models.Entry {
	out := make([]*models.Entry, 0, len(m.episodic))
	for _, e := range m.episodic {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.Timestamp.After(out[j].Metadata.Timestamp)
	})
	if len(out) > recentEpisodicDedupWindow {
		out = out[:recentEpisodicDedupWindow]
	}
	return out
}

func mapValues(m map[string]*models.Entry) []*models.Entry {
	out := make([]*models.Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// AddObservation runs the ingestion admission policy, then dedup
// against Working then (bounded) Episodic, merging on a hit or
// inserting fresh otherwise. It returns the stored/merged entry and
// whether it was actually admitted and stored.
func (m *Manager) AddObservation(obs *models.Observation, embedding []float32) (*models.Entry, bool) {
	if !m.admission(obs) {
		log.Debug().Str("label", obs.PrimaryLabel()).Msg("observation rejected by admission policy")
		return nil, false
	}

	candidate := buildCandidate(obs, embedding)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.dedup.FindDuplicate(candidate, mapValues(m.working)); ok {
		return m.mergeLocked(existing, candidate), true
	}
	if existing, ok := m.dedup.FindDuplicate(candidate, m.recentEpisodic()); ok {
		return m.mergeLocked(existing, candidate), true
	}

	m.working[candidate.ID] = candidate
	m.index.Insert(candidate.ID, candidate.Embedding, candidate.Tier, candidate.AccessCount, candidate.LastAccessed)

	m.evictWorkingLocked()

	return candidate, true
}

// mergeLocked merges candidate into existing in place (existing's
// tier's map and the index), per the merge-preserves-existing-id
// invariant. Called with m.mu held.
func (m *Manager) mergeLocked(existing, candidate *models.Entry) *models.Entry {
	merged := dedup.Merge(existing, candidate)
	m.tierMap(existing.Tier)[merged.ID] = merged
	m.index.Insert(merged.ID, merged.Embedding, merged.Tier, merged.AccessCount, merged.LastAccessed)
	return merged
}

// evictWorkingLocked enforces invariant 4 (Working cardinality ≤
// max_working) by dropping the least-recently-accessed entries.
// Evicted entries are dropped outright, not cascaded, per spec.md.
// Called with m.mu held.
func (m *Manager) evictWorkingLocked() {
	limit := m.cfg.MaxWorking
	if limit <= 0 || len(m.working) <= limit {
		return
	}

	entries := mapValues(m.working)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessed.Before(entries[j].LastAccessed)
	})

	overflow := len(entries) - limit
	for i := 0; i < overflow; i++ {
		id := entries[i].ID
		delete(m.working, id)
		m.index.Delete(id)
		m.graph.RemoveEntity(id)
	}
}

// EvictWorking runs the Working-tier LRU eviction pass directly,
// useful for callers driving their own maintenance cadence instead of
// relying on insertion-triggered eviction.
func (m *Manager) EvictWorking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictWorkingLocked()
}

// Search probes the shared index, optionally restricted to tiers, and
// bumps access accounting for every returned entry before returning
// (update-before-return, per spec.md's ordering requirement).
func (m *Manager) Search(query []float32, k int, tiers vectorindex.TierFilter) []*models.Entry {
	results := m.index.Search(query, k, tiers)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]*models.Entry, 0, len(results))
	for _, r := range results {
		entry := m.findLocked(r.ID)
		if entry == nil {
			continue
		}
		entry.Touch(now)
		m.index.Touch(entry.ID, entry.AccessCount, entry.LastAccessed)
		out = append(out, entry)
	}
	return out
}

func (m *Manager) findLocked(id string) *models.Entry {
	if e, ok := m.working[id]; ok {
		return e
	}
	if e, ok := m.episodic[id]; ok {
		return e
	}
	if e, ok := m.semantic[id]; ok {
		return e
	}
	return nil
}

// Get returns the entry with id, looked up across all three tiers, and
// whether it was found.
func (m *Manager) Get(id string) (*models.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e := m.findLocked(id)
	return e, e != nil
}

// Clear empties tier, or every tier when tier is nil.
func (m *Manager) Clear(tier *models.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clearOne := func(t models.Tier) {
		for id := range m.tierMap(t) {
			m.index.Delete(id)
			m.graph.RemoveEntity(id)
		}
		switch t {
		case models.TierWorking:
			m.working = make(map[string]*models.Entry)
		case models.TierEpisodic:
			m.episodic = make(map[string]*models.Entry)
		case models.TierSemantic:
			m.semantic = make(map[string]*models.Entry)
		}
	}

	if tier == nil {
		clearOne(models.TierWorking)
		clearOne(models.TierEpisodic)
		clearOne(models.TierSemantic)
		return
	}
	clearOne(*tier)
}

// Stats summarizes tier cardinalities and index health for diagnostics.
type Stats struct {
	Working, Episodic, Semantic int
	IndexCacheHitRate           float64
}

// Stats reports current tier sizes and index cache hit rate.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Working:           len(m.working),
		Episodic:          len(m.episodic),
		Semantic:          len(m.semantic),
		IndexCacheHitRate: m.index.HitRate(),
	}
}

// ConnectionGraph exposes the manager's connection-edge store, e.g.
// for the conceptual store to attach Hybrid-record edges.
func (m *Manager) ConnectionGraph() ConnectionGraph {
	return m.graph
}

// Predictor exposes the shared consolidation predictor.
func (m *Manager) Predictor() *consolidation.Predictor {
	return m.predictor
}

// Index exposes the shared vector index for components (e.g. the
// conceptual store) that need to insert into the same search space.
func (m *Manager) Index() *vectorindex.Index {
	return m.index
}

// TriggersForType returns every stored trigger definition of t, active
// or not, or an empty slice when no trigger store is configured.
func (m *Manager) TriggersForType(t models.TriggerType) ([]models.Trigger, error) {
	if m.triggers == nil {
		return nil, nil
	}
	return m.triggers.ByType(t)
}
