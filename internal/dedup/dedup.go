// Package dedup implements the type-adaptive deduplication engine (C4):
// fused-similarity duplicate detection, merge, and greedy clustering
// over memory entries.
package dedup

import (
	"strings"
	"sync"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

const (
	weightCosine      = 0.6
	weightTagJaccard  = 0.2
	weightCatJaccard  = 0.2

	lowConfidenceBump = 0.04
	lowConfidenceCut  = 0.5
)

var baseThresholds = map[string]float64{
	"person":   0.97,
	"object":   0.95,
	"place":    0.93,
	"location": 0.93,
	"scene":    0.90,
}

const defaultBaseThreshold = 0.95

// Engine is the deduplication engine. It holds the location-tolerance
// configuration plus any user-supplied per-type threshold overrides
// installed via UpdateContextualThreshold.
type Engine struct {
	mu                 sync.RWMutex
	locationToleranceM float64
	overrides          map[string]float64
}

// New builds a deduplication engine from the given config.
func New(cfg models.DedupConfig) *Engine {
	return &Engine{
		locationToleranceM: cfg.LocationToleranceM,
		overrides:          make(map[string]float64),
	}
}

// UpdateContextualThreshold installs a user override for object_type's
// base threshold, replacing the built-in default for future decisions.
func (e *Engine) UpdateContextualThreshold(objectType string, tau float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[strings.ToLower(objectType)] = tau
}

// AdjustThreshold returns the type-adjusted threshold τ for objectType
// given the candidate's confidence: low confidence raises τ (stricter)
// by up to lowConfidenceBump; confidence at or above lowConfidenceCut
// leaves τ unchanged.
func (e *Engine) AdjustThreshold(objectType string, confidence float64) float64 {
	key := strings.ToLower(objectType)

	e.mu.RLock()
	tau, ok := e.overrides[key]
	e.mu.RUnlock()
	if !ok {
		tau, ok = baseThresholds[key]
		if !ok {
			tau = defaultBaseThreshold
		}
	}

	if confidence < lowConfidenceCut {
		deficit := lowConfidenceCut - confidence
		bump := deficit * lowConfidenceBump / lowConfidenceCut
		if bump > lowConfidenceBump {
			bump = lowConfidenceBump
		}
		tau += bump
	}
	if tau > 1 {
		tau = 1
	}
	return tau
}

// fusedScore combines cosine similarity, tag Jaccard, and category
// Jaccard per the 0.6/0.2/0.2 weighting.
func fusedScore(a, b *models.Entry) float64 {
	cosine := vectorindex.Cosine(a.Embedding, b.Embedding)

	var catA, catB models.StringSet
	if a.Enhanced != nil {
		catA = a.Enhanced.Categories
	}
	if b.Enhanced != nil {
		catB = b.Enhanced.Categories
	}

	return weightCosine*cosine +
		weightTagJaccard*a.Metadata.Tags.Jaccard(b.Metadata.Tags) +
		weightCatJaccard*catA.Jaccard(catB)
}

func sameObjectType(a, b *models.Entry) bool {
	return strings.EqualFold(a.Metadata.ObjectType, b.Metadata.ObjectType)
}

func locationRelaxed(objectType string) bool {
	switch strings.ToLower(objectType) {
	case "scene", "place", "location":
		return true
	default:
		return false
	}
}

// isDuplicate reports whether candidate is a duplicate of existing per
// spec: matching object type, fused score at/above the type-adjusted
// threshold, and (when both carry a location and the type isn't
// location-relaxed) geodesic proximity within the configured tolerance.
func (e *Engine) isDuplicate(existing, candidate *models.Entry) bool {
	if !sameObjectType(existing, candidate) {
		return false
	}

	tau := e.AdjustThreshold(candidate.Metadata.ObjectType, candidate.Metadata.Confidence)
	if fusedScore(existing, candidate) < tau {
		return false
	}

	if existing.Metadata.Location != nil && candidate.Metadata.Location != nil {
		if !locationRelaxed(candidate.Metadata.ObjectType) {
			dist := haversineMeters(*existing.Metadata.Location, *candidate.Metadata.Location)
			if dist > e.locationToleranceM {
				return false
			}
		}
	}

	return true
}

// FindDuplicate scans among for the first entry that candidate is a
// duplicate of, per the fused-similarity rule. Returns (nil, false) if
// none match.
func (e *Engine) FindDuplicate(candidate *models.Entry, among []*models.Entry) (*models.Entry, bool) {
	for _, existing := range among {
		if e.isDuplicate(existing, candidate) {
			return existing, true
		}
	}
	return nil, false
}

// Merge combines new into existing per the merge policy: existing's id
// survives, embedding is the renormalized mean, tags union, confidence
// max, the longer description wins ties favoring existing, access
// counts sum (plus one for the merge event itself), spatial data comes
// from the higher-confidence side, and connection lists union by
// target id keeping the stronger edge.
func Merge(existing, incoming *models.Entry) *models.Entry {
	merged := existing.Clone()

	merged.Embedding = renormalizedMean(existing.Embedding, incoming.Embedding)
	merged.Metadata.Tags = existing.Metadata.Tags.Union(incoming.Metadata.Tags)

	if incoming.Metadata.Confidence > merged.Metadata.Confidence {
		merged.Metadata.Confidence = incoming.Metadata.Confidence
	}

	if len(incoming.Metadata.Description) > len(existing.Metadata.Description) {
		merged.Metadata.Description = incoming.Metadata.Description
	}

	merged.AccessCount = existing.AccessCount + 1 + incoming.AccessCount
	merged.LastAccessed = time.Now()

	if incoming.Metadata.Confidence > existing.Metadata.Confidence && incoming.Metadata.Spatial != nil {
		sd := *incoming.Metadata.Spatial
		merged.Metadata.Spatial = &sd
	}

	if existing.Enhanced != nil || incoming.Enhanced != nil {
		mergeEnhanced(merged, existing, incoming)
	}

	return merged
}

func mergeEnhanced(merged, existing, incoming *models.Entry) {
	if merged.Enhanced == nil {
		merged.Enhanced = &models.EnhancedEntry{}
	}
	if incoming.Enhanced == nil {
		return
	}

	if merged.Enhanced.Categories == nil {
		merged.Enhanced.Categories = models.NewStringSet()
	}
	merged.Enhanced.Categories = merged.Enhanced.Categories.Union(incoming.Enhanced.Categories)

	if incoming.Enhanced.Importance > merged.Enhanced.Importance {
		merged.Enhanced.Importance = incoming.Enhanced.Importance
	}

	merged.Enhanced.Connections = unionConnections(merged.Enhanced.Connections, incoming.Enhanced.Connections)
}

// unionConnections merges two connection lists by target id, keeping
// whichever edge has the higher strength on a collision.
func unionConnections(a, b []models.Connection) []models.Connection {
	byTarget := make(map[string]models.Connection, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))

	add := func(c models.Connection) {
		if existing, ok := byTarget[c.TargetID]; !ok {
			byTarget[c.TargetID] = c
			order = append(order, c.TargetID)
		} else if c.Strength > existing.Strength {
			byTarget[c.TargetID] = c
		}
	}
	for _, c := range a {
		add(c)
	}
	for _, c := range b {
		add(c)
	}

	out := make([]models.Connection, 0, len(order))
	for _, id := range order {
		out = append(out, byTarget[id])
	}
	return out
}

// renormalizedMean returns the component-wise mean of a and b,
// renormalized to unit length.
func renormalizedMean(a, b []float32) []float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	mean := make([]float32, n)
	for i := 0; i < n; i++ {
		mean[i] = (a[i] + b[i]) / 2
	}
	return vectorindex.NormalizeInPlace(mean)
}

// Cluster performs greedy single-linkage clustering: each entry joins
// the first existing cluster whose representative satisfies the fused
// threshold, else starts a new cluster.
func (e *Engine) Cluster(entries []*models.Entry, threshold float64) [][]*models.Entry {
	var clusters [][]*models.Entry
	var representatives []*models.Entry

	for _, entry := range entries {
		placed := false
		for i, rep := range representatives {
			if fusedScore(rep, entry) >= threshold {
				clusters[i] = append(clusters[i], entry)
				representatives[i] = Representative(clusters[i])
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []*models.Entry{entry})
			representatives = append(representatives, entry)
		}
	}
	return clusters
}

// Representative synthesizes a cluster's representative entry:
// centroid (renormalized mean) embedding, union of tags, max
// importance, summed access counts, earliest timestamp.
func Representative(cluster []*models.Entry) *models.Entry {
	if len(cluster) == 0 {
		return nil
	}
	if len(cluster) == 1 {
		return cluster[0].Clone()
	}

	rep := cluster[0].Clone()
	rep.Metadata.Tags = models.NewStringSet()
	rep.AccessCount = 0

	dim := len(cluster[0].Embedding)
	sum := make([]float32, dim)
	var maxImportance float64

	for _, e := range cluster {
		for i := 0; i < dim && i < len(e.Embedding); i++ {
			sum[i] += e.Embedding[i]
		}
		rep.Metadata.Tags = rep.Metadata.Tags.Union(e.Metadata.Tags)
		rep.AccessCount += e.AccessCount

		if e.Enhanced != nil && e.Enhanced.Importance > maxImportance {
			maxImportance = e.Enhanced.Importance
		}
		if e.Created.Before(rep.Created) {
			rep.Created = e.Created
			rep.Metadata.Timestamp = e.Metadata.Timestamp
		}
	}

	mean := make([]float32, dim)
	for i := range mean {
		mean[i] = sum[i] / float32(len(cluster))
	}
	rep.Embedding = vectorindex.NormalizeInPlace(mean)

	if maxImportance > 0 {
		if rep.Enhanced == nil {
			rep.Enhanced = &models.EnhancedEntry{}
		}
		rep.Enhanced.Importance = maxImportance
	}

	return rep
}
