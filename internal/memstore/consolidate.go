package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trinityvector/trinitymemory/internal/dedup"
	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/telemetry"
)

const consolidationTau = 0.7

var (
	consolidationMetricsOnce sync.Once
	consolidationMovedCounter metric.Int64Counter
)

func attributeStage(stage string) attribute.KeyValue {
	return attribute.String("stage", stage)
}

func consolidationMetrics() metric.Int64Counter {
	consolidationMetricsOnce.Do(func() {
		counter, err := telemetry.Meter().Int64Counter(
			"trinitymemory.consolidation.entries_moved",
			metric.WithDescription("entries promoted, clustered, pruned, or reduced per consolidation pass"),
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create consolidation metric instrument")
			return
		}
		consolidationMovedCounter = counter
	})
	return consolidationMovedCounter
}

// Consolidate runs one promotion pass across all three tiers:
//  1. Working entries with accessCount ≥ semantic_promotion_threshold
//     OR predictor score ≥ τ move to Episodic.
//  2. Episodic entries older than 7 days with predictor score ≥ τ are
//     clustered with similar Episodic entries; cluster representatives
//     replace their members in Semantic.
//  3. Episodic entries older than episodic_window with score < τ are
//     deleted outright.
//  4. Semantic is capped at max_semantic by re-clustering at a lower
//     threshold until the reduction target is met.
func (m *Manager) Consolidate() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	promoted := m.promoteWorkingToEpisodicLocked(now)
	clustered := m.promoteEpisodicToSemanticLocked(now)
	deleted := m.pruneStaleEpisodicLocked(now)
	reduced := m.capSemanticLocked()

	log.Info().
		Int("promoted_to_episodic", promoted).
		Int("clustered_to_semantic", clustered).
		Int("episodic_deleted", deleted).
		Int("semantic_reduced", reduced).
		Msg("consolidation pass complete")

	if counter := consolidationMetrics(); counter != nil {
		ctx := context.Background()
		counter.Add(ctx, int64(promoted), metric.WithAttributes(attributeStage("promoted")))
		counter.Add(ctx, int64(clustered), metric.WithAttributes(attributeStage("clustered")))
		counter.Add(ctx, int64(deleted), metric.WithAttributes(attributeStage("pruned")))
		counter.Add(ctx, int64(reduced), metric.WithAttributes(attributeStage("reduced")))
	}
}

func (m *Manager) promoteWorkingToEpisodicLocked(now time.Time) int {
	var toPromote []*models.Entry
	for _, e := range m.working {
		score := m.predictor.Score(e, now)
		if e.AccessCount >= m.cfg.SemanticPromotionThreshold || score >= consolidationTau {
			toPromote = append(toPromote, e)
		}
	}

	for _, e := range toPromote {
		delete(m.working, e.ID)
		e.Tier = models.TierEpisodic
		m.episodic[e.ID] = e
		m.index.Insert(e.ID, e.Embedding, e.Tier, e.AccessCount, e.LastAccessed)
	}
	return len(toPromote)
}

func (m *Manager) promoteEpisodicToSemanticLocked(now time.Time) int {
	var candidates []*models.Entry
	for _, e := range m.episodic {
		age := now.Sub(e.Created)
		if age <= 7*24*time.Hour {
			continue
		}
		if m.predictor.Score(e, now) < consolidationTau {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return 0
	}

	clusters := m.dedup.Cluster(candidates, m.cfg.SimilarityThreshold)

	moved := 0
	for _, cluster := range clusters {
		rep := repForSemantic(cluster)

		// Every member has moved to Semantic, including the one whose
		// id the representative reuses: it must leave m.episodic even
		// though its id and content survive unchanged.
		for _, member := range cluster {
			delete(m.episodic, member.ID)
			if member.ID != rep.ID {
				m.index.Delete(member.ID)
				m.graph.RemoveEntity(member.ID)
			}
		}

		m.semantic[rep.ID] = rep
		m.index.Insert(rep.ID, rep.Embedding, rep.Tier, rep.AccessCount, rep.LastAccessed)
		moved += len(cluster)
	}
	return moved
}

// repForSemantic builds a cluster's representative and retags it into
// the Semantic tier.
func repForSemantic(cluster []*models.Entry) *models.Entry {
	rep := dedup.Representative(cluster)
	rep.Tier = models.TierSemantic
	return rep
}

func (m *Manager) pruneStaleEpisodicLocked(now time.Time) int {
	var stale []string
	for id, e := range m.episodic {
		age := now.Sub(e.Metadata.Timestamp)
		if age > m.cfg.EpisodicWindow && m.predictor.Score(e, now) < consolidationTau {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(m.episodic, id)
		m.index.Delete(id)
		m.graph.RemoveEntity(id)
	}
	return len(stale)
}

func (m *Manager) capSemanticLocked() int {
	if m.cfg.MaxSemantic <= 0 || len(m.semantic) <= m.cfg.MaxSemantic {
		return 0
	}

	before := len(m.semantic)
	threshold := m.cfg.SimilarityThreshold

	for len(m.semantic) > m.cfg.MaxSemantic && threshold > 0.5 {
		entries := mapValues(m.semantic)
		clusters := m.dedup.Cluster(entries, threshold)

		next := make(map[string]*models.Entry, len(clusters))
		for _, cluster := range clusters {
			rep := repForSemantic(cluster)
			next[rep.ID] = rep
		}

		for id := range m.semantic {
			if _, kept := next[id]; !kept {
				m.index.Delete(id)
				m.graph.RemoveEntity(id)
			}
		}
		m.semantic = next
		for id, e := range m.semantic {
			m.index.Insert(id, e.Embedding, e.Tier, e.AccessCount, e.LastAccessed)
		}

		threshold -= 0.05
	}

	return before - len(m.semantic)
}
