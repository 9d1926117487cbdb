package models

import "time"

// MemoryConfig controls the three-tier memory manager (C6).
type MemoryConfig struct {
	MaxWorking                 int           `json:"max_working"`
	EpisodicWindow              time.Duration `json:"episodic_window"`
	SimilarityThreshold         float64       `json:"similarity_threshold"`
	SemanticPromotionThreshold  int           `json:"semantic_promotion_threshold"`
	MaxSemantic                 int           `json:"max_semantic"`
	AutoConsolidation           bool          `json:"auto_consolidation"`
	ConsolidationInterval       time.Duration `json:"consolidation_interval"`
}

// PerformanceConfig controls index/pipeline throughput tuning.
type PerformanceConfig struct {
	ProcessingInterval     time.Duration `json:"processing_interval"`
	MaxConcurrentEmbeddings int          `json:"max_concurrent_embeddings"`
	BatchSize              int           `json:"batch_size"`
	VectorSearchTopK       int           `json:"vector_search_topk"`
	EmbeddingCacheSize     int           `json:"embedding_cache_size"`
}

// PerceptionConfig tunes the (external) perception collaborator's gate.
type PerceptionConfig struct {
	MinConfidence float64 `json:"min_confidence"`
}

// NavigationConfig tunes distance thresholds for the (external)
// navigation collaborator's safety classification.
type NavigationConfig struct {
	CriticalDistanceM float64 `json:"critical_distance_m"`
	WarningDistanceM  float64 `json:"warning_distance_m"`
	SafeDistanceM     float64 `json:"safe_distance_m"`
}

// CommunicationConfig tunes the (external) communication collaborator.
type CommunicationConfig struct {
	Verbosity    int    `json:"verbosity"` // 0, 1, 2
	LanguageCode string `json:"language_code"`
}

// AgentsConfig groups the per-collaborator thresholds the pipeline
// coordinator hands down to each stage.
type AgentsConfig struct {
	Perception    PerceptionConfig    `json:"perception"`
	Navigation    NavigationConfig    `json:"navigation"`
	Communication CommunicationConfig `json:"communication"`
}

// IndexConfig controls the vector index (C3).
type IndexConfig struct {
	Dimensions     int     `json:"dimensions"`
	BruteThreshold int     `json:"brute_threshold"`
	NProbe         int     `json:"nprobe"`
	MaxClusters    int     `json:"max_clusters"`
	CacheSize      int     `json:"cache_size"`
	PQSubvectors   int     `json:"pq_subvectors"`
}

// DedupConfig controls the deduplication engine (C4).
type DedupConfig struct {
	LocationToleranceM float64 `json:"location_tolerance_m"`
}

// Config is the explicit, caller-constructed configuration value passed
// into the Memory Manager and Coordinator; no implicit singleton exists
// anywhere in this module.
type Config struct {
	Memory      MemoryConfig      `json:"memory"`
	Performance PerformanceConfig `json:"performance"`
	Agents      AgentsConfig      `json:"agents"`
	Index       IndexConfig       `json:"index"`
	Dedup       DedupConfig       `json:"dedup"`

	// StoragePath is the root of the persisted state layout
	// (<docs>/TrinityVectorDB/ in spec terms).
	StoragePath string `json:"storage_path"`
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			MaxWorking:                100,
			EpisodicWindow:             30 * 24 * time.Hour,
			SimilarityThreshold:        0.95,
			SemanticPromotionThreshold: 10,
			MaxSemantic:                50_000,
			AutoConsolidation:          true,
			ConsolidationInterval:      1 * time.Hour,
		},
		Performance: PerformanceConfig{
			ProcessingInterval:      1 * time.Second,
			MaxConcurrentEmbeddings: 4,
			BatchSize:               10,
			VectorSearchTopK:        10,
			EmbeddingCacheSize:      1000,
		},
		Agents: AgentsConfig{
			Perception: PerceptionConfig{MinConfidence: 0.7},
			Navigation: NavigationConfig{
				CriticalDistanceM: 0.5,
				WarningDistanceM:  2.0,
				SafeDistanceM:     1.0,
			},
			Communication: CommunicationConfig{
				Verbosity:    1,
				LanguageCode: "en-US",
			},
		},
		Index: IndexConfig{
			Dimensions:     DefaultDimensions,
			BruteThreshold: 1000,
			NProbe:         5,
			MaxClusters:    100,
			CacheSize:      1000,
			PQSubvectors:   8,
		},
		Dedup: DedupConfig{
			LocationToleranceM: 25,
		},
		StoragePath: "TrinityVectorDB",
	}
}
