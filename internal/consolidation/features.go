// Package consolidation implements the online logistic-regression
// consolidation predictor (C5): an 8-feature scorer trained by a single
// SGD step per labeled observation, deciding when an entry is ready to
// move up a memory tier.
package consolidation

import (
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
)

// FeatureCount is the fixed dimensionality of the feature vector.
const FeatureCount = 8

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Features computes the 8 normalized features for entry as of now, per
// the documented derivation. Every feature lies in [0, 1].
func Features(entry *models.Entry, now time.Time) [FeatureCount]float64 {
	hoursSinceLast := now.Sub(entry.LastAccessed).Hours()
	ageHours := now.Sub(entry.Created).Hours()
	ageDays := ageHours / 24

	accessFrequency := clamp(float64(entry.AccessCount)/50, 0, 1)
	timeSinceLastAccess := clamp(hoursSinceLast/24, 0, 1)
	averageConfidence := entry.Metadata.Confidence

	spatialStability := 0.5
	if entry.Metadata.Spatial != nil {
		spatialStability = 0.8
	}

	var temporalCluster float64
	switch {
	case ageDays < 1:
		temporalCluster = 0.8
	case ageDays < 7:
		temporalCluster = 0.5
	default:
		temporalCluster = 0.2
	}

	semanticRelevance := clamp(float64(len(entry.Metadata.Tags))/10, 0, 1)
	memoryAge := clamp(ageHours/(7*24), 0, 1)

	accessPattern := accessFrequency
	if timeSinceLastAccess < 0.1 {
		accessPattern += 0.3
	}
	accessPattern = clamp(accessPattern, 0, 1)

	return [FeatureCount]float64{
		accessFrequency,
		timeSinceLastAccess,
		averageConfidence,
		spatialStability,
		temporalCluster,
		semanticRelevance,
		memoryAge,
		accessPattern,
	}
}
