package memstore

import "github.com/trinityvector/trinitymemory/internal/models"

// AdmissionPolicy decides whether an observation is worth storing.
// Rejected observations still contribute to the caller's immediate
// search context (the caller already has obs and its embedding in
// hand) but are never written to a tier or the index.
type AdmissionPolicy func(obs *models.Observation) bool

var defaultAdmissionLabels = map[string]struct{}{
	"person":   {},
	"obstacle": {},
	"stairs":   {},
	"door":     {},
	"sign":     {},
	"text":     {},
	"vehicle":  {},
	"animal":   {},
}

// DefaultAdmissionPolicy stores an observation iff its primary
// detection confidence exceeds 0.75 and at least one detected label is
// in the safety/navigation-relevant set.
func DefaultAdmissionPolicy(obs *models.Observation) bool {
	if obs.PrimaryConfidence() <= 0.75 {
		return false
	}
	for _, d := range obs.DetectedObjects {
		if _, ok := defaultAdmissionLabels[d.Label]; ok {
			return true
		}
	}
	return false
}
