package dedup

import (
	"math"

	"github.com/trinityvector/trinitymemory/internal/models"
)

const earthRadiusM = 6371000.0

// haversineMeters returns the great-circle distance between two
// geographic coordinates in meters. No third-party geo library appears
// anywhere in the retrieved pack for a calculation this small, so this
// stays a direct stdlib implementation.
func haversineMeters(a, b models.GeoCoordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}
