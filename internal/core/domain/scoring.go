package domain

import (
	"math"
	"sort"

	"delivery-settlement/pkg/geo"

	"github.com/google/uuid"
)

// Assignment score weights and caps.
const (
	ScoreWeightDistance   = 0.5
	ScoreWeightRating     = 0.3
	ScoreWeightExperience = 0.2

	distancePenaltyPerKm = 10.0
	experienceCap        = 50
)

// DriverCandidate is a scored driver for one assignment decision.
type DriverCandidate struct {
	DriverID        uuid.UUID `json:"driver_id"`
	DistanceKm      float64   `json:"distance_km"`
	Rating          float64   `json:"rating"`
	CompletedOrders int       `json:"completed_orders"`
	Score           float64   `json:"score"`
}

// Score combines distance, rating and experience into a single number.
//
//	0.5*max(0, 100-10*km) + 0.3*(rating*20) + 0.2*min(completed, 50)
func Score(distanceKm, rating float64, completed int) float64 {
	distanceScore := math.Max(0, 100-distanceKm*distancePenaltyPerKm)
	ratingScore := rating * 20
	experienceScore := float64(min(completed, experienceCap))
	return ScoreWeightDistance*distanceScore +
		ScoreWeightRating*ratingScore +
		ScoreWeightExperience*experienceScore
}

// RankCandidates scores drivers against a pickup point and sorts them best
// first. Ties break on shorter distance, then on driver id. Drivers without
// coordinates are skipped.
func RankCandidates(drivers []Driver, lat, lng float64) []DriverCandidate {
	out := make([]DriverCandidate, 0, len(drivers))
	for i := range drivers {
		d := &drivers[i]
		if !d.HasLocation() {
			continue
		}
		km := geo.HaversineKm(lat, lng, *d.Lat, *d.Lng)
		out = append(out, DriverCandidate{
			DriverID:        d.ID,
			DistanceKm:      km,
			Rating:          d.Rating,
			CompletedOrders: d.CompletedOrders,
			Score:           Score(km, d.Rating, d.CompletedOrders),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].DriverID.String() < out[j].DriverID.String()
	})
	return out
}
