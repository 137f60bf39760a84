package loadgen

import (
	"math"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/leadflow/internal/domain/model"
)

const (
	kmPerDegreeLat = 111.32
	minFee         = 500
	feeRange       = 4500
	valueFactor    = 12
)

var urgencies = []model.Urgency{
	model.UrgencyEmergency,
	model.UrgencyToday,
	model.UrgencyToday,
	model.UrgencyThisWeek,
	model.UrgencyThisWeek,
	model.UrgencyFlexible,
}

// generateLeads builds the submission plan. Duplicates reuse an earlier id
// so the intake deduplication path is exercised alongside fresh leads.
func generateLeads(cfg *Config, rng *rand.Rand) []leadRequest {
	out := make([]leadRequest, 0, cfg.NumLeads)
	for i := range cfg.NumLeads {
		if i > 0 && rng.IntN(percent) < cfg.DuplicatePct {
			out = append(out, out[rng.IntN(len(out))])
			continue
		}
		out = append(out, generateLead(cfg, rng))
	}
	return out
}

func generateLead(cfg *Config, rng *rand.Rand) leadRequest {
	fee := int64(minFee + rng.IntN(feeRange))
	return leadRequest{
		ID:       "lg_" + uuid.NewString(),
		Location: scatter(cfg.Center, cfg.SpreadKM, rng),
		Category: cfg.Categories[rng.IntN(len(cfg.Categories))],
		Urgency:  urgencies[rng.IntN(len(urgencies))],
		Fee:      fee,
		Value:    float64(fee * valueFactor),
	}
}

// scatter picks a point uniformly inside a disc of radius km around c.
func scatter(c model.Location, km float64, rng *rand.Rand) model.Location {
	r := km * math.Sqrt(rng.Float64())
	theta := rng.Float64() * 2 * math.Pi
	dLat := r * math.Cos(theta) / kmPerDegreeLat
	dLng := r * math.Sin(theta) / (kmPerDegreeLat * math.Max(math.Cos(c.Lat*math.Pi/180), 0.01))
	return model.Location{
		Lat: math.Max(-90, math.Min(90, c.Lat+dLat)),
		Lng: wrapLng(c.Lng + dLng),
	}
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

// uniqueIDs returns the distinct ids in submission order.
func uniqueIDs(leads []leadRequest) []string {
	seen := make(map[string]struct{}, len(leads))
	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		ids = append(ids, l.ID)
	}
	return ids
}
