// README: Pure filtering, enrichment and ordering of delivery jobs.
package matching

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"potluck/internal/config"
	"potluck/internal/modules/location"
	"potluck/internal/types"
)

// rankJobs keeps candidates inside any of the areas and orders them by distance from
// the agent to the chef, earliest placed first on ties.
func rankJobs(agent types.Point, areas []location.ServiceArea, cands []Candidate, cfg config.MatchingConfig, now time.Time) []Job {
	jobs := make([]Job, 0, len(cands))
	for _, c := range cands {
		if !covered(areas, c) {
			continue
		}
		jobs = append(jobs, enrich(c, &agent, cfg, now))
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].PlacedAt.Before(jobs[j].PlacedAt) })
	location.SortByDistance(jobs, func(j Job) float64 {
		if j.DistanceKm == nil {
			return math.Inf(1)
		}
		return *j.DistanceKm
	})
	return jobs
}

func covered(areas []location.ServiceArea, c Candidate) bool {
	for _, a := range areas {
		if a.Covers(c.DeliveryZip, c.Destination) {
			return true
		}
	}
	return false
}

func enrich(c Candidate, agent *types.Point, cfg config.MatchingConfig, now time.Time) Job {
	j := Job{Candidate: c}
	if agent != nil && c.Pickup != nil {
		if d, err := location.Distance(*agent, *c.Pickup); err == nil {
			j.DistanceKm = &d
		}
	}
	if c.Pickup != nil && c.Destination != nil {
		if d, err := location.Distance(*c.Pickup, *c.Destination); err == nil {
			j.TripKm = &d
		}
	}
	j.EstimatedEarnings = estimateEarnings(j.TripKm, cfg, c.DeliveryFee.Currency)
	j.ETA = readyIn(c.ExpectedReadyAt, now)
	return j
}

// estimateEarnings is base + per-km rate x chef-to-consumer distance, rounded to the cent.
// An unknown trip distance earns the base fee only.
func estimateEarnings(tripKm *float64, cfg config.MatchingConfig, currency string) types.Money {
	amount := decimal.NewFromInt(cfg.BaseFeeCents)
	if tripKm != nil {
		amount = amount.Add(decimal.NewFromInt(cfg.PerKmCents).Mul(decimal.NewFromFloat(*tripKm)))
	}
	if currency == "" {
		currency = types.DefaultCurrency
	}
	return types.Money{Amount: amount.Round(0).IntPart(), Currency: currency}
}

func readyIn(expected *time.Time, now time.Time) time.Duration {
	if expected == nil {
		return 0
	}
	if d := expected.Sub(now); d > 0 {
		return d
	}
	return 0
}
