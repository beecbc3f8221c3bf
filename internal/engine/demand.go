// City demand: converts population and wealth into per-resource consumption
// and allocates it across the retail facilities of each city.
package engine

import (
	"math"
	"sort"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
)

// ResourceReport summarizes one resource's demand outcome in one city.
type ResourceReport struct {
	Demand    float64 `json:"demand"` // adjusted aggregate demand, units
	Sold      float64 `json:"sold"`
	AvgPrice  float64 `json:"avg_price"`
	Retailers int     `json:"retailers"`
}

// CityReport is the per-tick demand report for one city.
type CityReport struct {
	City      string                                  `json:"city"`
	Tick      uint64                                  `json:"tick"`
	Resources map[catalog.ResourceID]*ResourceReport `json:"resources"`
}

// WealthMultiplier maps city wealth in [0,1] linearly onto consumer spending
// in [0.8, 1.5].
func WealthMultiplier(wealth float64) float64 {
	return 0.8 + wealth*0.7
}

// PriceEffect returns the demand multiplier for a facility price p against
// the city average avg. A power-law boost (capped at 5) rewards prices below
// average; an exponential decay punishes prices above it. Both branches
// evaluate to 1 at p == avg, so the curve is continuous.
func PriceEffect(p, avg, sensitivity float64) float64 {
	if p <= 0 || avg <= 0 {
		return 1
	}
	ratio := p / avg
	if ratio <= 1 {
		return math.Min(math.Pow(avg/p, sensitivity*1.2), 5)
	}
	return math.Exp(-sensitivity * 1.2 * (ratio - 1))
}

// DemandCreation rewards exceptionally low prices with demand that would not
// otherwise exist: consumers buying more than their baseline rather than
// redistributing it. Prices at or above average create nothing.
func DemandCreation(p, avg, sensitivity float64) float64 {
	if p <= 0 || avg <= 0 || p >= avg {
		return 1
	}
	return math.Min(math.Pow(avg/p, sensitivity*0.9), 10)
}

// selectionWeight is the share weight of a facility in the allocation:
// relative cheapness clamped to [0.5, 2], squared.
func selectionWeight(p, avg float64) float64 {
	w := avg / p
	if w < 0.5 {
		w = 0.5
	}
	if w > 2 {
		w = 2
	}
	return w * w
}

// phaseDemand runs consumer allocation for every city. Unsold demand is
// lost, never carried to the next tick.
func (s *Simulation) phaseDemand(tick uint64) {
	for _, cityName := range sortedKeys(s.Catalog.Cities) {
		city := s.Catalog.Cities[cityName]
		report := &CityReport{
			City:      cityName,
			Tick:      tick,
			Resources: make(map[catalog.ResourceID]*ResourceReport),
		}
		s.Reports[cityName] = report
		if city.Population <= 0 {
			continue
		}

		retailers := s.cityRetailers(city)

		// Baseline demand per resource.
		demand := make(map[catalog.ResourceID]float64)
		for _, res := range sortedKeys(s.Catalog.Resources) {
			def := s.Catalog.Resources[res]
			if def.ConsumptionRate > 0 {
				demand[res] = float64(city.Population) * def.ConsumptionRate * WealthMultiplier(city.Wealth)
			}
		}

		// Average retail price per resource; facilities with no stock or no
		// listed price count for neither the average nor the allocation.
		avgPrice := make(map[catalog.ResourceID]float64)
		eligible := make(map[catalog.ResourceID][]*economy.Facility)
		for res := range demand {
			var sum float64
			for _, f := range retailers {
				if f.Prices[res] > 0 && f.Inventory[res] > 0 {
					sum += f.Prices[res]
					eligible[res] = append(eligible[res], f)
				}
			}
			if n := len(eligible[res]); n > 0 {
				avgPrice[res] = sum / float64(n)
			}
		}

		s.applySubstitution(city, demand, avgPrice)

		for _, res := range sortedResourceIDs(demand) {
			rep := &ResourceReport{AvgPrice: avgPrice[res], Retailers: len(eligible[res])}
			report.Resources[res] = rep
			if demand[res] <= 0 || len(eligible[res]) == 0 {
				rep.Demand = demand[res]
				continue
			}
			rep.Demand, rep.Sold = s.allocate(res, demand[res], avgPrice[res], eligible[res])
		}
	}
}

// allocate distributes a resource's city demand across eligible retailers in
// two passes: proportional shares first, then an equal redistribution of the
// unmet remainder among facilities that still have stock. Returns the
// adjusted total demand and the units sold.
func (s *Simulation) allocate(res catalog.ResourceID, base, avg float64, retailers []*economy.Facility) (float64, float64) {
	sens := s.Catalog.Resources[res].PriceSensitivity

	var weightSum float64
	weights := make([]float64, len(retailers))
	for i, f := range retailers {
		weights[i] = selectionWeight(f.Prices[res], avg)
		weightSum += weights[i]
	}

	shares := make([]float64, len(retailers))
	var total float64
	for i, f := range retailers {
		p := f.Prices[res]
		shares[i] = base * (weights[i] / weightSum) * PriceEffect(p, avg, sens) * DemandCreation(p, avg, sens)
		total += shares[i]
	}

	var sold, unmet float64
	for i, f := range retailers {
		amount := math.Min(shares[i], f.Inventory[res])
		revenue := f.RecordSale(res, amount)
		s.creditCompany(f.CompanyID, revenue)
		sold += amount
		unmet += shares[i] - amount
	}

	// Second pass: pool the unmet demand and split it equally among
	// facilities with stock remaining. Demand beyond total supply is lost.
	if unmet > 0 {
		var withStock []*economy.Facility
		for _, f := range retailers {
			if f.Inventory[res] > 0 {
				withStock = append(withStock, f)
			}
		}
		if len(withStock) > 0 {
			share := unmet / float64(len(withStock))
			for _, f := range withStock {
				amount := math.Min(share, f.Inventory[res])
				revenue := f.RecordSale(res, amount)
				s.creditCompany(f.CompanyID, revenue)
				sold += amount
			}
		}
	}
	return total, sold
}

// applySubstitution shifts demand between resource pairs when the source is
// priced above its reference ratio to the substitute. The threshold test is
// deterministic; below threshold an elasticity-scaled random roll can still
// trigger the shift as long as the ratio is unfavorable.
func (s *Simulation) applySubstitution(city *catalog.City, demand map[catalog.ResourceID]float64, avgPrice map[catalog.ResourceID]float64) {
	for _, from := range sortedResourceIDs(demand) {
		def := s.Catalog.Resources[from]
		if demand[from] <= 0 || avgPrice[from] <= 0 {
			continue
		}
		for _, to := range sortedKeys(def.Elasticity) {
			elasticity := def.Elasticity[to]
			if elasticity <= 0 || avgPrice[to] <= 0 {
				continue
			}
			toDef := s.Catalog.Resources[to]
			if toDef == nil || toDef.PriceIndex <= 0 || def.PriceIndex <= 0 {
				continue
			}
			refRatio := def.PriceIndex / toDef.PriceIndex
			actualRatio := avgPrice[from] / avgPrice[to]
			disparity := actualRatio / refRatio
			if disparity <= 1 {
				continue
			}
			triggered := disparity > 1+0.3*elasticity
			if !triggered && s.Rand.Float() < elasticity*0.2 {
				triggered = true
			}
			if !triggered {
				continue
			}

			frac := elasticity * (disparity - 1)
			if frac < 0.3 {
				frac = 0.3
			}
			if frac > 0.7 {
				frac = 0.7
			}
			volume := frac * float64(city.Population) * def.ConsumptionRate
			if volume > demand[from] {
				volume = demand[from]
			}
			demand[from] -= volume
			demand[to] += volume
		}
	}
}

func (s *Simulation) cityRetailers(city *catalog.City) []*economy.Facility {
	var out []*economy.Facility
	for _, f := range s.Facilities {
		if f.Kind == economy.KindRetail && f.City == city {
			out = append(out, f)
		}
	}
	// Stable order keeps seeded runs reproducible.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Simulation) creditCompany(companyID string, revenue float64) {
	if revenue <= 0 {
		return
	}
	if c, ok := s.Companies[companyID]; ok {
		c.Balance += revenue
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedResourceIDs[V any](m map[catalog.ResourceID]V) []catalog.ResourceID {
	return sortedKeys(m)
}
