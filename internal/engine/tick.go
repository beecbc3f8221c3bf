// Tick orchestration. One tick runs six phases in fixed order: facility
// production, route settlement, city demand, offer refresh, wages, clock
// advance. Each phase completes fully before the next starts; goods must
// exist before they can be traded or retailed, and offer quantities must
// reflect post-production, post-trade state before the next tick's buyers
// see them.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/gram12321/tradergame04-sub000/internal/economy"
)

// AdvanceTick runs one full simulation step.
func (s *Simulation) AdvanceTick() {
	tick := s.Tick + 1

	s.phaseFacilities(tick)
	s.phaseSettlement(tick)
	s.phaseDemand(tick)
	s.phaseOffers(tick)
	s.phaseWages(tick)

	s.Tick = tick

	slog.Debug("tick complete",
		"tick", tick,
		"companies", len(s.Companies),
		"facilities", len(s.Facilities),
		"offers", len(s.Market.Offers),
		"routes", len(s.Market.Routes),
	)
}

// phaseFacilities recomputes capacity and effectivity for every facility and
// advances production.
//
// Ordering inside the phase matters: capacity comes from the effectivity of
// the previous tick (the two-slot rotation below is the explicit lag that
// breaks the capacity/effectivity cycle), offices are evaluated before the
// facilities they control, and production runs last so it sees this tick's
// effectivity.
func (s *Simulation) phaseFacilities(tick uint64) {
	// Administrative load follows the wage bill of the controlled set.
	for _, f := range s.Facilities {
		if f.Kind != economy.KindOffice {
			continue
		}
		var load float64
		for id := range f.Controlled {
			if sub, ok := s.Facilities[id]; ok {
				load += sub.Wage()
			}
		}
		f.AdminLoad = load
	}

	// Two-slot rotation, then capacity from the prior-tick slot.
	for _, f := range s.Facilities {
		f.PrevEffectivity = f.Effectivity
		f.RecomputeCapacity()
	}

	// Offices first; their result caps everything they control.
	for _, f := range s.Facilities {
		if f.Kind != economy.KindOffice {
			continue
		}
		f.OfficeMult = 1 // no self-reference
		f.ComputeEffectivity(s.Catalog)
		for id := range f.Controlled {
			if sub, ok := s.Facilities[id]; ok {
				sub.OfficeMult = clamp01(f.Effectivity)
			}
		}
	}

	for _, f := range s.Facilities {
		if f.Kind == economy.KindOffice {
			continue
		}
		f.ComputeEffectivity(s.Catalog)
		if f.Kind == economy.KindRetail {
			f.ResetSales()
		}
	}

	for _, f := range s.Facilities {
		if f.Kind != economy.KindProduction {
			continue
		}
		if emitted := f.StepProduction(); emitted != nil {
			for _, out := range emitted {
				s.recordEvent(tick, "production",
					fmt.Sprintf("%s produced %.1f %s", f.ID[:8], out.Amount, out.Resource))
			}
		}
	}
}

// phaseSettlement executes every trade route in creation order, oldest
// first. A route either settles in full or is skipped and marked failed for
// this tick; it is never partially executed, rolled back, or canceled here.
func (s *Simulation) phaseSettlement(tick uint64) {
	for _, route := range s.Market.RoutesBySeq() {
		if s.settleRoute(route) {
			route.LastFailedTick = nil
		} else {
			t := tick
			route.LastFailedTick = &t
		}
	}
}

func (s *Simulation) settleRoute(route *economy.TradeRoute) bool {
	seller, ok := s.Facilities[route.SellerFacility]
	if !ok {
		return false
	}
	buyerFac, ok := s.Facilities[route.BuyerFacility]
	if !ok {
		return false
	}
	if seller.Inventory[route.Resource] < route.AmountPerTick {
		return false
	}

	if route.Internal {
		if err := seller.RemoveResource(route.Resource, route.AmountPerTick); err != nil {
			return false
		}
		buyerFac.AddResource(route.Resource, route.AmountPerTick)
		return true
	}

	buyerCo, ok := s.Companies[route.BuyerCompany]
	if !ok {
		return false
	}
	sellerCo, ok := s.Companies[route.SellerCompany]
	if !ok {
		return false
	}
	if buyerCo.Balance < route.TotalPrice {
		return false
	}
	if err := seller.RemoveResource(route.Resource, route.AmountPerTick); err != nil {
		return false
	}
	buyerFac.AddResource(route.Resource, route.AmountPerTick)
	buyerCo.Balance -= route.TotalPrice
	sellerCo.Balance += route.TotalPrice
	return true
}

// phaseOffers rewrites each offer's listed amount from its facility's
// sustainable per-tick flow, so listings track real output without manual
// updates. Route commitments already linked to the offer are added back so
// the stock identity (in stock + committed == available) keeps holding.
func (s *Simulation) phaseOffers(tick uint64) {
	for id, offer := range s.Market.Offers {
		fac, ok := s.Facilities[offer.FacilityID]
		if !ok {
			delete(s.Market.Offers, id)
			continue
		}
		committed := s.Market.Committed(offer.ID)
		avail := fac.NetFlow(offer.Resource) + committed
		if avail < 0 {
			avail = 0
		}
		if avail == 0 && committed == 0 {
			delete(s.Market.Offers, id)
			s.recordEvent(tick, "market", fmt.Sprintf("offer for %s expired", offer.Resource))
			continue
		}
		offer.AmountAvailable = avail
		offer.AmountInStock = avail - committed
	}
}

// phaseWages deducts every company's wage bill. Balances may go negative;
// staying solvent is the company's problem, not the orchestrator's.
func (s *Simulation) phaseWages(tick uint64) {
	for _, c := range s.Companies {
		bill := c.WageBill()
		c.Balance -= bill
		if bill > 0 {
			slog.Debug("wages paid", "tick", tick, "company", c.Name, "bill", fmt.Sprintf("%.2f", bill))
		}
	}
}
