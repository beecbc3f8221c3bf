// Action surface: every mutation a company (or the admin layer above it) can
// request between ticks. All functions return an error for business-rule
// rejections and leave state untouched when they do.
package engine

import (
	"fmt"
	"math"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
)

func (s *Simulation) company(id string) (*economy.Company, error) {
	c, ok := s.Companies[id]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", id, economy.ErrNotFound)
	}
	return c, nil
}

func (s *Simulation) facility(id string) (*economy.Facility, error) {
	f, ok := s.Facilities[id]
	if !ok {
		return nil, fmt.Errorf("facility %s: %w", id, economy.ErrNotFound)
	}
	return f, nil
}

func (s *Simulation) ownedFacility(companyID, facilityID string) (*economy.Company, *economy.Facility, error) {
	c, err := s.company(companyID)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.facility(facilityID)
	if err != nil {
		return nil, nil, err
	}
	if f.CompanyID != c.ID {
		return nil, nil, economy.ErrNotOwner
	}
	return c, f, nil
}

// CreateFacility builds a size-1 facility in a city, deducting the build
// cost. Non-office facilities require an office of the same company in the
// city's country and come under its control; a second office per country is
// rejected, and a new office takes control of the company's existing
// facilities there.
func (s *Simulation) CreateFacility(companyID, cityName string, kind economy.Kind) (*economy.Facility, error) {
	c, err := s.company(companyID)
	if err != nil {
		return nil, err
	}
	city, ok := s.Catalog.Cities[cityName]
	if !ok {
		return nil, fmt.Errorf("city %s: %w", cityName, economy.ErrNotFound)
	}
	params, ok := s.Catalog.Facility[kind.String()]
	if !ok {
		return nil, fmt.Errorf("facility kind %s: %w", kind, economy.ErrNotFound)
	}

	office := c.OfficeIn(city.Country)
	if kind == economy.KindOffice {
		if office != nil {
			return nil, economy.ErrDuplicateOffice
		}
	} else if office == nil {
		return nil, economy.ErrNoOffice
	}

	cost := buildCost(params)
	if !c.CanAfford(cost) {
		return nil, economy.ErrInsufficientFunds
	}

	f := economy.NewFacility(c.ID, city, kind, params)
	if kind == economy.KindOffice {
		// A replacement office adopts every facility the company already
		// runs in the country, so sites orphaned by a closed office come
		// back under administration instead of staying at zero forever.
		for _, other := range c.Facilities {
			if other.Kind != economy.KindOffice && other.City.Country == city.Country {
				f.Controlled[other.ID] = struct{}{}
				other.OfficeMult = clamp01(f.Effectivity)
			}
		}
	} else {
		office.Controlled[f.ID] = struct{}{}
		f.OfficeMult = clamp01(office.Effectivity)
	}
	c.Balance -= cost
	c.Facilities = append(c.Facilities, f)
	s.Facilities[f.ID] = f
	s.recordEvent(s.Tick, "company", fmt.Sprintf("%s built a %s in %s", c.Name, kind, city.Name))
	return f, nil
}

// DestroyFacility removes a facility. Destroying a company's only office in
// a country zeroes the effectivity of every other facility the company runs
// there; that dependency is hard, not silently ignored.
func (s *Simulation) DestroyFacility(companyID, facilityID string) error {
	c, f, err := s.ownedFacility(companyID, facilityID)
	if err != nil {
		return err
	}

	delete(s.Facilities, f.ID)
	c.RemoveFacility(f.ID)

	if f.Kind == economy.KindOffice {
		for _, other := range c.Facilities {
			if other.City.Country == f.City.Country {
				other.Effectivity = 0
				other.PrevEffectivity = 0
				other.OfficeMult = 0
			}
		}
	} else if office := c.OfficeIn(f.City.Country); office != nil {
		delete(office.Controlled, f.ID)
	}
	s.recordEvent(s.Tick, "company", fmt.Sprintf("%s closed a %s in %s", c.Name, f.Kind, f.City.Name))
	return nil
}

// SetWorkers adjusts headcount, charging the hiring/firing fee regardless of
// direction.
func (s *Simulation) SetWorkers(companyID, facilityID string, workers int) error {
	c, f, err := s.ownedFacility(companyID, facilityID)
	if err != nil {
		return err
	}
	if workers < 0 || workers > f.MaxWorkers() {
		return economy.ErrWorkerBounds
	}
	cost := f.HiringCost(workers - f.Workers)
	if !c.CanAfford(cost) {
		return economy.ErrInsufficientFunds
	}
	c.Balance -= cost
	return f.SetWorkers(workers)
}

// UpgradeFacility grows a facility one size step for its quadratic cost.
func (s *Simulation) UpgradeFacility(companyID, facilityID string) error {
	c, f, err := s.ownedFacility(companyID, facilityID)
	if err != nil {
		return err
	}
	cost := f.UpgradeCost()
	if !c.CanAfford(cost) {
		return economy.ErrInsufficientFunds
	}
	c.Balance -= cost
	f.Upgrade()
	return nil
}

// DegradeFacility shrinks a facility one size step and refunds half the cost
// of reaching the old size.
func (s *Simulation) DegradeFacility(companyID, facilityID string) error {
	c, f, err := s.ownedFacility(companyID, facilityID)
	if err != nil {
		return err
	}
	refund := f.DegradeRefund()
	if err := f.Degrade(); err != nil {
		return err
	}
	c.Balance += refund
	return nil
}

// SetRecipe assigns a catalog recipe to a production facility. An empty name
// clears the current recipe.
func (s *Simulation) SetRecipe(companyID, facilityID, recipeName string) error {
	_, f, err := s.ownedFacility(companyID, facilityID)
	if err != nil {
		return err
	}
	if recipeName == "" {
		return f.SetRecipe(nil)
	}
	r, ok := s.Catalog.Recipes[recipeName]
	if !ok {
		return fmt.Errorf("recipe %s: %w", recipeName, economy.ErrNotFound)
	}
	return f.SetRecipe(r)
}

// SetRetailPrice lists (or delists, at price <= 0) a resource at a retail
// facility.
func (s *Simulation) SetRetailPrice(companyID, facilityID string, res catalog.ResourceID, price float64) error {
	_, f, err := s.ownedFacility(companyID, facilityID)
	if err != nil {
		return err
	}
	return f.SetPrice(res, price)
}

// CreateOffer lists a per-tick quantity on the market.
func (s *Simulation) CreateOffer(companyID, facilityID string, res catalog.ResourceID, amount, price float64) (*economy.SellOffer, error) {
	c, f, err := s.ownedFacility(companyID, facilityID)
	if err != nil {
		return nil, err
	}
	return s.Market.CreateOffer(c, f, res, amount, price)
}

// UpdateOffer changes an offer's listed amount and price.
func (s *Simulation) UpdateOffer(companyID, offerID string, amount, price float64) error {
	offer, ok := s.Market.Offers[offerID]
	if !ok {
		return economy.ErrNotFound
	}
	if offer.CompanyID != companyID {
		return economy.ErrNotOwner
	}
	return s.Market.UpdateOffer(offer, amount, price)
}

// CancelOffer withdraws a listing. Routes accepted from it survive and must
// be canceled by their holders.
func (s *Simulation) CancelOffer(companyID, offerID string) error {
	offer, ok := s.Market.Offers[offerID]
	if !ok {
		return economy.ErrNotFound
	}
	if offer.CompanyID != companyID {
		return economy.ErrNotOwner
	}
	return s.Market.CancelOffer(offerID)
}

// AcceptOffer turns part of an offer into a standing external trade route
// into the buyer's facility.
func (s *Simulation) AcceptOffer(buyerCompanyID, buyerFacilityID, offerID string, amount float64) (*economy.TradeRoute, error) {
	buyer, buyerFac, err := s.ownedFacility(buyerCompanyID, buyerFacilityID)
	if err != nil {
		return nil, err
	}
	offer, ok := s.Market.Offers[offerID]
	if !ok {
		return nil, economy.ErrNotFound
	}
	seller, ok := s.Facilities[offer.FacilityID]
	if !ok {
		return nil, fmt.Errorf("offer facility gone: %w", economy.ErrNotFound)
	}
	route, err := s.Market.AcceptOffer(offer, seller, buyer, buyerFac, amount)
	if err != nil {
		return nil, err
	}
	s.recordEvent(s.Tick, "market", fmt.Sprintf("route opened: %.1f %s/tick at %.2f", amount, offer.Resource, offer.Price))
	return route, nil
}

// CreateInternalRoute sets up a recurring same-company transfer through a
// storage endpoint.
func (s *Simulation) CreateInternalRoute(companyID, fromFacilityID, toFacilityID string, res catalog.ResourceID, amount float64) (*economy.TradeRoute, error) {
	_, from, err := s.ownedFacility(companyID, fromFacilityID)
	if err != nil {
		return nil, err
	}
	_, to, err := s.ownedFacility(companyID, toFacilityID)
	if err != nil {
		return nil, err
	}
	return s.Market.CreateInternalRoute(from, to, res, amount)
}

// UpdateRoute changes a route's per-tick amount. Either endpoint company may
// update it.
func (s *Simulation) UpdateRoute(companyID, routeID string, amount float64) error {
	route, ok := s.Market.Routes[routeID]
	if !ok {
		return economy.ErrNotFound
	}
	if route.SellerCompany != companyID && route.BuyerCompany != companyID {
		return economy.ErrNotOwner
	}
	return s.Market.UpdateRoute(route, s.Facilities[route.SellerFacility], s.Facilities[route.BuyerFacility], amount)
}

// CancelRoute tears a route down and returns its commitment to the linked
// offer.
func (s *Simulation) CancelRoute(companyID, routeID string) error {
	route, ok := s.Market.Routes[routeID]
	if !ok {
		return economy.ErrNotFound
	}
	if route.SellerCompany != companyID && route.BuyerCompany != companyID {
		return economy.ErrNotOwner
	}
	s.Market.CancelRoute(route, s.Facilities[route.SellerFacility], s.Facilities[route.BuyerFacility])
	return nil
}

// InstantTransfer moves resources between two same-company facilities in one
// shot, outside the route system.
func (s *Simulation) InstantTransfer(companyID, fromFacilityID, toFacilityID string, res catalog.ResourceID, amount float64) error {
	_, from, err := s.ownedFacility(companyID, fromFacilityID)
	if err != nil {
		return err
	}
	_, to, err := s.ownedFacility(companyID, toFacilityID)
	if err != nil {
		return err
	}
	if err := from.RemoveResource(res, amount); err != nil {
		return err
	}
	return to.AddResource(res, amount)
}

func buildCost(p catalog.FacilityParams) float64 {
	// Cost to reach size 1.
	return math.Ceil(p.BaseCost)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
