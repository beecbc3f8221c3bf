package economy

import (
	"sort"

	"github.com/google/uuid"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
)

// SellOffer is a standing market listing. AmountInStock is the part of the
// listing not yet committed to trade routes; the invariant
//
//	AmountInStock + sum(linked route amounts) == AmountAvailable
//
// holds after every mutation.
type SellOffer struct {
	ID         string
	CompanyID  string
	FacilityID string
	Resource   catalog.ResourceID
	// AmountAvailable is the total listed per-tick quantity.
	AmountAvailable float64
	AmountInStock   float64
	Price           float64
}

// TradeRoute is a recurring per-tick commitment between two facilities.
// External routes move money and always originate from a SellOffer; internal
// routes are unpriced same-company transfers through a storage endpoint.
type TradeRoute struct {
	ID             string
	SellerCompany  string
	SellerFacility string
	BuyerCompany   string
	BuyerFacility  string
	Resource       catalog.ResourceID
	AmountPerTick  float64
	PricePerUnit   float64 // 0 for internal routes
	TotalPrice     float64

	// Seq orders settlement: oldest route first under scarcity.
	Seq uint64

	// LastFailedTick marks the most recent tick on which settlement was
	// skipped; nil after a successful settlement.
	LastFailedTick *uint64

	Internal bool
	OfferID  string // originating offer; empty for internal routes
}

// Market holds all offers and routes of the simulation.
type Market struct {
	Offers  map[string]*SellOffer
	Routes  map[string]*TradeRoute
	NextSeq uint64
}

// NewMarket creates an empty market.
func NewMarket() *Market {
	return &Market{
		Offers:  make(map[string]*SellOffer),
		Routes:  make(map[string]*TradeRoute),
		NextSeq: 1,
	}
}

// CreateOffer lists amount units per tick from a facility.
func (m *Market) CreateOffer(company *Company, facility *Facility, res catalog.ResourceID, amount, price float64) (*SellOffer, error) {
	if facility.CompanyID != company.ID {
		return nil, ErrNotOwner
	}
	if !facility.Kind.HasInventory() {
		return nil, ErrNoInventory
	}
	if amount <= 0 || price <= 0 {
		return nil, ErrBadAmount
	}
	offer := &SellOffer{
		ID:              uuid.NewString(),
		CompanyID:       company.ID,
		FacilityID:      facility.ID,
		Resource:        res,
		AmountAvailable: amount,
		AmountInStock:   amount,
		Price:           price,
	}
	m.Offers[offer.ID] = offer
	return offer, nil
}

// UpdateOffer changes price and/or listed amount. The stock figure moves by
// the same delta as the listing so existing route commitments stay intact.
func (m *Market) UpdateOffer(offer *SellOffer, amount, price float64) error {
	if amount <= 0 || price <= 0 {
		return ErrBadAmount
	}
	delta := amount - offer.AmountAvailable
	offer.AmountAvailable = amount
	offer.AmountInStock += delta
	offer.Price = price
	return nil
}

// CancelOffer removes the listing outright. Routes that originated from it
// stay alive and must be canceled by their holders; there is no cascade.
func (m *Market) CancelOffer(id string) error {
	if _, ok := m.Offers[id]; !ok {
		return ErrNotFound
	}
	delete(m.Offers, id)
	return nil
}

// AcceptOffer commits part of an offer's stock to a new external route
// between two different companies. Both endpoint facilities record the route
// for rate aggregation.
func (m *Market) AcceptOffer(offer *SellOffer, seller *Facility, buyer *Company, buyerFacility *Facility, amount float64) (*TradeRoute, error) {
	if buyer.ID == offer.CompanyID {
		return nil, ErrSelfTrade
	}
	if buyerFacility.CompanyID != buyer.ID {
		return nil, ErrNotOwner
	}
	if seller == nil || seller.ID != offer.FacilityID {
		return nil, ErrNotFound
	}
	if !buyerFacility.Kind.HasInventory() {
		return nil, ErrNoInventory
	}
	if amount <= 0 {
		return nil, ErrBadAmount
	}
	if amount > offer.AmountInStock {
		return nil, ErrInsufficientStock
	}

	route := &TradeRoute{
		ID:             uuid.NewString(),
		SellerCompany:  offer.CompanyID,
		SellerFacility: offer.FacilityID,
		BuyerCompany:   buyer.ID,
		BuyerFacility:  buyerFacility.ID,
		Resource:       offer.Resource,
		AmountPerTick:  amount,
		PricePerUnit:   offer.Price,
		TotalPrice:     amount * offer.Price,
		Seq:            m.NextSeq,
		OfferID:        offer.ID,
	}
	m.NextSeq++
	offer.AmountInStock -= amount
	m.Routes[route.ID] = route
	m.linkEndpoints(route, seller, buyerFacility)
	return route, nil
}

// CreateInternalRoute sets up an unpriced same-company transfer. At least one
// endpoint must be a storage facility.
func (m *Market) CreateInternalRoute(seller, buyer *Facility, res catalog.ResourceID, amount float64) (*TradeRoute, error) {
	if seller.CompanyID != buyer.CompanyID {
		return nil, ErrNotOwner
	}
	if seller.ID == buyer.ID {
		return nil, ErrSameFacility
	}
	if seller.Kind != KindStorage && buyer.Kind != KindStorage {
		return nil, ErrNoStorageEndpoint
	}
	if !seller.Kind.HasInventory() || !buyer.Kind.HasInventory() {
		return nil, ErrNoInventory
	}
	if amount <= 0 {
		return nil, ErrBadAmount
	}
	route := &TradeRoute{
		ID:             uuid.NewString(),
		SellerCompany:  seller.CompanyID,
		SellerFacility: seller.ID,
		BuyerCompany:   buyer.CompanyID,
		BuyerFacility:  buyer.ID,
		Resource:       res,
		AmountPerTick:  amount,
		Seq:            m.NextSeq,
		Internal:       true,
	}
	m.NextSeq++
	m.Routes[route.ID] = route
	m.linkEndpoints(route, seller, buyer)
	return route, nil
}

// UpdateRoute changes the per-tick amount of a route. For external routes the
// extra commitment must fit in the originating offer's remaining stock, and
// the stock moves by the opposite delta.
func (m *Market) UpdateRoute(route *TradeRoute, seller, buyer *Facility, amount float64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	delta := amount - route.AmountPerTick
	if !route.Internal {
		offer, ok := m.Offers[route.OfferID]
		if !ok {
			return ErrNotFound
		}
		if delta > offer.AmountInStock {
			return ErrInsufficientStock
		}
		offer.AmountInStock -= delta
	}
	route.AmountPerTick = amount
	route.TotalPrice = amount * route.PricePerUnit
	m.linkEndpoints(route, seller, buyer)
	return nil
}

// CancelRoute deletes a route and unwinds all three records: the route, the
// endpoint caches, and (for external routes) the offer's stock figure, which
// gets back exactly the canceled commitment.
func (m *Market) CancelRoute(route *TradeRoute, seller, buyer *Facility) {
	delete(m.Routes, route.ID)
	if seller != nil {
		delete(seller.Routes, route.ID)
	}
	if buyer != nil {
		delete(buyer.Routes, route.ID)
	}
	if !route.Internal {
		if offer, ok := m.Offers[route.OfferID]; ok {
			offer.AmountInStock += route.AmountPerTick
		}
	}
}

// Committed sums the per-tick amounts of all routes linked to an offer.
func (m *Market) Committed(offerID string) float64 {
	var total float64
	for _, r := range m.Routes {
		if r.OfferID == offerID {
			total += r.AmountPerTick
		}
	}
	return total
}

// RoutesBySeq returns all routes in ascending creation order, the settlement
// priority under scarcity.
func (m *Market) RoutesBySeq() []*TradeRoute {
	routes := make([]*TradeRoute, 0, len(m.Routes))
	for _, r := range m.Routes {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Seq < routes[j].Seq })
	return routes
}

// OffersByFacility returns the offers backed by one facility.
func (m *Market) OffersByFacility(facilityID string) []*SellOffer {
	var out []*SellOffer
	for _, o := range m.Offers {
		if o.FacilityID == facilityID {
			out = append(out, o)
		}
	}
	return out
}

func (m *Market) linkEndpoints(route *TradeRoute, seller, buyer *Facility) {
	if seller != nil {
		seller.Routes[route.ID] = &RouteRecord{
			RouteID:  route.ID,
			Resource: route.Resource,
			Amount:   route.AmountPerTick,
			Price:    route.PricePerUnit,
			Outgoing: true,
			Internal: route.Internal,
		}
	}
	if buyer != nil {
		buyer.Routes[route.ID] = &RouteRecord{
			RouteID:  route.ID,
			Resource: route.Resource,
			Amount:   route.AmountPerTick,
			Price:    route.PricePerUnit,
			Outgoing: false,
			Internal: route.Internal,
		}
	}
}
