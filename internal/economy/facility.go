// Package economy models companies, their facilities, and the market that
// connects them. Facilities are plain data plus pure-ish methods; everything
// that needs cross-entity coordination (settlement, demand, wages) lives in
// the engine package.
package economy

import (
	"math"

	"github.com/google/uuid"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
)

// Kind discriminates the four facility categories. The capability sets are
// mutually exclusive: only Production facilities run recipes, only Retail
// facilities hold price lists, only Offices carry administrative load, and
// Offices are the only kind without an inventory.
type Kind uint8

const (
	KindProduction Kind = iota
	KindStorage
	KindRetail
	KindOffice
)

var kindNames = [...]string{"production", "storage", "retail", "office"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindFromString maps a kind name back to its constant.
func KindFromString(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// HasInventory reports whether this kind stores resources.
func (k Kind) HasInventory() bool { return k != KindOffice }

// RouteRecord is the per-facility cache of one trade-route membership.
// Every route mutation must keep these records on both endpoints in sync
// with the route itself and with the linked offer.
type RouteRecord struct {
	RouteID  string
	Resource catalog.ResourceID
	Amount   float64
	Price    float64
	Outgoing bool // true when this facility is the selling end
	Internal bool
}

// Facility is the central entity of the simulation.
type Facility struct {
	ID        string
	CompanyID string // weak reference; the facility does not own the company
	City      *catalog.City
	Kind      Kind
	Size      int
	Workers   int

	// Effectivity is recomputed every tick; PrevEffectivity holds the value
	// as it stood at the end of the prior tick. Capacity is derived from
	// PrevEffectivity, which breaks the capacity -> overflow penalty ->
	// effectivity -> capacity cycle with an explicit one-tick lag.
	Effectivity     float64
	PrevEffectivity float64
	Capacity        float64

	// OfficeMult is the effectivity multiplier inherited from the
	// controlling office, clamped to [0,1]. Offices hold 1 for themselves.
	OfficeMult float64

	Inventory map[catalog.ResourceID]float64 // nil for offices
	Routes    map[string]*RouteRecord

	// Production state.
	Recipe       *catalog.Recipe
	Progress     int
	Producing    bool
	BatchInputs  []catalog.ResourceAmount // scaled amounts fixed when the batch starts
	BatchOutputs []catalog.ResourceAmount

	// Retail state.
	Prices map[catalog.ResourceID]float64
	Sales  map[catalog.ResourceID]float64 // units sold last tick, reset each tick

	// Office state.
	AdminLoad  float64
	Controlled map[string]struct{} // facility ids under this office

	Params catalog.FacilityParams
}

// NewFacility builds a size-1 facility of the given kind. Company/office
// bookkeeping (build cost, office assignment) is the caller's job.
func NewFacility(companyID string, city *catalog.City, kind Kind, params catalog.FacilityParams) *Facility {
	f := &Facility{
		ID:         uuid.NewString(),
		CompanyID:  companyID,
		City:       city,
		Kind:       kind,
		Size:       1,
		OfficeMult: 1,
		Routes:     make(map[string]*RouteRecord),
		Params:     params,
	}
	if kind.HasInventory() {
		f.Inventory = make(map[catalog.ResourceID]float64)
	}
	if kind == KindRetail {
		f.Prices = make(map[catalog.ResourceID]float64)
		f.Sales = make(map[catalog.ResourceID]float64)
	}
	if kind == KindOffice {
		f.Controlled = make(map[string]struct{})
	}
	return f
}

// RequiredWorkers returns full staffing for the current size. Offices scale
// with administrative load instead of size, with a floor of one worker.
func (f *Facility) RequiredWorkers() int {
	if f.Kind == KindOffice {
		req := int(math.Ceil(math.Pow(f.AdminLoad/50, 1.2)))
		if req < 1 {
			req = 1
		}
		return req
	}
	return int(math.Ceil(f.Params.WorkerMultiplier * math.Pow(float64(f.Size), 1.2)))
}

// MaxWorkers is the hiring ceiling: ten times full staffing.
func (f *Facility) MaxWorkers() int { return f.RequiredWorkers() * 10 }

// ProductionMultiplier scales recipe throughput with size, with diminishing
// returns.
func (f *Facility) ProductionMultiplier() float64 { return math.Sqrt(float64(f.Size)) }

// WorkerEffectivity maps the staffing ratio onto an efficiency multiplier:
// quadratic penalty when under-staffed, sub-linear bonus when over-staffed.
func (f *Facility) WorkerEffectivity() float64 {
	req := f.RequiredWorkers()
	if req <= 0 {
		return 1
	}
	ratio := float64(f.Workers) / float64(req)
	if ratio < 1 {
		return ratio * ratio
	}
	return 1 + math.Sqrt(ratio-1)
}

// InventoryWeight is the total storage weight of everything on hand.
func (f *Facility) InventoryWeight(cat *catalog.Catalog) float64 {
	var w float64
	for res, qty := range f.Inventory {
		w += qty * cat.Weight(res)
	}
	return w
}

// OverflowPenalty degrades effectivity when inventory weight exceeds the
// cached capacity. Offices carry no inventory and are never penalized.
func (f *Facility) OverflowPenalty(cat *catalog.Catalog) float64 {
	if f.Kind == KindOffice {
		return 1
	}
	weight := f.InventoryWeight(cat)
	if weight <= f.Capacity {
		return 1
	}
	if f.Capacity <= 0 {
		return 0
	}
	over := (weight - f.Capacity) / f.Capacity
	penalty := 1 - over*over
	if penalty < 0 {
		return 0
	}
	return penalty
}

// RecomputeCapacity derives capacity from the effectivity of the previous
// tick. Called exactly once per tick, before production is evaluated.
func (f *Facility) RecomputeCapacity() {
	f.Capacity = math.Ceil(100 * float64(f.Size) * f.Params.CapacityMultiplier * f.PrevEffectivity)
}

// ComputeEffectivity combines staffing, overflow and office oversight.
func (f *Facility) ComputeEffectivity(cat *catalog.Catalog) {
	mult := f.OfficeMult
	if mult < 0 {
		mult = 0
	}
	if mult > 1 {
		mult = 1
	}
	f.Effectivity = f.WorkerEffectivity() * f.OverflowPenalty(cat) * mult
}

// Wage is the per-tick wage bill: one unit per worker scaled by local wealth.
func (f *Facility) Wage() float64 {
	return float64(f.Workers) * 1.0 * f.City.Wealth
}

// HiringCost is the one-off cost of changing headcount by delta workers,
// charged for hiring and firing alike.
func (f *Facility) HiringCost(delta int) float64 {
	if delta < 0 {
		delta = -delta
	}
	return 4 * 1.0 * f.City.Wealth * float64(delta)
}

// SetWorkers changes headcount within [0, 10*required]. Cost accounting is
// the caller's responsibility.
func (f *Facility) SetWorkers(n int) error {
	if n < 0 || n > f.MaxWorkers() {
		return ErrWorkerBounds
	}
	f.Workers = n
	return nil
}

// UpgradeCost is the price of going from the current size to size+1.
func (f *Facility) UpgradeCost() float64 {
	return math.Ceil(f.Params.BaseCost * float64(f.Size+1) * float64(f.Size+1))
}

// DegradeRefund returns half the cost that was paid to reach the current
// size, rounded up.
func (f *Facility) DegradeRefund() float64 {
	paid := math.Ceil(f.Params.BaseCost * float64(f.Size) * float64(f.Size))
	return math.Ceil(paid * 0.5)
}

// Upgrade grows the facility one size step.
func (f *Facility) Upgrade() {
	f.Size++
	f.clampWorkers()
}

// Degrade shrinks the facility one size step. Size 1 is the floor.
func (f *Facility) Degrade() error {
	if f.Size <= 1 {
		return ErrMinSize
	}
	f.Size--
	f.clampWorkers()
	return nil
}

func (f *Facility) clampWorkers() {
	if max := f.MaxWorkers(); f.Workers > max {
		f.Workers = max
	}
}

// SetRecipe assigns a recipe to a production facility, aborting any batch in
// progress. A nil recipe clears the assignment.
func (f *Facility) SetRecipe(r *catalog.Recipe) error {
	if f.Kind != KindProduction {
		return ErrWrongKind
	}
	f.Recipe = r
	f.Progress = 0
	f.Producing = false
	f.BatchInputs = nil
	f.BatchOutputs = nil
	return nil
}

// SetPrice sets the retail price for a resource. A non-positive price
// removes the listing.
func (f *Facility) SetPrice(res catalog.ResourceID, price float64) error {
	if f.Kind != KindRetail {
		return ErrWrongKind
	}
	if price <= 0 {
		delete(f.Prices, res)
		return nil
	}
	f.Prices[res] = price
	return nil
}

// AddResource deposits qty units into inventory.
func (f *Facility) AddResource(res catalog.ResourceID, qty float64) error {
	if !f.Kind.HasInventory() {
		return ErrNoInventory
	}
	if qty <= 0 {
		return ErrBadAmount
	}
	f.Inventory[res] += qty
	return nil
}

// RemoveResource withdraws qty units, rejecting overdrafts so inventory can
// never go negative.
func (f *Facility) RemoveResource(res catalog.ResourceID, qty float64) error {
	if !f.Kind.HasInventory() {
		return ErrNoInventory
	}
	if qty <= 0 {
		return ErrBadAmount
	}
	if f.Inventory[res] < qty {
		return ErrInsufficientStock
	}
	f.Inventory[res] -= qty
	if f.Inventory[res] == 0 {
		delete(f.Inventory, res)
	}
	return nil
}

// StepProduction advances the production state machine by one tick and
// returns the outputs emitted, if a batch completed.
//
// Idle -> Producing happens when a recipe is set and every scaled input is on
// hand; the scaled amounts are fixed at that moment. A completing batch
// consumes the fixed inputs and emits the fixed outputs, then immediately
// tries to start the next batch in the same step. If inputs were traded away
// mid-batch, completion waits until they are available again.
func (f *Facility) StepProduction() []catalog.ResourceAmount {
	if f.Kind != KindProduction || f.Recipe == nil {
		return nil
	}

	if !f.Producing {
		f.tryStartBatch()
		return nil
	}

	f.Progress++
	if f.Progress < f.Recipe.TicksRequired {
		return nil
	}

	// Batch ready. Defer if the snapshot inputs are no longer on hand.
	for _, in := range f.BatchInputs {
		if f.Inventory[in.Resource] < in.Amount {
			f.Progress = f.Recipe.TicksRequired
			return nil
		}
	}
	for _, in := range f.BatchInputs {
		f.Inventory[in.Resource] -= in.Amount
		if f.Inventory[in.Resource] <= 0 {
			delete(f.Inventory, in.Resource)
		}
	}
	emitted := f.BatchOutputs
	for _, out := range emitted {
		f.Inventory[out.Resource] += out.Amount
	}

	f.Producing = false
	f.Progress = 0
	f.BatchInputs = nil
	f.BatchOutputs = nil

	// Chain directly into the next batch when inputs allow. At most one
	// completion per tick, even for one-tick recipes.
	f.tryStartBatch()
	return emitted
}

func (f *Facility) tryStartBatch() {
	scale := f.ProductionMultiplier() * f.Effectivity
	if scale <= 0 {
		return
	}
	for _, in := range f.Recipe.Inputs {
		if f.Inventory[in.Resource] < in.Amount*scale {
			return
		}
	}
	f.BatchInputs = scaleAmounts(f.Recipe.Inputs, scale)
	f.BatchOutputs = scaleAmounts(f.Recipe.Outputs, scale)
	f.Producing = true
	f.Progress = 0
}

func scaleAmounts(base []catalog.ResourceAmount, scale float64) []catalog.ResourceAmount {
	out := make([]catalog.ResourceAmount, len(base))
	for i, a := range base {
		out[i] = catalog.ResourceAmount{Resource: a.Resource, Amount: a.Amount * scale}
	}
	return out
}

// ResetSales clears the per-tick retail sales counters.
func (f *Facility) ResetSales() {
	for res := range f.Sales {
		delete(f.Sales, res)
	}
}

// RecordSale depletes inventory for a consumer purchase and returns the
// revenue. Quantity is clamped to stock on hand.
func (f *Facility) RecordSale(res catalog.ResourceID, qty float64) float64 {
	if f.Kind != KindRetail || qty <= 0 {
		return 0
	}
	if have := f.Inventory[res]; qty > have {
		qty = have
	}
	if qty <= 0 {
		return 0
	}
	f.Inventory[res] -= qty
	if f.Inventory[res] <= 0 {
		delete(f.Inventory, res)
	}
	f.Sales[res] += qty
	return qty * f.Prices[res]
}

// NetFlow estimates the facility's per-tick rate of change for one resource:
// route imports plus production output, minus route exports, production
// input draw, and last tick's retail sales.
func (f *Facility) NetFlow(res catalog.ResourceID) float64 {
	var flow float64
	for _, rec := range f.Routes {
		if rec.Resource != res {
			continue
		}
		if rec.Outgoing {
			flow -= rec.Amount
		} else {
			flow += rec.Amount
		}
	}
	if f.Producing && f.Recipe != nil && f.Recipe.TicksRequired > 0 {
		ticks := float64(f.Recipe.TicksRequired)
		for _, out := range f.BatchOutputs {
			if out.Resource == res {
				flow += out.Amount / ticks
			}
		}
		for _, in := range f.BatchInputs {
			if in.Resource == res {
				flow -= in.Amount / ticks
			}
		}
	}
	if f.Kind == KindRetail {
		flow -= f.Sales[res]
	}
	return flow
}

// DepletionTicks estimates how many ticks of stock remain at the current net
// flow. Returns -1 when stock is not depleting.
func (f *Facility) DepletionTicks(res catalog.ResourceID) float64 {
	flow := f.NetFlow(res)
	if flow >= 0 {
		return -1
	}
	return f.Inventory[res] / -flow
}
