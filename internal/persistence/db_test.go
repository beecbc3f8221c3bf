package persistence

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
	"github.com/gram12321/tradergame04-sub000/internal/engine"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Resources: map[catalog.ResourceID]*catalog.Resource{
			"grain": {ID: "grain", Name: "Grain", Weight: 1, ConsumptionRate: 0.002, PriceIndex: 2, PriceSensitivity: 1.2},
			"bread": {ID: "bread", Name: "Bread", Weight: 0.8, ConsumptionRate: 0.004, PriceIndex: 5, PriceSensitivity: 1},
		},
		Recipes: map[string]*catalog.Recipe{
			"bakery": {
				Name:          "bakery",
				Inputs:        []catalog.ResourceAmount{{Resource: "grain", Amount: 2}},
				Outputs:       []catalog.ResourceAmount{{Resource: "bread", Amount: 1}},
				TicksRequired: 2,
			},
		},
		Facility: map[string]catalog.FacilityParams{
			"production": {WorkerMultiplier: 3, CapacityMultiplier: 1, BaseCost: 1000},
			"storage":    {WorkerMultiplier: 2, CapacityMultiplier: 4, BaseCost: 800},
			"retail":     {WorkerMultiplier: 2.5, CapacityMultiplier: 1.5, BaseCost: 1200},
			"office":     {WorkerMultiplier: 0, CapacityMultiplier: 0.5, BaseCost: 1500},
		},
		Cities: map[string]*catalog.City{
			"Milltown": {Name: "Milltown", Country: "country-1", Wealth: 0.5, Population: 10000},
		},
	}
}

// testState builds a state exercising every persisted field: a mid-batch
// production run, retail prices and sales, office control, a failed external
// route and an internal one.
func testState(cat *catalog.Catalog) *engine.State {
	city := cat.Cities["Milltown"]
	co := economy.NewCompany("Persist Co", 12345.5)
	other := economy.NewCompany("Counterparty", 500)

	office := economy.NewFacility(co.ID, city, economy.KindOffice, cat.Facility["office"])
	office.Workers = 1
	office.AdminLoad = 3.5

	production := economy.NewFacility(co.ID, city, economy.KindProduction, cat.Facility["production"])
	production.Workers = 3
	production.Size = 2
	production.Effectivity = 0.9
	production.PrevEffectivity = 0.8
	production.Capacity = 180
	production.Recipe = cat.Recipes["bakery"]
	production.Producing = true
	production.Progress = 1
	production.BatchInputs = []catalog.ResourceAmount{{Resource: "grain", Amount: 2.5}}
	production.BatchOutputs = []catalog.ResourceAmount{{Resource: "bread", Amount: 1.25}}
	production.Inventory["grain"] = 40

	storage := economy.NewFacility(co.ID, city, economy.KindStorage, cat.Facility["storage"])
	storage.Inventory["bread"] = 12

	retail := economy.NewFacility(co.ID, city, economy.KindRetail, cat.Facility["retail"])
	retail.Prices["bread"] = 5.5
	retail.Sales["bread"] = 2.25
	retail.Inventory["bread"] = 8

	office.Controlled[production.ID] = struct{}{}
	office.Controlled[storage.ID] = struct{}{}
	office.Controlled[retail.ID] = struct{}{}
	co.Facilities = []*economy.Facility{office, production, storage, retail}

	buyerFac := economy.NewFacility(other.ID, city, economy.KindStorage, cat.Facility["storage"])
	other.Facilities = []*economy.Facility{buyerFac}

	offer := &economy.SellOffer{
		ID: "offer-1", CompanyID: co.ID, FacilityID: storage.ID,
		Resource: "bread", AmountAvailable: 10, AmountInStock: 6, Price: 5,
	}

	failedAt := uint64(41)
	external := &economy.TradeRoute{
		ID: "route-ext", SellerCompany: co.ID, SellerFacility: storage.ID,
		BuyerCompany: other.ID, BuyerFacility: buyerFac.ID,
		Resource: "bread", AmountPerTick: 4, PricePerUnit: 5, TotalPrice: 20,
		Seq: 3, LastFailedTick: &failedAt, OfferID: offer.ID,
	}
	internal := &economy.TradeRoute{
		ID: "route-int", SellerCompany: co.ID, SellerFacility: production.ID,
		BuyerCompany: co.ID, BuyerFacility: storage.ID,
		Resource: "bread", AmountPerTick: 1.25, Seq: 5, Internal: true,
	}
	storage.Routes[external.ID] = &economy.RouteRecord{RouteID: external.ID, Resource: "bread", Amount: 4, Price: 5, Outgoing: true}
	buyerFac.Routes[external.ID] = &economy.RouteRecord{RouteID: external.ID, Resource: "bread", Amount: 4, Price: 5}

	return &engine.State{
		Tick:       42,
		NextSeq:    6,
		Companies:  []*economy.Company{co, other},
		Facilities: append(append([]*economy.Facility{}, co.Facilities...), buyerFac),
		Offers:     []*economy.SellOffer{offer},
		Routes:     []*economy.TradeRoute{external, internal},
	}
}

func findFacility(t *testing.T, st *engine.State, id string) *economy.Facility {
	t.Helper()
	for _, f := range st.Facilities {
		if f.ID == id {
			return f
		}
	}
	t.Fatalf("facility %s not in loaded state", id)
	return nil
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cat := testCatalog()
	db, err := Open(filepath.Join(t.TempDir(), "sim.db"), cat)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	st := testState(cat)
	if db.HasState() {
		t.Fatal("fresh database reports saved state")
	}
	if err := db.Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !db.HasState() {
		t.Fatal("saved database reports no state")
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.Tick != 42 || got.NextSeq != 6 {
		t.Fatalf("meta tick=%d seq=%d, want 42 and 6", got.Tick, got.NextSeq)
	}
	if len(got.Companies) != 2 || len(got.Facilities) != 5 {
		t.Fatalf("loaded %d companies and %d facilities, want 2 and 5", len(got.Companies), len(got.Facilities))
	}

	var co *economy.Company
	for _, c := range got.Companies {
		if c.Name == "Persist Co" {
			co = c
		}
	}
	if co == nil || math.Abs(co.Balance-12345.5) > 1e-9 {
		t.Fatalf("company not restored: %+v", co)
	}

	orig := st.Facilities[1] // production
	prod := findFacility(t, got, orig.ID)
	if prod.Kind != economy.KindProduction || prod.Size != 2 || prod.Workers != 3 {
		t.Fatalf("production basics: %+v", prod)
	}
	if prod.City != cat.Cities["Milltown"] {
		t.Fatal("city not re-linked to the catalog instance")
	}
	if prod.Recipe != cat.Recipes["bakery"] {
		t.Fatal("recipe not re-linked to the catalog instance")
	}
	if !prod.Producing || prod.Progress != 1 {
		t.Fatalf("batch state: producing=%v progress=%d", prod.Producing, prod.Progress)
	}
	if len(prod.BatchInputs) != 1 || prod.BatchInputs[0].Amount != 2.5 {
		t.Fatalf("batch inputs: %+v", prod.BatchInputs)
	}
	if prod.Inventory["grain"] != 40 {
		t.Fatalf("inventory: %v", prod.Inventory)
	}

	officeOrig := st.Facilities[0]
	office := findFacility(t, got, officeOrig.ID)
	if len(office.Controlled) != 3 {
		t.Fatalf("controlled set: %v", office.Controlled)
	}
	if office.Inventory != nil {
		t.Fatal("office must not grow an inventory on load")
	}

	retailOrig := st.Facilities[3]
	retail := findFacility(t, got, retailOrig.ID)
	if retail.Prices["bread"] != 5.5 || retail.Sales["bread"] != 2.25 {
		t.Fatalf("retail state: prices=%v sales=%v", retail.Prices, retail.Sales)
	}

	if len(got.Offers) != 1 || got.Offers[0].AmountInStock != 6 {
		t.Fatalf("offers: %+v", got.Offers)
	}

	if len(got.Routes) != 2 {
		t.Fatalf("routes: %d, want 2", len(got.Routes))
	}
	// Routes come back ordered by seq.
	ext, internal := got.Routes[0], got.Routes[1]
	if ext.ID != "route-ext" || internal.ID != "route-int" {
		t.Fatalf("route order: %s, %s", ext.ID, internal.ID)
	}
	if ext.LastFailedTick == nil || *ext.LastFailedTick != 41 {
		t.Fatalf("failure marker lost: %v", ext.LastFailedTick)
	}
	if !internal.Internal || internal.LastFailedTick != nil {
		t.Fatalf("internal route flags: %+v", internal)
	}

	storageOrig := st.Facilities[2]
	stor := findFacility(t, got, storageOrig.ID)
	rec := stor.Routes["route-ext"]
	if rec == nil || !rec.Outgoing || rec.Amount != 4 {
		t.Fatalf("endpoint route record: %+v", rec)
	}
}

func TestSaveReplacesPreviousState(t *testing.T) {
	cat := testCatalog()
	db, err := Open(filepath.Join(t.TempDir(), "sim.db"), cat)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	st := testState(cat)
	if err := db.Save(st); err != nil {
		t.Fatalf("first save: %v", err)
	}

	st.Tick = 43
	st.Routes = st.Routes[:1]
	if err := db.Save(st); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Tick != 43 {
		t.Fatalf("tick = %d, want 43", got.Tick)
	}
	if len(got.Routes) != 1 {
		t.Fatalf("stale routes survived the save: %d", len(got.Routes))
	}
}

func TestReset(t *testing.T) {
	cat := testCatalog()
	db, err := Open(filepath.Join(t.TempDir(), "sim.db"), cat)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Save(testState(cat)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if db.HasState() {
		t.Fatal("state survives reset")
	}
	got, err := db.Load()
	if err != nil {
		t.Fatalf("load after reset: %v", err)
	}
	if len(got.Companies) != 0 || len(got.Facilities) != 0 {
		t.Fatalf("collections not emptied: %d companies, %d facilities", len(got.Companies), len(got.Facilities))
	}
}

func TestLoadRejectsUnknownCity(t *testing.T) {
	cat := testCatalog()
	db, err := Open(filepath.Join(t.TempDir(), "sim.db"), cat)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	st := testState(cat)
	if err := db.Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Shrink the catalog after the fact; loading must fail loudly rather
	// than fabricate a city.
	delete(cat.Cities, "Milltown")
	if _, err := db.Load(); err == nil {
		t.Fatal("load with missing city should fail")
	}
}
