package economy

import (
	"errors"
	"math"
	"testing"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Resources: map[catalog.ResourceID]*catalog.Resource{
			"grain": {ID: "grain", Name: "Grain", Weight: 1, ConsumptionRate: 0.002, PriceIndex: 2, PriceSensitivity: 1.2},
			"bread": {ID: "bread", Name: "Bread", Weight: 0.8, ConsumptionRate: 0.004, PriceIndex: 5, PriceSensitivity: 1},
			"stone": {ID: "stone", Name: "Stone", Weight: 5, PriceIndex: 1, PriceSensitivity: 0.5},
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
			"Milltown": {Name: "Milltown", Country: "country-1", Wealth: 0.9, Population: 10000},
		},
	}
}

func testFacility(cat *catalog.Catalog, kind Kind) *Facility {
	return NewFacility("co-1", cat.Cities["Milltown"], kind, cat.Facility[kind.String()])
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRequiredWorkers(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction)

	cases := []struct {
		size int
		want int
	}{
		{1, 3},
		{2, 7},
		{3, 12},
	}
	for _, tc := range cases {
		f.Size = tc.size
		if got := f.RequiredWorkers(); got != tc.want {
			t.Fatalf("size %d: required workers = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestOfficeRequiredWorkers(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindOffice)

	cases := []struct {
		load float64
		want int
	}{
		{0, 1},   // floor of one worker
		{50, 1},  // (50/50)^1.2 = 1
		{100, 3}, // ceil(2^1.2)
	}
	for _, tc := range cases {
		f.AdminLoad = tc.load
		if got := f.RequiredWorkers(); got != tc.want {
			t.Fatalf("admin load %.0f: required workers = %d, want %d", tc.load, got, tc.want)
		}
	}
}

func TestWorkerEffectivity(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction) // required = 3 at size 1

	cases := []struct {
		workers int
		want    float64
	}{
		{0, 0},
		{1, 1.0 / 9},            // (1/3)^2
		{3, 1},                  // fully staffed
		{12, 1 + math.Sqrt(3)},  // ratio 4
	}
	for _, tc := range cases {
		f.Workers = tc.workers
		if got := f.WorkerEffectivity(); !approx(got, tc.want) {
			t.Fatalf("workers %d: effectivity = %v, want %v", tc.workers, got, tc.want)
		}
	}
}

func TestWageAndHiringCost(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction)
	f.Workers = 3

	if got := f.Wage(); !approx(got, 2.7) {
		t.Fatalf("wage = %v, want 2.7", got)
	}
	if got := f.HiringCost(2); !approx(got, 7.2) {
		t.Fatalf("hiring cost for +2 = %v, want 7.2", got)
	}
	if got := f.HiringCost(-2); !approx(got, 7.2) {
		t.Fatalf("firing cost for -2 = %v, want 7.2", got)
	}
}

func TestSetWorkersBounds(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction)

	if err := f.SetWorkers(f.MaxWorkers()); err != nil {
		t.Fatalf("set workers at ceiling: %v", err)
	}
	if err := f.SetWorkers(f.MaxWorkers() + 1); !errors.Is(err, ErrWorkerBounds) {
		t.Fatalf("above ceiling: err = %v, want ErrWorkerBounds", err)
	}
	if err := f.SetWorkers(-1); !errors.Is(err, ErrWorkerBounds) {
		t.Fatalf("negative: err = %v, want ErrWorkerBounds", err)
	}
}

func TestUpgradeAndDegradeCosts(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction) // base cost 1000

	if got := f.UpgradeCost(); got != 4000 {
		t.Fatalf("upgrade cost 1->2 = %v, want 4000", got)
	}
	f.Upgrade()
	if f.Size != 2 {
		t.Fatalf("size after upgrade = %d, want 2", f.Size)
	}
	if got := f.DegradeRefund(); got != 2000 {
		t.Fatalf("degrade refund at size 2 = %v, want 2000", got)
	}
	if err := f.Degrade(); err != nil {
		t.Fatalf("degrade: %v", err)
	}
	if err := f.Degrade(); !errors.Is(err, ErrMinSize) {
		t.Fatalf("degrade at size 1: err = %v, want ErrMinSize", err)
	}
}

func TestCapacityFollowsPrevEffectivity(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindStorage) // capacity multiplier 4

	f.PrevEffectivity = 1
	f.RecomputeCapacity()
	if f.Capacity != 400 {
		t.Fatalf("capacity at full effectivity = %v, want 400", f.Capacity)
	}
	f.PrevEffectivity = 0.5
	f.RecomputeCapacity()
	if f.Capacity != 200 {
		t.Fatalf("capacity at half effectivity = %v, want 200", f.Capacity)
	}
	f.Size = 2
	f.PrevEffectivity = 1
	f.RecomputeCapacity()
	if f.Capacity != 800 {
		t.Fatalf("capacity at size 2 = %v, want 800", f.Capacity)
	}
}

func TestOverflowPenalty(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindStorage)
	f.Capacity = 100

	f.Inventory["grain"] = 80
	if got := f.OverflowPenalty(cat); got != 1 {
		t.Fatalf("under capacity: penalty = %v, want 1", got)
	}
	f.Inventory["grain"] = 150
	if got := f.OverflowPenalty(cat); !approx(got, 0.75) {
		t.Fatalf("50%% over: penalty = %v, want 0.75", got)
	}
	f.Inventory["grain"] = 250
	if got := f.OverflowPenalty(cat); got != 0 {
		t.Fatalf("150%% over: penalty = %v, want 0", got)
	}

	f.Capacity = 0
	f.Inventory["grain"] = 1
	if got := f.OverflowPenalty(cat); got != 0 {
		t.Fatalf("zero capacity with stock: penalty = %v, want 0", got)
	}
}

func TestInventoryWeight(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindStorage)
	f.Inventory["grain"] = 10 // weight 1
	f.Inventory["stone"] = 4  // weight 5

	if got := f.InventoryWeight(cat); !approx(got, 30) {
		t.Fatalf("inventory weight = %v, want 30", got)
	}
}

func TestInventoryOperations(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindStorage)

	if err := f.AddResource("grain", 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.RemoveResource("grain", 15); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("overdraft: err = %v, want ErrInsufficientStock", err)
	}
	if f.Inventory["grain"] != 10 {
		t.Fatalf("inventory changed by rejected removal: %v", f.Inventory["grain"])
	}
	if err := f.RemoveResource("grain", 10); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := f.Inventory["grain"]; ok {
		t.Fatal("zeroed resource should be deleted from inventory")
	}

	office := testFacility(cat, KindOffice)
	if err := office.AddResource("grain", 1); !errors.Is(err, ErrNoInventory) {
		t.Fatalf("office add: err = %v, want ErrNoInventory", err)
	}
}

func TestProductionCycle(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction)
	f.Effectivity = 1 // scale = sqrt(1) * 1
	if err := f.SetRecipe(cat.Recipes["bakery"]); err != nil {
		t.Fatalf("set recipe: %v", err)
	}
	f.Inventory["grain"] = 5

	// Tick 1: batch starts, nothing emitted yet.
	if out := f.StepProduction(); out != nil {
		t.Fatalf("tick 1 emitted %v, want nil", out)
	}
	if !f.Producing {
		t.Fatal("batch should have started")
	}
	// Tick 2: progress 1 of 2.
	if out := f.StepProduction(); out != nil {
		t.Fatalf("tick 2 emitted %v, want nil", out)
	}
	// Tick 3: completes and chains into the next batch.
	out := f.StepProduction()
	if len(out) != 1 || out[0].Resource != "bread" || !approx(out[0].Amount, 1) {
		t.Fatalf("tick 3 emitted %v, want 1 bread", out)
	}
	if !approx(f.Inventory["grain"], 3) || !approx(f.Inventory["bread"], 1) {
		t.Fatalf("after first batch: grain=%v bread=%v, want 3 and 1", f.Inventory["grain"], f.Inventory["bread"])
	}
	if !f.Producing {
		t.Fatal("should have chained into the next batch")
	}

	// Second batch runs its course; afterwards only 1 grain remains and no
	// new batch can start.
	f.StepProduction()
	out = f.StepProduction()
	if len(out) != 1 {
		t.Fatalf("second batch emitted %v", out)
	}
	if f.Producing {
		t.Fatal("no third batch should start on 1 grain")
	}
	if !approx(f.Inventory["grain"], 1) || !approx(f.Inventory["bread"], 2) {
		t.Fatalf("final inventory grain=%v bread=%v, want 1 and 2", f.Inventory["grain"], f.Inventory["bread"])
	}
}

func TestProductionDefersWhenInputsGone(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction)
	f.Effectivity = 1
	f.SetRecipe(cat.Recipes["bakery"])
	f.Inventory["grain"] = 2

	f.StepProduction() // starts
	// Inputs traded away mid-batch.
	f.Inventory["grain"] = 1

	f.StepProduction()
	if out := f.StepProduction(); out != nil {
		t.Fatalf("completion with missing inputs emitted %v", out)
	}
	if !f.Producing {
		t.Fatal("deferred batch should stay in progress")
	}

	// Inputs return; the very next step completes.
	f.Inventory["grain"] = 2
	out := f.StepProduction()
	if len(out) != 1 || out[0].Resource != "bread" {
		t.Fatalf("after restock emitted %v, want bread", out)
	}
}

func TestBatchAmountsFixedAtStart(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction)
	f.Effectivity = 1
	f.SetRecipe(cat.Recipes["bakery"])
	f.Inventory["grain"] = 10

	f.StepProduction()
	want := f.BatchInputs[0].Amount

	// Effectivity changes mid-batch must not alter the running batch.
	f.Effectivity = 0.25
	f.StepProduction()
	if got := f.BatchInputs[0].Amount; !approx(got, want) {
		t.Fatalf("batch input drifted from %v to %v", want, got)
	}
}

func TestSetRecipeResetsBatch(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindProduction)
	f.Effectivity = 1
	f.SetRecipe(cat.Recipes["bakery"])
	f.Inventory["grain"] = 4
	f.StepProduction()

	if err := f.SetRecipe(nil); err != nil {
		t.Fatalf("clear recipe: %v", err)
	}
	if f.Producing || f.Progress != 0 || f.BatchInputs != nil {
		t.Fatal("clearing the recipe must abort the batch")
	}

	storage := testFacility(cat, KindStorage)
	if err := storage.SetRecipe(cat.Recipes["bakery"]); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("recipe on storage: err = %v, want ErrWrongKind", err)
	}
}

func TestRecordSaleClampsToStock(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindRetail)
	f.Prices["bread"] = 6
	f.Inventory["bread"] = 4

	revenue := f.RecordSale("bread", 10)
	if !approx(revenue, 24) {
		t.Fatalf("revenue = %v, want 24 (4 units at 6)", revenue)
	}
	if _, ok := f.Inventory["bread"]; ok {
		t.Fatal("stock should be exhausted")
	}
	if !approx(f.Sales["bread"], 4) {
		t.Fatalf("sales counter = %v, want 4", f.Sales["bread"])
	}

	f.ResetSales()
	if len(f.Sales) != 0 {
		t.Fatalf("sales after reset: %v", f.Sales)
	}
}

func TestNetFlowAndDepletion(t *testing.T) {
	cat := testCatalog()
	f := testFacility(cat, KindStorage)
	f.Inventory["grain"] = 30
	f.Routes["r1"] = &RouteRecord{RouteID: "r1", Resource: "grain", Amount: 5, Outgoing: true}
	f.Routes["r2"] = &RouteRecord{RouteID: "r2", Resource: "grain", Amount: 2, Outgoing: false}

	if got := f.NetFlow("grain"); !approx(got, -3) {
		t.Fatalf("net flow = %v, want -3", got)
	}
	if got := f.DepletionTicks("grain"); !approx(got, 10) {
		t.Fatalf("depletion = %v ticks, want 10", got)
	}

	f.Routes["r2"].Amount = 5
	if got := f.DepletionTicks("grain"); got != -1 {
		t.Fatalf("balanced flow depletion = %v, want -1", got)
	}
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindProduction, KindStorage, KindRetail, KindOffice} {
		got, ok := KindFromString(k.String())
		if !ok || got != k {
			t.Fatalf("kind %v round trip: got %v ok=%v", k, got, ok)
		}
	}
	if _, ok := KindFromString("warehouse"); ok {
		t.Fatal("unknown kind name should not resolve")
	}
}
