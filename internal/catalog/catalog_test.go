package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadShippedConfig(t *testing.T) {
	cat, err := Load("../../config")
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}

	grain := cat.Resource("grain")
	if grain == nil {
		t.Fatal("grain missing from resources")
	}
	if grain.ConsumptionRate <= 0 {
		t.Fatalf("grain consumption rate = %v, want > 0", grain.ConsumptionRate)
	}
	if cat.Weight("grain") != 1 {
		t.Fatalf("grain weight = %v, want 1", cat.Weight("grain"))
	}

	bakery, ok := cat.Recipes["bakery"]
	if !ok {
		t.Fatal("bakery recipe missing")
	}
	if bakery.TicksRequired != 2 || len(bakery.Outputs) != 1 {
		t.Fatalf("bakery = %+v, want 2 ticks and one output", bakery)
	}

	prod, ok := cat.Facility["production"]
	if !ok {
		t.Fatal("production facility params missing")
	}
	if prod.WorkerMultiplier != 3 {
		t.Fatalf("production worker multiplier = %v, want 3", prod.WorkerMultiplier)
	}

	city, ok := cat.Cities["Aldersgate"]
	if !ok {
		t.Fatal("Aldersgate missing from city directory")
	}
	if city.Country != "country-1" {
		t.Fatalf("Aldersgate country = %q, want country-1", city.Country)
	}
}

func TestWeightDefaultsToOne(t *testing.T) {
	cat := &Catalog{Resources: map[ResourceID]*Resource{}}
	if got := cat.Weight("unlisted"); got != 1 {
		t.Fatalf("default weight = %v, want 1", got)
	}
}

func TestNewCityValidation(t *testing.T) {
	cases := []struct {
		name       string
		city       string
		wealth     float64
		population int
		wantErr    bool
	}{
		{"valid", "Milltown", 0.5, 1000, false},
		{"wealth floor", "Milltown", 0, 1000, false},
		{"wealth ceiling", "Milltown", 1, 1000, false},
		{"wealth too high", "Milltown", 1.01, 1000, true},
		{"wealth negative", "Milltown", -0.1, 1000, true},
		{"negative population", "Milltown", 0.5, -1, true},
		{"empty name", "", 0.5, 1000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCity(tc.city, "country-1", tc.wealth, tc.population)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateRejectsBrokenRecipes(t *testing.T) {
	base := func() *Catalog {
		return &Catalog{
			Resources: map[ResourceID]*Resource{
				"grain": {ID: "grain", Name: "Grain"},
			},
			Recipes:  map[string]*Recipe{},
			Facility: map[string]FacilityParams{},
			Cities:   map[string]*City{},
		}
	}

	cat := base()
	cat.Recipes["bad"] = &Recipe{
		Name:          "bad",
		Outputs:       []ResourceAmount{{Resource: "unobtainium", Amount: 1}},
		TicksRequired: 1,
	}
	if err := cat.Validate(); err == nil || !strings.Contains(err.Error(), "unobtainium") {
		t.Fatalf("unknown output resource: err = %v", err)
	}

	cat = base()
	cat.Recipes["bad"] = &Recipe{
		Name:          "bad",
		Outputs:       []ResourceAmount{{Resource: "grain", Amount: 1}},
		TicksRequired: 0,
	}
	if err := cat.Validate(); err == nil {
		t.Fatal("zero-tick recipe should fail validation")
	}

	cat = base()
	cat.Recipes["bad"] = &Recipe{Name: "bad", TicksRequired: 1}
	if err := cat.Validate(); err == nil {
		t.Fatal("recipe without outputs should fail validation")
	}

	cat = base()
	cat.Resources["grain"].Elasticity = map[ResourceID]float64{"phantom": 0.5}
	if err := cat.Validate(); err == nil {
		t.Fatal("elasticity toward unknown resource should fail validation")
	}
}

func TestLoadRejectsInvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("resources.yaml", `
resources:
  - id: grain
    name: Grain
    weight: 1
`)
	write("recipes.yaml", `
recipes:
  - name: phantom_mill
    ticks_required: 2
    inputs:
      phantom: 1
    outputs:
      grain: 1
`)
	write("facility_types.yaml", `
kinds:
  production:
    worker_multiplier: 3
    capacity_multiplier: 1
    base_cost: 1000
`)
	write("cities.yaml", `
cities:
  - name: Milltown
    country: country-1
    wealth: 0.5
    population: 1000
`)

	if _, err := Load(dir); err == nil {
		t.Fatal("recipe with unknown input should fail the load")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("empty config dir should fail")
	}
}
