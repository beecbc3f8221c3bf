package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// YAML document shapes. Kept separate from the runtime structs so file
// layout can evolve without touching simulation code.

type resourceFile struct {
	Resources []struct {
		ID               string             `yaml:"id"`
		Name             string             `yaml:"name"`
		Weight           float64            `yaml:"weight"`
		ConsumptionRate  float64            `yaml:"consumption_rate"`
		PriceIndex       float64            `yaml:"price_index"`
		PriceSensitivity float64            `yaml:"price_sensitivity"`
		Elasticity       map[string]float64 `yaml:"elasticity"`
	} `yaml:"resources"`
}

type recipeFile struct {
	Recipes []struct {
		Name          string             `yaml:"name"`
		TicksRequired int                `yaml:"ticks_required"`
		Inputs        map[string]float64 `yaml:"inputs"`
		Outputs       map[string]float64 `yaml:"outputs"`
	} `yaml:"recipes"`
}

type facilityFile struct {
	Kinds map[string]struct {
		WorkerMultiplier   float64 `yaml:"worker_multiplier"`
		CapacityMultiplier float64 `yaml:"capacity_multiplier"`
		BaseCost           float64 `yaml:"base_cost"`
	} `yaml:"kinds"`
}

type cityFile struct {
	Cities []struct {
		Name       string  `yaml:"name"`
		Country    string  `yaml:"country"`
		Wealth     float64 `yaml:"wealth"`
		Population int     `yaml:"population"`
	} `yaml:"cities"`
}

// Load reads resources.yaml, recipes.yaml, facility_types.yaml and
// cities.yaml from dir and returns a validated catalog.
func Load(dir string) (*Catalog, error) {
	cat := &Catalog{
		Resources: make(map[ResourceID]*Resource),
		Recipes:   make(map[string]*Recipe),
		Facility:  make(map[string]FacilityParams),
		Cities:    make(map[string]*City),
	}

	var rf resourceFile
	if err := readYAML(filepath.Join(dir, "resources.yaml"), &rf); err != nil {
		return nil, err
	}
	for _, r := range rf.Resources {
		res := &Resource{
			ID:               ResourceID(r.ID),
			Name:             r.Name,
			Weight:           r.Weight,
			ConsumptionRate:  r.ConsumptionRate,
			PriceIndex:       r.PriceIndex,
			PriceSensitivity: r.PriceSensitivity,
			Elasticity:       make(map[ResourceID]float64, len(r.Elasticity)),
		}
		for sub, e := range r.Elasticity {
			res.Elasticity[ResourceID(sub)] = e
		}
		cat.Resources[res.ID] = res
	}

	var cf recipeFile
	if err := readYAML(filepath.Join(dir, "recipes.yaml"), &cf); err != nil {
		return nil, err
	}
	for _, r := range cf.Recipes {
		rec := &Recipe{Name: r.Name, TicksRequired: r.TicksRequired}
		for res, amt := range r.Inputs {
			rec.Inputs = append(rec.Inputs, ResourceAmount{Resource: ResourceID(res), Amount: amt})
		}
		for res, amt := range r.Outputs {
			rec.Outputs = append(rec.Outputs, ResourceAmount{Resource: ResourceID(res), Amount: amt})
		}
		cat.Recipes[rec.Name] = rec
	}

	var ff facilityFile
	if err := readYAML(filepath.Join(dir, "facility_types.yaml"), &ff); err != nil {
		return nil, err
	}
	for kind, p := range ff.Kinds {
		cat.Facility[kind] = FacilityParams{
			WorkerMultiplier:   p.WorkerMultiplier,
			CapacityMultiplier: p.CapacityMultiplier,
			BaseCost:           p.BaseCost,
		}
	}

	var yf cityFile
	if err := readYAML(filepath.Join(dir, "cities.yaml"), &yf); err != nil {
		return nil, err
	}
	for _, c := range yf.Cities {
		city, err := NewCity(c.Name, c.Country, c.Wealth, c.Population)
		if err != nil {
			return nil, err
		}
		cat.Cities[city.Name] = city
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", dir, err)
	}
	return cat, nil
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
