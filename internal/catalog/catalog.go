// Package catalog holds the static reference data the simulation runs on:
// resources, recipes, facility type parameters, and the city directory.
// Everything here is loaded once at startup and never mutated afterwards.
package catalog

import (
	"fmt"
)

// ResourceID identifies a resource in the catalog ("grain", "tools", ...).
type ResourceID string

// Resource describes one tradable good and its consumer behavior.
type Resource struct {
	ID               ResourceID
	Name             string
	Weight           float64 // storage capacity consumed per unit
	ConsumptionRate  float64 // per-capita demand per tick; 0 = not consumed by cities
	PriceIndex       float64 // reference price, used for substitution ratios
	PriceSensitivity float64 // consumer price-response coefficient

	// Elasticity maps a substitute resource to the willingness of consumers
	// to shift demand toward it when this resource is overpriced.
	Elasticity map[ResourceID]float64
}

// ResourceAmount pairs a resource with a quantity, used by recipe
// inputs/outputs and production batches.
type ResourceAmount struct {
	Resource ResourceID
	Amount   float64
}

// Recipe converts a set of input resources into outputs over a fixed number
// of ticks. Recipes are referenced by facilities, never owned.
type Recipe struct {
	Name          string
	Inputs        []ResourceAmount
	Outputs       []ResourceAmount
	TicksRequired int
}

// FacilityParams holds the per-category tuning constants for facilities.
type FacilityParams struct {
	WorkerMultiplier   float64 // staffing scale: ceil(mult * size^1.2) workers required
	CapacityMultiplier float64 // storage scale: ceil(100 * size * mult * effectivity)
	BaseCost           float64 // build cost at size 1; upgrades scale quadratically
}

// City is immutable reference data shared by every facility located there.
type City struct {
	Name       string
	Country    string
	Wealth     float64 // 0..1, drives wages and consumer spending power
	Population int
}

// NewCity validates construction inputs. Out-of-range wealth or negative
// population is a hard error, not a business rejection.
func NewCity(name, country string, wealth float64, population int) (*City, error) {
	if name == "" {
		return nil, fmt.Errorf("city: empty name")
	}
	if wealth < 0 || wealth > 1 {
		return nil, fmt.Errorf("city %s: wealth %.3f outside [0,1]", name, wealth)
	}
	if population < 0 {
		return nil, fmt.Errorf("city %s: negative population %d", name, population)
	}
	return &City{Name: name, Country: country, Wealth: wealth, Population: population}, nil
}

// Catalog bundles all static data. Built once by Load (or by tests directly)
// and passed by reference into the simulation.
type Catalog struct {
	Resources map[ResourceID]*Resource
	Recipes   map[string]*Recipe
	Facility  map[string]FacilityParams // keyed by facility kind name
	Cities    map[string]*City
}

// Resource returns the resource definition or nil when unknown.
func (c *Catalog) Resource(id ResourceID) *Resource {
	return c.Resources[id]
}

// Weight returns the per-unit storage weight of a resource, defaulting to 1
// for resources missing from the catalog.
func (c *Catalog) Weight(id ResourceID) float64 {
	if r, ok := c.Resources[id]; ok && r.Weight > 0 {
		return r.Weight
	}
	return 1
}

// Validate cross-checks the catalog: recipes must reference known resources,
// elasticity entries must point at known resources, cities must satisfy the
// City construction invariants.
func (c *Catalog) Validate() error {
	for name, r := range c.Recipes {
		if r.TicksRequired < 1 {
			return fmt.Errorf("recipe %s: ticks_required %d < 1", name, r.TicksRequired)
		}
		if len(r.Outputs) == 0 {
			return fmt.Errorf("recipe %s: no outputs", name)
		}
		for _, in := range append(append([]ResourceAmount{}, r.Inputs...), r.Outputs...) {
			if _, ok := c.Resources[in.Resource]; !ok {
				return fmt.Errorf("recipe %s: unknown resource %q", name, in.Resource)
			}
			if in.Amount <= 0 {
				return fmt.Errorf("recipe %s: non-positive amount for %q", name, in.Resource)
			}
		}
	}
	for id, r := range c.Resources {
		for sub := range r.Elasticity {
			if _, ok := c.Resources[sub]; !ok {
				return fmt.Errorf("resource %s: elasticity toward unknown resource %q", id, sub)
			}
		}
	}
	for name, city := range c.Cities {
		if _, err := NewCity(city.Name, city.Country, city.Wealth, city.Population); err != nil {
			return err
		}
		if name != city.Name {
			return fmt.Errorf("city index key %q does not match name %q", name, city.Name)
		}
	}
	for kind, p := range c.Facility {
		if p.BaseCost < 0 {
			return fmt.Errorf("facility kind %s: negative base cost", kind)
		}
	}
	return nil
}
