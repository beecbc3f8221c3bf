// Package worldgen produces fresh scenarios: a procedurally generated city
// directory and a set of starter companies to seed an empty database.
// Generation is deterministic for a given seed.
package worldgen

import (
	"fmt"
	"math/rand"
	"os"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
	"gopkg.in/yaml.v3"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
	"github.com/gram12321/tradergame04-sub000/internal/engine"
)

// GenConfig holds scenario generation parameters.
type GenConfig struct {
	Seed      int64
	Cities    int // number of cities to generate
	Countries int // cities are dealt round-robin across this many countries
	Companies int // starter companies
	Balance   float64 // starting balance per company
}

// DefaultGenConfig returns a small but workable scenario.
func DefaultGenConfig() GenConfig {
	return GenConfig{Seed: 42, Cities: 6, Countries: 2, Companies: 3, Balance: 50000}
}

var cityNames = []string{
	"Aldersgate", "Brackmoor", "Coldharbour", "Dunwick", "Eastmarsh",
	"Farrowfield", "Greystone", "Hollowbrook", "Ironford", "Juniper Cross",
	"Kestrel Bay", "Larkspur", "Mirefen", "Northledge", "Oakhaven",
	"Pellmere", "Quarrydown", "Ravenshollow", "Silverstrand", "Thornbury",
}

// GenerateCities lays cities on a noise field: one layer drives wealth, a
// second drives population. Wealth and population correlate loosely because
// both sample the same coordinates.
func GenerateCities(cfg GenConfig) []*catalog.City {
	wealthNoise := opensimplex.NewNormalized(cfg.Seed)
	popNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	rng := rand.New(rand.NewSource(cfg.Seed + 2))

	n := cfg.Cities
	if n > len(cityNames) {
		n = len(cityNames)
	}
	countries := cfg.Countries
	if countries < 1 {
		countries = 1
	}

	// Shuffled name order, deterministic per seed.
	names := append([]string(nil), cityNames...)
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	cities := make([]*catalog.City, 0, n)
	for i := 0; i < n; i++ {
		x := float64(i) * 0.73
		y := float64(i) * 1.31
		wealth := octaveNoise(wealthNoise, x, y, 3, 0.8, 0.5)
		population := 500 + int(octaveNoise(popNoise, x, y, 3, 0.8, 0.5)*19500)

		city, err := catalog.NewCity(
			names[i],
			fmt.Sprintf("country-%d", i%countries+1),
			clamp01(wealth),
			population,
		)
		if err != nil {
			// Generated inputs are clamped into range; a failure here is a bug.
			panic(err)
		}
		cities = append(cities, city)
	}
	return cities
}

// WriteCitiesYAML writes a generated city directory in the catalog's
// cities.yaml format.
func WriteCitiesYAML(path string, cities []*catalog.City) error {
	type cityDoc struct {
		Name       string  `yaml:"name"`
		Country    string  `yaml:"country"`
		Wealth     float64 `yaml:"wealth"`
		Population int     `yaml:"population"`
	}
	doc := struct {
		Cities []cityDoc `yaml:"cities"`
	}{}
	for _, c := range cities {
		doc.Cities = append(doc.Cities, cityDoc{Name: c.Name, Country: c.Country, Wealth: c.Wealth, Population: c.Population})
	}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// StarterState builds a fresh simulation state over the catalog's cities:
// each company gets an office, a staffed production facility running a
// recipe, and a stocked retail facility listing every consumable resource at
// its reference price.
func StarterState(cat *catalog.Catalog, cfg GenConfig) (*engine.State, error) {
	if len(cat.Cities) == 0 {
		return nil, fmt.Errorf("catalog has no cities")
	}
	rng := rand.New(rand.NewSource(cfg.Seed + 100))

	cityList := make([]*catalog.City, 0, len(cat.Cities))
	for _, name := range sortedNames(cat.Cities) {
		cityList = append(cityList, cat.Cities[name])
	}
	recipeNames := sortedNames(cat.Recipes)

	st := &engine.State{NextSeq: 1}
	for i := 0; i < cfg.Companies; i++ {
		company := economy.NewCompany(fmt.Sprintf("Company %c", 'A'+i%26), cfg.Balance)
		city := cityList[i%len(cityList)]

		office := economy.NewFacility(company.ID, city, economy.KindOffice, cat.Facility["office"])
		office.Workers = 1

		production := economy.NewFacility(company.ID, city, economy.KindProduction, cat.Facility["production"])
		production.Workers = production.RequiredWorkers()
		if len(recipeNames) > 0 {
			recipe := cat.Recipes[recipeNames[rng.Intn(len(recipeNames))]]
			production.Recipe = recipe
			// A few ticks of inputs so production can start immediately.
			for _, in := range recipe.Inputs {
				production.Inventory[in.Resource] = in.Amount * 10
			}
		}

		retail := economy.NewFacility(company.ID, city, economy.KindRetail, cat.Facility["retail"])
		retail.Workers = retail.RequiredWorkers()
		for _, res := range sortedNames(cat.Resources) {
			def := cat.Resources[res]
			if def.ConsumptionRate <= 0 {
				continue
			}
			retail.Prices[def.ID] = def.PriceIndex
			retail.Inventory[def.ID] = 50 + rng.Float64()*100
		}

		for _, f := range []*economy.Facility{production, retail} {
			office.Controlled[f.ID] = struct{}{}
		}
		company.Facilities = []*economy.Facility{office, production, retail}

		// Capacity derives from the previous tick's effectivity. Starter
		// facilities carry stock from tick one, so they need a non-zero
		// starting point or the overflow penalty would pin them at zero.
		for _, f := range company.Facilities {
			f.Effectivity = 1
			f.PrevEffectivity = 1
		}

		st.Companies = append(st.Companies, company)
		st.Facilities = append(st.Facilities, company.Facilities...)
	}
	return st, nil
}

// octaveNoise layers multiple noise frequencies for a more organic field.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
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

func sortedNames[K ~string, V any](m map[K]V) []K {
	names := make([]K, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
