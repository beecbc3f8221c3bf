// Package engine wires companies, facilities, the market and the cities into
// one simulation instance and advances it tick by tick.
package engine

import (
	"sync"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
	"github.com/gram12321/tradergame04-sub000/internal/entropy"
)

// Simulation holds the complete economy state. All mutation funnels through
// the action surface (actions.go) and the tick orchestrator (tick.go). No
// phase runs concurrently with another; callers that drive the simulation
// from more than one goroutine (the engine loop and the HTTP handlers) must
// hold the lock around every tick, action, and read of live state.
type Simulation struct {
	Catalog    *catalog.Catalog
	Companies  map[string]*economy.Company
	Facilities map[string]*economy.Facility
	Market     *economy.Market
	Tick       uint64

	// Rand feeds the consumer substitution rolls. Inject a seeded source
	// for reproducible runs.
	Rand entropy.Source

	// Reports holds the most recent per-city demand outcome, rebuilt every
	// tick by the demand phase.
	Reports map[string]*CityReport

	Events []Event

	mu sync.Mutex
}

// Lock serializes access to live state across goroutines.
func (s *Simulation) Lock() { s.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (s *Simulation) Unlock() { s.mu.Unlock() }

// Event is a notable occurrence, kept for operators and the API.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "market", "production", "company"
}

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// NewSimulation creates an empty simulation over a catalog.
func NewSimulation(cat *catalog.Catalog, src entropy.Source) *Simulation {
	if src == nil {
		src = entropy.NewCrypto()
	}
	return &Simulation{
		Catalog:    cat,
		Companies:  make(map[string]*economy.Company),
		Facilities: make(map[string]*economy.Facility),
		Market:     economy.NewMarket(),
		Rand:       src,
		Reports:    make(map[string]*CityReport),
	}
}

// AddCompany registers a company with the simulation.
func (s *Simulation) AddCompany(c *economy.Company) {
	s.Companies[c.ID] = c
	for _, f := range c.Facilities {
		s.Facilities[f.ID] = f
	}
}

// CurrentTick returns the most recently completed tick number.
func (s *Simulation) CurrentTick() uint64 { return s.Tick }

func (s *Simulation) recordEvent(tick uint64, category, description string) {
	s.Events = append(s.Events, Event{Tick: tick, Description: description, Category: category})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

// State is the serializable snapshot of a simulation, exchanged with the
// persistence layer. The facility slice is authoritative; company ownership
// is rebuilt from facility CompanyID references on restore.
type State struct {
	Tick       uint64
	NextSeq    uint64
	Companies  []*economy.Company
	Facilities []*economy.Facility
	Offers     []*economy.SellOffer
	Routes     []*economy.TradeRoute
}

// Store is the narrow persistence contract the engine depends on. Load
// returns the previously saved state, Save replaces it wholesale, and Reset
// deletes every collection.
type Store interface {
	Load() (*State, error)
	Save(*State) error
	Reset() error
}

// ExportState projects the live simulation into a State snapshot.
func (s *Simulation) ExportState() *State {
	st := &State{Tick: s.Tick, NextSeq: s.Market.NextSeq}
	for _, c := range s.Companies {
		st.Companies = append(st.Companies, c)
	}
	for _, f := range s.Facilities {
		st.Facilities = append(st.Facilities, f)
	}
	for _, o := range s.Market.Offers {
		st.Offers = append(st.Offers, o)
	}
	for _, r := range s.Market.Routes {
		st.Routes = append(st.Routes, r)
	}
	return st
}

// Restore rebuilds a simulation from a saved state.
func Restore(cat *catalog.Catalog, st *State, src entropy.Source) *Simulation {
	sim := NewSimulation(cat, src)
	sim.Tick = st.Tick
	if st.NextSeq > 0 {
		sim.Market.NextSeq = st.NextSeq
	}
	for _, c := range st.Companies {
		c.Facilities = nil
		sim.Companies[c.ID] = c
	}
	for _, f := range st.Facilities {
		sim.Facilities[f.ID] = f
		if owner, ok := sim.Companies[f.CompanyID]; ok {
			owner.Facilities = append(owner.Facilities, f)
		}
	}
	for _, o := range st.Offers {
		sim.Market.Offers[o.ID] = o
	}
	for _, r := range st.Routes {
		sim.Market.Routes[r.ID] = r
		if r.Seq >= sim.Market.NextSeq {
			sim.Market.NextSeq = r.Seq + 1
		}
	}
	return sim
}
