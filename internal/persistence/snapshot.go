package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
	"github.com/gram12321/tradergame04-sub000/internal/engine"
)

// Snapshots are zstd-compressed JSON files, an archival/transport format
// next to the live SQLite store. Static data (cities, recipes) is stored by
// name and re-linked from the catalog on import.

type snapshotV1 struct {
	Version    uint64                `json:"version"`
	Tick       uint64                `json:"tick"`
	NextSeq    uint64                `json:"next_seq"`
	Companies  []companyV1           `json:"companies"`
	Facilities []facilityV1          `json:"facilities"`
	Offers     []*economy.SellOffer  `json:"offers"`
	Routes     []*economy.TradeRoute `json:"routes"`
}

type companyV1 struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

type facilityV1 struct {
	ID              string                          `json:"id"`
	CompanyID       string                          `json:"company_id"`
	City            string                          `json:"city"`
	Kind            string                          `json:"kind"`
	Size            int                             `json:"size"`
	Workers         int                             `json:"workers"`
	Effectivity     float64                         `json:"effectivity"`
	PrevEffectivity float64                         `json:"prev_effectivity"`
	Capacity        float64                         `json:"capacity"`
	OfficeMult      float64                         `json:"office_mult"`
	AdminLoad       float64                         `json:"admin_load"`
	Recipe          string                          `json:"recipe,omitempty"`
	Progress        int                             `json:"progress"`
	Producing       bool                            `json:"producing"`
	BatchInputs     []catalog.ResourceAmount        `json:"batch_inputs,omitempty"`
	BatchOutputs    []catalog.ResourceAmount        `json:"batch_outputs,omitempty"`
	Inventory       map[catalog.ResourceID]float64  `json:"inventory,omitempty"`
	Prices          map[catalog.ResourceID]float64  `json:"prices,omitempty"`
	Sales           map[catalog.ResourceID]float64  `json:"sales,omitempty"`
	Routes          map[string]*economy.RouteRecord `json:"routes,omitempty"`
	Controlled      []string                        `json:"controlled,omitempty"`
}

// WriteSnapshot exports a state snapshot to path.
func WriteSnapshot(path string, st *engine.State) error {
	snap := snapshotV1{Version: 1, Tick: st.Tick, NextSeq: st.NextSeq, Offers: st.Offers, Routes: st.Routes}
	for _, c := range st.Companies {
		snap.Companies = append(snap.Companies, companyV1{ID: c.ID, Name: c.Name, Balance: c.Balance})
	}
	for _, f := range st.Facilities {
		fv := facilityV1{
			ID:              f.ID,
			CompanyID:       f.CompanyID,
			City:            f.City.Name,
			Kind:            f.Kind.String(),
			Size:            f.Size,
			Workers:         f.Workers,
			Effectivity:     f.Effectivity,
			PrevEffectivity: f.PrevEffectivity,
			Capacity:        f.Capacity,
			OfficeMult:      f.OfficeMult,
			AdminLoad:       f.AdminLoad,
			Progress:        f.Progress,
			Producing:       f.Producing,
			BatchInputs:     f.BatchInputs,
			BatchOutputs:    f.BatchOutputs,
			Inventory:       f.Inventory,
			Prices:          f.Prices,
			Sales:           f.Sales,
			Routes:          f.Routes,
			Controlled:      keys(f.Controlled),
		}
		if f.Recipe != nil {
			fv.Recipe = f.Recipe.Name
		}
		snap.Facilities = append(snap.Facilities, fv)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	return json.NewEncoder(bw).Encode(&snap)
}

// ReadSnapshot imports a snapshot from path, re-linking catalog references.
func ReadSnapshot(path string, cat *catalog.Catalog) (*engine.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var snap snapshotV1
	if err := json.NewDecoder(bufio.NewReaderSize(dec, 256*1024)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != 1 {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	st := &engine.State{Tick: snap.Tick, NextSeq: snap.NextSeq, Offers: snap.Offers, Routes: snap.Routes}
	for _, c := range snap.Companies {
		st.Companies = append(st.Companies, &economy.Company{ID: c.ID, Name: c.Name, Balance: c.Balance})
	}
	for _, fv := range snap.Facilities {
		city, ok := cat.Cities[fv.City]
		if !ok {
			return nil, fmt.Errorf("facility %s: city %q not in catalog", fv.ID, fv.City)
		}
		kind, ok := economy.KindFromString(fv.Kind)
		if !ok {
			return nil, fmt.Errorf("facility %s: unknown kind %q", fv.ID, fv.Kind)
		}
		fac := &economy.Facility{
			ID:              fv.ID,
			CompanyID:       fv.CompanyID,
			City:            city,
			Kind:            kind,
			Size:            fv.Size,
			Workers:         fv.Workers,
			Effectivity:     fv.Effectivity,
			PrevEffectivity: fv.PrevEffectivity,
			Capacity:        fv.Capacity,
			OfficeMult:      fv.OfficeMult,
			AdminLoad:       fv.AdminLoad,
			Progress:        fv.Progress,
			Producing:       fv.Producing,
			BatchInputs:     fv.BatchInputs,
			BatchOutputs:    fv.BatchOutputs,
			Inventory:       fv.Inventory,
			Prices:          fv.Prices,
			Sales:           fv.Sales,
			Routes:          fv.Routes,
			Params:          cat.Facility[fv.Kind],
		}
		if fv.Recipe != "" {
			rec, ok := cat.Recipes[fv.Recipe]
			if !ok {
				return nil, fmt.Errorf("facility %s: recipe %q not in catalog", fv.ID, fv.Recipe)
			}
			fac.Recipe = rec
		}
		if fac.Routes == nil {
			fac.Routes = make(map[string]*economy.RouteRecord)
		}
		if kind.HasInventory() && fac.Inventory == nil {
			fac.Inventory = make(map[catalog.ResourceID]float64)
		}
		if kind == economy.KindRetail {
			if fac.Prices == nil {
				fac.Prices = make(map[catalog.ResourceID]float64)
			}
			if fac.Sales == nil {
				fac.Sales = make(map[catalog.ResourceID]float64)
			}
		}
		if kind == economy.KindOffice {
			fac.Controlled = make(map[string]struct{}, len(fv.Controlled))
			for _, id := range fv.Controlled {
				fac.Controlled[id] = struct{}{}
			}
		}
		st.Facilities = append(st.Facilities, fac)
	}
	return st, nil
}
