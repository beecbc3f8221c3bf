// Package api serves the simulation over HTTP. GET endpoints are read-only
// projections of core state; POST endpoints drive the action surface and
// require a bearer token. The UI never mutates state any other way. Every
// handler that touches live state takes the simulation lock, so requests
// interleave with the engine's tick loop instead of racing it.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/economy"
	"github.com/gram12321/tradergame04-sub000/internal/engine"
)

// Server exposes a simulation instance.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Store    engine.Store
	Port     int
	AdminKey string // bearer token for POST endpoints; empty disables them
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	actionLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/companies", s.handleCompanies)
	mux.HandleFunc("/api/v1/company/", s.handleCompanyDetail)
	mux.HandleFunc("/api/v1/facility/", s.handleFacilityDetail)
	mux.HandleFunc("/api/v1/market/offers", s.handleOffers)
	mux.HandleFunc("/api/v1/market/routes", s.handleRoutes)
	mux.HandleFunc("/api/v1/cities", s.handleCities)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	mux.HandleFunc("/api/v1/tick", s.adminOnly(RateLimitMiddleware(actionLimiter, s.handleTick)))
	mux.HandleFunc("/api/v1/action", s.adminOnly(RateLimitMiddleware(actionLimiter, s.handleAction)))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.handleReset))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, corsMiddleware(mux)); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware allows configured frontend origins; localhost dev servers
// are always allowed. Set CORS_ORIGINS to a comma-separated list.
func corsMiddleware(next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowed[origin] = true
			}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.Sim.Lock()
	status := map[string]any{
		"tick":       s.Sim.CurrentTick(),
		"companies":  len(s.Sim.Companies),
		"facilities": len(s.Sim.Facilities),
		"offers":     len(s.Sim.Market.Offers),
		"routes":     len(s.Sim.Market.Routes),
		"cities":     len(s.Sim.Catalog.Cities),
	}
	s.Sim.Unlock()
	if s.Eng != nil {
		status["speed"] = s.Eng.CurrentSpeed()
		status["running"] = s.Eng.IsRunning()
	}
	writeJSON(w, status)
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	type companySummary struct {
		ID         string  `json:"id"`
		Name       string  `json:"name"`
		Balance    float64 `json:"balance"`
		Facilities int     `json:"facilities"`
		WageBill   float64 `json:"wage_bill"`
	}
	s.Sim.Lock()
	defer s.Sim.Unlock()
	result := make([]companySummary, 0, len(s.Sim.Companies))
	for _, c := range s.Sim.Companies {
		result = append(result, companySummary{
			ID:         c.ID,
			Name:       c.Name,
			Balance:    c.Balance,
			Facilities: len(c.Facilities),
			WageBill:   c.WageBill(),
		})
	}
	writeJSON(w, result)
}

type facilityView struct {
	ID          string             `json:"id"`
	CompanyID   string             `json:"company_id"`
	City        string             `json:"city"`
	Country     string             `json:"country"`
	Kind        string             `json:"kind"`
	Size        int                `json:"size"`
	Workers     int                `json:"workers"`
	Required    int                `json:"required_workers"`
	Effectivity float64            `json:"effectivity"`
	Capacity    float64            `json:"capacity"`
	Inventory   map[string]float64 `json:"inventory,omitempty"`
	Recipe      string             `json:"recipe,omitempty"`
	Producing   bool               `json:"producing,omitempty"`
	Progress    int                `json:"progress,omitempty"`
	AdminLoad   float64            `json:"admin_load,omitempty"`
}

func viewFacility(f *economy.Facility) facilityView {
	v := facilityView{
		ID:          f.ID,
		CompanyID:   f.CompanyID,
		City:        f.City.Name,
		Country:     f.City.Country,
		Kind:        f.Kind.String(),
		Size:        f.Size,
		Workers:     f.Workers,
		Required:    f.RequiredWorkers(),
		Effectivity: f.Effectivity,
		Capacity:    f.Capacity,
		Producing:   f.Producing,
		Progress:    f.Progress,
		AdminLoad:   f.AdminLoad,
	}
	if f.Recipe != nil {
		v.Recipe = f.Recipe.Name
	}
	if f.Inventory != nil {
		v.Inventory = make(map[string]float64, len(f.Inventory))
		for res, qty := range f.Inventory {
			v.Inventory[string(res)] = qty
		}
	}
	return v
}

func (s *Server) handleCompanyDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/company/")
	id = strings.TrimSuffix(id, "/facilities")
	s.Sim.Lock()
	defer s.Sim.Unlock()
	c, ok := s.Sim.Companies[id]
	if !ok {
		http.Error(w, "company not found", http.StatusNotFound)
		return
	}
	facilities := make([]facilityView, 0, len(c.Facilities))
	for _, f := range c.Facilities {
		facilities = append(facilities, viewFacility(f))
	}
	writeJSON(w, map[string]any{
		"id":         c.ID,
		"name":       c.Name,
		"balance":    c.Balance,
		"wage_bill":  c.WageBill(),
		"facilities": facilities,
	})
}

func (s *Server) handleFacilityDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/facility/")
	s.Sim.Lock()
	defer s.Sim.Unlock()
	f, ok := s.Sim.Facilities[id]
	if !ok {
		http.Error(w, "facility not found", http.StatusNotFound)
		return
	}

	type flowEntry struct {
		NetFlow   float64 `json:"net_flow"`
		Depletion float64 `json:"depletion_ticks"` // -1 when not depleting
	}
	flows := make(map[string]flowEntry)
	for res := range f.Inventory {
		flows[string(res)] = flowEntry{NetFlow: f.NetFlow(res), Depletion: f.DepletionTicks(res)}
	}

	writeJSON(w, map[string]any{
		"facility": viewFacility(f),
		"flows":    flows,
		"routes":   f.Routes,
	})
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	type offerView struct {
		ID              string  `json:"id"`
		CompanyID       string  `json:"company_id"`
		FacilityID      string  `json:"facility_id"`
		Resource        string  `json:"resource"`
		AmountAvailable float64 `json:"amount_available"`
		AmountInStock   float64 `json:"amount_in_stock"`
		Price           float64 `json:"price"`
	}
	s.Sim.Lock()
	defer s.Sim.Unlock()
	result := make([]offerView, 0, len(s.Sim.Market.Offers))
	for _, o := range s.Sim.Market.Offers {
		result = append(result, offerView{
			ID:              o.ID,
			CompanyID:       o.CompanyID,
			FacilityID:      o.FacilityID,
			Resource:        string(o.Resource),
			AmountAvailable: o.AmountAvailable,
			AmountInStock:   o.AmountInStock,
			Price:           o.Price,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	type routeView struct {
		ID             string  `json:"id"`
		SellerCompany  string  `json:"seller_company"`
		BuyerCompany   string  `json:"buyer_company"`
		Resource       string  `json:"resource"`
		AmountPerTick  float64 `json:"amount_per_tick"`
		PricePerUnit   float64 `json:"price_per_unit"`
		Internal       bool    `json:"internal"`
		LastFailedTick *uint64 `json:"last_failed_tick,omitempty"`
	}
	s.Sim.Lock()
	defer s.Sim.Unlock()
	result := make([]routeView, 0, len(s.Sim.Market.Routes))
	for _, rt := range s.Sim.Market.RoutesBySeq() {
		result = append(result, routeView{
			ID:             rt.ID,
			SellerCompany:  rt.SellerCompany,
			BuyerCompany:   rt.BuyerCompany,
			Resource:       string(rt.Resource),
			AmountPerTick:  rt.AmountPerTick,
			PricePerUnit:   rt.PricePerUnit,
			Internal:       rt.Internal,
			LastFailedTick: rt.LastFailedTick,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	type cityView struct {
		Name       string             `json:"name"`
		Country    string             `json:"country"`
		Wealth     float64            `json:"wealth"`
		Population int                `json:"population"`
		Report     *engine.CityReport `json:"report,omitempty"`
	}
	s.Sim.Lock()
	defer s.Sim.Unlock()
	result := make([]cityView, 0, len(s.Sim.Catalog.Cities))
	for name, city := range s.Sim.Catalog.Cities {
		result = append(result, cityView{
			Name:       name,
			Country:    city.Country,
			Wealth:     city.Wealth,
			Population: city.Population,
			Report:     s.Sim.Reports[name],
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.Sim.Lock()
	events := make([]engine.Event, len(s.Sim.Events))
	copy(events, s.Sim.Events)
	s.Sim.Unlock()
	writeJSON(w, events)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.Sim.Lock()
	s.Sim.AdvanceTick()
	if s.Store != nil {
		if err := s.Store.Save(s.Sim.ExportState()); err != nil {
			slog.Error("save after tick failed", "error", err)
		}
	}
	tick := s.Sim.CurrentTick()
	s.Sim.Unlock()
	writeJSON(w, map[string]any{"tick": tick})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || s.Eng == nil {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed < 0 {
		http.Error(w, "bad speed", http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	writeJSON(w, map[string]any{"speed": s.Eng.CurrentSpeed()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || s.Store == nil {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if err := s.Store.Reset(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"reset": true})
}

// actionRequest is the uniform envelope for the action surface.
type actionRequest struct {
	Type      string  `json:"type"`
	CompanyID string  `json:"company_id"`
	Facility  string  `json:"facility_id"`
	Facility2 string  `json:"facility2_id"`
	City      string  `json:"city"`
	Kind      string  `json:"kind"`
	Recipe    string  `json:"recipe"`
	Resource  string  `json:"resource"`
	OfferID   string  `json:"offer_id"`
	RouteID   string  `json:"route_id"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Workers   int     `json:"workers"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	res := catalog.ResourceID(req.Resource)
	var result any
	var err error

	// Actions land between ticks, never inside one.
	s.Sim.Lock()
	defer s.Sim.Unlock()

	switch req.Type {
	case "create_facility":
		kind, ok := economy.KindFromString(req.Kind)
		if !ok {
			http.Error(w, "unknown facility kind", http.StatusBadRequest)
			return
		}
		result, err = s.Sim.CreateFacility(req.CompanyID, req.City, kind)
	case "destroy_facility":
		err = s.Sim.DestroyFacility(req.CompanyID, req.Facility)
	case "upgrade_facility":
		err = s.Sim.UpgradeFacility(req.CompanyID, req.Facility)
	case "degrade_facility":
		err = s.Sim.DegradeFacility(req.CompanyID, req.Facility)
	case "set_workers":
		err = s.Sim.SetWorkers(req.CompanyID, req.Facility, req.Workers)
	case "set_recipe":
		err = s.Sim.SetRecipe(req.CompanyID, req.Facility, req.Recipe)
	case "set_price":
		err = s.Sim.SetRetailPrice(req.CompanyID, req.Facility, res, req.Price)
	case "create_offer":
		result, err = s.Sim.CreateOffer(req.CompanyID, req.Facility, res, req.Amount, req.Price)
	case "update_offer":
		err = s.Sim.UpdateOffer(req.CompanyID, req.OfferID, req.Amount, req.Price)
	case "cancel_offer":
		err = s.Sim.CancelOffer(req.CompanyID, req.OfferID)
	case "accept_offer":
		result, err = s.Sim.AcceptOffer(req.CompanyID, req.Facility, req.OfferID, req.Amount)
	case "create_internal_route":
		result, err = s.Sim.CreateInternalRoute(req.CompanyID, req.Facility, req.Facility2, res, req.Amount)
	case "update_route":
		err = s.Sim.UpdateRoute(req.CompanyID, req.RouteID, req.Amount)
	case "cancel_route":
		err = s.Sim.CancelRoute(req.CompanyID, req.RouteID)
	case "instant_transfer":
		err = s.Sim.InstantTransfer(req.CompanyID, req.Facility, req.Facility2, res, req.Amount)
	default:
		http.Error(w, "unknown action type", http.StatusBadRequest)
		return
	}

	if err != nil {
		// Business rejections are expected; report them as data, not 5xx.
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true, "result": result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write JSON response", "error", err)
	}
}
