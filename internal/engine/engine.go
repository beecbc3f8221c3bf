package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Engine drives a simulation forward on a wall-clock interval and saves
// state through the injected store. Persistence runs between ticks, never
// inside one. Speed and the running flag are shared with the HTTP layer and
// go through the engine's own lock; simulation state is guarded by the
// simulation lock, which Step holds for the whole tick.
type Engine struct {
	Sim      *Simulation
	Store    Store
	Interval time.Duration // base tick interval

	// SaveEvery is the tick period between automatic saves. 0 disables
	// auto-save.
	SaveEvery uint64

	// ReportEvery is the tick period between Info-level summaries.
	ReportEvery uint64

	mu      sync.Mutex
	speed   float64 // multiplier: 1.0 = real-time, 0 = paused
	running bool
}

// NewEngine wraps a simulation with default pacing.
func NewEngine(sim *Simulation, store Store) *Engine {
	return &Engine{
		Sim:         sim,
		Store:       store,
		Interval:    time.Second,
		speed:       1.0,
		SaveEvery:   60,
		ReportEvery: 10,
	}
}

// SetSpeed changes the tick-rate multiplier. 0 pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// CurrentSpeed returns the tick-rate multiplier.
func (e *Engine) CurrentSpeed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// IsRunning reports whether the tick loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the tick loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	slog.Info("engine started", "tick", e.Sim.CurrentTick(), "speed", e.CurrentSpeed(), "interval", e.Interval)

	for e.IsRunning() {
		speed := e.CurrentSpeed()
		if speed <= 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	e.Sim.Lock()
	err := e.save()
	e.Sim.Unlock()
	if err != nil {
		slog.Error("final save failed", "error", err)
	}
	slog.Info("engine stopped", "tick", e.Sim.CurrentTick())
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Step advances one tick and handles periodic saving and reporting. The
// simulation lock is held for the whole step so HTTP actions land between
// ticks, never inside one.
func (e *Engine) Step() {
	e.Sim.Lock()
	defer e.Sim.Unlock()

	e.Sim.AdvanceTick()
	tick := e.Sim.Tick

	if e.ReportEvery > 0 && tick%e.ReportEvery == 0 {
		e.report(tick)
	}
	if e.SaveEvery > 0 && tick%e.SaveEvery == 0 {
		if err := e.save(); err != nil {
			slog.Error("periodic save failed", "tick", tick, "error", err)
		}
	}
}

func (e *Engine) save() error {
	if e.Store == nil {
		return nil
	}
	return e.Store.Save(e.Sim.ExportState())
}

func (e *Engine) report(tick uint64) {
	var totalBalance float64
	for _, c := range e.Sim.Companies {
		totalBalance += c.Balance
	}
	var failed int
	for _, r := range e.Sim.Market.Routes {
		if r.LastFailedTick != nil {
			failed++
		}
	}
	slog.Info("tick report",
		"tick", tick,
		"companies", len(e.Sim.Companies),
		"facilities", len(e.Sim.Facilities),
		"offers", len(e.Sim.Market.Offers),
		"routes", len(e.Sim.Market.Routes),
		"routes_failed", failed,
		"total_balance", humanize.CommafWithDigits(totalBalance, 2),
	)
	for _, ev := range lastEvents(e.Sim.Events, 5) {
		slog.Info("event", "category", ev.Category, "description", ev.Description)
	}
}

func lastEvents(events []Event, n int) []Event {
	if len(events) > n {
		return events[len(events)-n:]
	}
	return events
}

// String implements a short operator-facing description.
func (e *Engine) String() string {
	return fmt.Sprintf("engine tick=%d speed=%.1f running=%v", e.Sim.CurrentTick(), e.CurrentSpeed(), e.IsRunning())
}
