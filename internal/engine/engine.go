// Package engine owns every mutation of area and zone state.
//
// All callers (scheduler, switches, sensors, the HTTP API) go through
// Invoke or the tick entry points; nothing else writes to the store.
package engine

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/actuator"
	"github.com/dokzlo13/circadiand/internal/curve"
	"github.com/dokzlo13/circadiand/internal/ledger"
	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
)

// Sink accepts command sequences for delivery
type Sink interface {
	Submit(areaID string, cmds ...actuator.Command) error
}

// RhythmResolver looks up a rhythm by name, falling back to the default
type RhythmResolver interface {
	ResolveRhythm(name string) rhythm.Rhythm
}

// Recorder appends to the invocation ledger
type Recorder interface {
	Append(e ledger.Entry) error
}

// Default transitions
const (
	DefaultTransition       = 2 * time.Second
	DefaultActionTransition = 400 * time.Millisecond
)

// twoStepThreshold is the colour jump at which a turn-on first sets colour at 1%
const twoStepThreshold = 500

// Options configures an Engine
type Options struct {
	Store   *state.Store
	Clock   solar.Clock
	Sun     solar.Provider
	Rhythms RhythmResolver
	Sink    Sink
	Ledger  Recorder // optional

	Transition       time.Duration // scheduler ticks
	ActionTransition time.Duration // user actions
}

// Engine is the single owner of area and zone state
type Engine struct {
	store   *state.Store
	clock   solar.Clock
	sun     solar.Provider
	rhythms RhythmResolver
	sink    Sink
	ledger  Recorder

	transition       time.Duration
	actionTransition time.Duration

	groupsMu sync.RWMutex
	groups   map[string]bool
	registry *registry
}

// New creates an engine
func New(opts Options) *Engine {
	if opts.Transition <= 0 {
		opts.Transition = DefaultTransition
	}
	if opts.ActionTransition <= 0 {
		opts.ActionTransition = DefaultActionTransition
	}
	if opts.Sun == nil {
		opts.Sun = solar.Fixed(solar.DefaultSunTimes())
	}

	e := &Engine{
		store:            opts.Store,
		clock:            opts.Clock,
		sun:              opts.Sun,
		rhythms:          opts.Rhythms,
		sink:             opts.Sink,
		ledger:           opts.Ledger,
		transition:       opts.Transition,
		actionTransition: opts.ActionTransition,
		groups:           make(map[string]bool),
	}
	e.registry = newRegistry(e)
	return e
}

// ZoneDef is one configured zone
type ZoneDef struct {
	Name   string
	Rhythm string
	Areas  []string
}

// AreaDef is one configured area
type AreaDef struct {
	ID    string
	Group bool // synthetic grouping area; never ticked
}

// SyncTopology writes configured zone membership into the store, keeping
// each zone's runtime triple. Areas not in any zone join the default zone.
func (e *Engine) SyncTopology(zones []ZoneDef, areas []AreaDef) {
	assigned := make(map[string]bool)
	for _, z := range zones {
		unlock := e.store.LockZone(z.Name, nil)
		zs := e.store.Zone(z.Name)
		zs.Rhythm = z.Rhythm
		zs.Areas = slices.Clone(z.Areas)
		slices.Sort(zs.Areas)
		e.store.PutZone(z.Name, zs)
		unlock()
		for _, a := range z.Areas {
			assigned[a] = true
			e.store.Area(a)
		}
	}

	var unassigned []string
	for _, a := range areas {
		e.groupsMu.Lock()
		e.groups[a.ID] = a.Group
		e.groupsMu.Unlock()
		e.store.Area(a.ID)
		if !assigned[a.ID] {
			unassigned = append(unassigned, a.ID)
		}
	}
	// areas only known from a previous run
	for _, id := range e.store.AreaIDs() {
		if !assigned[id] && !slices.Contains(unassigned, id) {
			unassigned = append(unassigned, id)
		}
	}
	slices.Sort(unassigned)

	unlock := e.store.LockZone(state.DefaultZone, nil)
	dz := e.store.Zone(state.DefaultZone)
	dz.Rhythm = rhythm.DefaultName
	dz.Areas = unassigned
	e.store.PutZone(state.DefaultZone, dz)
	unlock()

	log.Info().
		Int("zones", len(zones)).
		Int("areas", len(e.store.AreaIDs())).
		Int("unassigned", len(unassigned)).
		Msg("Synced zone topology")
}

// IsGroup reports whether the area is a synthetic grouping area
func (e *Engine) IsGroup(areaID string) bool {
	e.groupsMu.RLock()
	defer e.groupsMu.RUnlock()
	return e.groups[areaID]
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

func (e *Engine) hour() float64 {
	return solar.HourOf(e.now())
}

func (e *Engine) sunTimes() solar.SunTimes {
	return e.sun.SunTimes(e.now())
}

// rhythmFor resolves the rhythm of the area's zone
func (e *Engine) rhythmFor(areaID string) (rhythm.Rhythm, string) {
	zoneID := e.store.ZoneOf(areaID)
	return e.zoneRhythm(zoneID), zoneID
}

func (e *Engine) zoneRhythm(zoneID string) rhythm.Rhythm {
	z, _ := e.store.LookupZone(zoneID)
	name := z.Rhythm
	if name == "" {
		name = rhythm.DefaultName
	}
	if e.rhythms == nil {
		return rhythm.Default()
	}
	return e.rhythms.ResolveRhythm(name)
}

// evaluate computes what the area should show now, boost included
func (e *Engine) evaluate(a state.AreaState, r rhythm.Rhythm) curve.Result {
	res := curve.Evaluate(a.EffectiveHour(e.hour()), r, a.Runtime(), e.sunTimes())
	if a.Boosted(e.now()) {
		res.Brightness = min(res.Brightness+*a.BoostAmount, rhythm.AbsMaxBrightness)
	}
	return res
}

func (e *Engine) submit(areaID string, cmds ...actuator.Command) error {
	if e.sink == nil {
		return nil
	}
	if err := e.sink.Submit(areaID, cmds...); err != nil {
		log.Warn().Err(err).Str("area", areaID).Msg("Failed to queue light command")
		return err
	}
	return nil
}

// emit re-asserts the area's current target with the given transition
func (e *Engine) emit(areaID string, a state.AreaState, r rhythm.Rhythm, transition time.Duration) error {
	if !a.IsCircadian {
		return nil
	}
	if !a.IsOn {
		return e.submit(areaID, actuator.Off(transition))
	}
	return e.submit(areaID, actuator.On(e.evaluate(a, r), transition))
}

// turnOn powers the area up. When the colour moved a lot since it was last
// turned off, the colour is set at 1% first so the light never sweeps
// through the old colour at full brightness.
func (e *Engine) turnOn(areaID string, a state.AreaState, r rhythm.Rhythm) error {
	res := e.evaluate(a, r)
	target := actuator.On(res, e.actionTransition)

	if a.LastOffColorTemp != nil && abs(res.Kelvin-*a.LastOffColorTemp) < twoStepThreshold {
		return e.submit(areaID, target)
	}

	first := actuator.On(res, 0)
	first.Brightness = rhythm.AbsMinBrightness
	target.Delay = 100 * time.Millisecond
	return e.submit(areaID, first, target)
}

// turnOff powers the area down and remembers the colour it showed
func (e *Engine) turnOff(areaID string, a *state.AreaState, r rhythm.Rhythm) error {
	k := e.evaluate(*a, r).Kelvin
	a.LastOffColorTemp = &k
	return e.submit(areaID, actuator.Off(e.actionTransition))
}

// bounce dips the light and brings it back, signalling a limit was hit
func (e *Engine) bounce(areaID string, a state.AreaState, r rhythm.Rhythm) error {
	if !a.IsCircadian || !a.IsOn {
		return nil
	}
	res := e.evaluate(a, r)
	b := float64(res.Brightness)
	depth := 0.5 + (100-b)/200
	dip := actuator.On(res, 300*time.Millisecond)
	dip.Brightness = max(rhythm.AbsMinBrightness, int(math.Round(b*(1-depth))))
	back := actuator.On(res, 300*time.Millisecond)
	back.Delay = 300 * time.Millisecond
	return e.submit(areaID, dip, back)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func floatPtr(v float64) *float64 {
	return &v
}
