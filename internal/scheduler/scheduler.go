// Package scheduler drives the periodic re-assertion of every circadian area.
package scheduler

import (
	"context"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
)

// DefaultInterval is the tick period when none is configured
const DefaultInterval = 30 * time.Second

// Engine is the part of the engine the scheduler drives
type Engine interface {
	ExpireTimers() []string
	ZoneRhythms() map[string]rhythm.Rhythm
	PhaseReset(policy engine.PhaseResetPolicy, reason string, zoneIDs []string)
	Assert() int
}

// Reset reasons
const (
	ReasonAscendStart   = "ascend_start"
	ReasonDescendStart  = "descend_start"
	ReasonSolarMidnight = "solar_midnight"
)

// Options configures a Scheduler
type Options struct {
	Engine   Engine
	Clock    solar.Clock
	Sun      solar.Provider
	Interval time.Duration
	Policy   engine.PhaseResetPolicy

	// OnTick runs after every tick, outside any lock
	OnTick func()
}

// Scheduler ticks on a fixed interval and on demand
type Scheduler struct {
	engine   Engine
	clock    solar.Clock
	sun      solar.Provider
	interval time.Duration
	policy   engine.PhaseResetPolicy
	onTick   func()

	mu   sync.Mutex
	last time.Time

	wake chan struct{}
}

// New creates a scheduler
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Policy == "" {
		opts.Policy = engine.PreservePower
	}
	if opts.Sun == nil {
		opts.Sun = solar.Fixed(solar.DefaultSunTimes())
	}

	return &Scheduler{
		engine:   opts.Engine,
		clock:    opts.Clock,
		sun:      opts.Sun,
		interval: opts.Interval,
		policy:   opts.Policy,
		onTick:   opts.OnTick,
		wake:     make(chan struct{}, 1),
	}
}

// Wake requests an immediate tick. It never blocks; requests made while one
// is already pending are merged.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Str("policy", string(s.policy)).Msg("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopping")
			return nil
		case <-s.wake:
			log.Debug().Msg("Scheduler woken")
			s.Tick()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick expires timers, applies any phase reset that is due and re-asserts
// every circadian area.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	now := s.clock.Now()
	last := s.last
	s.last = now
	s.mu.Unlock()

	if expired := s.engine.ExpireTimers(); len(expired) > 0 {
		log.Debug().Strs("areas", expired).Msg("Expired timers")
	}

	if !last.IsZero() {
		for reason, zones := range s.dueResets(last, now) {
			s.engine.PhaseReset(s.policy, reason, zones)
		}
	}

	n := s.engine.Assert()
	log.Debug().Int("areas", n).Msg("Tick")

	if s.onTick != nil {
		s.onTick()
	}
}

// dueResets groups zones by the boundary they crossed in (last, now]
func (s *Scheduler) dueResets(last, now time.Time) map[string][]string {
	due := make(map[string][]string)
	zones := s.engine.ZoneRhythms()
	ids := slices.Sorted(maps.Keys(zones))

	for _, id := range ids {
		r := zones[id]
		if Crossed(last, now, r.AscendStart) {
			due[ReasonAscendStart] = append(due[ReasonAscendStart], id)
		}
		if Crossed(last, now, r.DescendStart) {
			due[ReasonDescendStart] = append(due[ReasonDescendStart], id)
		}
	}

	midnight := s.sun.SunTimes(now).SolarMidnight
	if Crossed(last, now, midnight) {
		due[ReasonSolarMidnight] = ids
	}
	return due
}

// Crossed reports whether the daily boundary at hour falls in (last, now].
// The boundary is a wall-clock time in last's location, so it stays put on
// days when DST changes.
func Crossed(last, now time.Time, hour float64) bool {
	if !now.After(last) {
		return false
	}
	secs := int(math.Round(solar.WrapHour(hour) * 3600))
	h, mnt, sec := secs/3600, secs%3600/60, secs%60

	y, m, d := last.Date()
	for i := 0; ; i++ {
		b := time.Date(y, m, d+i, h, mnt, sec, 0, last.Location())
		if b.After(now) {
			return false
		}
		if last.Before(b) {
			return true
		}
	}
}
