// Package switches turns button events from wall switches and remotes into
// engine primitives, with per-switch scopes, hold-repeat and debounce.
package switches

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/debounce"
	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/eventbus"
)

// ScopeResetTimeout returns an idle switch to its first scope
const ScopeResetTimeout = 45 * time.Second

// maxHold stops a repeat whose release event never arrived
const maxHold = 30 * time.Second

// ErrUnknownSwitch is returned for events from switches that are not configured
var ErrUnknownSwitch = errors.New("unknown switch")

// Invoker runs engine primitives
type Invoker interface {
	Invoke(ctx context.Context, primitive, target string, p engine.Params) (engine.Applied, error)
}

// Mapper lets a script override the action chosen for an event
type Mapper interface {
	MapButton(ctx context.Context, switchID, event, def string, areas []string) (string, error)
}

// Config describes one switch
type Config struct {
	ID       string
	Type     string
	Scopes   [][]string
	Mapping  map[string]string // overrides on top of the type's defaults
	Debounce time.Duration
	Mapper   Mapper // optional
}

// Switch is one configured device and its runtime state
type Switch struct {
	id      string
	typ     Type
	scopes  [][]string
	mapping map[string]string
	mapper  Mapper
	gate    *debounce.Gate

	mu           sync.Mutex
	scope        int
	lastActivity time.Time
	holdKey      string
	holdCtx      context.Context
	holdCancel   context.CancelFunc
}

// Manager routes button events to switches
type Manager struct {
	ctx      context.Context
	invoker  Invoker
	switches map[string]*Switch
	now      func() time.Time
}

// NewManager builds the configured switches. ctx bounds hold repeats.
func NewManager(ctx context.Context, invoker Invoker, cfgs []Config) (*Manager, error) {
	m := &Manager{
		ctx:      ctx,
		invoker:  invoker,
		switches: make(map[string]*Switch),
		now:      time.Now,
	}

	for _, c := range cfgs {
		typ, ok := Types[c.Type]
		if !ok {
			return nil, fmt.Errorf("switch %q: unknown type %q", c.ID, c.Type)
		}
		mapping := maps.Clone(typ.Mapping)
		maps.Copy(mapping, c.Mapping)

		m.switches[c.ID] = &Switch{
			id:      c.ID,
			typ:     typ,
			scopes:  c.Scopes,
			mapping: mapping,
			mapper:  c.Mapper,
			gate:    debounce.NewGate(c.Debounce),
		}
		log.Debug().Str("switch", c.ID).Str("type", c.Type).Int("scopes", len(c.Scopes)).Msg("Switch configured")
	}
	return m, nil
}

// HandleEvent is the event bus handler for button events
func (m *Manager) HandleEvent(ev eventbus.Event) {
	if err := m.Press(m.ctx, ev.Source, ev.String("action")); err != nil {
		log.Warn().Err(err).Str("switch", ev.Source).Msg("Failed to handle button event")
	}
}

// Press handles one raw action reported by a switch
func (m *Manager) Press(ctx context.Context, switchID, raw string) error {
	sw, ok := m.switches[switchID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSwitch, switchID)
	}

	key, button, kind, ok := sw.typ.Event(raw)
	if !ok {
		log.Debug().Str("switch", switchID).Str("action", raw).Msg("Ignoring unknown button action")
		return nil
	}

	if isRelease(kind) {
		sw.stopHold(button)
	}
	if !sw.gate.Allow(key) {
		log.Debug().Str("switch", switchID).Str("event", key).Msg("Debounced button event")
		return nil
	}

	areas := sw.touch(m.now())
	action := sw.mapping[key]
	if sw.mapper != nil {
		mapped, err := sw.mapper.MapButton(ctx, switchID, key, action, areas)
		if err != nil {
			log.Error().Err(err).Str("switch", switchID).Str("event", key).Msg("Button script failed, using default")
		}
		action = mapped
	}
	if action == "" {
		return nil
	}

	log.Info().
		Str("switch", switchID).
		Str("event", key).
		Str("action", action).
		Strs("areas", areas).
		Msg("Button pressed")

	if slices.Contains(sw.typ.RepeatOnHold, key) {
		m.startHold(sw, button, action)
		return nil
	}
	return m.execute(ctx, sw, action)
}

// Scope returns the active scope index and its areas
func (m *Manager) Scope(switchID string) (int, []string) {
	sw, ok := m.switches[switchID]
	if !ok {
		return 0, nil
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.scope, sw.areasLocked()
}

// Close stops every running hold repeat
func (m *Manager) Close() {
	for _, sw := range m.switches {
		sw.stopHold("")
	}
}

// touch records activity, resetting the scope after a long idle, and
// returns the active areas
func (sw *Switch) touch(now time.Time) []string {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.scope != 0 && !sw.lastActivity.IsZero() && now.Sub(sw.lastActivity) > ScopeResetTimeout {
		log.Debug().Str("switch", sw.id).Msg("Switch idle, back to first scope")
		sw.scope = 0
	}
	sw.lastActivity = now
	return sw.areasLocked()
}

func (sw *Switch) areasLocked() []string {
	if sw.scope < len(sw.scopes) {
		return slices.Clone(sw.scopes[sw.scope])
	}
	return nil
}

// cycleScope moves to the next non-empty scope. Reports false when there is
// nowhere to go.
func (sw *Switch) cycleScope() (int, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	var valid []int
	for i, s := range sw.scopes {
		if len(s) > 0 {
			valid = append(valid, i)
		}
	}
	if len(valid) <= 1 {
		return sw.scope, false
	}

	pos := slices.Index(valid, sw.scope)
	sw.scope = valid[(pos+1)%len(valid)]
	return sw.scope, true
}

// startHold repeats action until the button is released. Devices that
// re-report the hold while it lasts do not restart the repeat.
func (m *Manager) startHold(sw *Switch, button, action string) {
	sw.mu.Lock()
	if sw.holdCancel != nil && sw.holdKey == button {
		sw.mu.Unlock()
		return
	}
	sw.mu.Unlock()
	sw.stopHold("")

	ctx, cancel := context.WithTimeout(m.ctx, maxHold)
	sw.mu.Lock()
	sw.holdKey = button
	sw.holdCtx = ctx
	sw.holdCancel = cancel
	sw.mu.Unlock()

	interval := sw.typ.RepeatInterval
	if interval <= 0 {
		interval = DefaultRepeatInterval
	}

	go func() {
		defer sw.endHold(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := m.execute(ctx, sw, action); err != nil {
				log.Warn().Err(err).Str("switch", sw.id).Str("action", action).Msg("Hold repeat failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// stopHold cancels the running repeat. An empty button stops any hold.
func (sw *Switch) stopHold(button string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.holdCancel == nil || (button != "" && button != sw.holdKey) {
		return
	}
	sw.holdCancel()
	sw.holdCancel = nil
	sw.holdCtx = nil
	sw.holdKey = ""
}

// endHold clears the hold when its repeat stopped on its own
func (sw *Switch) endHold(ctx context.Context) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.holdCtx != ctx {
		return
	}
	sw.holdCancel()
	sw.holdCancel = nil
	sw.holdCtx = nil
	sw.holdKey = ""
}

// execute runs a switch action against the switch's active areas
func (m *Manager) execute(ctx context.Context, sw *Switch, action string) error {
	sw.mu.Lock()
	areas := sw.areasLocked()
	sw.mu.Unlock()

	if action == ActionCycleScope {
		scope, moved := sw.cycleScope()
		if !moved {
			log.Warn().Str("switch", sw.id).Msg("Switch has only one scope")
			return nil
		}
		log.Info().Str("switch", sw.id).Int("scope", scope+1).Msg("Switch cycled scope")
		return nil
	}
	if len(areas) == 0 {
		log.Warn().Str("switch", sw.id).Msg("No areas configured for switch scope")
		return nil
	}

	p := engine.Params{Source: "switch:" + sw.id}
	invoke := func(primitive, target string, p engine.Params) error {
		_, err := m.invoker.Invoke(ctx, primitive, target, p)
		return err
	}
	perArea := func(primitive string, p engine.Params) error {
		var errs []error
		for _, id := range areas {
			errs = append(errs, invoke(primitive, id, p))
		}
		return errors.Join(errs...)
	}

	switch action {
	case ActionToggle, ActionCircadianToggle:
		p.Areas = areas
		return invoke(engine.LightsToggleMultiple, areas[0], p)
	case ActionCircadianOn:
		return perArea(engine.LightsOn, p)
	case ActionGloUp, ActionGloDown, ActionGloReset:
		return invoke(action, areas[0], p)
	case ActionSetBritelite:
		p.Preset = engine.PresetBritelite.String()
		return perArea(engine.Set, p)
	case ActionSetNitelite:
		p.Preset = engine.PresetNitelite.String()
		return perArea(engine.Set, p)
	default:
		// the remaining actions share their name with a primitive
		return perArea(action, p)
	}
}
