package engine

import (
	"errors"
	"math"

	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
)

func (e *Engine) freezeToggle(target string, p Params) (outcome, error) {
	preset, err := ParsePreset(p.Preset)
	if err != nil {
		return outcome{}, err
	}

	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	r, _ := e.rhythmFor(target)
	hour := e.hour()

	ph, pinned := preset.frozenHour(r)
	switch {
	case a.FrozenAt != nil && (!pinned || math.Abs(*a.FrozenAt-ph) < state.SyncTolerance):
		unfreeze(&a, r, hour, e.sunTimes())
	case preset != PresetNone:
		preset.apply(&a, r, hour)
		if a.FrozenAt == nil {
			a.FrozenAt = floatPtr(hour)
		}
	default:
		a.FrozenAt = floatPtr(hour)
	}

	e.store.PutArea(target, a)
	var out outcome
	out.touch(target, e.emit(target, a, r, e.actionTransition))
	return out, nil
}

// freezeToggleMultiple lets the first enabled area decide: if it is frozen
// every target unfreezes, otherwise every target freezes at the current hour.
func (e *Engine) freezeToggleMultiple(target string, p Params) (outcome, error) {
	ids := p.targets(target)
	unlock := e.store.LockAreas(ids...)
	defer unlock()

	freeze := true
	for _, id := range ids {
		if a := e.store.Area(id); a.IsCircadian {
			freeze = a.FrozenAt == nil
			break
		}
	}

	hour := e.hour()
	sun := e.sunTimes()
	var out outcome
	for _, id := range ids {
		a := e.store.Area(id)
		r, _ := e.rhythmFor(id)
		if freeze {
			if a.FrozenAt == nil {
				a.FrozenAt = floatPtr(hour)
			}
		} else {
			unfreeze(&a, r, hour, sun)
		}
		e.store.PutArea(id, a)
		out.touch(id, e.emit(id, a, r, e.actionTransition))
	}
	return out, nil
}

func (e *Engine) reset(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	r, _ := e.rhythmFor(target)
	a.ResetRuntime()
	e.store.PutArea(target, a)

	var out outcome
	out.touch(target, e.emit(target, a, r, e.actionTransition))
	return out, nil
}

var errSetNeedsArgument = errors.New("set needs one of copy_from, frozen_at or preset")

// set positions an area explicitly. copy_from wins over frozen_at, which wins over preset.
func (e *Engine) set(target string, p Params) (outcome, error) {
	var preset Preset
	if p.CopyFrom == "" && p.FrozenAt == nil {
		var err error
		if preset, err = ParsePreset(p.Preset); err != nil {
			return outcome{}, err
		}
		if preset == PresetNone && p.Preset == "" {
			return outcome{}, errSetNeedsArgument
		}
	}

	locked := []string{target}
	if p.CopyFrom != "" {
		locked = append(locked, p.CopyFrom)
	}
	unlock := e.store.LockAreas(locked...)
	defer unlock()

	a := e.store.Area(target)
	r, _ := e.rhythmFor(target)

	switch {
	case p.CopyFrom != "":
		copyRuntime(&a, e.store.Area(p.CopyFrom))
	case p.FrozenAt != nil:
		a.FrozenAt = floatPtr(solar.WrapHour(*p.FrozenAt))
	default:
		preset.apply(&a, r, e.hour())
	}

	e.store.PutArea(target, a)
	var out outcome
	out.touch(target, e.emit(target, a, r, e.actionTransition))
	return out, nil
}

// broadcast copies the target's runtime onto every other known area
func (e *Engine) broadcast(target string, _ Params) (outcome, error) {
	ids := e.store.AreaIDs()
	unlock := e.store.LockAreas(append(ids, target)...)
	defer unlock()

	src := e.store.Area(target)
	var out outcome
	out.areas = append(out.areas, target)
	for _, id := range ids {
		if id == target {
			continue
		}
		a := e.store.Area(id)
		copyRuntime(&a, src)
		e.store.PutArea(id, a)

		r, _ := e.rhythmFor(id)
		out.touch(id, e.emit(id, a, r, e.actionTransition))
	}
	return out, nil
}

// toggleWakeBed moves both midpoints to now, or back to the rhythm
// defaults when they are already there.
func (e *Engine) toggleWakeBed(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	r, _ := e.rhythmFor(target)
	hour := e.hour()
	pi := solar.PhaseAt(hour, r)
	now := pi.Lift(pi.CalcTime())

	if a.FrozenAt == nil && a.BrightnessMid != nil &&
		math.Abs(pi.Lift(*a.BrightnessMid)-now) < state.SyncTolerance {
		a.ClearMidpoints()
	} else if pi.InAscend() {
		PresetWake.apply(&a, r, hour)
	} else {
		PresetBed.apply(&a, r, hour)
	}

	e.store.PutArea(target, a)
	var out outcome
	out.touch(target, e.emit(target, a, r, e.actionTransition))
	return out, nil
}

func copyRuntime(dst *state.AreaState, src state.AreaState) {
	dst.Triple = src.Triple
	dst.SolarRuleColorLimit = src.SolarRuleColorLimit
	dst.MinBrightness = src.MinBrightness
	dst.MaxBrightness = src.MaxBrightness
	dst.MinColorTemp = src.MinColorTemp
	dst.MaxColorTemp = src.MaxColorTemp
}
