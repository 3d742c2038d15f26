package engine

import (
	"github.com/dokzlo13/circadiand/internal/curve"
	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
)

type axis int

const (
	axisCurve axis = iota
	axisBrightness
	axisColor
)

func (e *Engine) stepUp(target string, _ Params) (outcome, error) {
	return e.adjust(target, axisCurve, curve.Up)
}

func (e *Engine) stepDown(target string, _ Params) (outcome, error) {
	return e.adjust(target, axisCurve, curve.Down)
}

func (e *Engine) brightUp(target string, _ Params) (outcome, error) {
	return e.adjust(target, axisBrightness, curve.Up)
}

func (e *Engine) brightDown(target string, _ Params) (outcome, error) {
	return e.adjust(target, axisBrightness, curve.Down)
}

func (e *Engine) colorUp(target string, _ Params) (outcome, error) {
	return e.adjust(target, axisColor, curve.Up)
}

func (e *Engine) colorDown(target string, _ Params) (outcome, error) {
	return e.adjust(target, axisColor, curve.Down)
}

// adjust moves an enabled area along one axis. A frozen area is unfrozen
// first so the move starts from what is currently shown.
func (e *Engine) adjust(target string, ax axis, dir curve.Direction) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	if !a.IsCircadian {
		return outcome{areas: []string{target}, noop: true}, nil
	}

	r, _ := e.rhythmFor(target)
	hour := e.hour()
	sun := e.sunTimes()
	unfreeze(&a, r, hour, sun)

	var res curve.StepResult
	switch ax {
	case axisBrightness:
		res = curve.BrightStep(hour, dir, r, a.Runtime())
	case axisColor:
		res = curve.ColorStep(hour, dir, r, a.Runtime(), sun)
	default:
		res = curve.Step(hour, dir, r, a.Runtime(), sun)
	}

	var out outcome
	if res.AtLimit {
		e.store.PutArea(target, a)
		out.atLimit = true
		out.touch(target, e.bounce(target, a, r))
		return out, nil
	}

	a.ApplyCurve(res.Updates)
	e.store.PutArea(target, a)
	out.touch(target, e.emit(target, a, r, e.actionTransition))
	return out, nil
}

// unfreeze recovers midpoints that reproduce the frozen values at the
// current hour, then clears the freeze. Reports whether the area was frozen.
func unfreeze(a *state.AreaState, r rhythm.Rhythm, hour float64, sun solar.SunTimes) bool {
	if a.FrozenAt == nil {
		return false
	}

	rt := a.Runtime()
	frozen := *a.FrozenAt
	b := curve.BrightnessAt(frozen, r, rt)
	k := curve.ColorAt(frozen, r, rt, sun, false)

	bri, col := curve.RecoverMidpoints(hour, b, k, r, rt)
	a.BrightnessMid = &bri
	a.ColorMid = &col
	a.FrozenAt = nil
	return true
}
