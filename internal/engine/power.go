package engine

import (
	"github.com/dokzlo13/circadiand/internal/state"
)

// enable flips an area into circadian control. Coming from disabled, every
// transient field is cleared first. Reports whether anything changed.
func enable(a *state.AreaState) bool {
	if a.IsCircadian {
		return false
	}
	a.ClearTransient()
	a.IsCircadian = true
	return true
}

func (e *Engine) enableCircadian(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	changed := enable(&a)
	e.store.PutArea(target, a)
	return outcome{areas: []string{target}, noop: !changed}, nil
}

func (e *Engine) circadianOff(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	noop := !a.IsCircadian
	a.IsCircadian = false
	e.store.PutArea(target, a)
	return outcome{areas: []string{target}, noop: noop}, nil
}

// setPower enables the area and drives it on or off. Caller holds the area lock.
func (e *Engine) setPower(id string, on bool) error {
	a := e.store.Area(id)
	r, _ := e.rhythmFor(id)
	enable(&a)

	if !on {
		a.IsOn = false
		err := e.turnOff(id, &a, r)
		e.store.PutArea(id, a)
		return err
	}

	wasOn := a.IsOn
	a.IsOn = true
	e.store.PutArea(id, a)
	if wasOn {
		return e.emit(id, a, r, e.actionTransition)
	}
	return e.turnOn(id, a, r)
}

func (e *Engine) lightsOn(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	var out outcome
	out.touch(target, e.setPower(target, true))
	return out, nil
}

func (e *Engine) lightsOff(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	var out outcome
	out.touch(target, e.setPower(target, false))
	return out, nil
}

func (e *Engine) lightsToggle(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	var out outcome
	out.touch(target, e.setPower(target, !(a.IsCircadian && a.IsOn)))
	return out, nil
}

// lightsToggleMultiple turns everything off if any target is on, else turns everything on
func (e *Engine) lightsToggleMultiple(target string, p Params) (outcome, error) {
	ids := p.targets(target)
	unlock := e.store.LockAreas(ids...)
	defer unlock()

	anyOn := false
	for _, id := range ids {
		if a := e.store.Area(id); a.IsCircadian && a.IsOn {
			anyOn = true
			break
		}
	}

	var out outcome
	for _, id := range ids {
		out.touch(id, e.setPower(id, !anyOn))
	}
	return out, nil
}
