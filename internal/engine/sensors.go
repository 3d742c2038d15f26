package engine

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/ledger"
	"github.com/dokzlo13/circadiand/internal/rhythm"
)

// DefaultTimer is the boost and motion duration when none is given
const DefaultTimer = 5 * time.Minute

var errBoostAmount = errors.New("boost amount must be positive")

// boost adds a brightness offset on top of the curve until it expires.
// Repeated boosts keep the larger amount and the later expiry.
func (e *Engine) boost(target string, p Params) (outcome, error) {
	if p.Amount <= 0 {
		return outcome{}, errBoostAmount
	}
	amount := min(p.Amount, rhythm.AbsMaxBrightness)

	unlock := e.store.LockAreas(target)
	defer unlock()

	now := e.now()
	a := e.store.Area(target)
	r, _ := e.rhythmFor(target)
	wasOn := a.IsCircadian && a.IsOn
	enable(&a)

	if !a.Boosted(now) {
		a.ClearBoost()
		a.BoostStartedFromOff = !wasOn
	}
	if a.BoostAmount != nil {
		amount = max(amount, *a.BoostAmount)
	}
	a.BoostAmount = &amount

	switch {
	case p.Forever || a.BoostForever:
		a.BoostForever = true
		a.BoostExpiresAt = nil
	default:
		exp := now.Add(p.duration(DefaultTimer))
		if a.BoostExpiresAt != nil && a.BoostExpiresAt.After(exp) {
			exp = *a.BoostExpiresAt
		}
		a.BoostExpiresAt = &exp
	}

	a.IsOn = true
	e.store.PutArea(target, a)

	var out outcome
	if wasOn {
		out.touch(target, e.emit(target, a, r, e.actionTransition))
	} else {
		out.touch(target, e.turnOn(target, a, r))
	}
	return out, nil
}

// motionOnOnly turns the area on when motion is seen, and never off
func (e *Engine) motionOnOnly(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	if a := e.store.Area(target); a.IsCircadian && a.IsOn {
		return outcome{areas: []string{target}, noop: true}, nil
	}
	var out outcome
	out.touch(target, e.setPower(target, true))
	return out, nil
}

// motionOnOff turns the area on with an off timer. Only areas the sensor
// turned on get a timer; one already running is extended.
func (e *Engine) motionOnOff(target string, p Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	now := e.now()
	exp := now.Add(p.duration(DefaultTimer))
	a := e.store.Area(target)

	on := a.IsCircadian && a.IsOn
	if a.MotionExpiresAt != nil && a.MotionExpiresAt.After(exp) {
		exp = *a.MotionExpiresAt
	}
	if on {
		if a.MotionExpiresAt != nil {
			a.MotionExpiresAt = &exp
			e.store.PutArea(target, a)
		}
		return outcome{areas: []string{target}, noop: true}, nil
	}

	var out outcome
	out.touch(target, e.setPower(target, true))

	a = e.store.Area(target)
	a.MotionExpiresAt = &exp
	e.store.PutArea(target, a)
	return out, nil
}

// contactOff turns the area off and hands it back to manual control
func (e *Engine) contactOff(target string, _ Params) (outcome, error) {
	unlock := e.store.LockAreas(target)
	defer unlock()

	a := e.store.Area(target)
	r, _ := e.rhythmFor(target)
	a.MotionExpiresAt = nil
	a.IsOn = false

	var out outcome
	if a.IsCircadian {
		out.touch(target, e.turnOff(target, &a, r))
	} else {
		out.areas = append(out.areas, target)
	}
	a.IsCircadian = false
	e.store.PutArea(target, a)
	return out, nil
}

// ExpireTimers ends boosts and motion timers that ran out by now. Returns the
// ids of areas that changed.
func (e *Engine) ExpireTimers() []string {
	now := e.now()
	var changed []string

	for _, id := range e.store.AreaIDs() {
		if e.expireArea(id, now) {
			changed = append(changed, id)
		}
	}
	return changed
}

func (e *Engine) expireArea(id string, now time.Time) bool {
	unlock := e.store.LockAreas(id)
	defer unlock()

	a := e.store.Area(id)
	r, _ := e.rhythmFor(id)

	boostDone := a.BoostAmount != nil && !a.Boosted(now)
	motionDone := a.MotionExpiresAt != nil && !now.Before(*a.MotionExpiresAt)
	if !boostDone && !motionDone {
		return false
	}

	powerOff := motionDone
	if boostDone {
		powerOff = powerOff || a.BoostStartedFromOff
		a.ClearBoost()
	}
	if motionDone {
		a.MotionExpiresAt = nil
	}

	var err error
	if powerOff {
		a.IsOn = false
		if a.IsCircadian {
			err = e.turnOff(id, &a, r)
		}
		a.IsCircadian = false
	} else {
		err = e.emit(id, a, r, e.actionTransition)
	}
	e.store.PutArea(id, a)

	log.Info().
		Str("area", id).
		Bool("boost", boostDone).
		Bool("motion", motionDone).
		Bool("power_off", powerOff).
		Msg("Timer expired")

	if e.ledger != nil {
		entry := ledger.Entry{
			InvocationID: ledger.NewInvocationID(),
			EventType:    ledger.EventExpired,
			Target:       id,
			Source:       "scheduler",
			Timestamp:    now,
			Payload: map[string]any{
				"boost":     boostDone,
				"motion":    motionDone,
				"power_off": powerOff,
			},
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if lerr := e.ledger.Append(entry); lerr != nil {
			log.Error().Err(lerr).Str("area", id).Msg("Failed to record timer expiry")
		}
	}
	return true
}
