package curve

import (
	"math"

	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
)

// Direction of a step
type Direction int

const (
	Up   Direction = 1
	Down Direction = -1
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Updates lists runtime fields a step wants written back. Nil means unchanged.
type Updates struct {
	BrightnessMid       *float64
	ColorMid            *float64
	SolarRuleColorLimit *int
	MinBrightness       *int
	MaxBrightness       *int
	MinColorTemp        *int
	MaxColorTemp        *int
}

// Empty reports whether nothing changes
func (u Updates) Empty() bool {
	return u == Updates{}
}

// Apply returns rt with u written over it
func (rt Runtime) Apply(u Updates) Runtime {
	if u.BrightnessMid != nil {
		rt.BrightnessMid = u.BrightnessMid
	}
	if u.ColorMid != nil {
		rt.ColorMid = u.ColorMid
	}
	if u.SolarRuleColorLimit != nil {
		rt.SolarRuleColorLimit = u.SolarRuleColorLimit
	}
	if u.MinBrightness != nil {
		rt.MinBrightness = u.MinBrightness
	}
	if u.MaxBrightness != nil {
		rt.MaxBrightness = u.MaxBrightness
	}
	if u.MinColorTemp != nil {
		rt.MinColorTemp = u.MinColorTemp
	}
	if u.MaxColorTemp != nil {
		rt.MaxColorTemp = u.MaxColorTemp
	}
	return rt
}

// StepResult is the outcome of a step. AtLimit means nothing could move.
type StepResult struct {
	Brightness int
	Kelvin     int
	AtLimit    bool
	Updates    Updates
}

// Step moves along the curve by one brightness increment, shifting both
// midpoints together so colour follows the curve's own pairing.
//
// When the area sits on its configured brightness bound but the absolute
// bound is further out, the bounds are pushed instead of the midpoints.
func Step(hour float64, dir Direction, r rhythm.Rhythm, rt Runtime, sun solar.SunTimes) StepResult {
	pi := solar.PhaseAt(hour, r)
	b := rt.Bounds(r)
	curB := float64(BrightnessAt(hour, r, rt))
	curK := float64(ColorAt(hour, r, rt, sun, true))
	step := float64(r.MaxBrightness-r.MinBrightness) / float64(r.StepCount())

	if dir == Up && curB >= rhythm.AbsMaxBrightness-0.5 ||
		dir == Down && curB <= rhythm.AbsMinBrightness+0.5 {
		return StepResult{Brightness: int(curB), Kelvin: int(curK), AtLimit: true}
	}

	if res, ok := pushBounds(hour, dir, r, rt, sun, b, curB, curK, step); ok {
		return res
	}

	target := clamp(curB+float64(dir)*step, b.MinBrightness, b.MaxBrightness)
	x := pi.CalcTime()
	y0, y1 := b.MinBrightness/100, b.MaxBrightness/100

	oldBri := pi.Lift(floatOr(rt.BrightnessMid, pi.DefaultMidpoint(r)))
	oldCol := pi.Lift(floatOr(rt.ColorMid, pi.DefaultMidpoint(r)))

	newBri, _ := pi.Clamp(InverseMidpoint(x, target/100, pi.Slope, y0, y1))
	// shift colour by however far brightness actually moved after clamping
	newCol, _ := pi.Clamp(oldCol + (newBri - oldBri))

	u := Updates{BrightnessMid: &newBri, ColorMid: &newCol}
	next := rt.Apply(u)
	nextB := BrightnessAt(hour, r, next)
	if !moved(dir, curB, float64(nextB)) {
		// the midpoint window is exhausted in this direction
		return StepResult{Brightness: int(curB), Kelvin: int(curK), AtLimit: true}
	}
	return StepResult{
		Brightness: nextB,
		Kelvin:     ColorAt(hour, r, next, sun, true),
		Updates:    u,
	}
}

func moved(dir Direction, from, to float64) bool {
	if dir == Up {
		return to > from
	}
	return to < from
}

func pushBounds(hour float64, dir Direction, r rhythm.Rhythm, rt Runtime, sun solar.SunTimes,
	b Bounds, curB, curK, step float64,
) (StepResult, bool) {
	var u Updates
	var newB, newK float64

	switch dir {
	case Up:
		headroom := rhythm.AbsMaxBrightness - b.MaxBrightness
		if !nearHigh(curB, b.MinBrightness, b.MaxBrightness, 0.5) || headroom <= 0.5 {
			return StepResult{}, false
		}
		delta := min(step, headroom)
		newB = b.MaxBrightness + delta
		u.MaxBrightness = intPtr(newB)

		newK = curK + delta/headroom*(rhythm.AbsMaxColorTemp-curK)
		if newK > b.MaxColorTemp {
			u.MaxColorTemp = intPtr(newK)
		}
		if WarmNightActive(hour, r, sun) {
			u.SolarRuleColorLimit = intPtr(newK)
		}
	default:
		headroom := b.MinBrightness - rhythm.AbsMinBrightness
		if !nearLow(curB, b.MinBrightness, b.MaxBrightness, 0.5) || headroom <= 0.5 {
			return StepResult{}, false
		}
		delta := min(step, headroom)
		newB = b.MinBrightness - delta
		u.MinBrightness = intPtr(newB)

		newK = curK - delta/headroom*(curK-rhythm.AbsMinColorTemp)
		if newK < b.MinColorTemp {
			u.MinColorTemp = intPtr(newK)
		}
		if CoolDayActive(hour, r, sun) {
			u.SolarRuleColorLimit = intPtr(newK)
		}
	}

	next := rt.Apply(u)
	nb := next.Bounds(r)
	return StepResult{
		Brightness: int(clamp(math.Round(newB), nb.MinBrightness, nb.MaxBrightness)),
		Kelvin:     int(clamp(math.Round(newK), nb.MinColorTemp, nb.MaxColorTemp)),
		Updates:    u,
	}, true
}

// BrightStep adjusts only the brightness midpoint by one brightness increment.
func BrightStep(hour float64, dir Direction, r rhythm.Rhythm, rt Runtime) StepResult {
	pi := solar.PhaseAt(hour, r)
	b := rt.Bounds(r)
	cur := float64(BrightnessAt(hour, r, rt))
	step := float64(r.MaxBrightness-r.MinBrightness) / float64(r.BrightnessSteps())

	var u Updates
	switch {
	case dir == Up && nearHigh(cur, b.MinBrightness, b.MaxBrightness, 0.5):
		if b.MaxBrightness >= rhythm.AbsMaxBrightness {
			return StepResult{Brightness: int(cur), AtLimit: true}
		}
		b.MaxBrightness = min(b.MaxBrightness+step, rhythm.AbsMaxBrightness)
		u.MaxBrightness = intPtr(b.MaxBrightness)
	case dir == Down && nearLow(cur, b.MinBrightness, b.MaxBrightness, 0.5):
		if b.MinBrightness <= rhythm.AbsMinBrightness {
			return StepResult{Brightness: int(cur), AtLimit: true}
		}
		b.MinBrightness = max(b.MinBrightness-step, rhythm.AbsMinBrightness)
		u.MinBrightness = intPtr(b.MinBrightness)
	}

	target := clamp(cur+float64(dir)*step, b.MinBrightness, b.MaxBrightness)
	mid, _ := pi.Clamp(InverseMidpoint(pi.CalcTime(), target/100, pi.Slope, b.MinBrightness/100, b.MaxBrightness/100))
	pushed := !u.Empty()
	u.BrightnessMid = &mid

	next := BrightnessAt(hour, r, rt.Apply(u))
	if !pushed && !moved(dir, cur, float64(next)) {
		return StepResult{Brightness: int(cur), AtLimit: true}
	}
	return StepResult{
		Brightness: next,
		Updates:    u,
	}
}

// ColorStep adjusts only the colour midpoint by one colour increment.
//
// The step starts from the displayed value, so while a solar rule holds the
// colour, the rule's limit moves with the step.
func ColorStep(hour float64, dir Direction, r rhythm.Rhythm, rt Runtime, sun solar.SunTimes) StepResult {
	pi := solar.PhaseAt(hour, r)
	b := rt.Bounds(r)
	cur := float64(ColorAt(hour, r, rt, sun, true))
	step := float64(r.MaxColorTemp-r.MinColorTemp) / float64(r.ColorSteps())

	var u Updates
	switch {
	case dir == Up && nearHigh(cur, b.MinColorTemp, b.MaxColorTemp, 10):
		if b.MaxColorTemp >= rhythm.AbsMaxColorTemp {
			return StepResult{Kelvin: int(cur), AtLimit: true}
		}
		b.MaxColorTemp = min(b.MaxColorTemp+step, rhythm.AbsMaxColorTemp)
		u.MaxColorTemp = intPtr(b.MaxColorTemp)
	case dir == Down && nearLow(cur, b.MinColorTemp, b.MaxColorTemp, 10):
		if b.MinColorTemp <= rhythm.AbsMinColorTemp {
			return StepResult{Kelvin: int(cur), AtLimit: true}
		}
		b.MinColorTemp = max(b.MinColorTemp-step, rhythm.AbsMinColorTemp)
		u.MinColorTemp = intPtr(b.MinColorTemp)
	}

	target := clamp(cur+float64(dir)*step, b.MinColorTemp, b.MaxColorTemp)

	if dir == Up && r.WarmNight.Enabled && WarmNightActive(hour, r, sun) &&
		target > float64(intOr(rt.SolarRuleColorLimit, r.WarmNight.Target)) {
		u.SolarRuleColorLimit = intPtr(target)
	}
	if dir == Down && r.CoolDay.Enabled && CoolDayActive(hour, r, sun) &&
		target < float64(intOr(rt.SolarRuleColorLimit, r.CoolDay.Target)) {
		u.SolarRuleColorLimit = intPtr(target)
	}

	norm := 0.5
	if b.MaxColorTemp > b.MinColorTemp {
		norm = (target - b.MinColorTemp) / (b.MaxColorTemp - b.MinColorTemp)
	}
	mid, _ := pi.Clamp(InverseMidpoint(pi.CalcTime(), norm, pi.Slope, 0, 1))
	pushed := !u.Empty()
	u.ColorMid = &mid

	next := ColorAt(hour, r, rt.Apply(u), sun, true)
	if !pushed && !moved(dir, cur, float64(next)) {
		return StepResult{Kelvin: int(cur), AtLimit: true}
	}
	return StepResult{
		Kelvin:  next,
		Updates: u,
	}
}

// RecoverMidpoints returns the midpoints that reproduce brightness and
// kelvin at hour. Used when leaving a frozen state so the curve continues
// from the frozen values instead of jumping.
func RecoverMidpoints(hour float64, brightness, kelvin int, r rhythm.Rhythm, rt Runtime) (bri, col float64) {
	pi := solar.PhaseAt(hour, r)
	b := rt.Bounds(r)
	x := pi.CalcTime()

	bri, _ = pi.Clamp(InverseMidpoint(x, float64(brightness)/100, pi.Slope, b.MinBrightness/100, b.MaxBrightness/100))

	norm := 0.5
	if b.MaxColorTemp > b.MinColorTemp {
		norm = (float64(kelvin) - b.MinColorTemp) / (b.MaxColorTemp - b.MinColorTemp)
	}
	col, _ = pi.Clamp(InverseMidpoint(x, norm, pi.Slope, 0, 1))
	return bri, col
}

func intPtr(v float64) *int {
	i := int(math.Round(v))
	return &i
}
