// Package curve evaluates the daily brightness and colour-temperature curves.
//
// Both axes follow independent logistic curves: rising during the ascend
// phase and falling during the descend phase, each centred on a midpoint
// hour. Everything here is a pure function of its inputs.
package curve

import (
	"math"

	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
)

const (
	epsilon = 0.001
	// ratioFloor caps how close to either end of the span the inverse may aim
	ratioFloor = 0.01
)

// Runtime is the per-area state that bends the curve away from the rhythm defaults.
type Runtime struct {
	BrightnessMid       *float64
	ColorMid            *float64
	SolarRuleColorLimit *int

	MinBrightness *int
	MaxBrightness *int
	MinColorTemp  *int
	MaxColorTemp  *int
}

// Bounds are the effective output ranges for an area
type Bounds struct {
	MinBrightness float64
	MaxBrightness float64
	MinColorTemp  float64
	MaxColorTemp  float64
}

// Bounds merges runtime overrides over the rhythm's configured ranges
func (rt Runtime) Bounds(r rhythm.Rhythm) Bounds {
	return Bounds{
		MinBrightness: float64(intOr(rt.MinBrightness, r.MinBrightness)),
		MaxBrightness: float64(intOr(rt.MaxBrightness, r.MaxBrightness)),
		MinColorTemp:  float64(intOr(rt.MinColorTemp, r.MinColorTemp)),
		MaxColorTemp:  float64(intOr(rt.MaxColorTemp, r.MaxColorTemp)),
	}
}

// Result is the evaluated light state at one hour
type Result struct {
	Brightness int         `json:"brightness"`
	Kelvin     int         `json:"kelvin"`
	XY         XY          `json:"xy"`
	RGB        RGB         `json:"rgb"`
	Phase      solar.Phase `json:"phase"`
}

// Logistic is y0 + (y1-y0) / (1 + exp(-slope*(x-mid))).
func Logistic(x, mid, slope, y0, y1 float64) float64 {
	return y0 + (y1-y0)/(1+math.Exp(-slope*(x-mid)))
}

// InverseMidpoint solves Logistic for the midpoint that yields target at x.
// The target's position in the span is held to [0.01, 0.99] so the result
// stays within a few hours of x.
func InverseMidpoint(x, target, slope, y0, y1 float64) float64 {
	if slope == 0 || y1-y0 <= epsilon || math.IsNaN(target) {
		return x
	}
	ratio := clamp((target-y0)/(y1-y0), ratioFloor, 1-ratioFloor)
	return x + math.Log((1-ratio)/ratio)/slope
}

// nearLow reports whether v sits at the bottom of [lo, hi] as far as the
// inverse can reach, within tol.
func nearLow(v, lo, hi, tol float64) bool {
	return v <= lo+ratioFloor*(hi-lo)+tol
}

// nearHigh is nearLow for the top of the span
func nearHigh(v, lo, hi, tol float64) bool {
	return v >= hi-ratioFloor*(hi-lo)-tol
}

// Evaluate computes brightness and colour for the given hour
func Evaluate(hour float64, r rhythm.Rhythm, rt Runtime, sun solar.SunTimes) Result {
	pi := solar.PhaseAt(hour, r)
	k := ColorAt(hour, r, rt, sun, true)
	return Result{
		Brightness: BrightnessAt(hour, r, rt),
		Kelvin:     k,
		XY:         KelvinToXY(float64(k)),
		RGB:        KelvinToRGB(float64(k)),
		Phase:      pi.Phase,
	}
}

// BrightnessAt returns the brightness percentage at the given hour
func BrightnessAt(hour float64, r rhythm.Rhythm, rt Runtime) int {
	pi := solar.PhaseAt(hour, r)
	b := rt.Bounds(r)
	mid := pi.Lift(floatOr(rt.BrightnessMid, pi.DefaultMidpoint(r)))

	v := Logistic(pi.CalcTime(), mid, pi.Slope, b.MinBrightness/100, b.MaxBrightness/100)
	return int(clamp(math.Round(v*100), b.MinBrightness, b.MaxBrightness))
}

// ColorAt returns the colour temperature in kelvin at the given hour
func ColorAt(hour float64, r rhythm.Rhythm, rt Runtime, sun solar.SunTimes, applySolarRules bool) int {
	b := rt.Bounds(r)
	k := baseColor(hour, r, rt, b)
	if applySolarRules {
		k = ApplySolarRules(k, hour, r, rt, sun)
	}
	return int(clamp(math.Round(k), b.MinColorTemp, b.MaxColorTemp))
}

func baseColor(hour float64, r rhythm.Rhythm, rt Runtime, b Bounds) float64 {
	pi := solar.PhaseAt(hour, r)
	mid := pi.Lift(floatOr(rt.ColorMid, pi.DefaultMidpoint(r)))
	norm := Logistic(pi.CalcTime(), mid, pi.Slope, 0, 1)
	return b.MinColorTemp + (b.MaxColorTemp-b.MinColorTemp)*norm
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
