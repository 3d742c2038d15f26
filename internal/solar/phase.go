package solar

import (
	"math"

	"github.com/dokzlo13/circadiand/internal/rhythm"
)

// Phase is the half of the day a given hour falls into
type Phase string

const (
	Ascend  Phase = "ascend"
	Descend Phase = "descend"
)

// midpointMargin is the fraction of the unambiguous span kept free at each edge
const midpointMargin = 0.01

// PhaseInfo describes where an hour sits on the 48h-unwrapped daily curve.
type PhaseInfo struct {
	Phase Phase
	// H48 is the hour lifted into 48h space (hour+24 when before ascend start)
	H48 float64
	// AscendStart and DescendStart are the unwrapped phase boundaries
	AscendStart  float64
	DescendStart float64
	// Start and End bound the active phase window
	Start float64
	End   float64
	// Slope is positive while ascending, negative while descending
	Slope float64
}

// PhaseAt returns the phase information for an hour in [0,24).
func PhaseAt(hour float64, r rhythm.Rhythm) PhaseInfo {
	hour = WrapHour(hour)
	tAsc := r.AscendStart
	tDesc := r.DescendStart
	if tDesc <= tAsc {
		tDesc += 24
	}

	h48 := hour
	if hour < tAsc {
		h48 += 24
	}

	kAsc, kDesc := r.Slopes()
	info := PhaseInfo{
		H48:          h48,
		AscendStart:  tAsc,
		DescendStart: tDesc,
	}
	if h48 >= tAsc && h48 < tDesc {
		info.Phase = Ascend
		info.Start, info.End = tAsc, tDesc
		info.Slope = kAsc
	} else {
		info.Phase = Descend
		info.Start, info.End = tDesc, tAsc+24
		info.Slope = -kDesc
	}
	return info
}

// InAscend reports whether the phase is ascend
func (p PhaseInfo) InAscend() bool {
	return p.Phase == Ascend
}

// CalcTime is the curve input for this hour
func (p PhaseInfo) CalcTime() float64 {
	if p.Phase == Descend && p.H48 < p.DescendStart {
		return p.H48 + 24
	}
	return p.H48
}

// DefaultMidpoint is the wake time while ascending and the bed time while descending
func (p PhaseInfo) DefaultMidpoint(r rhythm.Rhythm) float64 {
	if p.InAscend() {
		return r.WakeTime
	}
	return r.BedTime
}

// Lift places a stored midpoint in 48h space relative to this phase.
//
// Stored midpoints may be plain hours, so the representative closest to the
// phase centre is chosen and then clamped into the midpoint window.
func (p PhaseInfo) Lift(mid float64) float64 {
	if math.IsNaN(mid) || math.IsInf(mid, 0) {
		return p.center()
	}
	c := p.center()
	mid, _ = p.Clamp(c + math.Remainder(mid-c, 24))
	return mid
}

// Clamp holds a midpoint that is already in 48h space inside the midpoint
// window, without folding it by whole days. It reports whether the value moved.
//
// The window spans 12h either side of the phase centre, less a 1% margin,
// so every midpoint in it has exactly one representative.
func (p PhaseInfo) Clamp(mid float64) (float64, bool) {
	lo, hi := p.Window()
	switch {
	case math.IsNaN(mid):
		return p.center(), true
	case mid < lo:
		return lo, true
	case mid > hi:
		return hi, true
	}
	return mid, false
}

// Window returns the range a midpoint may take in this phase
func (p PhaseInfo) Window() (lo, hi float64) {
	c := p.center()
	half := 12 * (1 - midpointMargin)
	return c - half, c + half
}

func (p PhaseInfo) center() float64 {
	return (p.Start + p.End) / 2
}

// WrapHour maps any hour into [0,24)
func WrapHour(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
