package engine

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
)

// Preset is a named starting position on the curve
type Preset int

const (
	PresetNone Preset = iota
	PresetWake
	PresetBed
	PresetNitelite
	PresetBritelite
)

var presetNames = [...]string{
	PresetNone:      "none",
	PresetWake:      "wake",
	PresetBed:       "bed",
	PresetNitelite:  "nitelite",
	PresetBritelite: "britelite",
}

func (p Preset) String() string {
	if int(p) < len(presetNames) {
		return presetNames[p]
	}
	return fmt.Sprintf("preset(%d)", int(p))
}

// ParsePreset resolves a preset name. Empty means PresetNone.
func ParsePreset(s string) (Preset, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PresetNone, nil
	}
	for i, name := range presetNames {
		if name == s {
			return Preset(i), nil
		}
	}
	return PresetNone, fmt.Errorf("unknown preset %q", s)
}

// frozenHour is the hour a freezing preset pins the area to
func (p Preset) frozenHour(r rhythm.Rhythm) (float64, bool) {
	switch p {
	case PresetNitelite:
		return solar.WrapHour(r.AscendStart), true
	case PresetBritelite:
		return solar.WrapHour(r.DescendStart), true
	default:
		return 0, false
	}
}

// apply resets the area's runtime and moves it to the preset position
func (p Preset) apply(a *state.AreaState, r rhythm.Rhythm, hour float64) {
	a.ResetRuntime()

	switch p {
	case PresetWake, PresetBed:
		mid := solar.PhaseAt(hour, r).CalcTime()
		a.BrightnessMid = floatPtr(mid)
		a.ColorMid = floatPtr(mid)
	case PresetNitelite, PresetBritelite:
		h, _ := p.frozenHour(r)
		a.FrozenAt = floatPtr(h)
	case PresetNone:
	}
}
