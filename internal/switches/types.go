package switches

import (
	"strings"
	"time"
)

// Switch actions. Most map straight onto an engine primitive; the rest are
// handled by the switch itself.
const (
	ActionCircadianOn     = "circadian_on"
	ActionCircadianOff    = "circadian_off"
	ActionToggle          = "toggle"
	ActionCircadianToggle = "circadian_toggle"
	ActionStepUp          = "step_up"
	ActionStepDown        = "step_down"
	ActionBrightUp        = "bright_up"
	ActionBrightDown      = "bright_down"
	ActionColorUp         = "color_up"
	ActionColorDown       = "color_down"
	ActionReset           = "reset"
	ActionFreezeToggle    = "freeze_toggle"
	ActionGloUp           = "glo_up"
	ActionGloDown         = "glo_down"
	ActionGloReset        = "glo_reset"
	ActionSetBritelite    = "set_britelite"
	ActionSetNitelite     = "set_nitelite"
	ActionToggleWakeBed   = "toggle_wake_bed"
	ActionCycleScope      = "cycle_scope"
	ActionLightsOff       = "lights_off"
)

// DefaultRepeatInterval is how often a held button repeats its action
const DefaultRepeatInterval = 300 * time.Millisecond

// Type describes a switch model: its buttons and what they do by default.
// Mapping keys are "<button>_<kind>", e.g. "up_hold".
type Type struct {
	Name           string
	Buttons        []string
	Mapping        map[string]string
	RepeatOnHold   []string
	RepeatInterval time.Duration
}

// Switch types
const (
	TypeHueDimmer  = "hue_dimmer"
	TypeIkeaRemote = "ikea_tradfri_remote"
)

// Types are the built-in switch models
var Types = map[string]Type{
	TypeHueDimmer: {
		Name:    "Hue Dimmer Switch",
		Buttons: []string{"on", "up", "down", "off"},
		Mapping: map[string]string{
			"on_short_release": ActionCircadianToggle,
			"on_double_press":  ActionGloUp,
			"on_triple_press":  ActionGloReset,

			"up_short_release": ActionStepUp,
			"up_double_press":  ActionColorUp,
			"up_triple_press":  ActionSetBritelite,
			"up_hold":          ActionBrightUp,

			"down_short_release": ActionStepDown,
			"down_double_press":  ActionColorDown,
			"down_triple_press":  ActionSetNitelite,
			"down_hold":          ActionBrightDown,

			"off_short_release":   ActionCycleScope,
			"off_double_press":    ActionGloDown,
			"off_triple_press":    ActionToggleWakeBed,
			"off_quadruple_press": ActionFreezeToggle,
		},
		RepeatOnHold:   []string{"up_hold", "down_hold"},
		RepeatInterval: DefaultRepeatInterval,
	},
	TypeIkeaRemote: {
		Name:    "IKEA Tradfri Remote",
		Buttons: []string{"toggle", "brightness_up", "brightness_down", "arrow_left", "arrow_right"},
		Mapping: map[string]string{
			"toggle_press":          ActionToggle,
			"brightness_up_press":   ActionStepUp,
			"brightness_up_hold":    ActionBrightUp,
			"brightness_down_press": ActionCycleScope,
			"brightness_down_hold":  ActionBrightDown,
			"arrow_left_press":      ActionColorDown,
			"arrow_left_hold":       ActionColorDown,
			"arrow_right_press":     ActionColorUp,
			"arrow_right_hold":      ActionColorUp,
		},
		RepeatOnHold:   []string{"brightness_up_hold", "brightness_down_hold"},
		RepeatInterval: DefaultRepeatInterval,
	},
}

// kindAliases folds the action suffixes different bridges report into one vocabulary
var kindAliases = map[string]string{
	"":              "press",
	"click":         "press",
	"press_release": "short_release",
	"hold_release":  "long_release",
	"double":        "double_press",
	"triple":        "triple_press",
	"quadruple":     "quadruple_press",
	"quintuple":     "quintuple_press",
}

// Event splits a raw device action ("up_hold", "brightness_up_click",
// "toggle") into the normalized "<button>_<kind>" key.
func (t Type) Event(raw string) (key, button, kind string, ok bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))

	// longest button first so "brightness_up" never matches as "up"
	best := ""
	for _, b := range t.Buttons {
		if (raw == b || strings.HasPrefix(raw, b+"_")) && len(b) > len(best) {
			best = b
		}
	}
	if best == "" {
		return "", "", "", false
	}

	kind = strings.TrimPrefix(strings.TrimPrefix(raw, best), "_")
	if alias, ok := kindAliases[kind]; ok {
		kind = alias
	}
	return best + "_" + kind, best, kind, true
}

// isRelease reports whether kind ends a hold
func isRelease(kind string) bool {
	return kind == "release" || kind == "long_release" || kind == "short_release"
}
