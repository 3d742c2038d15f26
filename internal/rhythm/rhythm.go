// Package rhythm defines the immutable phase configuration a zone follows.
package rhythm

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Absolute limits. Runtime bounds may be pushed up to these, never past.
const (
	AbsMinBrightness = 1
	AbsMaxBrightness = 100
	AbsMinColorTemp  = 500
	AbsMaxColorTemp  = 6500
)

// DefaultName is the rhythm used when a zone references nothing or an unknown name.
const DefaultName = "default"

// SolarMode selects which part of the night/day a solar rule covers
type SolarMode string

const (
	ModeAll     SolarMode = "all"
	ModeSunrise SolarMode = "sunrise"
	ModeSunset  SolarMode = "sunset"
)

// SolarRule is a warm-night ceiling or a cool-day floor.
// Offsets and fade are in minutes.
type SolarRule struct {
	Enabled bool      `yaml:"enabled"`
	Mode    SolarMode `yaml:"mode"`
	Target  int       `yaml:"target"`
	Start   int       `yaml:"start"`
	End     int       `yaml:"end"`
	Fade    int       `yaml:"fade"`
}

// Rhythm is a named phase configuration
type Rhythm struct {
	Name string `yaml:"-"`

	AscendStart  float64 `yaml:"ascend_start"`
	DescendStart float64 `yaml:"descend_start"`
	WakeTime     float64 `yaml:"wake_time"`
	BedTime      float64 `yaml:"bed_time"`
	WakeSpeed    int     `yaml:"wake_speed"`
	BedSpeed     int     `yaml:"bed_speed"`

	MinBrightness int `yaml:"min_brightness"`
	MaxBrightness int `yaml:"max_brightness"`
	MinColorTemp  int `yaml:"min_color_temp"`
	MaxColorTemp  int `yaml:"max_color_temp"`

	MaxDimSteps          int `yaml:"max_dim_steps"`
	StepIncrements       int `yaml:"step_increments"`
	BrightnessIncrements int `yaml:"brightness_increments"`
	ColorIncrements      int `yaml:"color_increments"`

	WarmNight SolarRule `yaml:"warm_night"`
	CoolDay   SolarRule `yaml:"cool_day"`
}

// Default returns the built-in rhythm
func Default() Rhythm {
	return Rhythm{
		Name:          DefaultName,
		AscendStart:   3,
		DescendStart:  12,
		WakeTime:      6,
		BedTime:       22,
		WakeSpeed:     8,
		BedSpeed:      6,
		MinBrightness: AbsMinBrightness,
		MaxBrightness: AbsMaxBrightness,
		MinColorTemp:  AbsMinColorTemp,
		MaxColorTemp:  AbsMaxColorTemp,
		MaxDimSteps:   10,
		WarmNight: SolarRule{
			Mode:   ModeAll,
			Target: 2700,
			Start:  -60,
			End:    60,
			Fade:   60,
		},
		CoolDay: SolarRule{
			Mode:   ModeAll,
			Target: 6500,
			Fade:   60,
		},
	}
}

// UnmarshalYAML decodes on top of Default so omitted keys keep their defaults.
func (r *Rhythm) UnmarshalYAML(value *yaml.Node) error {
	type plain Rhythm
	p := plain(Default())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = Rhythm(p)
	return nil
}

// Validate reports configuration that cannot produce a usable curve
func (r Rhythm) Validate() error {
	for name, h := range map[string]float64{
		"ascend_start":  r.AscendStart,
		"descend_start": r.DescendStart,
		"wake_time":     r.WakeTime,
		"bed_time":      r.BedTime,
	} {
		if math.IsNaN(h) || h < 0 || h >= 24 {
			return fmt.Errorf("%s must be within [0,24), got %v", name, h)
		}
	}
	if r.MinBrightness >= r.MaxBrightness {
		return fmt.Errorf("min_brightness (%d) must be below max_brightness (%d)", r.MinBrightness, r.MaxBrightness)
	}
	if r.MinColorTemp >= r.MaxColorTemp {
		return fmt.Errorf("min_color_temp (%d) must be below max_color_temp (%d)", r.MinColorTemp, r.MaxColorTemp)
	}
	for _, rule := range []SolarRule{r.WarmNight, r.CoolDay} {
		switch rule.Mode {
		case ModeAll, ModeSunrise, ModeSunset, "":
		default:
			return fmt.Errorf("unknown solar rule mode %q", rule.Mode)
		}
	}
	return nil
}

// Normalize clamps every field into its legal range
func (r Rhythm) Normalize() Rhythm {
	r.WakeSpeed = clampInt(r.WakeSpeed, 1, 10)
	r.BedSpeed = clampInt(r.BedSpeed, 1, 10)
	r.MinBrightness = clampInt(r.MinBrightness, AbsMinBrightness, AbsMaxBrightness)
	r.MaxBrightness = clampInt(r.MaxBrightness, AbsMinBrightness, AbsMaxBrightness)
	r.MinColorTemp = clampInt(r.MinColorTemp, AbsMinColorTemp, AbsMaxColorTemp)
	r.MaxColorTemp = clampInt(r.MaxColorTemp, AbsMinColorTemp, AbsMaxColorTemp)
	if r.MaxDimSteps <= 0 {
		r.MaxDimSteps = 10
	}
	if r.WarmNight.Mode == "" {
		r.WarmNight.Mode = ModeAll
	}
	if r.CoolDay.Mode == "" {
		r.CoolDay.Mode = ModeAll
	}
	return r
}

// StepCount is the number of steps across the range for step_up/step_down
func (r Rhythm) StepCount() int {
	return firstPositive(r.StepIncrements, r.MaxDimSteps, 10)
}

// BrightnessSteps is the number of steps for bright_up/bright_down
func (r Rhythm) BrightnessSteps() int {
	return firstPositive(r.BrightnessIncrements, r.MaxDimSteps, 10)
}

// ColorSteps is the number of steps for color_up/color_down
func (r Rhythm) ColorSteps() int {
	return firstPositive(r.ColorIncrements, r.MaxDimSteps, 10)
}

// Slopes returns the logistic steepness for the ascend and descend phases
func (r Rhythm) Slopes() (ascend, descend float64) {
	return speedToSlope[clampInt(r.WakeSpeed, 1, 10)], speedToSlope[clampInt(r.BedSpeed, 1, 10)]
}

var speedToSlope = [11]float64{0, 0.4, 0.6, 0.8, 1.0, 1.3, 1.7, 2.3, 3.0, 4.0, 5.5}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
