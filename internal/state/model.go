// Package state holds the per-area and per-zone records the engine mutates,
// and persists them as a snapshot.
package state

import (
	"math"
	"time"

	"github.com/dokzlo13/circadiand/internal/curve"
)

// SyncTolerance is how far apart two midpoints may be, in hours, and still
// count as the same
const SyncTolerance = 0.1

// DefaultZone collects areas that no configured zone lists
const DefaultZone = "unassigned"

// Triple is the runtime shape shared between an area and its zone
type Triple struct {
	BrightnessMid *float64 `json:"brightness_mid,omitempty"`
	ColorMid      *float64 `json:"color_mid,omitempty"`
	FrozenAt      *float64 `json:"frozen_at,omitempty"`
}

// IsZero reports whether every field is unset
func (t Triple) IsZero() bool {
	return t.BrightnessMid == nil && t.ColorMid == nil && t.FrozenAt == nil
}

// Frozen reports whether FrozenAt is set
func (t Triple) Frozen() bool {
	return t.FrozenAt != nil
}

// InSync compares two triples within SyncTolerance
func InSync(a, b Triple) bool {
	return closeEnough(a.BrightnessMid, b.BrightnessMid) &&
		closeEnough(a.ColorMid, b.ColorMid) &&
		closeEnough(a.FrozenAt, b.FrozenAt)
}

func closeEnough(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < SyncTolerance
}

// AreaState is everything the engine knows about one area
type AreaState struct {
	IsCircadian bool `json:"is_circadian"`
	IsOn        bool `json:"is_on"`

	Triple

	SolarRuleColorLimit *int `json:"solar_rule_color_limit,omitempty"`
	MinBrightness       *int `json:"min_brightness,omitempty"`
	MaxBrightness       *int `json:"max_brightness,omitempty"`
	MinColorTemp        *int `json:"min_color_temp,omitempty"`
	MaxColorTemp        *int `json:"max_color_temp,omitempty"`

	BoostAmount         *int       `json:"boost_amount,omitempty"`
	BoostExpiresAt      *time.Time `json:"boost_expires_at,omitempty"`
	BoostForever        bool       `json:"boost_forever,omitempty"`
	BoostStartedFromOff bool       `json:"boost_started_from_off,omitempty"`

	MotionExpiresAt *time.Time `json:"motion_expires_at,omitempty"`

	LastOffColorTemp *int `json:"last_off_color_temp,omitempty"`
}

// Runtime returns the curve overrides carried by this area
func (a AreaState) Runtime() curve.Runtime {
	return curve.Runtime{
		BrightnessMid:       a.BrightnessMid,
		ColorMid:            a.ColorMid,
		SolarRuleColorLimit: a.SolarRuleColorLimit,
		MinBrightness:       a.MinBrightness,
		MaxBrightness:       a.MaxBrightness,
		MinColorTemp:        a.MinColorTemp,
		MaxColorTemp:        a.MaxColorTemp,
	}
}

// ApplyCurve writes step updates back onto the area
func (a *AreaState) ApplyCurve(u curve.Updates) {
	rt := a.Runtime().Apply(u)
	a.BrightnessMid = rt.BrightnessMid
	a.ColorMid = rt.ColorMid
	a.SolarRuleColorLimit = rt.SolarRuleColorLimit
	a.MinBrightness = rt.MinBrightness
	a.MaxBrightness = rt.MaxBrightness
	a.MinColorTemp = rt.MinColorTemp
	a.MaxColorTemp = rt.MaxColorTemp
}

// ClearMidpoints drops both midpoint overrides
func (a *AreaState) ClearMidpoints() {
	a.BrightnessMid = nil
	a.ColorMid = nil
}

// ResetRuntime clears midpoints, pushed bounds, the solar limit and the freeze
func (a *AreaState) ResetRuntime() {
	a.Triple = Triple{}
	a.SolarRuleColorLimit = nil
	a.MinBrightness = nil
	a.MaxBrightness = nil
	a.MinColorTemp = nil
	a.MaxColorTemp = nil
}

// ClearBoost drops any boost
func (a *AreaState) ClearBoost() {
	a.BoostAmount = nil
	a.BoostExpiresAt = nil
	a.BoostForever = false
	a.BoostStartedFromOff = false
}

// ClearTransient returns the area to its canonical enabled shape
func (a *AreaState) ClearTransient() {
	a.IsOn = false
	a.ResetRuntime()
	a.ClearBoost()
	a.MotionExpiresAt = nil
}

// Boosted reports whether a boost is in effect at now
func (a AreaState) Boosted(now time.Time) bool {
	if a.BoostAmount == nil {
		return false
	}
	if a.BoostForever {
		return true
	}
	return a.BoostExpiresAt != nil && now.Before(*a.BoostExpiresAt)
}

// EffectiveHour is the frozen hour when set, otherwise now
func (a AreaState) EffectiveHour(now float64) float64 {
	if a.FrozenAt != nil {
		return *a.FrozenAt
	}
	return now
}

// ZoneState is a named group of areas sharing one rhythm
type ZoneState struct {
	Rhythm string   `json:"rhythm"`
	Areas  []string `json:"areas"`

	Triple
}

// Snapshot is the persisted form of the store
type Snapshot struct {
	Areas map[string]AreaState
	Zones map[string]ZoneState
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() Snapshot {
	return Snapshot{
		Areas: make(map[string]AreaState),
		Zones: make(map[string]ZoneState),
	}
}
