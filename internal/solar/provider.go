// Package solar provides sun times, the wall clock and the phase geometry
// the curve model is evaluated against.
package solar

import (
	"time"

	"github.com/rs/zerolog/log"
)

// SunTimes holds the sun events of one day as local fractional hours.
type SunTimes struct {
	Sunrise       float64 `json:"sunrise"`
	Sunset        float64 `json:"sunset"`
	SolarNoon     float64 `json:"solar_noon"`
	SolarMidnight float64 `json:"solar_midnight"`
}

// DefaultSunTimes is used when no location is configured
func DefaultSunTimes() SunTimes {
	return SunTimes{Sunrise: 6, Sunset: 18, SolarNoon: 12, SolarMidnight: 0}
}

// Provider computes sun times for a date
type Provider interface {
	SunTimes(date time.Time) SunTimes
}

// Location is a point on earth plus the zone its hours are reported in
type Location struct {
	Latitude  float64
	Longitude float64
	TZ        *time.Location
}

// IsSet reports whether coordinates were configured
func (l Location) IsSet() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

func (l Location) tz() *time.Location {
	if l.TZ == nil {
		return time.UTC
	}
	return l.TZ
}

// Fixed always returns the same sun times
type Fixed SunTimes

// SunTimes implements Provider
func (f Fixed) SunTimes(time.Time) SunTimes {
	return SunTimes(f)
}

// Provider kinds accepted in configuration
const (
	ProviderNOAA    = "noaa"
	ProviderSuncalc = "suncalc"
	ProviderFixed   = "fixed"
)

// NewProvider builds the provider named by kind. Without coordinates every
// kind degrades to the fixed default day.
func NewProvider(kind string, loc Location) Provider {
	if !loc.IsSet() || kind == ProviderFixed {
		log.Warn().Msg("No solar location configured, using fixed sun times")
		return Fixed(DefaultSunTimes())
	}

	switch kind {
	case ProviderSuncalc:
		return NewSuncalcProvider(loc)
	case ProviderNOAA, "":
		return NewNOAAProvider(loc)
	default:
		log.Warn().Str("provider", kind).Msg("Unknown solar provider, using NOAA")
		return NewNOAAProvider(loc)
	}
}

// HourOf converts a wall time to a fractional hour in its own zone
func HourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600 + float64(t.Nanosecond())/3.6e12
}

func midnightFromNoon(noon float64) float64 {
	return WrapHour(noon + 12)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
