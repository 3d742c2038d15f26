package solar

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sixdouglas/suncalc"
)

// SuncalcProvider reads sun times from the suncalc library
type SuncalcProvider struct {
	loc Location

	mu    sync.Mutex
	day   string
	times SunTimes
}

// NewSuncalcProvider creates a provider for the given location
func NewSuncalcProvider(loc Location) *SuncalcProvider {
	log.Info().
		Float64("lat", loc.Latitude).
		Float64("lon", loc.Longitude).
		Msg("Suncalc solar provider initialized")
	return &SuncalcProvider{loc: loc}
}

// SunTimes implements Provider
func (p *SuncalcProvider) SunTimes(date time.Time) SunTimes {
	tz := p.loc.tz()
	date = date.In(tz)
	key := dateKey(date)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.day == key {
		return p.times
	}

	// noon local avoids picking up the neighbouring day's events
	noonLocal := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, tz)
	times := suncalc.GetTimes(noonLocal, p.loc.Latitude, p.loc.Longitude)

	st := DefaultSunTimes()
	if t, ok := times[suncalc.Sunrise]; ok && !t.Value.IsZero() {
		st.Sunrise = HourOf(t.Value.In(tz))
	}
	if t, ok := times[suncalc.Sunset]; ok && !t.Value.IsZero() {
		st.Sunset = HourOf(t.Value.In(tz))
	}
	if t, ok := times[suncalc.SolarNoon]; ok && !t.Value.IsZero() {
		st.SolarNoon = HourOf(t.Value.In(tz))
	}
	st.SolarMidnight = midnightFromNoon(st.SolarNoon)
	if t, ok := times[suncalc.Nadir]; ok && !t.Value.IsZero() {
		st.SolarMidnight = HourOf(t.Value.In(tz))
	}

	p.day = key
	p.times = st
	return st
}
