package solar

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// NOAAProvider uses the NOAA approximation for solar transit and the
// -0.833 degree horizon for sunrise and sunset. Results are cached per date.
type NOAAProvider struct {
	loc Location

	mu    sync.RWMutex
	cache map[string]SunTimes
}

// NewNOAAProvider creates a provider for the given location
func NewNOAAProvider(loc Location) *NOAAProvider {
	log.Info().
		Float64("lat", loc.Latitude).
		Float64("lon", loc.Longitude).
		Msg("NOAA solar provider initialized")

	return &NOAAProvider{
		loc:   loc,
		cache: make(map[string]SunTimes),
	}
}

// SunTimes implements Provider
func (p *NOAAProvider) SunTimes(date time.Time) SunTimes {
	date = date.In(p.loc.tz())
	key := dateKey(date)

	p.mu.RLock()
	if st, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		return st
	}
	p.mu.RUnlock()

	st := p.calculate(date)

	p.mu.Lock()
	// one day's worth is all the scheduler ever asks for
	if len(p.cache) > 8 {
		p.cache = make(map[string]SunTimes)
	}
	p.cache[key] = st
	p.mu.Unlock()

	log.Debug().
		Str("date", key).
		Float64("sunrise", st.Sunrise).
		Float64("sunset", st.Sunset).
		Float64("solar_noon", st.SolarNoon).
		Msg("Calculated sun times")

	return st
}

func (p *NOAAProvider) calculate(date time.Time) SunTimes {
	tz := p.loc.tz()
	jd := julianDay(date)
	transit, dec := solarTransit(jd, p.loc.Longitude)

	noon := julianToTime(transit, tz)
	omega := hourAngle(p.loc.Latitude, dec, -0.833)

	st := SunTimes{
		SolarNoon: HourOf(noon),
		Sunrise:   HourOf(julianToTime(transit-omega/360.0, tz)),
		Sunset:    HourOf(julianToTime(transit+omega/360.0, tz)),
	}
	st.SolarMidnight = midnightFromNoon(st.SolarNoon)
	return st
}

// julianDay converts a calendar date to its Julian day number
func julianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

// solarTransit returns the Julian date of solar noon and the sun's declination
func solarTransit(jd, lon float64) (transit, declination float64) {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	transit = 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)
	declination = math.Asin(math.Sin(lambdaRad) * math.Sin(23.44*math.Pi/180.0))
	return transit, declination
}

// hourAngle returns the sun's hour angle in degrees for the given altitude.
// Polar day and night are clamped instead of producing NaN.
func hourAngle(lat, dec, altitude float64) float64 {
	latRad := lat * math.Pi / 180.0
	altRad := altitude * math.Pi / 180.0

	cosOmega := (math.Sin(altRad) - math.Sin(latRad)*math.Sin(dec)) / (math.Cos(latRad) * math.Cos(dec))
	cosOmega = clamp(cosOmega, -1, 1)

	return math.Acos(cosOmega) * 180.0 / math.Pi
}

func julianToTime(jd float64, tz *time.Location) time.Time {
	unix := (jd - 2440587.5) * 86400.0
	sec := math.Floor(unix)
	return time.Unix(int64(sec), int64((unix-sec)*1e9)).In(tz)
}
