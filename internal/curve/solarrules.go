package curve

import (
	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
)

// ApplySolarRules pulls kelvin toward the warm-night ceiling and the
// cool-day floor when the hour falls inside the rule's window.
func ApplySolarRules(kelvin, hour float64, r rhythm.Rhythm, rt Runtime, sun solar.SunTimes) float64 {
	if wn := r.WarmNight; wn.Enabled {
		target := float64(intOr(rt.SolarRuleColorLimit, wn.Target))
		if kelvin > target {
			start, end := warmNightWindow(wn, sun)
			if in, w := windowWeight(hour, start, end, float64(wn.Fade)/60); in && w > 0 {
				kelvin += (target - kelvin) * w
			}
		}
	}

	if cd := r.CoolDay; cd.Enabled {
		target := float64(intOr(rt.SolarRuleColorLimit, cd.Target))
		if kelvin < target {
			start, end := coolDayWindow(cd, sun)
			if in, w := windowWeight(hour, start, end, float64(cd.Fade)/60); in && w > 0 {
				kelvin += (target - kelvin) * w
			}
		}
	}

	return kelvin
}

// WarmNightActive reports whether the warm-night ceiling is currently capping kelvin
func WarmNightActive(hour float64, r rhythm.Rhythm, sun solar.SunTimes) bool {
	if !r.WarmNight.Enabled {
		return false
	}
	start, end := warmNightWindow(r.WarmNight, sun)
	in, w := windowWeight(hour, start, end, float64(r.WarmNight.Fade)/60)
	return in && w > 0
}

// CoolDayActive reports whether the cool-day floor is currently raising kelvin
func CoolDayActive(hour float64, r rhythm.Rhythm, sun solar.SunTimes) bool {
	if !r.CoolDay.Enabled {
		return false
	}
	start, end := coolDayWindow(r.CoolDay, sun)
	in, w := windowWeight(hour, start, end, float64(r.CoolDay.Fade)/60)
	return in && w > 0
}

func warmNightWindow(rule rhythm.SolarRule, sun solar.SunTimes) (start, end float64) {
	startOff := float64(rule.Start) / 60
	endOff := float64(rule.End) / 60
	switch rule.Mode {
	case rhythm.ModeSunrise:
		return solar.WrapHour(sun.SolarMidnight), solar.WrapHour(sun.Sunrise + endOff)
	case rhythm.ModeSunset:
		return solar.WrapHour(sun.Sunset + startOff), solar.WrapHour(sun.SolarMidnight)
	default:
		return solar.WrapHour(sun.Sunset + startOff), solar.WrapHour(sun.Sunrise + endOff)
	}
}

func coolDayWindow(rule rhythm.SolarRule, sun solar.SunTimes) (start, end float64) {
	startOff := float64(rule.Start) / 60
	endOff := float64(rule.End) / 60
	switch rule.Mode {
	case rhythm.ModeSunrise:
		return solar.WrapHour(sun.Sunrise + startOff), solar.WrapHour(sun.SolarNoon)
	case rhythm.ModeSunset:
		return solar.WrapHour(sun.SolarNoon), solar.WrapHour(sun.Sunset + endOff)
	default:
		return solar.WrapHour(sun.Sunrise + startOff), solar.WrapHour(sun.Sunset + endOff)
	}
}

// windowWeight reports whether hour lies in [start, end] (wrapping past
// midnight when start > end) and how far the fade has progressed, 0..1.
func windowWeight(hour, start, end, fadeHours float64) (bool, float64) {
	h := solar.WrapHour(hour)

	var fromStart, toEnd float64
	if start > end {
		if h < start && h > end {
			return false, 0
		}
		if h >= start {
			fromStart = h - start
		} else {
			fromStart = h + 24 - start
		}
		if h <= end {
			toEnd = end - h
		} else {
			toEnd = end + 24 - h
		}
	} else {
		if h < start || h > end {
			return false, 0
		}
		fromStart = h - start
		toEnd = end - h
	}

	weight := 1.0
	if fadeHours > 0.01 {
		if fromStart < fadeHours {
			weight = min(weight, fromStart/fadeHours)
		}
		if toEnd < fadeHours {
			weight = min(weight, toEnd/fadeHours)
		}
	}
	return true, weight
}
