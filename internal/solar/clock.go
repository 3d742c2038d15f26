package solar

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Clock supplies the current wall time
type Clock interface {
	Now() time.Time
}

// SystemClock reports time.Now in a fixed zone
type SystemClock struct {
	tz *time.Location
}

// NewSystemClock loads the named zone, falling back to UTC
func NewSystemClock(timezone string) SystemClock {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", timezone).Msg("Failed to load timezone, using UTC")
		tz = time.UTC
	}
	return SystemClock{tz: tz}
}

// Now implements Clock
func (c SystemClock) Now() time.Time {
	return time.Now().In(c.tz)
}

// Location returns the clock's zone
func (c SystemClock) Location() *time.Location {
	return c.tz
}
