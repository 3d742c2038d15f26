package actuator

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogActuator only logs commands. Used for dry runs.
type LogActuator struct{}

// Apply implements Actuator
func (LogActuator) Apply(_ context.Context, areaID string, cmd Command) error {
	log.Info().
		Str("area", areaID).
		Bool("power", cmd.Power).
		Int("brightness", cmd.Brightness).
		Int("kelvin", cmd.Kelvin).
		Dur("transition", cmd.Transition).
		Msg("Would actuate area")
	return nil
}
