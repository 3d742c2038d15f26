package actuator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// HueBridge is the subset of huego.Bridge the actuator uses
type HueBridge interface {
	SetLightStateContext(ctx context.Context, id int, state huego.State) (*huego.Response, error)
}

// HueActuator sets every light of an area through the Hue bridge v1 API.
// Colour-capable lights get xy, the rest get a colour temperature.
type HueActuator struct {
	bridge HueBridge
	lights map[string][]Light
}

// NewHueActuator creates an actuator for the given area→lights mapping
func NewHueActuator(bridge HueBridge, lights map[string][]Light) *HueActuator {
	return &HueActuator{bridge: bridge, lights: lights}
}

// NewHueBridge connects to a bridge by address and application key
func NewHueBridge(address, token string) *huego.Bridge {
	log.Info().Str("address", address).Msg("Using Hue bridge")
	return huego.New(address, token)
}

// Apply implements Actuator
func (a *HueActuator) Apply(ctx context.Context, areaID string, cmd Command) error {
	lights, ok := a.lights[areaID]
	if !ok || len(lights) == 0 {
		log.Debug().Str("area", areaID).Msg("Area has no Hue lights")
		return nil
	}

	var errs []error
	for _, l := range lights {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		id, err := strconv.Atoi(l.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid hue light id %q: %w", l.ID, err))
			continue
		}

		if _, err := a.bridge.SetLightStateContext(ctx, id, HueState(cmd, l.Color)); err != nil {
			errs = append(errs, fmt.Errorf("failed to set light %s: %w", l.ID, err))
		}
	}
	return errors.Join(errs...)
}

// HueState translates a command into a v1 light state
func HueState(cmd Command, color bool) huego.State {
	st := huego.State{
		On:             cmd.Power,
		TransitionTime: deciseconds(cmd.Transition),
	}
	if !cmd.Power {
		return st
	}

	st.Bri = BriByte(cmd.Brightness)
	if color {
		st.Xy = []float32{float32(cmd.XY.X), float32(cmd.XY.Y)}
	} else {
		st.Ct = Mired(CTKelvin(cmd.Kelvin))
	}
	return st
}

func deciseconds(d time.Duration) uint16 {
	if d <= 0 {
		return 0
	}
	return uint16(min(d/(100*time.Millisecond), 65535))
}
