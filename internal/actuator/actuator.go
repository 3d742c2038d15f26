// Package actuator turns evaluated light states into device commands.
//
// The engine and scheduler never talk to devices directly: they hand
// commands to a Dispatcher, which delivers them on a worker pool with a
// rate limit and a per-command timeout.
package actuator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dokzlo13/circadiand/internal/curve"
)

// Command is the target state for every light in an area
type Command struct {
	Power      bool
	Brightness int // percent, 1..100
	Kelvin     int
	XY         curve.XY
	Transition time.Duration

	// Delay is how long to wait after the previous command in a sequence
	Delay time.Duration
}

// On builds a power-on command from an evaluated curve result
func On(res curve.Result, transition time.Duration) Command {
	return Command{
		Power:      true,
		Brightness: res.Brightness,
		Kelvin:     res.Kelvin,
		XY:         res.XY,
		Transition: transition,
	}
}

// Off builds a power-off command
func Off(transition time.Duration) Command {
	return Command{Transition: transition}
}

func (c Command) String() string {
	if !c.Power {
		return fmt.Sprintf("off (%s)", c.Transition)
	}
	return fmt.Sprintf("on %d%% %dK (%s)", c.Brightness, c.Kelvin, c.Transition)
}

// Actuator applies a command to an area's lights
type Actuator interface {
	Apply(ctx context.Context, areaID string, cmd Command) error
}

// Light is one physical light in an area
type Light struct {
	ID    string
	Color bool
}

// MinCTKelvin is the warmest colour temperature CT-only lights accept
const MinCTKelvin = 2000

// CTKelvin is the kelvin value to send to a CT-only light
func CTKelvin(k int) int {
	return max(k, MinCTKelvin)
}

// Mired converts kelvin to mired, clamped to the range Hue accepts
func Mired(k int) uint16 {
	if k <= 0 {
		return 500
	}
	m := math.Round(1e6 / float64(k))
	return uint16(min(max(m, 153), 500))
}

// BriByte scales a percentage to the 1..254 device range
func BriByte(pct int) uint8 {
	v := math.Round(float64(pct) * 254 / 100)
	return uint8(min(max(v, 1), 254))
}
