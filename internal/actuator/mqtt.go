package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Publisher sends a payload to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTActuator publishes zigbee2mqtt-style set messages, one per light.
// Areas without configured lights get a single message on the area topic.
type MQTTActuator struct {
	pub    Publisher
	prefix string
	lights map[string][]Light
}

// NewMQTTActuator creates an actuator publishing under prefix
func NewMQTTActuator(pub Publisher, prefix string, lights map[string][]Light) *MQTTActuator {
	return &MQTTActuator{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "/"),
		lights: lights,
	}
}

type mqttColor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type mqttPayload struct {
	State      string     `json:"state"`
	Brightness *int       `json:"brightness,omitempty"`
	ColorTemp  *int       `json:"color_temp,omitempty"`
	Color      *mqttColor `json:"color,omitempty"`
	Transition float64    `json:"transition"`
}

// Apply implements Actuator
func (a *MQTTActuator) Apply(ctx context.Context, areaID string, cmd Command) error {
	lights := a.lights[areaID]
	if len(lights) == 0 {
		return a.publish(ctx, a.prefix+"/"+areaID+"/set", setPayload(cmd, true))
	}

	var errs []error
	for _, l := range lights {
		if err := a.publish(ctx, a.prefix+"/"+l.ID+"/set", setPayload(cmd, l.Color)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *MQTTActuator) publish(ctx context.Context, topic string, p mqttPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := a.pub.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// setPayload translates a command into a set message
func setPayload(cmd Command, color bool) mqttPayload {
	p := mqttPayload{State: "OFF", Transition: cmd.Transition.Seconds()}
	if !cmd.Power {
		return p
	}

	p.State = "ON"
	bri := int(BriByte(cmd.Brightness))
	p.Brightness = &bri
	if color {
		p.Color = &mqttColor{X: cmd.XY.X, Y: cmd.XY.Y}
	} else {
		ct := int(Mired(CTKelvin(cmd.Kelvin)))
		p.ColorTemp = &ct
	}
	return p
}
