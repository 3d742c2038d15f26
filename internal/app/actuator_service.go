package app

import (
	"fmt"

	"github.com/dokzlo13/circadiand/internal/actuator"
	"github.com/dokzlo13/circadiand/internal/config"
	"github.com/dokzlo13/circadiand/internal/mqtt"
)

// newActuator builds the configured delivery backend
func newActuator(cfg *config.Config, client *mqtt.Client) (actuator.Actuator, error) {
	lights := lightsByArea(cfg)

	switch cfg.Actuator.Backend {
	case config.BackendHue:
		if cfg.Hue.Bridge == "" || cfg.Hue.Token == "" {
			return nil, fmt.Errorf("hue backend needs hue.bridge and hue.token")
		}
		return actuator.NewHueActuator(actuator.NewHueBridge(cfg.Hue.Bridge, cfg.Hue.Token), lights), nil
	case config.BackendMQTT:
		if client == nil {
			return nil, fmt.Errorf("mqtt backend needs mqtt.enabled")
		}
		return actuator.NewMQTTActuator(client, cfg.Actuator.TopicPrefix, lights), nil
	default:
		return actuator.LogActuator{}, nil
	}
}

func lightsByArea(cfg *config.Config) map[string][]actuator.Light {
	out := make(map[string][]actuator.Light, len(cfg.Areas))
	for _, a := range cfg.Areas {
		for _, l := range a.Lights {
			out[a.ID] = append(out[a.ID], actuator.Light{ID: l.ID, Color: l.Color})
		}
	}
	return out
}
