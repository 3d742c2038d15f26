package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/config"
	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/eventbus"
	"github.com/dokzlo13/circadiand/internal/mqtt"
	"github.com/dokzlo13/circadiand/internal/sensors"
	"github.com/dokzlo13/circadiand/internal/switches"
)

// EventService routes device messages through the event bus to switches
// and sensor handlers.
type EventService struct {
	cfg    *config.Config
	engine *engine.Engine
	lua    *LuaService
	client *mqtt.Client // nil without MQTT
	wake   func()
	Bus    *eventbus.Bus

	Switches *switches.Manager
	Sensors  *sensors.Handler
}

// NewEventService creates the bus. Handlers are built in Start.
func NewEventService(cfg *config.Config, eng *engine.Engine, lua *LuaService, client *mqtt.Client, wake func()) *EventService {
	return &EventService{
		cfg:    cfg,
		engine: eng,
		lua:    lua,
		client: client,
		wake:   wake,
		Bus:    eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize()),
	}
}

// Start builds switch and sensor handlers and subscribes to device topics
func (s *EventService) Start(ctx context.Context) error {
	var cfgs []switches.Config
	for _, sw := range s.cfg.Switches {
		c := switches.Config{
			ID:       sw.ID,
			Type:     sw.Type,
			Scopes:   sw.Scopes,
			Mapping:  sw.Mapping,
			Debounce: sw.Debounce.Duration(),
		}
		if rt := s.lua.Runtime(sw.Script); rt != nil {
			c.Mapper = rt
		}
		cfgs = append(cfgs, c)
	}

	manager, err := switches.NewManager(ctx, s.engine, cfgs)
	if err != nil {
		return fmt.Errorf("failed to configure switches: %w", err)
	}
	s.Switches = manager
	s.Bus.Subscribe(eventbus.EventTypeButton, manager.HandleEvent)

	bindings := sensorBindings(s.cfg)
	s.Sensors = sensors.NewHandler(ctx, s.engine, bindings)
	s.Sensors.Register(s.Bus)
	s.Bus.Subscribe(eventbus.EventTypeRefresh, func(eventbus.Event) { s.wake() })

	if s.client == nil {
		if len(bindings) > 0 || len(cfgs) > 0 {
			log.Warn().Msg("Switches and sensors are configured but MQTT is disabled")
		}
		return nil
	}

	ingress := sensors.NewIngress(s.Bus, bindings, s.switchTopics())
	for _, topic := range ingress.Topics() {
		if err := s.client.Subscribe(ctx, topic, ingress.HandleMessage); err != nil {
			return err
		}
	}
	return s.client.Subscribe(ctx, s.cfg.MQTT.RefreshTopic, func(topic string, _ []byte) {
		s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeRefresh, Source: topic})
	})
}

// Stop ends hold repeats and drains the bus
func (s *EventService) Stop(ctx context.Context) {
	if s.Switches != nil {
		s.Switches.Close()
	}
	s.Bus.Close(ctx)
}

// switchTopics maps each switch's MQTT topic to its id. A switch without a
// topic listens on <topic_prefix>/<id>.
func (s *EventService) switchTopics() map[string]string {
	topics := make(map[string]string, len(s.cfg.Switches))
	for _, sw := range s.cfg.Switches {
		topic := sw.Topic
		if topic == "" {
			topic = s.cfg.Actuator.TopicPrefix + "/" + sw.ID
		}
		topics[topic] = sw.ID
	}
	return topics
}

func sensorBindings(cfg *config.Config) []sensors.Binding {
	bindings := make([]sensors.Binding, 0, len(cfg.MQTT.Sensors))
	for _, sc := range cfg.MQTT.Sensors {
		bindings = append(bindings, sensors.Binding{
			Topic:    sc.Topic,
			Kind:     sc.Kind,
			Areas:    sc.Areas,
			Mode:     sc.Mode,
			Duration: sc.Duration.Duration(),
			Amount:   sc.Amount,
			Forever:  sc.Forever,
		})
	}
	return bindings
}
