// Package sensors turns zigbee2mqtt device messages into bus events and
// bus events into engine primitives.
package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/debounce"
	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/eventbus"
)

// Kinds
const (
	KindMotion  = "motion"
	KindContact = "contact"
	KindBoost   = "boost"
)

// Motion modes
const (
	ModeOnOnly = "on_only"
	ModeOnOff  = "on_off"
)

// motionDebounce drops repeated occupancy reports from one sensor
const motionDebounce = time.Second

// Binding ties a sensor topic to the areas it controls
type Binding struct {
	Topic    string
	Kind     string
	Areas    []string
	Mode     string
	Duration time.Duration
	Amount   int
	Forever  bool
}

// Invoker runs engine primitives
type Invoker interface {
	Invoke(ctx context.Context, primitive, target string, p engine.Params) (engine.Applied, error)
}

// payload is the subset of a zigbee2mqtt message we read
type payload struct {
	Action    *string `json:"action"`
	Occupancy *bool   `json:"occupancy"`
	Contact   *bool   `json:"contact"`
	State     *string `json:"state"`
}

// Ingress publishes decoded device messages to the bus
type Ingress struct {
	bus      *eventbus.Bus
	sensors  map[string]string // topic -> kind
	switches map[string]string // topic -> switch id
}

// NewIngress creates an ingress for the given sensor bindings and switch topics
func NewIngress(bus *eventbus.Bus, bindings []Binding, switchTopics map[string]string) *Ingress {
	in := &Ingress{
		bus:      bus,
		sensors:  make(map[string]string),
		switches: switchTopics,
	}
	for _, b := range bindings {
		in.sensors[b.Topic] = b.Kind
	}
	return in
}

// Topics returns every topic the ingress wants
func (in *Ingress) Topics() []string {
	topics := make([]string, 0, len(in.sensors)+len(in.switches))
	for t := range in.sensors {
		topics = append(topics, t)
	}
	for t := range in.switches {
		topics = append(topics, t)
	}
	return topics
}

// HandleMessage decodes one MQTT message and publishes the matching event
func (in *Ingress) HandleMessage(topic string, raw []byte) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Debug().Err(err).Str("topic", topic).Msg("Ignoring non-JSON device message")
		return
	}

	if id, ok := in.switches[topic]; ok {
		if p.Action == nil || *p.Action == "" {
			return
		}
		in.bus.Publish(eventbus.Event{
			Type:   eventbus.EventTypeButton,
			Source: id,
			Data:   map[string]any{"action": *p.Action},
		})
		return
	}

	switch in.sensors[topic] {
	case KindMotion:
		if p.Occupancy != nil {
			in.bus.Publish(eventbus.Event{
				Type:   eventbus.EventTypeMotion,
				Source: topic,
				Data:   map[string]any{"occupancy": *p.Occupancy},
			})
		}
	case KindContact:
		if p.Contact != nil {
			in.bus.Publish(eventbus.Event{
				Type:   eventbus.EventTypeContact,
				Source: topic,
				Data:   map[string]any{"closed": *p.Contact},
			})
		}
	case KindBoost:
		if triggered(p) {
			in.bus.Publish(eventbus.Event{Type: eventbus.EventTypeBoost, Source: topic})
		}
	}
}

// triggered reports whether a boost device message means "go"
func triggered(p payload) bool {
	switch {
	case p.Occupancy != nil:
		return *p.Occupancy
	case p.State != nil:
		return *p.State == "ON"
	case p.Action != nil:
		return *p.Action != ""
	}
	return false
}

// Handler runs sensor primitives for bus events
type Handler struct {
	ctx      context.Context
	invoker  Invoker
	bindings map[string]Binding
	gate     *debounce.Gate
}

// NewHandler creates a handler for the bindings
func NewHandler(ctx context.Context, invoker Invoker, bindings []Binding) *Handler {
	h := &Handler{
		ctx:      ctx,
		invoker:  invoker,
		bindings: make(map[string]Binding),
		gate:     debounce.NewGate(motionDebounce),
	}
	for _, b := range bindings {
		h.bindings[b.Topic] = b
	}
	return h
}

// Register subscribes the handler to sensor events
func (h *Handler) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeMotion, h.HandleEvent)
	bus.Subscribe(eventbus.EventTypeContact, h.HandleEvent)
	bus.Subscribe(eventbus.EventTypeBoost, h.HandleEvent)
}

// HandleEvent runs the primitive a sensor event calls for on every bound area
func (h *Handler) HandleEvent(ev eventbus.Event) {
	b, ok := h.bindings[ev.Source]
	if !ok {
		return
	}

	primitive, p := h.primitiveFor(b, ev)
	if primitive == "" {
		return
	}
	p.Source = b.Kind + ":" + b.Topic

	var errs []error
	for _, area := range b.Areas {
		_, err := h.invoker.Invoke(h.ctx, primitive, area, p)
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Str("topic", b.Topic).Str("primitive", primitive).Msg("Sensor primitive failed")
	}
}

func (h *Handler) primitiveFor(b Binding, ev eventbus.Event) (string, engine.Params) {
	seconds := b.Duration.Seconds()

	switch ev.Type {
	case eventbus.EventTypeMotion:
		if !ev.Bool("occupancy") || !h.gate.Allow(b.Topic) {
			return "", engine.Params{}
		}
		if b.Mode == ModeOnOff {
			return engine.MotionOnOff, engine.Params{Seconds: seconds}
		}
		return engine.MotionOnOnly, engine.Params{}
	case eventbus.EventTypeContact:
		if ev.Bool("closed") {
			return engine.ContactOff, engine.Params{}
		}
		return engine.LightsOn, engine.Params{}
	case eventbus.EventTypeBoost:
		return engine.Boost, engine.Params{Amount: b.Amount, Seconds: seconds, Forever: b.Forever}
	}
	return "", engine.Params{}
}
