package sensors

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/eventbus"
)

type call struct {
	primitive string
	target    string
	params    engine.Params
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeInvoker) Invoke(_ context.Context, primitive, target string, p engine.Params) (engine.Applied, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{primitive: primitive, target: target, params: p})
	return engine.Applied{}, nil
}

func (f *fakeInvoker) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

var bindings = []Binding{
	{Topic: "z2m/hall_pir", Kind: KindMotion, Areas: []string{"hall"}, Mode: ModeOnOff, Duration: 2 * time.Minute},
	{Topic: "z2m/pantry_pir", Kind: KindMotion, Areas: []string{"pantry"}, Mode: ModeOnOnly},
	{Topic: "z2m/wardrobe_door", Kind: KindContact, Areas: []string{"wardrobe"}},
	{Topic: "z2m/desk_button", Kind: KindBoost, Areas: []string{"office", "study"}, Amount: 30, Duration: time.Minute},
}

func TestIngressPublishesEvents(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    eventbus.Event
		none    bool
	}{
		{
			name:    "motion",
			topic:   "z2m/hall_pir",
			payload: `{"occupancy":true,"battery":90}`,
			want:    eventbus.Event{Type: eventbus.EventTypeMotion, Source: "z2m/hall_pir", Data: map[string]any{"occupancy": true}},
		},
		{
			name:    "contact",
			topic:   "z2m/wardrobe_door",
			payload: `{"contact":true}`,
			want:    eventbus.Event{Type: eventbus.EventTypeContact, Source: "z2m/wardrobe_door", Data: map[string]any{"closed": true}},
		},
		{
			name:    "boost",
			topic:   "z2m/desk_button",
			payload: `{"action":"single"}`,
			want:    eventbus.Event{Type: eventbus.EventTypeBoost, Source: "z2m/desk_button"},
		},
		{
			name:    "switch",
			topic:   "z2m/dimmer",
			payload: `{"action":"on_press_release"}`,
			want:    eventbus.Event{Type: eventbus.EventTypeButton, Source: "dimmer", Data: map[string]any{"action": "on_press_release"}},
		},
		{name: "switch_empty_action", topic: "z2m/dimmer", payload: `{"action":""}`, none: true},
		{name: "not_json", topic: "z2m/hall_pir", payload: `online`, none: true},
		{name: "unknown_topic", topic: "z2m/other", payload: `{"occupancy":true}`, none: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := eventbus.NewWithConfig(1, 10)
			got := make(chan eventbus.Event, 4)
			for _, typ := range []eventbus.EventType{eventbus.EventTypeMotion, eventbus.EventTypeContact, eventbus.EventTypeBoost, eventbus.EventTypeButton} {
				bus.Subscribe(typ, func(e eventbus.Event) { got <- e })
			}

			in := NewIngress(bus, bindings, map[string]string{"z2m/dimmer": "dimmer"})
			in.HandleMessage(tt.topic, []byte(tt.payload))
			bus.Close(context.Background())

			if tt.none {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, <-got)
		})
	}
}

func TestHandlerRunsPrimitives(t *testing.T) {
	tests := []struct {
		name  string
		event eventbus.Event
		want  []call
	}{
		{
			name:  "motion_on_off",
			event: eventbus.Event{Type: eventbus.EventTypeMotion, Source: "z2m/hall_pir", Data: map[string]any{"occupancy": true}},
			want:  []call{{primitive: engine.MotionOnOff, target: "hall", params: engine.Params{Seconds: 120, Source: "motion:z2m/hall_pir"}}},
		},
		{
			name:  "motion_on_only",
			event: eventbus.Event{Type: eventbus.EventTypeMotion, Source: "z2m/pantry_pir", Data: map[string]any{"occupancy": true}},
			want:  []call{{primitive: engine.MotionOnOnly, target: "pantry", params: engine.Params{Source: "motion:z2m/pantry_pir"}}},
		},
		{
			name:  "motion_cleared",
			event: eventbus.Event{Type: eventbus.EventTypeMotion, Source: "z2m/hall_pir", Data: map[string]any{"occupancy": false}},
		},
		{
			name:  "door_closed",
			event: eventbus.Event{Type: eventbus.EventTypeContact, Source: "z2m/wardrobe_door", Data: map[string]any{"closed": true}},
			want:  []call{{primitive: engine.ContactOff, target: "wardrobe", params: engine.Params{Source: "contact:z2m/wardrobe_door"}}},
		},
		{
			name:  "door_opened",
			event: eventbus.Event{Type: eventbus.EventTypeContact, Source: "z2m/wardrobe_door", Data: map[string]any{"closed": false}},
			want:  []call{{primitive: engine.LightsOn, target: "wardrobe", params: engine.Params{Source: "contact:z2m/wardrobe_door"}}},
		},
		{
			name:  "boost_every_area",
			event: eventbus.Event{Type: eventbus.EventTypeBoost, Source: "z2m/desk_button"},
			want: []call{
				{primitive: engine.Boost, target: "office", params: engine.Params{Amount: 30, Seconds: 60, Source: "boost:z2m/desk_button"}},
				{primitive: engine.Boost, target: "study", params: engine.Params{Amount: 30, Seconds: 60, Source: "boost:z2m/desk_button"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{}
			h := NewHandler(context.Background(), inv, bindings)
			h.HandleEvent(tt.event)
			assert.Equal(t, tt.want, inv.snapshot())
		})
	}
}

func TestMotionIsDebounced(t *testing.T) {
	inv := &fakeInvoker{}
	h := NewHandler(context.Background(), inv, bindings)
	ev := eventbus.Event{Type: eventbus.EventTypeMotion, Source: "z2m/pantry_pir", Data: map[string]any{"occupancy": true}}

	h.HandleEvent(ev)
	h.HandleEvent(ev)
	assert.Len(t, inv.snapshot(), 1)
}
