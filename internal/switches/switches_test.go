package switches

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
	return engine.Applied{Primitive: primitive, Target: target}, nil
}

func (f *fakeInvoker) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeInvoker) count(primitive string) int {
	n := 0
	for _, c := range f.snapshot() {
		if c.primitive == primitive {
			n++
		}
	}
	return n
}

type fakeMapper struct {
	overrides map[string]string
}

func (m fakeMapper) MapButton(_ context.Context, _, event, def string, _ []string) (string, error) {
	if a, ok := m.overrides[event]; ok {
		return a, nil
	}
	return def, nil
}

func newManager(t *testing.T, cfgs ...Config) (*Manager, *fakeInvoker) {
	t.Helper()
	inv := &fakeInvoker{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m, err := NewManager(ctx, inv, cfgs)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, inv
}

func dimmer(scopes ...[]string) Config {
	return Config{ID: "dimmer", Type: TypeHueDimmer, Scopes: scopes}
}

func TestTypeEvent(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		raw    string
		want   string
		wantOK bool
	}{
		{name: "hue_release", typ: TypeHueDimmer, raw: "on_press_release", want: "on_short_release", wantOK: true},
		{name: "hue_hold", typ: TypeHueDimmer, raw: "up_hold", want: "up_hold", wantOK: true},
		{name: "hue_hold_release", typ: TypeHueDimmer, raw: "down_hold_release", want: "down_long_release", wantOK: true},
		{name: "zha_style", typ: TypeHueDimmer, raw: "off_triple_press", want: "off_triple_press", wantOK: true},
		{name: "ikea_bare", typ: TypeIkeaRemote, raw: "toggle", want: "toggle_press", wantOK: true},
		{name: "ikea_click", typ: TypeIkeaRemote, raw: "brightness_up_click", want: "brightness_up_press", wantOK: true},
		{name: "ikea_longest_button", typ: TypeIkeaRemote, raw: "brightness_down_hold", want: "brightness_down_hold", wantOK: true},
		{name: "unknown", typ: TypeHueDimmer, raw: "left_press", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, _, _, ok := Types[tt.typ].Event(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestPressMapsToPrimitives(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		primitive string
		calls     int
		preset    string
	}{
		{name: "toggle_all_areas", raw: "on_press_release", primitive: engine.LightsToggleMultiple, calls: 1},
		{name: "step_each_area", raw: "up_press_release", primitive: engine.StepUp, calls: 2},
		{name: "glo_first_area", raw: "on_double", primitive: engine.GloUp, calls: 1},
		{name: "britelite", raw: "up_triple", primitive: engine.Set, calls: 2, preset: "britelite"},
		{name: "freeze", raw: "off_quadruple", primitive: engine.FreezeToggle, calls: 2},
		{name: "unmapped", raw: "on_press", calls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, inv := newManager(t, dimmer([]string{"kitchen", "lounge"}))
			require.NoError(t, m.Press(context.Background(), "dimmer", tt.raw))

			calls := inv.snapshot()
			require.Len(t, calls, tt.calls)
			for _, c := range calls {
				assert.Equal(t, tt.primitive, c.primitive)
				assert.Equal(t, "switch:dimmer", c.params.Source)
				assert.Equal(t, tt.preset, c.params.Preset)
			}
			if tt.primitive == engine.LightsToggleMultiple {
				assert.Equal(t, []string{"kitchen", "lounge"}, calls[0].params.Areas)
			}
		})
	}
}

func TestUnknownSwitch(t *testing.T) {
	m, _ := newManager(t)
	assert.ErrorIs(t, m.Press(context.Background(), "ghost", "on_press"), ErrUnknownSwitch)
}

func TestUnknownType(t *testing.T) {
	_, err := NewManager(context.Background(), &fakeInvoker{}, []Config{{ID: "x", Type: "rotary"}})
	assert.Error(t, err)
}

func TestCycleScope(t *testing.T) {
	m, inv := newManager(t, dimmer([]string{"kitchen"}, nil, []string{"hall"}))

	require.NoError(t, m.Press(context.Background(), "dimmer", "off_press_release"))
	scope, areas := m.Scope("dimmer")
	assert.Equal(t, 2, scope, "empty scopes are skipped")
	assert.Equal(t, []string{"hall"}, areas)

	require.NoError(t, m.Press(context.Background(), "dimmer", "up_press_release"))
	calls := inv.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "hall", calls[0].target)

	require.NoError(t, m.Press(context.Background(), "dimmer", "off_press_release"))
	scope, _ = m.Scope("dimmer")
	assert.Equal(t, 0, scope)
}

func TestScopeResetsAfterIdle(t *testing.T) {
	m, _ := newManager(t, dimmer([]string{"kitchen"}, []string{"hall"}))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Press(context.Background(), "dimmer", "off_press_release"))
	scope, _ := m.Scope("dimmer")
	require.Equal(t, 1, scope)

	now = now.Add(ScopeResetTimeout + time.Second)
	require.NoError(t, m.Press(context.Background(), "dimmer", "on_press"))
	scope, _ = m.Scope("dimmer")
	assert.Equal(t, 0, scope)
}

func TestDebounce(t *testing.T) {
	cfg := dimmer([]string{"kitchen"})
	cfg.Debounce = time.Hour
	m, inv := newManager(t, cfg)

	for range 3 {
		require.NoError(t, m.Press(context.Background(), "dimmer", "up_press_release"))
	}
	assert.Equal(t, 1, inv.count(engine.StepUp))
}

func TestHoldRepeatsUntilRelease(t *testing.T) {
	m, inv := newManager(t, dimmer([]string{"kitchen"}))

	require.NoError(t, m.Press(context.Background(), "dimmer", "up_hold"))
	require.Eventually(t, func() bool { return inv.count(engine.BrightUp) >= 2 }, 2*time.Second, 10*time.Millisecond)

	// re-reported hold does not restart
	require.NoError(t, m.Press(context.Background(), "dimmer", "up_hold"))

	require.NoError(t, m.Press(context.Background(), "dimmer", "up_hold_release"))
	n := inv.count(engine.BrightUp)
	time.Sleep(2 * DefaultRepeatInterval)
	assert.LessOrEqual(t, inv.count(engine.BrightUp), n+1)
}

func TestMapperOverrides(t *testing.T) {
	cfg := dimmer([]string{"kitchen"})
	cfg.Mapper = fakeMapper{overrides: map[string]string{
		"up_short_release": engine.Reset,
		"on_short_release": "",
	}}
	m, inv := newManager(t, cfg)

	require.NoError(t, m.Press(context.Background(), "dimmer", "up_press_release"))
	require.NoError(t, m.Press(context.Background(), "dimmer", "on_press_release"))

	calls := inv.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, engine.Reset, calls[0].primitive)
}

func TestConfigMappingOverride(t *testing.T) {
	cfg := dimmer([]string{"kitchen"})
	cfg.Mapping = map[string]string{"on_press": ActionCircadianOn}
	m, inv := newManager(t, cfg)

	m.HandleEvent(eventbus.Event{Type: eventbus.EventTypeButton, Source: "dimmer", Data: map[string]any{"action": "on_press"}})
	calls := inv.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, engine.LightsOn, calls[0].primitive)
}
