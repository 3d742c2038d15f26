package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/circadiand/internal/actuator"
	"github.com/dokzlo13/circadiand/internal/curve"
	"github.com/dokzlo13/circadiand/internal/ledger"
	"github.com/dokzlo13/circadiand/internal/rhythm"
	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) set(hour float64) {
	c.t = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC).Add(time.Duration(hour * float64(time.Hour)))
}

type submission struct {
	area string
	cmds []actuator.Command
}

type fakeSink struct {
	mu   sync.Mutex
	subs []submission
}

func (s *fakeSink) Submit(areaID string, cmds ...actuator.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, submission{area: areaID, cmds: cmds})
	return nil
}

func (s *fakeSink) last(t *testing.T) submission {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.subs)
	return s.subs[len(s.subs)-1]
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (l *fakeLedger) Append(e ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

type fixedRhythm rhythm.Rhythm

func (r fixedRhythm) ResolveRhythm(string) rhythm.Rhythm { return rhythm.Rhythm(r) }

type fixture struct {
	engine *Engine
	store  *state.Store
	clock  *fakeClock
	sink   *fakeSink
	ledger *fakeLedger
}

func newFixture(t *testing.T, hour float64) *fixture {
	t.Helper()
	return newFixtureWithRhythm(t, hour, rhythm.Default())
}

func newFixtureWithRhythm(t *testing.T, hour float64, r rhythm.Rhythm) *fixture {
	t.Helper()
	f := &fixture{
		store:  state.NewStore(nil),
		clock:  &fakeClock{},
		sink:   &fakeSink{},
		ledger: &fakeLedger{},
	}
	f.clock.set(hour)
	f.engine = New(Options{
		Store:  f.store,
		Clock:  f.clock,
		Sun:     solar.Fixed(solar.DefaultSunTimes()),
		Rhythms: fixedRhythm(r),
		Sink:    f.sink,
		Ledger:  f.ledger,
	})
	f.engine.SyncTopology(
		[]ZoneDef{{Name: "living", Rhythm: rhythm.DefaultName, Areas: []string{"kitchen", "lounge"}}},
		[]AreaDef{{ID: "kitchen"}, {ID: "lounge"}, {ID: "hall"}, {ID: "downstairs", Group: true}},
	)
	return f
}

func (f *fixture) invoke(t *testing.T, primitive, target string, p Params) Applied {
	t.Helper()
	applied, err := f.engine.Invoke(context.Background(), primitive, target, p)
	require.NoError(t, err)
	return applied
}

func TestEnableClearsTransientState(t *testing.T) {
	f := newFixture(t, 10)

	a := f.store.Area("kitchen")
	a.IsOn = true
	a.BrightnessMid = floatPtr(9)
	a.FrozenAt = floatPtr(2)
	amount := 20
	a.BoostAmount = &amount
	f.store.PutArea("kitchen", a)

	applied := f.invoke(t, EnableCircadian, "kitchen", Params{})
	assert.False(t, applied.Noop)

	got := f.store.Area("kitchen")
	assert.True(t, got.IsCircadian)
	assert.False(t, got.IsOn)
	assert.True(t, got.Triple.IsZero())
	assert.Nil(t, got.BoostAmount)

	applied = f.invoke(t, EnableCircadian, "kitchen", Params{})
	assert.True(t, applied.Noop)
}

func TestCircadianOffKeepsEverythingElse(t *testing.T) {
	f := newFixture(t, 10)
	f.invoke(t, LightsOn, "kitchen", Params{})
	f.invoke(t, StepDown, "kitchen", Params{})
	before := f.store.Area("kitchen")

	f.invoke(t, CircadianOff, "kitchen", Params{})
	after := f.store.Area("kitchen")
	assert.False(t, after.IsCircadian)
	assert.Equal(t, before.IsOn, after.IsOn)
	assert.Equal(t, before.BrightnessMid, after.BrightnessMid)
}

func TestTwoStepTurnOn(t *testing.T) {
	f := newFixture(t, 10)

	f.invoke(t, LightsOn, "kitchen", Params{})
	sub := f.sink.last(t)
	require.Len(t, sub.cmds, 2)
	assert.Equal(t, rhythm.AbsMinBrightness, sub.cmds[0].Brightness)
	assert.Equal(t, time.Duration(0), sub.cmds[0].Transition)
	assert.Equal(t, 100*time.Millisecond, sub.cmds[1].Delay)
	assert.Equal(t, sub.cmds[0].Kelvin, sub.cmds[1].Kelvin)

	f.invoke(t, LightsOff, "kitchen", Params{})
	sub = f.sink.last(t)
	require.Len(t, sub.cmds, 1)
	assert.False(t, sub.cmds[0].Power)
	require.NotNil(t, f.store.Area("kitchen").LastOffColorTemp)

	// colour has not moved since it went off
	f.invoke(t, LightsOn, "kitchen", Params{})
	sub = f.sink.last(t)
	require.Len(t, sub.cmds, 1)
	assert.True(t, sub.cmds[0].Power)
}

func TestLightsToggle(t *testing.T) {
	f := newFixture(t, 10)

	f.invoke(t, LightsToggle, "kitchen", Params{})
	assert.True(t, f.store.Area("kitchen").IsOn)

	f.invoke(t, LightsToggle, "kitchen", Params{})
	a := f.store.Area("kitchen")
	assert.False(t, a.IsOn)
	assert.True(t, a.IsCircadian)
}

func TestLightsToggleMultiple(t *testing.T) {
	tests := []struct {
		name    string
		onFirst []string
		wantOn  bool
	}{
		{name: "any_on_turns_all_off", onFirst: []string{"kitchen"}, wantOn: false},
		{name: "all_off_turns_all_on", wantOn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			for _, id := range tt.onFirst {
				f.invoke(t, LightsOn, id, Params{})
			}

			ids := []string{"kitchen", "lounge", "hall"}
			f.invoke(t, LightsToggleMultiple, "kitchen", Params{Areas: ids})
			for _, id := range ids {
				assert.Equal(t, tt.wantOn, f.store.Area(id).IsOn, id)
			}
		})
	}
}

func TestFrozenAreaShowsFrozenHour(t *testing.T) {
	f := newFixture(t, 10)
	f.invoke(t, LightsOn, "kitchen", Params{})
	f.invoke(t, Set, "kitchen", Params{FrozenAt: floatPtr(3)})

	r := rhythm.Default()
	st := f.engine.AreaStatus("kitchen")
	assert.True(t, st.Frozen)
	assert.Equal(t, curve.BrightnessAt(3, r, curve.Runtime{}), st.Brightness)
	assert.NotEqual(t, curve.BrightnessAt(10, r, curve.Runtime{}), st.Brightness)

	// frozen output does not follow the clock
	f.clock.set(15)
	assert.Equal(t, st.Brightness, f.engine.AreaStatus("kitchen").Brightness)
}

func TestUnfreezeIsContinuous(t *testing.T) {
	f := newFixture(t, 8)
	f.invoke(t, LightsOn, "kitchen", Params{})
	f.invoke(t, StepDown, "kitchen", Params{})
	f.invoke(t, StepDown, "kitchen", Params{})
	f.invoke(t, FreezeToggle, "kitchen", Params{})
	frozen := f.engine.AreaStatus("kitchen")
	require.True(t, frozen.Frozen)

	f.clock.set(10.5)
	f.invoke(t, FreezeToggle, "kitchen", Params{})
	thawed := f.engine.AreaStatus("kitchen")
	assert.False(t, thawed.Frozen)
	assert.InDelta(t, frozen.Brightness, thawed.Brightness, 2)
	assert.InDelta(t, frozen.Kelvin, thawed.Kelvin, 60)
}

func TestFreezeTogglePresets(t *testing.T) {
	r := rhythm.Default()

	tests := []struct {
		name   string
		preset string
		want   float64
	}{
		{name: "nitelite", preset: "nitelite", want: r.AscendStart},
		{name: "britelite", preset: "britelite", want: r.DescendStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			f.invoke(t, LightsOn, "kitchen", Params{})

			f.invoke(t, FreezeToggle, "kitchen", Params{Preset: tt.preset})
			a := f.store.Area("kitchen")
			require.NotNil(t, a.FrozenAt)
			assert.InDelta(t, tt.want, *a.FrozenAt, 1e-9)

			// same preset again thaws
			f.invoke(t, FreezeToggle, "kitchen", Params{Preset: tt.preset})
			assert.Nil(t, f.store.Area("kitchen").FrozenAt)
		})
	}
}

func TestFreezeToggleMultipleFollowsFirstArea(t *testing.T) {
	f := newFixture(t, 10)
	ids := []string{"kitchen", "lounge"}
	for _, id := range ids {
		f.invoke(t, LightsOn, id, Params{})
	}

	f.invoke(t, FreezeToggleMultiple, "kitchen", Params{Areas: ids})
	for _, id := range ids {
		assert.True(t, f.store.Area(id).Frozen(), id)
	}

	f.invoke(t, FreezeToggleMultiple, "kitchen", Params{Areas: ids})
	for _, id := range ids {
		assert.False(t, f.store.Area(id).Frozen(), id)
	}
}

func TestStepOnDisabledAreaIsNoop(t *testing.T) {
	f := newFixture(t, 10)
	applied := f.invoke(t, StepUp, "hall", Params{})
	assert.True(t, applied.Noop)
	assert.Empty(t, f.sink.subs)
}

func TestStepUpAtLimitBounces(t *testing.T) {
	f := newFixture(t, 11.5)
	f.invoke(t, LightsOn, "kitchen", Params{})

	var applied Applied
	for range 40 {
		applied = f.invoke(t, StepUp, "kitchen", Params{})
		if applied.AtLimit {
			break
		}
	}
	require.True(t, applied.AtLimit)

	sub := f.sink.last(t)
	require.Len(t, sub.cmds, 2)
	assert.Less(t, sub.cmds[0].Brightness, sub.cmds[1].Brightness)
	assert.Equal(t, 300*time.Millisecond, sub.cmds[1].Delay)
}

func TestStepDownAtLowSpeedNeverWraps(t *testing.T) {
	for _, speed := range []int{1, 2, 4} {
		for _, primitive := range []string{StepDown, BrightDown} {
			t.Run(fmt.Sprintf("%s_speed_%d", primitive, speed), func(t *testing.T) {
				r := rhythm.Default()
				r.WakeTime = 7
				r.BedTime = 22
				r.WakeSpeed = speed
				r.BedSpeed = speed

				f := newFixtureWithRhythm(t, 10, r)
				f.invoke(t, LightsOn, "kitchen", Params{})
				prev := f.engine.AreaStatus("kitchen").Brightness

				limited := false
				for range 30 {
					applied := f.invoke(t, primitive, "kitchen", Params{})
					got := f.engine.AreaStatus("kitchen").Brightness
					require.LessOrEqual(t, got, prev)
					prev = got
					if applied.AtLimit {
						limited = true
						break
					}
				}
				assert.True(t, limited)
				assert.LessOrEqual(t, prev, 10)
			})
		}
	}
}

func TestResetKeepsPower(t *testing.T) {
	f := newFixture(t, 10)
	f.invoke(t, LightsOn, "kitchen", Params{})
	f.invoke(t, StepDown, "kitchen", Params{})
	require.NotNil(t, f.store.Area("kitchen").BrightnessMid)

	f.invoke(t, Reset, "kitchen", Params{})
	a := f.store.Area("kitchen")
	assert.True(t, a.IsOn)
	assert.True(t, a.IsCircadian)
	assert.True(t, a.Triple.IsZero())
}

func TestSetPriority(t *testing.T) {
	f := newFixture(t, 10)
	f.invoke(t, Set, "lounge", Params{FrozenAt: floatPtr(20)})

	f.invoke(t, Set, "kitchen", Params{CopyFrom: "lounge", FrozenAt: floatPtr(5), Preset: "nitelite"})
	a := f.store.Area("kitchen")
	require.NotNil(t, a.FrozenAt)
	assert.InDelta(t, 20, *a.FrozenAt, 1e-9)

	f.invoke(t, Set, "kitchen", Params{FrozenAt: floatPtr(29), Preset: "nitelite"})
	a = f.store.Area("kitchen")
	require.NotNil(t, a.FrozenAt)
	assert.InDelta(t, 5, *a.FrozenAt, 1e-9)

	_, err := f.engine.Invoke(context.Background(), Set, "kitchen", Params{})
	assert.Error(t, err)
}

func TestBroadcastCopiesRuntime(t *testing.T) {
	f := newFixture(t, 10)
	f.invoke(t, Set, "kitchen", Params{FrozenAt: floatPtr(4)})
	f.invoke(t, Broadcast, "kitchen", Params{})

	for _, id := range []string{"lounge", "hall", "downstairs"} {
		a := f.store.Area(id)
		require.NotNil(t, a.FrozenAt, id)
		assert.InDelta(t, 4, *a.FrozenAt, 1e-9, id)
	}
}

func TestToggleWakeBed(t *testing.T) {
	f := newFixture(t, 9)
	f.invoke(t, ToggleWakeBed, "kitchen", Params{})
	a := f.store.Area("kitchen")
	require.NotNil(t, a.BrightnessMid)
	assert.InDelta(t, 9, *a.BrightnessMid, 1e-9)

	f.invoke(t, ToggleWakeBed, "kitchen", Params{})
	assert.Nil(t, f.store.Area("kitchen").BrightnessMid)
}

func TestGloUpThenDown(t *testing.T) {
	f := newFixture(t, 10)
	f.invoke(t, LightsOn, "kitchen", Params{})
	f.invoke(t, LightsOn, "lounge", Params{})
	f.invoke(t, StepDown, "kitchen", Params{})

	f.invoke(t, GloUp, "kitchen", Params{})
	zone := f.engine.ZoneStatus("living")
	assert.True(t, zone.AllInSync)
	assert.Equal(t, f.store.Area("kitchen").Triple, f.store.Area("lounge").Triple)

	applied := f.invoke(t, GloDown, "lounge", Params{})
	assert.True(t, applied.Noop)
	assert.True(t, f.engine.AreaStatus("lounge").InSyncWithZone)
}

func TestGloReset(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "by_zone", target: "living"},
		{name: "by_area", target: "lounge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			f.invoke(t, Set, "kitchen", Params{FrozenAt: floatPtr(4)})
			f.invoke(t, GloUp, "kitchen", Params{})

			f.invoke(t, GloReset, tt.target, Params{})
			assert.True(t, f.store.Zone("living").Triple.IsZero())
			assert.True(t, f.store.Area("kitchen").Triple.IsZero())
			assert.True(t, f.store.Area("lounge").Triple.IsZero())
		})
	}
}

func TestBoostExpiry(t *testing.T) {
	tests := []struct {
		name     string
		startOn  bool
		wantOn   bool
		wantCirc bool
	}{
		{name: "started_from_off_turns_off", startOn: false, wantOn: false, wantCirc: false},
		{name: "started_on_stays_on", startOn: true, wantOn: true, wantCirc: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 22.5)
			if tt.startOn {
				f.invoke(t, LightsOn, "kitchen", Params{})
			}
			plain := f.engine.AreaStatus("kitchen").Brightness

			f.invoke(t, Boost, "kitchen", Params{Amount: 30, Seconds: 60})
			st := f.engine.AreaStatus("kitchen")
			assert.True(t, st.Boosted)
			assert.True(t, st.IsOn)
			assert.Equal(t, min(plain+30, 100), st.Brightness)

			f.clock.t = f.clock.t.Add(61 * time.Second)
			assert.Equal(t, []string{"kitchen"}, f.engine.ExpireTimers())

			a := f.store.Area("kitchen")
			assert.Equal(t, tt.wantOn, a.IsOn)
			assert.Equal(t, tt.wantCirc, a.IsCircadian)
			assert.Nil(t, a.BoostAmount)
		})
	}
}

func TestBoostKeepsLargerAmountAndLaterExpiry(t *testing.T) {
	f := newFixture(t, 20)
	f.invoke(t, Boost, "kitchen", Params{Amount: 40, Seconds: 600})
	f.invoke(t, Boost, "kitchen", Params{Amount: 10, Seconds: 60})

	a := f.store.Area("kitchen")
	require.NotNil(t, a.BoostAmount)
	assert.Equal(t, 40, *a.BoostAmount)
	require.NotNil(t, a.BoostExpiresAt)
	assert.Equal(t, f.clock.t.Add(600*time.Second), *a.BoostExpiresAt)
	assert.True(t, a.BoostStartedFromOff)
}

func TestMotionOnOffExpiry(t *testing.T) {
	f := newFixture(t, 20)
	f.invoke(t, MotionOnOff, "hall", Params{Seconds: 120})
	a := f.store.Area("hall")
	assert.True(t, a.IsOn)
	require.NotNil(t, a.MotionExpiresAt)

	f.clock.t = f.clock.t.Add(60 * time.Second)
	f.invoke(t, MotionOnOff, "hall", Params{Seconds: 120})
	assert.Empty(t, f.engine.ExpireTimers())

	f.clock.t = f.clock.t.Add(121 * time.Second)
	assert.Equal(t, []string{"hall"}, f.engine.ExpireTimers())
	a = f.store.Area("hall")
	assert.False(t, a.IsOn)
	assert.False(t, a.IsCircadian)
}

func TestMotionOnOffLeavesManualLightsAlone(t *testing.T) {
	f := newFixture(t, 20)
	f.invoke(t, LightsOn, "hall", Params{})

	applied := f.invoke(t, MotionOnOff, "hall", Params{Seconds: 60})
	assert.True(t, applied.Noop)
	assert.Nil(t, f.store.Area("hall").MotionExpiresAt)
}

func TestContactOff(t *testing.T) {
	f := newFixture(t, 20)
	f.invoke(t, MotionOnOff, "hall", Params{Seconds: 60})
	f.invoke(t, ContactOff, "hall", Params{})

	a := f.store.Area("hall")
	assert.False(t, a.IsOn)
	assert.False(t, a.IsCircadian)
	assert.Nil(t, a.MotionExpiresAt)
	assert.False(t, f.sink.last(t).cmds[0].Power)
}

func TestAssertSkipsGroupsAndDisabled(t *testing.T) {
	f := newFixture(t, 10)
	f.invoke(t, LightsOn, "kitchen", Params{})
	f.invoke(t, LightsOn, "downstairs", Params{})
	f.sink.reset()

	assert.Equal(t, 1, f.engine.Assert())
	sub := f.sink.last(t)
	assert.Equal(t, "kitchen", sub.area)
	assert.Equal(t, DefaultTransition, sub.cmds[0].Transition)
}

func TestPhaseReset(t *testing.T) {
	tests := []struct {
		name   string
		policy PhaseResetPolicy
		wantOn bool
	}{
		{name: "preserve_power", policy: PreservePower, wantOn: true},
		{name: "clear_power", policy: ClearPower, wantOn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			f.invoke(t, LightsOn, "kitchen", Params{})
			f.invoke(t, StepDown, "kitchen", Params{})
			f.invoke(t, Set, "lounge", Params{FrozenAt: floatPtr(4)})

			f.engine.PhaseReset(tt.policy, "descend_start", []string{"living"})

			k := f.store.Area("kitchen")
			assert.Nil(t, k.BrightnessMid)
			assert.Equal(t, tt.wantOn, k.IsOn)
			assert.True(t, f.store.Area("lounge").Frozen())
			assert.Contains(t, f.engine.ZoneRhythms(), "living")
			assert.Equal(t, ledger.EventPhaseReset, f.ledger.entries[len(f.ledger.entries)-1].EventType)
		})
	}
}

func TestInvokeUnknownPrimitive(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.engine.Invoke(context.Background(), "dance", "kitchen", Params{})
	assert.ErrorIs(t, err, ErrUnknownPrimitive)
}

func TestInvokeRecordsLedger(t *testing.T) {
	f := newFixture(t, 10)
	applied := f.invoke(t, LightsOn, "kitchen", Params{Source: "api"})

	require.Len(t, f.ledger.entries, 1)
	e := f.ledger.entries[0]
	assert.Equal(t, applied.InvocationID, e.InvocationID)
	assert.Equal(t, ledger.EventInvoked, e.EventType)
	assert.Equal(t, "api", e.Source)
	require.Len(t, applied.Areas, 1)
	assert.True(t, applied.Areas[0].IsOn)
}

func TestParsePreset(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Preset
		wantErr bool
	}{
		{name: "empty", in: "", want: PresetNone},
		{name: "wake", in: "wake", want: PresetWake},
		{name: "case", in: " Nitelite ", want: PresetNitelite},
		{name: "unknown", in: "disco", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePreset(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLockZoneRetakesLocksWhenMembershipMoves(t *testing.T) {
	f := newFixture(t, 10)

	calls := 0
	zoneID, members, unlock := f.engine.lockZone(func() (string, []string) {
		calls++
		if calls == 1 {
			return "living", []string{"kitchen"}
		}
		return "living", []string{"hall", "kitchen"}
	})
	assert.Equal(t, "living", zoneID)
	assert.Equal(t, []string{"hall", "kitchen"}, members)
	assert.Equal(t, 3, calls)

	locked := make(chan struct{})
	go func() {
		f.store.LockAreas("hall")()
		close(locked)
	}()
	select {
	case <-locked:
		t.Fatal("hall was not locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-locked
}

func TestGloUpFollowsTopologyChange(t *testing.T) {
	f := newFixture(t, 10)
	f.engine.SyncTopology(
		[]ZoneDef{{Name: "living", Rhythm: rhythm.DefaultName, Areas: []string{"hall", "kitchen"}}},
		[]AreaDef{{ID: "kitchen"}, {ID: "lounge"}, {ID: "hall"}},
	)
	f.invoke(t, Set, "kitchen", Params{FrozenAt: floatPtr(4)})
	f.invoke(t, GloUp, "kitchen", Params{})

	assert.NotNil(t, f.store.Area("hall").FrozenAt)
	assert.Nil(t, f.store.Area("lounge").FrozenAt)
}

func TestTickRunsAlongsidePrimitives(t *testing.T) {
	f := newFixture(t, 10)
	for _, id := range []string{"kitchen", "lounge"} {
		f.invoke(t, LightsOn, id, Params{})
	}

	primitives := []string{StepDown, StepUp, BrightDown, ColorUp, FreezeToggle, GloUp, GloDown, LightsToggle}
	var wg sync.WaitGroup
	for i, primitive := range primitives {
		target := []string{"kitchen", "lounge"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, err := f.engine.Invoke(context.Background(), primitive, target, Params{})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			f.engine.Assert()
			f.engine.PhaseReset(PreservePower, "test", []string{"living"})
			_ = f.engine.ZoneStatus("living")
		}
	}()
	wg.Wait()

	assert.Equal(t, []string{"kitchen", "lounge"}, f.store.Zone("living").Areas)

	pi := solar.PhaseAt(10, rhythm.Default())
	lo, hi := pi.Window()
	for _, id := range []string{"kitchen", "lounge"} {
		a := f.store.Area(id)
		for _, mid := range []*float64{a.BrightnessMid, a.ColorMid} {
			if mid != nil {
				assert.True(t, *mid >= lo && *mid <= hi, "%s midpoint %v outside [%v, %v]", id, *mid, lo, hi)
			}
		}
	}
	assert.True(t, slices.IsSorted(f.store.AreaIDs()))
}

func TestLookupDoesNotCreate(t *testing.T) {
	f := newFixture(t, 10)
	before := f.store.AreaIDs()

	_, ok := f.engine.LookupArea("attic")
	assert.False(t, ok)
	_, ok = f.engine.LookupZone("garden")
	assert.False(t, ok)
	assert.Equal(t, before, f.store.AreaIDs())
	assert.NotContains(t, f.store.ZoneIDs(), "garden")

	st, ok := f.engine.LookupArea("kitchen")
	require.True(t, ok)
	assert.Equal(t, "living", st.Zone)

	zone, ok := f.engine.LookupZone("living")
	require.True(t, ok)
	assert.Len(t, zone.Areas, 2)
}
