package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/ledger"
)

type fakeEngine struct {
	lastPrimitive string
	lastTarget    string
	lastParams    engine.Params
	err           error
}

func (f *fakeEngine) Invoke(_ context.Context, primitive, target string, p engine.Params) (engine.Applied, error) {
	f.lastPrimitive, f.lastTarget, f.lastParams = primitive, target, p
	if f.err != nil {
		return engine.Applied{}, f.err
	}
	return engine.Applied{
		Primitive: primitive,
		Target:    target,
		Areas:     []engine.AreaStatus{{ID: target, IsOn: true, Brightness: 60}},
	}, nil
}

func (f *fakeEngine) LookupArea(id string) (engine.AreaStatus, bool) {
	if !slices.Contains(f.AreaIDs(), id) {
		return engine.AreaStatus{}, false
	}
	return engine.AreaStatus{ID: id, Zone: "living", Kelvin: 3000}, true
}

func (f *fakeEngine) LookupZone(id string) (engine.ZoneStatus, bool) {
	if !slices.Contains(f.ZoneIDs(), id) {
		return engine.ZoneStatus{}, false
	}
	return engine.ZoneStatus{ID: id, Rhythm: "default", AllInSync: true}, true
}

func (f *fakeEngine) AreaIDs() []string    { return []string{"kitchen", "lounge"} }
func (f *fakeEngine) ZoneIDs() []string    { return []string{"living"} }
func (f *fakeEngine) Primitives() []string { return []string{engine.StepUp, engine.StepDown} }

type fakeHistory struct {
	entries []*ledger.Entry
}

func (h fakeHistory) ByTarget(target string, limit int) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range h.entries {
		if e.Target == target && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRefresher struct {
	wakes atomic.Int32
}

func (r *fakeRefresher) Wake() { r.wakes.Add(1) }

func newTestServer(eng *fakeEngine, refresher *fakeRefresher) *httptest.Server {
	history := fakeHistory{entries: []*ledger.Entry{
		{ID: 1, EventType: ledger.EventInvoked, Primitive: engine.StepUp, Target: "kitchen"},
		{ID: 2, EventType: ledger.EventInvoked, Primitive: engine.Reset, Target: "kitchen"},
	}}
	return httptest.NewServer(NewServer("", 0, eng, history, refresher).Handler())
}

func TestInvoke(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		engineErr  error
		wantStatus int
		wantSource string
	}{
		{name: "no_body", path: "/invoke/step_up/kitchen", wantStatus: http.StatusOK, wantSource: "api"},
		{name: "with_params", path: "/invoke/set/kitchen", body: `{"preset":"nitelite","source":"dashboard"}`, wantStatus: http.StatusOK, wantSource: "dashboard"},
		{name: "bad_json", path: "/invoke/set/kitchen", body: `{"preset":`, wantStatus: http.StatusBadRequest},
		{name: "unknown_primitive", path: "/invoke/dance/kitchen", engineErr: fmt.Errorf("%w: %q", engine.ErrUnknownPrimitive, "dance"), wantStatus: http.StatusNotFound},
		{name: "invalid_params", path: "/invoke/boost/kitchen", engineErr: errors.New("boost amount must be positive"), wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{err: tt.engineErr}
			srv := newTestServer(eng, &fakeRefresher{})
			defer srv.Close()

			resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var applied engine.Applied
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&applied))
			assert.Equal(t, "kitchen", applied.Target)
			assert.Equal(t, tt.wantSource, eng.lastParams.Source)
		})
	}
}

func TestInvokePassesParams(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(eng, &fakeRefresher{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/invoke/boost/office", "application/json", strings.NewReader(`{"amount":30,"seconds":90}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, engine.Boost, eng.lastPrimitive)
	assert.Equal(t, "office", eng.lastTarget)
	assert.Equal(t, 30, eng.lastParams.Amount)
	assert.InDelta(t, 90.0, eng.lastParams.Seconds, 1e-9)
}

func TestReads(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "health", path: "/health", want: `"status":"healthy"`},
		{name: "primitives", path: "/primitives", want: `"step_down"`},
		{name: "area", path: "/areas/kitchen", want: `"kelvin":3000`},
		{name: "areas", path: "/areas", want: `"id":"lounge"`},
		{name: "zone", path: "/zones/living", want: `"all_in_sync":true`},
		{name: "zones", path: "/zones", want: `"rhythm":"default"`},
		{name: "ledger", path: "/ledger/kitchen?limit=1", want: `"primitive":"step_up"`},
	}

	srv := newTestServer(&fakeEngine{}, &fakeRefresher{})
	defer srv.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			var buf strings.Builder
			_, err = io.Copy(&buf, resp.Body)
			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeRefresher{})
	defer srv.Close()

	for _, path := range []string{"/areas/attic", "/zones/garden"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestLedgerLimit(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeRefresher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ledger/kitchen?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []ledger.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Len(t, entries, 1)

	bad, err := http.Get(srv.URL + "/ledger/kitchen?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestRefreshWakesScheduler(t *testing.T) {
	refresher := &fakeRefresher{}
	srv := newTestServer(&fakeEngine{}, refresher)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.EqualValues(t, 1, refresher.wakes.Load())
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeRefresher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/invoke/step_up/kitchen")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
