package statusmirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/circadiand/internal/curve"
	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/solar"
)

type fakeWriter struct {
	mu     sync.Mutex
	hashes map[string]map[string]any
	writes int
	err    error
	closed bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{hashes: make(map[string]map[string]any)}
}

func (w *fakeWriter) HSet(_ context.Context, key string, fields map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.hashes[key] = fields
	w.writes++
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

type fakeSource map[string]engine.AreaStatus

func (s fakeSource) AreaIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

func (s fakeSource) AreaStatus(id string) engine.AreaStatus { return s[id] }

func TestWriteAll(t *testing.T) {
	frozen := 22.5
	src := fakeSource{
		"kitchen": {ID: "kitchen", Zone: "living", IsCircadian: true, IsOn: true, Brightness: 80, Kelvin: 4000, XY: curve.XY{X: 0.38, Y: 0.38}, Phase: solar.Ascend},
		"hall":    {ID: "hall", Zone: "default", Brightness: 5, Kelvin: 2000, Phase: solar.Descend, Frozen: true, FrozenAt: &frozen},
	}
	w := newFakeWriter()
	m := New(w, src, "circadiand:", 0)

	require.NoError(t, m.WriteAll(context.Background()))

	kitchen := w.hashes["circadiand:area:kitchen"]
	require.NotNil(t, kitchen)
	assert.Equal(t, "living", kitchen["zone"])
	assert.Equal(t, "true", kitchen["is_on"])
	assert.Equal(t, 80, kitchen["brightness"])
	assert.Equal(t, "0.3800", kitchen["x"])
	assert.Equal(t, "ascend", kitchen["phase"])
	assert.NotContains(t, kitchen, "frozen_at")

	hall := w.hashes["circadiand:area:hall"]
	require.NotNil(t, hall)
	assert.Equal(t, "true", hall["frozen"])
	assert.Equal(t, "22.50", hall["frozen_at"])
}

func TestWriteAllError(t *testing.T) {
	w := newFakeWriter()
	w.err = errors.New("connection refused")
	m := New(w, fakeSource{"kitchen": {ID: "kitchen"}}, "", 0)

	assert.ErrorContains(t, m.WriteAll(context.Background()), "kitchen")
}

func TestRefreshCoalesces(t *testing.T) {
	w := newFakeWriter()
	m := New(w, fakeSource{"kitchen": {ID: "kitchen"}}, "", 20*time.Millisecond)

	for range 5 {
		m.Refresh()
	}
	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, w.count())

	require.NoError(t, m.Close())
	assert.True(t, w.closed)
}
