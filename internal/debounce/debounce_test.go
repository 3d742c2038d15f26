package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGate(150 * time.Millisecond)
	g.now = func() time.Time { return now }

	tests := []struct {
		name    string
		advance time.Duration
		key     string
		want    bool
	}{
		{name: "first", key: "dimmer", want: true},
		{name: "burst", advance: 50 * time.Millisecond, key: "dimmer", want: false},
		{name: "other_key", key: "remote", want: true},
		{name: "window_from_first", advance: 100 * time.Millisecond, key: "dimmer", want: true},
		{name: "again_burst", advance: 10 * time.Millisecond, key: "dimmer", want: false},
	}

	for _, tt := range tests {
		now = now.Add(tt.advance)
		assert.Equal(t, tt.want, g.Allow(tt.key), tt.name)
	}
}

func TestGateZeroWindowAllowsAll(t *testing.T) {
	g := NewGate(0)
	assert.True(t, g.Allow("a"))
	assert.True(t, g.Allow("a"))
}

func TestQuietRunsLastOnly(t *testing.T) {
	q := NewQuiet(30 * time.Millisecond)
	defer q.Close()

	var ran atomic.Int32
	var last atomic.Int32
	for i := int32(1); i <= 5; i++ {
		q.Do("kitchen", func() {
			ran.Add(1)
			last.Store(i)
		})
	}

	assert.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), last.Load())
}

func TestQuietClose(t *testing.T) {
	q := NewQuiet(20 * time.Millisecond)
	var ran atomic.Bool
	q.Do("kitchen", func() { ran.Store(true) })
	q.Close()
	q.Do("kitchen", func() { ran.Store(true) })

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}
