// Package debounce suppresses bursts of events per key.
package debounce

import (
	"sync"
	"time"
)

// Gate lets the first event for a key through and drops any that follow
// within the window.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewGate creates a gate with the given window
func NewGate(window time.Duration) *Gate {
	return &Gate{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether an event for key should be handled
func (g *Gate) Allow(key string) bool {
	if g.window <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if t, ok := g.last[key]; ok && now.Sub(t) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// Quiet runs a key's callback once no new call for that key arrived for
// the quiet period. Only the most recent callback runs.
type Quiet struct {
	mu     sync.Mutex
	period time.Duration
	timers map[string]*time.Timer
	closed bool
}

// NewQuiet creates a trailing debouncer
func NewQuiet(period time.Duration) *Quiet {
	return &Quiet{
		period: period,
		timers: make(map[string]*time.Timer),
	}
}

// Do schedules fn for key, replacing anything pending for it
func (q *Quiet) Do(key string, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	if t, ok := q.timers[key]; ok {
		t.Stop()
	}
	q.timers[key] = time.AfterFunc(q.period, func() {
		q.mu.Lock()
		delete(q.timers, key)
		q.mu.Unlock()
		fn()
	})
}

// Close stops every pending timer
func (q *Quiet) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for key, t := range q.timers {
		t.Stop()
		delete(q.timers, key)
	}
}
